package discover

import (
	"os"
	"path/filepath"
	"testing"
)

func paths(entries []FileEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Path
	}
	return out
}

func TestDiscoverStylesheets(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	writeFile(t, dir, "app.css", ".a {}")
	writeFile(t, dir, "components/button.module.css", ".b {}")
	// Not a stylesheet
	writeFile(t, dir, "readme.txt", "hello")
	writeFile(t, dir, "theme.scss", ".c {}")
	// Hidden file should be ignored
	writeFile(t, dir, ".hidden.css", ".d {}")

	entries, err := Files(dir, Options{})
	if err != nil {
		t.Fatalf("Files: %v", err)
	}

	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d: %v", len(entries), paths(entries))
	}

	// Sorted, slash separated
	if entries[0].Path != "app.css" || entries[0].Module {
		t.Errorf("entry 0: got %+v", entries[0])
	}
	if entries[1].Path != "components/button.module.css" || !entries[1].Module {
		t.Errorf("entry 1: got %+v", entries[1])
	}
}

func TestDiscoverSkipDirs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	writeFile(t, dir, "main.css", ".a {}")
	writeFile(t, dir, "node_modules/pkg/index.css", ".a {}")
	writeFile(t, dir, "dist/main.css", ".a {}")
	writeFile(t, dir, ".cache/secret.css", ".a {}")

	entries, err := Files(dir, Options{})
	if err != nil {
		t.Fatalf("Files: %v", err)
	}

	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %v", paths(entries))
	}
	if entries[0].Path != "main.css" {
		t.Errorf("expected main.css, got %q", entries[0].Path)
	}
}

func TestDiscoverOnlyModules(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	writeFile(t, dir, "global.css", "body {}")
	writeFile(t, dir, "a.module.css", ".a {}")
	writeFile(t, dir, "b.Module.CSS", ".b {}")

	entries, err := Files(dir, Options{OnlyModules: true})
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 module entries, got %v", paths(entries))
	}
	for _, e := range entries {
		if !e.Module {
			t.Errorf("entry %q not marked as module", e.Path)
		}
	}
}

func TestDiscoverGitignore(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	writeFile(t, dir, ".gitignore", "generated/\n*.min.css\n")
	writeFile(t, dir, "keep.css", ".a {}")
	writeFile(t, dir, "site.min.css", ".a{}")
	writeFile(t, dir, "generated/out.css", ".a {}")

	entries, err := Files(dir, Options{})
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if len(entries) != 1 || entries[0].Path != "keep.css" {
		t.Errorf("entries = %v", paths(entries))
	}
}

func TestDiscoverExclude(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	writeFile(t, dir, "a.css", ".a {}")
	writeFile(t, dir, "vendor/b.css", ".b {}")

	entries, err := Files(dir, Options{Exclude: []string{"vendor/"}})
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if len(entries) != 1 || entries[0].Path != "a.css" {
		t.Errorf("entries = %v", paths(entries))
	}
}

func TestDiscoverSymlinksSkipped(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "real.css", ".a {}")

	// Create symlink
	err := os.Symlink(filepath.Join(dir, "real.css"), filepath.Join(dir, "link.css"))
	if err != nil {
		t.Skip("symlinks not supported")
	}

	entries, err := Files(dir, Options{})
	if err != nil {
		t.Fatalf("Files: %v", err)
	}

	if len(entries) != 1 {
		t.Fatalf("expected 1 entry (no symlink), got %d", len(entries))
	}
	if entries[0].Path != "real.css" {
		t.Errorf("expected real.css, got %q", entries[0].Path)
	}
}

func TestIsModule(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		want bool
	}{
		{"button.module.css", true},
		{"Button.MODULE.css", true},
		{"button.css", false},
		{"module.css", false},
		{"button.module.scss", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := IsModule(tc.name); got != tc.want {
				t.Errorf("IsModule(%q) = %v, want %v", tc.name, got, tc.want)
			}
		})
	}
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
