package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/phobologic/cssmodules/internal/config"
)

func TestRenderConfig(t *testing.T) {
	t.Parallel()

	got, err := renderConfig(config.Default())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(got, "# cssmodules configuration.") {
		t.Errorf("missing header:\n%s", got)
	}
	for _, want := range []string{
		`mode = "local"`,
		`localIdentName = "[hash:base64]"`,
		`exportsConvention = "asIs"`,
		"[build]",
		`format = "toon"`,
		"[log]",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("rendered config missing %q:\n%s", want, got)
		}
	}
	// Empty optional settings are left out.
	if strings.Contains(got, "localIdentSalt") {
		t.Errorf("empty salt should be omitted:\n%s", got)
	}
}

func TestInitDryRun(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	out, _ := runOK(t, "init", "--dry-run", dir)
	if !strings.Contains(out, `mode = "local"`) {
		t.Errorf("dry run output:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(dir, ".cssmodules.toml")); !os.IsNotExist(err) {
		t.Errorf("dry run wrote a file: %v", err)
	}
}

// TestInitRoundTrip verifies that the written file loads back to the
// defaults.
func TestInitRoundTrip(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	_, stderr := runOK(t, "init", dir)
	if !strings.Contains(stderr, "wrote ") {
		t.Errorf("stderr: %q", stderr)
	}

	cfg, used, err := config.Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if filepath.Base(used) != ".cssmodules.toml" {
		t.Errorf("used = %q", used)
	}
	want := config.Default()
	if cfg.Mode != want.Mode || cfg.LocalIdentName != want.LocalIdentName || cfg.HashDigestLength != want.HashDigestLength {
		t.Errorf("loaded %+v, want %+v", cfg, want)
	}
	if cfg.Build.Format != want.Build.Format || cfg.Log.Level != want.Log.Level {
		t.Errorf("loaded build %+v log %+v", cfg.Build, cfg.Log)
	}
	if _, err := cfg.CompileOptions(dir); err != nil {
		t.Errorf("CompileOptions: %v", err)
	}
}

func TestInitRefusesOverwrite(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeTestFile(t, dir, ".cssmodules.yaml", "mode: pure\n")

	var stdout, stderr bytes.Buffer
	err := run([]string{"init", dir}, &stdout, &stderr)
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, ".cssmodules.toml")); !os.IsNotExist(err) {
		t.Errorf("init wrote alongside an existing config: %v", err)
	}
}

func TestInitForce(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeTestFile(t, dir, ".cssmodules.toml", "mode = \"pure\"\n")

	runOK(t, "init", "--force", dir)
	data, err := os.ReadFile(filepath.Join(dir, ".cssmodules.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `mode = "local"`) {
		t.Errorf("file not overwritten:\n%s", data)
	}
}
