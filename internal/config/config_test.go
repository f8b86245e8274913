package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/phobologic/cssmodules/internal/compile"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, used, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if used != "" {
		t.Errorf("used = %q, want no file", used)
	}
	d := Default()
	if cfg.Mode != d.Mode || cfg.LocalIdentName != d.LocalIdentName || !cfg.URL || !cfg.Import {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Build.Format != "toon" || cfg.Log.Level != "warn" {
		t.Errorf("build/log = %+v %+v", cfg.Build, cfg.Log)
	}
}

func TestLoadTOML(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	content := `mode = "pure"
localIdentName = "[name]__[local]"
exportsConvention = "camelCaseOnly"
url = false

[build]
onlyModules = true
exclude = ["vendor/"]
format = "json"
`
	if err := os.WriteFile(filepath.Join(dir, ".cssmodules.toml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, used, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if filepath.Base(used) != ".cssmodules.toml" {
		t.Errorf("used = %q", used)
	}
	if cfg.Mode != "pure" || cfg.LocalIdentName != "[name]__[local]" || cfg.URL || !cfg.Import {
		t.Errorf("cfg = %+v", cfg)
	}
	if !cfg.Build.OnlyModules || cfg.Build.Format != "json" || len(cfg.Build.Exclude) != 1 {
		t.Errorf("build = %+v", cfg.Build)
	}

	opts, err := cfg.CompileOptions(dir)
	if err != nil {
		t.Fatalf("CompileOptions: %v", err)
	}
	if opts.Mode != compile.ModePure || opts.ExportsConvention != compile.CamelCaseOnly || opts.URL {
		t.Errorf("opts = %+v", opts)
	}
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	content := "mode: global\nbuild:\n  syntaxCheck: true\nlog:\n  level: debug\n"
	if err := os.WriteFile(filepath.Join(dir, ".cssmodules.yaml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, _, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != "global" || !cfg.Build.SyntaxCheck || cfg.Log.Level != "debug" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("CSSMODULES_MODE", "icss")
	t.Setenv("CSSMODULES_BUILD_FORMAT", "yaml")

	cfg, _, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != "icss" || cfg.Build.Format != "yaml" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadMalformed(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".cssmodules.toml"), []byte("mode = "), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := Load(dir); err == nil {
		t.Error("malformed config accepted")
	}
}

func TestCompileOptionsInvalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		edit  func(*Config)
		field string
	}{
		{"mode", func(c *Config) { c.Mode = "scoped" }, "mode"},
		{"convention", func(c *Config) { c.ExportsConvention = "kebab" }, "exportsConvention"},
		{"hash", func(c *Config) { c.HashFunction = "crc0" }, ""},
	}
	for _, tt := range tests {
		cfg := Default()
		tt.edit(cfg)
		_, err := cfg.CompileOptions(".")
		var cerr *Error
		if !errors.As(err, &cerr) {
			t.Errorf("%s: expected *Error, got %v", tt.name, err)
			continue
		}
		if cerr.Field != tt.field {
			t.Errorf("%s: field = %q, want %q", tt.name, cerr.Field, tt.field)
		}
	}
}
