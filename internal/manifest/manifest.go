// Package manifest describes the result of a build: every compiled module,
// its resolved exports, its dependency edges and its diagnostics. The
// manifest can be written as TOON, JSON, YAML or TOML.
package manifest

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/phobologic/cssmodules/internal/diag"
	"github.com/phobologic/cssmodules/internal/link"
	"github.com/phobologic/cssmodules/internal/model"
	"github.com/phobologic/cssmodules/internal/toon"
)

// Format selects the manifest encoding.
type Format string

const (
	FormatTOON Format = "toon"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatTOON, FormatJSON, FormatYAML, FormatTOML:
		return f, nil
	case "yml":
		return FormatYAML, nil
	case "":
		return FormatTOON, nil
	}
	return "", fmt.Errorf("unknown manifest format %q (want toon, json, yaml or toml)", s)
}

// Manifest is the build summary.
type Manifest struct {
	Root         string       `json:"root" yaml:"root" toml:"root"`
	Modules      []Module     `json:"modules" yaml:"modules" toml:"modules"`
	Dependencies []Dependency `json:"dependencies" yaml:"dependencies" toml:"dependencies"`
	Diagnostics  []Diagnostic `json:"diagnostics,omitempty" yaml:"diagnostics,omitempty" toml:"diagnostics,omitempty"`
}

// Module is one compiled stylesheet.
type Module struct {
	Path    string   `json:"path" yaml:"path" toml:"path"`
	ID      int      `json:"id" yaml:"id" toml:"id"`
	Failed  bool     `json:"failed,omitempty" yaml:"failed,omitempty" toml:"failed,omitempty"`
	Exports []Export `json:"exports" yaml:"exports" toml:"exports"`
}

// Export is one resolved export entry.
type Export struct {
	Name  string `json:"name" yaml:"name" toml:"name"`
	Value string `json:"value" yaml:"value" toml:"value"`
}

// Dependency is one deduplicated edge.
type Dependency struct {
	Source string `json:"source" yaml:"source" toml:"source"`
	Target string `json:"target" yaml:"target" toml:"target"`
	Kind   string `json:"kind" yaml:"kind" toml:"kind"`
	Media  string `json:"media,omitempty" yaml:"media,omitempty" toml:"media,omitempty"`
}

// Diagnostic is one compile error or warning.
type Diagnostic struct {
	File     string `json:"file" yaml:"file" toml:"file"`
	Line     int    `json:"line" yaml:"line" toml:"line"`
	Column   int    `json:"column" yaml:"column" toml:"column"`
	Severity string `json:"severity" yaml:"severity" toml:"severity"`
	Code     string `json:"code" yaml:"code" toml:"code"`
	Message  string `json:"message" yaml:"message" toml:"message"`
}

// Build assembles a manifest. Modules are listed by path. Exports are
// resolved through l when it is non-nil; otherwise they are rendered with
// their placeholder tokens.
func Build(root string, modules []*model.Module, l *link.Linker) (*Manifest, error) {
	sorted := append([]*model.Module(nil), modules...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	m := &Manifest{Root: root}
	for i, mod := range sorted {
		entry := Module{Path: mod.Path, ID: i, Failed: mod.Diagnostics.HasFatal(), Exports: []Export{}}
		if l != nil && !entry.Failed {
			if id, ok := l.ID(mod.Path); ok {
				entry.ID = id
			}
			exports, err := l.Exports(mod.Path)
			if err != nil {
				return nil, fmt.Errorf("manifest: %w", err)
			}
			for _, e := range exports {
				entry.Exports = append(entry.Exports, Export(e))
			}
		} else {
			for _, name := range mod.Exports.Names() {
				v, _ := mod.ExportString(name)
				entry.Exports = append(entry.Exports, Export{Name: name, Value: v})
			}
		}
		m.Modules = append(m.Modules, entry)

		for _, d := range mod.Dependencies {
			m.Dependencies = append(m.Dependencies, Dependency{Source: mod.Path, Target: d.URL, Kind: string(d.Kind), Media: d.Media})
		}
		for _, e := range mod.Diagnostics {
			m.Diagnostics = append(m.Diagnostics, diagnostic(mod.Path, e))
		}
	}
	return m, nil
}

func diagnostic(file string, e *diag.Error) Diagnostic {
	if e.File != "" {
		file = e.File
	}
	return Diagnostic{
		File:     file,
		Line:     e.Line,
		Column:   e.Column,
		Severity: string(e.Code.Severity()),
		Code:     string(e.Code),
		Message:  e.Message,
	}
}

// Encode writes m to w in format f.
func Encode(w io.Writer, m *Manifest, f Format) error {
	switch f {
	case FormatTOON, "":
		_, err := io.WriteString(w, EncodeTOON(m)+"\n")
		return err
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(m); err != nil {
			return fmt.Errorf("encode yaml manifest: %w", err)
		}
		return enc.Close()
	case FormatTOML:
		data, err := toml.Marshal(m)
		if err != nil {
			return fmt.Errorf("encode toml manifest: %w", err)
		}
		_, err = w.Write(data)
		return err
	}
	return fmt.Errorf("unknown manifest format %q", f)
}

// EncodeTOON renders m as TOON tables: modules, exports, dependencies and,
// when present, diagnostics.
func EncodeTOON(m *Manifest) string {
	modules := &toon.Table{Name: "modules", Columns: []string{"path", "id", "failed"}}
	exports := &toon.Table{Name: "exports", Columns: []string{"file", "name", "value"}}
	for _, mod := range m.Modules {
		modules.Append(mod.Path, mod.ID, strconv.FormatBool(mod.Failed))
		for _, e := range mod.Exports {
			exports.Append(mod.Path, e.Name, e.Value)
		}
	}
	deps := &toon.Table{Name: "dependencies", Columns: []string{"source", "target", "kind", "media"}}
	for _, d := range m.Dependencies {
		deps.Append(d.Source, d.Target, d.Kind, d.Media)
	}
	diags := &toon.Table{Name: "diagnostics", Columns: []string{"file", "line", "column", "severity", "code", "message"}, OmitEmpty: true}
	for _, d := range m.Diagnostics {
		diags.Append(d.File, d.Line, d.Column, d.Severity, d.Code, d.Message)
	}
	return toon.Encode(toon.Document{
		Fields: []toon.Field{{Key: "root", Value: m.Root}},
		Tables: []*toon.Table{modules, exports, deps, diags},
	})
}
