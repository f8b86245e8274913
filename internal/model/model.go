// Package model defines core data structures for the stylesheet compiler.
package model

import (
	"encoding/json"
	"strings"

	"github.com/phobologic/cssmodules/internal/diag"
)

// Span is a byte range in the original source.
type Span struct {
	Start  int `json:"start"`
	Length int `json:"length"`
}

// End returns the exclusive end offset.
func (s Span) End() int {
	return s.Start + s.Length
}

// SpanOf returns the span covering [start, end).
func SpanOf(start, end int) Span {
	return Span{Start: start, Length: end - start}
}

// Mode is the scope a selector name was declared in.
type Mode int

const (
	Local Mode = iota
	Global
)

func (m Mode) String() string {
	if m == Global {
		return "global"
	}
	return "local"
}

// ExtendRef is one composes/extends target. From is the import url for a
// name exported by another module; Global marks "from global" names, which
// are used verbatim.
type ExtendRef struct {
	Name   string `json:"name"`
	From   string `json:"from,omitempty"`
	Global bool   `json:"global,omitempty"`
	Span   Span   `json:"span"`
}

// External reports whether the target lives in another module.
func (r ExtendRef) External() bool {
	return r.From != ""
}

// Selector is a class or id name found in a selector, or a @keyframes name
// (Prefix '@').
type Selector struct {
	Name    string      `json:"name"`
	Prefix  byte        `json:"prefix"`
	Span    Span        `json:"span"`
	Mode    Mode        `json:"mode"`
	Extends []ExtendRef `json:"extends,omitempty"`
}

// ImportItem is one dependency edge. Export is empty for a plain @import and
// names the requested symbol for a value/composes import.
type ImportItem struct {
	URL    string `json:"url"`
	Export string `json:"export,omitempty"`
	Media  string `json:"media,omitempty"`
	Span   Span   `json:"span"`
}

// URLItem is one url() (or image-set string) occurrence.
type URLItem struct {
	URL        string `json:"url"`
	Span       Span   `json:"span"`
	NeedQuotes bool   `json:"needQuotes,omitempty"`
}

// ImportRef names a symbol exported by another module.
type ImportRef struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

// Value is either a resolved literal or a pending reference into another
// module's export table.
type Value struct {
	Literal string     `json:"literal,omitempty"`
	Ref     *ImportRef `json:"ref,omitempty"`
}

// Resolved returns a literal value.
func Resolved(s string) Value {
	return Value{Literal: s}
}

// Pending returns a value that waits for another module's export.
func Pending(url, name string) Value {
	return Value{Ref: &ImportRef{URL: url, Name: name}}
}

// IsPending reports whether v still references another module.
func (v Value) IsPending() bool {
	return v.Ref != nil
}

// Export is one entry of an ExportTable.
type Export struct {
	Name   string  `json:"name"`
	Values []Value `json:"values"`
}

// ExportTable maps logical names to values, preserving insertion order.
type ExportTable struct {
	Entries []Export `json:"entries"`
	index   map[string]int
}

func (t *ExportTable) lookup(name string) (int, bool) {
	if t.index == nil || len(t.index) != len(t.Entries) {
		t.index = make(map[string]int, len(t.Entries))
		for i, e := range t.Entries {
			t.index[e.Name] = i
		}
	}
	i, ok := t.index[name]
	return i, ok
}

// Set replaces the values of name. A replaced name keeps its position.
func (t *ExportTable) Set(name string, values ...Value) {
	if i, ok := t.lookup(name); ok {
		t.Entries[i].Values = append([]Value(nil), values...)
		return
	}
	t.Entries = append(t.Entries, Export{Name: name, Values: append([]Value(nil), values...)})
	t.index[name] = len(t.Entries) - 1
}

// Append adds values to name, creating it if needed.
func (t *ExportTable) Append(name string, values ...Value) {
	if i, ok := t.lookup(name); ok {
		t.Entries[i].Values = append(t.Entries[i].Values, values...)
		return
	}
	t.Set(name, values...)
}

// Get returns the values of name.
func (t *ExportTable) Get(name string) ([]Value, bool) {
	i, ok := t.lookup(name)
	if !ok {
		return nil, false
	}
	return t.Entries[i].Values, true
}

// Len returns the number of names.
func (t *ExportTable) Len() int {
	return len(t.Entries)
}

// Names returns the names in insertion order.
func (t *ExportTable) Names() []string {
	names := make([]string, len(t.Entries))
	for i, e := range t.Entries {
		names[i] = e.Name
	}
	return names
}

// DependencyKind classifies a dependency edge.
type DependencyKind string

const (
	KindImport DependencyKind = "import"
	KindValue  DependencyKind = "value"
	KindURL    DependencyKind = "url"
)

// Dependency is one deduplicated edge from a module to another resource.
// URL is the resolver's normalized reference; Request is the text written
// in the stylesheet.
type Dependency struct {
	URL     string         `json:"url"`
	Request string         `json:"request"`
	Kind    DependencyKind `json:"kind"`
	Media   string         `json:"media,omitempty"`
}

// ImportPlaceholder binds a placeholder token to an imported symbol.
type ImportPlaceholder struct {
	Token string `json:"token"`
	URL   string `json:"url"`
	Name  string `json:"name"`
}

// URLPlaceholder binds a placeholder token to one url() occurrence.
type URLPlaceholder struct {
	Token      string `json:"token"`
	URL        string `json:"url"`
	Hash       string `json:"hash,omitempty"`
	NeedQuotes bool   `json:"needQuotes,omitempty"`
}

// ExternalImport is an @import of a url that is not a module.
type ExternalImport struct {
	URL   string `json:"url"`
	Media string `json:"media,omitempty"`
}

// Text returns the @import statement emitted for the external import.
func (e ExternalImport) Text() string {
	if e.Media == "" {
		return "@import url(" + e.URL + ");"
	}
	return "@import url(" + e.URL + ") " + e.Media + ";"
}

// Module is the compiled form of one stylesheet. CSS and export values may
// contain import and url placeholder tokens until the module is linked.
type Module struct {
	Path         string              `json:"path"`
	CSS          string              `json:"css"`
	SourceMap    json.RawMessage     `json:"sourceMap,omitempty"`
	Exports      ExportTable         `json:"exports"`
	Dependencies []Dependency        `json:"dependencies"`
	Imports      []ImportPlaceholder `json:"imports,omitempty"`
	URLs         []URLPlaceholder    `json:"urls,omitempty"`
	External     []ExternalImport    `json:"external,omitempty"`
	Diagnostics  diag.List           `json:"diagnostics,omitempty"`
}

// ImportToken returns the placeholder token for ref, or "" if the module
// never imported it.
func (m *Module) ImportToken(ref ImportRef) string {
	for _, p := range m.Imports {
		if p.URL == ref.URL && p.Name == ref.Name {
			return p.Token
		}
	}
	return ""
}

// ExportString renders the values of name joined by spaces, with pending
// values shown as their placeholder tokens.
func (m *Module) ExportString(name string) (string, bool) {
	values, ok := m.Exports.Get(name)
	if !ok {
		return "", false
	}
	return m.RenderValues(values), true
}

// RenderValues joins values with spaces, rendering pending values as their
// placeholder tokens.
func (m *Module) RenderValues(values []Value) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		if v.IsPending() {
			parts = append(parts, m.ImportToken(*v.Ref))
			continue
		}
		parts = append(parts, v.Literal)
	}
	return strings.Join(parts, " ")
}

// DependenciesOf returns the dependencies of the given kind in order.
func (m *Module) DependenciesOf(kind DependencyKind) []Dependency {
	var out []Dependency
	for _, d := range m.Dependencies {
		if d.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}
