// Package scope resolves local names, composition chains and imported
// symbols of one parsed stylesheet into an export table.
package scope

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/phobologic/cssmodules/internal/diag"
	"github.com/phobologic/cssmodules/internal/model"
	"github.com/phobologic/cssmodules/internal/parse"
)

// Identer maps a logical local name to its generated identifier.
type Identer interface {
	Ident(local string) string
}

// IdentFunc adapts a function to Identer.
type IdentFunc func(local string) string

// Ident calls f.
func (f IdentFunc) Ident(local string) string {
	return f(local)
}

// Local is one entry of the LocalIdentTable.
type Local struct {
	Name    string
	Ident   string
	Prefix  byte
	Extends []model.ExtendRef
}

// Table is the LocalIdentTable: local names in first-seen document order.
type Table struct {
	Locals []Local
	index  map[string]int
}

// Lookup returns the arena index of name.
func (t *Table) Lookup(name string) (int, bool) {
	i, ok := t.index[name]
	return i, ok
}

// Ident returns the generated identifier of name.
func (t *Table) Ident(name string) (string, bool) {
	i, ok := t.index[name]
	if !ok {
		return "", false
	}
	return t.Locals[i].Ident, true
}

func (t *Table) add(s model.Selector, ids Identer) int {
	if i, ok := t.index[s.Name]; ok {
		return i
	}
	t.Locals = append(t.Locals, Local{Name: s.Name, Ident: ids.Ident(parse.Unescape(s.Name)), Prefix: s.Prefix})
	t.index[s.Name] = len(t.Locals) - 1
	return len(t.Locals) - 1
}

// Result is the resolved scope of one module.
type Result struct {
	Table   Table
	Exports model.ExportTable
	// Imports is the imported symbol table, one placeholder per (url, name).
	Imports []model.ImportPlaceholder
	// ImportURLs lists the distinct urls of Imports in first-seen order.
	ImportURLs []string
	// Replacements maps value names and import aliases to the text that
	// replaces them in declaration values and at-rule preludes.
	Replacements map[string]string
	Errors       diag.List
}

// Fatal reports whether resolution failed.
func (r *Result) Fatal() bool {
	return r.Errors.HasFatal()
}

// ImportToken returns the placeholder token for the i-th url and j-th
// symbol requested from it.
func ImportToken(i, j int) string {
	return fmt.Sprintf("___ICSS_IMPORT_%d_%d___", i, j)
}

type symbols struct {
	res   *Result
	urls  map[string]int
	names []map[string]int
}

func (s *symbols) token(url, name string) string {
	i, ok := s.urls[url]
	if !ok {
		i = len(s.res.ImportURLs)
		s.urls[url] = i
		s.res.ImportURLs = append(s.res.ImportURLs, url)
		s.names = append(s.names, make(map[string]int))
	}
	if j, ok := s.names[i][name]; ok {
		return ImportToken(i, j)
	}
	j := len(s.names[i])
	s.names[i][name] = j
	tok := ImportToken(i, j)
	s.res.Imports = append(s.res.Imports, model.ImportPlaceholder{Token: tok, URL: url, Name: name})
	return tok
}

var wordRe = regexp.MustCompile(`[\w-]+`)

// substitute replaces whole-word occurrences of known names in s.
func substitute(s string, replacements map[string]string) string {
	if len(replacements) == 0 {
		return s
	}
	return wordRe.ReplaceAllStringFunc(s, func(w string) string {
		if r, ok := replacements[w]; ok {
			return r
		}
		return w
	})
}

// Resolve builds the local ident table, the imported symbol table and the
// export table from a parse result. source is used to position errors.
func Resolve(source string, pr *parse.Result, ids Identer) *Result {
	res := &Result{
		Table:        Table{index: make(map[string]int)},
		Replacements: make(map[string]string),
	}
	syms := &symbols{res: res, urls: make(map[string]int)}

	// A value that is exactly one import alias stays a pending reference.
	aliases := make(map[string]model.ImportRef)
	valueOf := func(raw string) model.Value {
		if ref, ok := aliases[raw]; ok {
			return model.Pending(ref.URL, ref.Name)
		}
		return model.Resolved(substitute(raw, res.Replacements))
	}

	type valueEvent struct {
		start int
		def   *parse.ValueDecl
		imp   *parse.ValueImport
	}
	events := make([]valueEvent, 0, len(pr.Values)+len(pr.ValueImports))
	for i := range pr.Values {
		events = append(events, valueEvent{start: pr.Values[i].Span.Start, def: &pr.Values[i]})
	}
	for i := range pr.ValueImports {
		events = append(events, valueEvent{start: pr.ValueImports[i].Span.Start, imp: &pr.ValueImports[i]})
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].start < events[j].start })

	for _, ev := range events {
		if imp := ev.imp; imp != nil {
			res.Replacements[imp.Alias] = syms.token(imp.URL, imp.Name)
			aliases[imp.Alias] = model.ImportRef{URL: imp.URL, Name: imp.Name}
			if imp.Exported {
				res.Exports.Set(imp.Alias, model.Pending(imp.URL, imp.Name))
			}
			continue
		}
		def := ev.def
		v := valueOf(def.Value)
		res.Exports.Set(def.Name, v)
		if v.IsPending() {
			res.Replacements[def.Name] = res.Replacements[def.Value]
			aliases[def.Name] = *v.Ref
		} else {
			res.Replacements[def.Name] = v.Literal
			delete(aliases, def.Name)
		}
	}

	for _, e := range pr.Exports {
		res.Exports.Set(e.Name, valueOf(e.Value))
	}

	for _, s := range pr.Selectors {
		if s.Mode != model.Local {
			continue
		}
		i := res.Table.add(s, ids)
		res.Table.Locals[i].Extends = append(res.Table.Locals[i].Extends, s.Extends...)
	}
	// Animation names refer to keyframes unless a value of that name exists.
	for _, id := range pr.Idents {
		if _, ok := res.Replacements[id.Name]; id.Local && !ok {
			res.Table.add(model.Selector{Name: id.Name, Prefix: '@', Mode: model.Local}, ids)
		}
	}

	// Symbol tokens for composition imports, in table order.
	for _, l := range res.Table.Locals {
		for _, ref := range l.Extends {
			if ref.External() {
				syms.token(ref.From, ref.Name)
			}
		}
	}

	w := &walker{
		source: source,
		table:  &res.Table,
		memo:   make([][]model.Value, len(res.Table.Locals)),
		onPath: make([]bool, len(res.Table.Locals)),
	}
	composed := make([][]model.Value, len(res.Table.Locals))
	for i := range res.Table.Locals {
		values, err := w.walk(i)
		if err != nil {
			res.Errors = append(res.Errors, err)
			return res
		}
		composed[i] = values
	}
	for i, l := range res.Table.Locals {
		res.Exports.Set(parse.Unescape(l.Name), composed[i]...)
	}
	return res
}

// walker composes exported values by a depth-first walk over the extends
// graph. Nodes are arena indices into the table.
type walker struct {
	source string
	table  *Table
	memo   [][]model.Value
	onPath []bool
}

func (w *walker) walk(i int) ([]model.Value, *diag.Error) {
	if w.memo[i] != nil {
		return w.memo[i], nil
	}
	w.onPath[i] = true
	defer func() { w.onPath[i] = false }()

	l := w.table.Locals[i]
	values := []model.Value{model.Resolved(l.Ident)}
	for _, ref := range l.Extends {
		switch {
		case ref.Global:
			values = append(values, model.Resolved(ref.Name))
		case ref.External():
			values = append(values, model.Pending(ref.From, ref.Name))
		default:
			j, ok := w.table.Lookup(ref.Name)
			if !ok {
				return nil, diag.New(diag.UnknownCompositionTarget, w.source, ref.Span.Start,
					"composition target %q of %q is not a local class name", ref.Name, l.Name)
			}
			if w.onPath[j] {
				return nil, diag.New(diag.CircularComposition, w.source, ref.Span.Start,
					"circular composition: %q composes %q", l.Name, ref.Name)
			}
			sub, err := w.walk(j)
			if err != nil {
				return nil, err
			}
			values = append(values, sub...)
		}
	}
	w.memo[i] = values
	return values, nil
}
