// Package link resolves placeholders across compiled modules: pending
// export values, import tokens in CSS text and url tokens. It also builds
// the runtime record list of a module from its dependencies.
package link

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/phobologic/cssmodules/internal/diag"
	"github.com/phobologic/cssmodules/internal/graph"
	"github.com/phobologic/cssmodules/internal/model"
	"github.com/phobologic/cssmodules/internal/runtime"
)

// Options configure a Linker.
type Options struct {
	// PublicURL maps a url dependency reference to the url written into
	// the output. The reference is used unchanged when nil.
	PublicURL func(ref string) string
}

// Export is one resolved export entry.
type Export struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type symbolKey struct{ path, name string }

// Linker holds a set of compiled modules keyed by path. It is not safe for
// concurrent use.
type Linker struct {
	modules   map[string]*model.Module
	paths     []string
	edges     []graph.Edge
	ids       map[string]int
	publicURL func(string) string

	values    map[symbolKey]string
	resolving map[symbolKey]bool
	records   map[string][]runtime.Record
	building  map[string]bool
}

// New creates a linker. Module ids are assigned by sorted path. Modules
// with fatal diagnostics are rejected, as are dependencies on modules that
// are not part of the set.
func New(modules []*model.Module, opts Options) (*Linker, error) {
	l := &Linker{
		modules:   make(map[string]*model.Module, len(modules)),
		ids:       make(map[string]int, len(modules)),
		publicURL: opts.PublicURL,
		values:    make(map[symbolKey]string),
		resolving: make(map[symbolKey]bool),
		records:   make(map[string][]runtime.Record),
		building:  make(map[string]bool),
	}
	if l.publicURL == nil {
		l.publicURL = func(ref string) string { return ref }
	}
	paths := make([]string, 0, len(modules))
	for _, m := range modules {
		if m.Diagnostics.HasFatal() {
			return nil, fmt.Errorf("link %s: %w", m.Path, m.Diagnostics.Err())
		}
		if _, dup := l.modules[m.Path]; dup {
			return nil, fmt.Errorf("link: duplicate module %s", m.Path)
		}
		l.modules[m.Path] = m
		paths = append(paths, m.Path)
	}
	sort.Strings(paths)
	for i, p := range paths {
		l.ids[p] = i
	}
	l.paths = paths
	l.edges = graph.BuildGraph(modules)
	if missing := graph.Missing(paths, l.edges); len(missing) > 0 {
		return nil, diag.Wrap(diag.UnresolvableImport, nil, "modules not compiled: %s", strings.Join(missing, ", "))
	}
	return l, nil
}

// ID returns the numeric id of a module.
func (l *Linker) ID(path string) (int, bool) {
	id, ok := l.ids[path]
	return id, ok
}

// Order returns the module paths with dependencies first. Circular
// @import chains are reported as a *graph.CycleError.
func (l *Linker) Order() ([]string, error) {
	return graph.Order(l.paths, l.edges)
}

func (l *Linker) module(path string) (*model.Module, error) {
	m, ok := l.modules[path]
	if !ok {
		return nil, diag.Wrap(diag.UnresolvableImport, nil, "module %s was not compiled", path)
	}
	return m, nil
}

var (
	importTokenRe = regexp.MustCompile(`___ICSS_IMPORT_\d+_\d+___`)
	urlTokenRe    = regexp.MustCompile(`___ICSS_URL_\d+___`)
)

// Symbol resolves the export name of module path to its final string.
func (l *Linker) Symbol(path, name string) (string, error) {
	key := symbolKey{path, name}
	if v, ok := l.values[key]; ok {
		return v, nil
	}
	if l.resolving[key] {
		return "", diag.Wrap(diag.CircularComposition, nil, "%s: export %q depends on itself", path, name)
	}
	m, err := l.module(path)
	if err != nil {
		return "", err
	}
	values, ok := m.Exports.Get(name)
	if !ok {
		return "", diag.Wrap(diag.UnknownCompositionTarget, nil, "%s has no export %q", path, name)
	}

	l.resolving[key] = true
	defer delete(l.resolving, key)

	parts := make([]string, 0, len(values))
	for _, v := range values {
		if v.IsPending() {
			s, err := l.Symbol(v.Ref.URL, v.Ref.Name)
			if err != nil {
				return "", fmt.Errorf("%s: %w", path, err)
			}
			parts = append(parts, s)
			continue
		}
		s, err := l.replaceImports(m, v.Literal)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	out := strings.Join(parts, " ")
	l.values[key] = out
	return out, nil
}

// replaceImports substitutes import tokens of m in s.
func (l *Linker) replaceImports(m *model.Module, s string) (string, error) {
	if !strings.Contains(s, "___ICSS_IMPORT_") {
		return s, nil
	}
	byToken := make(map[string]model.ImportPlaceholder, len(m.Imports))
	for _, p := range m.Imports {
		byToken[p.Token] = p
	}
	var firstErr error
	out := importTokenRe.ReplaceAllStringFunc(s, func(tok string) string {
		p, ok := byToken[tok]
		if !ok {
			return tok
		}
		v, err := l.Symbol(p.URL, p.Name)
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%s: %w", m.Path, err)
		}
		return v
	})
	return out, firstErr
}

// Exports returns the resolved export table of a module in order.
func (l *Linker) Exports(path string) ([]Export, error) {
	m, err := l.module(path)
	if err != nil {
		return nil, err
	}
	out := make([]Export, 0, m.Exports.Len())
	for _, name := range m.Exports.Names() {
		v, err := l.Symbol(path, name)
		if err != nil {
			return nil, err
		}
		out = append(out, Export{Name: name, Value: v})
	}
	return out, nil
}

// CSS returns the module's CSS with import and url tokens substituted.
func (l *Linker) CSS(path string) (string, error) {
	m, err := l.module(path)
	if err != nil {
		return "", err
	}
	css, err := l.replaceImports(m, m.CSS)
	if err != nil {
		return "", err
	}
	if len(m.URLs) == 0 {
		return css, nil
	}
	byToken := make(map[string]model.URLPlaceholder, len(m.URLs))
	for _, u := range m.URLs {
		byToken[u.Token] = u
	}
	return urlTokenRe.ReplaceAllStringFunc(css, func(tok string) string {
		u, ok := byToken[tok]
		if !ok {
			return tok
		}
		return FormatURL(l.publicURL(u.URL)+u.Hash, u.NeedQuotes)
	}), nil
}

var needsQuotesRe = regexp.MustCompile(`["'() \t\n]|%20`)

// FormatURL renders a url for use inside url() or image-set(). It is
// double-quoted when needQuotes is set or the url contains characters that
// cannot appear in a bare url.
func FormatURL(url string, needQuotes bool) string {
	if !needQuotes && !needsQuotesRe.MatchString(url) {
		return url
	}
	url = strings.ReplaceAll(url, `"`, `\"`)
	url = strings.ReplaceAll(url, "\n", `\n`)
	return `"` + url + `"`
}

// Records returns the runtime record list of a module: its external
// imports, then the lists of its @import dependencies under their media,
// then the lists of its value and composition dependencies, then its own
// record. An import cycle is cut at the back edge.
func (l *Linker) Records(path string) ([]runtime.Record, error) {
	records, _, err := l.buildRecords(path)
	return records, err
}

// buildRecords reports complete=false when a cycle was cut below path. Such
// lists depend on where the walk entered the cycle and are not memoized.
func (l *Linker) buildRecords(path string) (records []runtime.Record, complete bool, err error) {
	if r, ok := l.records[path]; ok {
		return r, true, nil
	}
	if l.building[path] {
		return nil, false, nil
	}
	m, err := l.module(path)
	if err != nil {
		return nil, false, err
	}
	l.building[path] = true
	defer delete(l.building, path)

	var list runtime.List
	for _, ext := range m.External {
		list.Merge([]runtime.Record{runtime.Anonymous(ext.Text(), "")}, "")
	}
	complete = true
	for _, kind := range []model.DependencyKind{model.KindImport, model.KindValue} {
		for _, d := range m.DependenciesOf(kind) {
			dep, ok, err := l.buildRecords(d.URL)
			if err != nil {
				return nil, false, fmt.Errorf("%s: %w", path, err)
			}
			complete = complete && ok
			list.Merge(dep, d.Media)
		}
	}
	css, err := l.CSS(path)
	if err != nil {
		return nil, false, err
	}
	own := runtime.NewRecord(l.ids[path], css, "")
	own.SourceMap = m.SourceMap
	list.Push(own)

	records = list.Records()
	if complete {
		l.records[path] = records
	}
	return records, complete, nil
}

// Bundle renders the merged stylesheet of an entry module.
func (l *Linker) Bundle(path string, withMaps bool) (string, error) {
	records, err := l.Records(path)
	if err != nil {
		return "", err
	}
	var list runtime.List
	list.Merge(records, "")
	return list.Render(withMaps), nil
}
