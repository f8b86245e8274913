// Package codegen writes a compiled module: it splices generated
// identifiers, value substitutions and placeholders into the source text
// and emits the export table, placeholder lists and deduplicated
// dependencies.
package codegen

import (
	"encoding/json"
	"fmt"

	"github.com/phobologic/cssmodules/internal/model"
	"github.com/phobologic/cssmodules/internal/parse"
	"github.com/phobologic/cssmodules/internal/scope"
)

// URL is a requestable url() occurrence.
type URL struct {
	Item model.URLItem
	// Ref is the resolved module reference of the request part.
	Ref string
	// Request is the url as written, without Hash.
	Request string
	// Hash is the "?#..." or "#..." suffix kept per occurrence.
	Hash string
}

// Import is an @import statement removed from the output, either because it
// becomes a module dependency or because it is passed through as an
// external record.
type Import struct {
	Item     model.ImportItem
	Ref      string
	External bool
}

// Input collects everything the generator needs for one module.
type Input struct {
	Path      string
	Source    string
	SourceMap json.RawMessage
	Parse     *parse.Result
	Scope     *scope.Result
	URLs      []URL
	Imports   []Import
	// Requests maps resolved references of symbol imports to the text the
	// stylesheet used to request them.
	Requests map[string]string
}

// URLToken returns the placeholder for the n-th url occurrence.
func URLToken(n int) string {
	return fmt.Sprintf("___ICSS_URL_%d___", n)
}

// Generate produces the compiled module. The only possible error is a
// broken span invariant, returned as an *OverlapError or a range error.
func Generate(in Input) (*model.Module, error) {
	pr, sc := in.Parse, in.Scope
	edits := make([]Edit, 0, len(pr.Selectors)+len(pr.Removals)+len(in.URLs)+len(in.Imports))

	for _, s := range pr.Selectors {
		if s.Mode != model.Local {
			continue
		}
		id, ok := sc.Table.Ident(s.Name)
		if !ok {
			return nil, fmt.Errorf("selector %q missing from ident table", s.Name)
		}
		edits = append(edits, Edit{Span: s.Span, Text: id})
	}
	for _, span := range pr.Removals {
		edits = append(edits, Edit{Span: span})
	}
	for _, id := range pr.Idents {
		if text, ok := sc.Replacements[id.Name]; ok {
			edits = append(edits, Edit{Span: id.Span, Text: text})
		} else if text, ok := sc.Table.Ident(id.Name); ok && id.Local {
			edits = append(edits, Edit{Span: id.Span, Text: text})
		}
	}

	m := &model.Module{
		Path:      in.Path,
		SourceMap: in.SourceMap,
		Exports:   sc.Exports,
		Imports:   sc.Imports,
	}
	deps := newDependencySet()

	seenExternal := make(map[[2]string]bool)
	for _, imp := range in.Imports {
		edits = append(edits, Edit{Span: imp.Item.Span})
		if imp.External {
			key := [2]string{imp.Item.URL, imp.Item.Media}
			if !seenExternal[key] {
				seenExternal[key] = true
				m.External = append(m.External, model.ExternalImport{URL: imp.Item.URL, Media: imp.Item.Media})
			}
			continue
		}
		deps.add(model.Dependency{URL: imp.Ref, Request: imp.Item.URL, Kind: model.KindImport, Media: imp.Item.Media})
	}
	for _, url := range sc.ImportURLs {
		request := url
		if r, ok := in.Requests[url]; ok {
			request = r
		}
		deps.add(model.Dependency{URL: url, Request: request, Kind: model.KindValue})
	}
	for n, u := range in.URLs {
		token := URLToken(n)
		text := "url(" + token + ")"
		if u.Item.NeedQuotes {
			text = token
		}
		edits = append(edits, Edit{Span: u.Item.Span, Text: text})
		m.URLs = append(m.URLs, model.URLPlaceholder{Token: token, URL: u.Ref, Hash: u.Hash, NeedQuotes: u.Item.NeedQuotes})
		deps.add(model.Dependency{URL: u.Ref, Request: u.Request, Kind: model.KindURL})
	}

	css, err := Splice(in.Source, edits)
	if err != nil {
		return nil, err
	}
	m.CSS = css
	m.Dependencies = deps.list
	return m, nil
}

// dependencySet deduplicates dependency edges. @import edges are keyed by
// (url, media); symbol and url edges by url alone.
type dependencySet struct {
	seen map[dependencyKey]bool
	list []model.Dependency
}

type dependencyKey struct {
	kind  model.DependencyKind
	url   string
	media string
}

func newDependencySet() *dependencySet {
	return &dependencySet{seen: make(map[dependencyKey]bool)}
}

func (s *dependencySet) add(d model.Dependency) {
	key := dependencyKey{kind: d.Kind, url: d.URL}
	if d.Kind == model.KindImport {
		key.media = d.Media
	}
	if s.seen[key] {
		return
	}
	s.seen[key] = true
	s.list = append(s.list, d)
}
