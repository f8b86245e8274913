// Package compile turns one stylesheet into a module: it runs the parser,
// the scope resolver, the identifier allocator and the code generator, and
// resolves every request through the configured Resolver.
package compile

import (
	"encoding/json"
	"errors"

	"github.com/phobologic/cssmodules/internal/codegen"
	"github.com/phobologic/cssmodules/internal/diag"
	"github.com/phobologic/cssmodules/internal/ident"
	"github.com/phobologic/cssmodules/internal/model"
	"github.com/phobologic/cssmodules/internal/parse"
	"github.com/phobologic/cssmodules/internal/scope"
)

// Input is one stylesheet to compile. Path is the module's normalized
// reference and is used as the [path]/[name] context and by the resolver.
type Input struct {
	Path      string
	Source    string
	SourceMap json.RawMessage
}

// Compile compiles one stylesheet. Invalid options are returned as an
// error; problems in the stylesheet are reported in Module.Diagnostics. A
// module with fatal diagnostics has empty CSS, exports and dependencies.
//
// Compile has no side effects and is safe to call concurrently.
func Compile(in Input, opts Options) (*model.Module, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	template := opts.LocalIdentName
	if template == "" {
		template = ident.DefaultTemplate
	}
	alloc, err := ident.NewAllocator(opts.identContext(in.Path, in.Source), template)
	if err != nil {
		return nil, err
	}

	c := &compilation{in: in, opts: opts, resolver: opts.resolver()}
	m := c.run(alloc)
	m.Diagnostics = c.diags.WithFile(in.Path)
	if m.Diagnostics.HasFatal() {
		return &model.Module{Path: in.Path, Diagnostics: m.Diagnostics}, nil
	}
	m.Exports = applyConvention(m.Exports, opts.ExportsConvention)
	return m, nil
}

type compilation struct {
	in       Input
	opts     Options
	resolver Resolver
	diags    diag.List
	requests map[string]string
}

func (c *compilation) fatal() bool {
	return c.diags.HasFatal()
}

func (c *compilation) unresolvable(offset int, request string, err error) {
	e := diag.New(diag.UnresolvableImport, c.in.Source, offset, "cannot resolve %q: %v", request, err)
	c.diags = append(c.diags, e)
}

// resolveSymbol resolves the url of a value or composition import.
func (c *compilation) resolveSymbol(request string, offset int) string {
	ref, err := c.resolver.Resolve(request, model.KindValue, c.in.Path)
	if err != nil {
		c.unresolvable(offset, request, err)
		return request
	}
	if _, ok := c.requests[ref]; !ok {
		c.requests[ref] = request
	}
	return ref
}

func (c *compilation) run(alloc *ident.Allocator) *model.Module {
	empty := &model.Module{Path: c.in.Path}
	pr := parse.Parse(c.in.Source, c.opts.parseOptions())
	c.diags = append(c.diags, pr.Errors...)
	if c.fatal() {
		return empty
	}

	c.requests = make(map[string]string)
	for i := range pr.ValueImports {
		vi := &pr.ValueImports[i]
		vi.URL = c.resolveSymbol(vi.URL, vi.Span.Start)
	}
	for i := range pr.Selectors {
		s := &pr.Selectors[i]
		for j := range s.Extends {
			if ref := &s.Extends[j]; ref.External() {
				ref.From = c.resolveSymbol(ref.From, ref.Span.Start)
			}
		}
	}
	if c.fatal() {
		return empty
	}

	sc := scope.Resolve(c.in.Source, pr, alloc)
	c.diags = append(c.diags, sc.Errors...)
	if c.fatal() {
		return empty
	}

	urls := c.urls(pr.URLs)
	imports := c.imports(pr.Imports)
	if c.fatal() {
		return empty
	}

	m, err := codegen.Generate(codegen.Input{
		Path:      c.in.Path,
		Source:    c.in.Source,
		SourceMap: c.in.SourceMap,
		Parse:     pr,
		Scope:     sc,
		URLs:      urls,
		Imports:   imports,
		Requests:  c.requests,
	})
	if err != nil {
		c.diags = append(c.diags, diag.Wrap(diag.InternalError, err, "code generation failed"))
		return empty
	}
	return m
}

func (c *compilation) urls(items []model.URLItem) []codegen.URL {
	if !c.opts.URL {
		return nil
	}
	var out []codegen.URL
	for _, item := range items {
		if c.opts.URLFilter != nil && !c.opts.URLFilter(item.URL, c.in.Path) {
			continue
		}
		request, hash := SplitHash(item.URL)
		if request == "" {
			continue
		}
		ref, err := c.resolver.Resolve(request, model.KindURL, c.in.Path)
		if errors.Is(err, ErrNotRequestable) {
			continue
		}
		if err != nil {
			c.unresolvable(item.Span.Start, item.URL, err)
			continue
		}
		out = append(out, codegen.URL{Item: item, Ref: ref, Request: request, Hash: hash})
	}
	return out
}

func (c *compilation) imports(items []model.ImportItem) []codegen.Import {
	if !c.opts.Import {
		return nil
	}
	var out []codegen.Import
	for _, item := range items {
		if c.opts.ImportFilter != nil && !c.opts.ImportFilter(item.URL, c.in.Path) {
			continue
		}
		ref, err := c.resolver.Resolve(item.URL, model.KindImport, c.in.Path)
		switch {
		case errors.Is(err, ErrNotRequestable):
			out = append(out, codegen.Import{Item: item, External: true})
		case err != nil:
			c.unresolvable(item.Span.Start, item.URL, err)
		default:
			out = append(out, codegen.Import{Item: item, Ref: ref})
		}
	}
	return out
}
