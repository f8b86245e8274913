package compile

import (
	"github.com/phobologic/cssmodules/internal/diag"
	"github.com/phobologic/cssmodules/internal/model"
	"github.com/phobologic/cssmodules/internal/parse"
)

// Composition is one local name with every composes target declared for
// it, in source order. External targets carry the resolved module path in
// From.
type Composition struct {
	Name string
	Refs []model.ExtendRef
}

// Compositions lists the local names of a stylesheet in first-seen order
// along with their composition targets. It reports the same parse and
// resolution diagnostics as Compile.
func Compositions(in Input, opts Options) ([]Composition, diag.List, error) {
	if err := opts.Validate(); err != nil {
		return nil, nil, err
	}
	c := &compilation{in: in, opts: opts, resolver: opts.resolver(), requests: make(map[string]string)}
	pr := parse.Parse(in.Source, opts.parseOptions())
	c.diags = append(c.diags, pr.Errors...)
	if c.fatal() {
		return nil, c.diags.WithFile(in.Path), nil
	}

	var out []Composition
	index := make(map[string]int)
	for _, s := range pr.Selectors {
		if s.Mode != model.Local || s.Prefix == '@' {
			continue
		}
		i, ok := index[s.Name]
		if !ok {
			i = len(out)
			index[s.Name] = i
			out = append(out, Composition{Name: parse.Unescape(s.Name)})
		}
		for _, ref := range s.Extends {
			if ref.External() {
				ref.From = c.resolveSymbol(ref.From, ref.Span.Start)
			}
			out[i].Refs = append(out[i].Refs, ref)
		}
	}
	return out, c.diags.WithFile(in.Path), nil
}

// Selectors returns the class and id names the scanner found in source, in
// source order. ok is false when the mode does not scope names or the scan
// stopped on a structural error.
func Selectors(in Input, opts Options) (selectors []model.Selector, ok bool) {
	po := opts.parseOptions()
	if !po.Scoping {
		return nil, false
	}
	pr := parse.Parse(in.Source, po)
	if pr.Fatal() {
		return nil, false
	}
	return pr.Selectors, true
}
