// Package syntax cross-checks stylesheets with the tree-sitter CSS grammar.
// Its findings are warnings: the ICSS parser remains the authority on
// whether a module compiles.
package syntax

import (
	"context"
	"embed"
	"fmt"
	"sort"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/css"

	"github.com/phobologic/cssmodules/internal/diag"
	"github.com/phobologic/cssmodules/internal/model"
)

//go:embed queries/css.scm
var queryFS embed.FS

var (
	queryOnce sync.Once
	query     *sitter.Query
	queryErr  error
)

// NewParser creates a fresh tree-sitter parser for CSS.
// Each goroutine must use its own parser (not thread-safe).
func NewParser() *sitter.Parser {
	p := sitter.NewParser()
	p.SetLanguage(css.GetLanguage())
	return p
}

// NameQuery returns the compiled selector-name query (safe to share across
// goroutines).
func NameQuery() (*sitter.Query, error) {
	queryOnce.Do(func() {
		data, err := queryFS.ReadFile("queries/css.scm")
		if err != nil {
			queryErr = fmt.Errorf("reading query file: %w", err)
			return
		}
		q, err := sitter.NewQuery(data, css.GetLanguage())
		if err != nil {
			queryErr = fmt.Errorf("compiling query: %w", err)
			return
		}
		query = q
	})
	return query, queryErr
}

// Name is a class or id name seen by the grammar.
type Name struct {
	Kind   string // "class" or "id"
	Name   string
	Offset int
}

// Report is the result of one check.
type Report struct {
	Names       []Name
	Diagnostics diag.List
}

// Check parses source and reports ERROR and MISSING nodes as SYNTAX_WARNING
// diagnostics, along with every class and id name in source order.
func Check(ctx context.Context, parser *sitter.Parser, source []byte) (*Report, error) {
	rep := &Report{}
	if len(source) == 0 {
		return rep, nil
	}

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	src := string(source)
	if root.HasError() {
		walkErrors(root, func(n *sitter.Node) {
			offset := int(n.StartByte())
			if n.IsMissing() {
				rep.Diagnostics = append(rep.Diagnostics, diag.New(diag.SyntaxWarning, src, offset, "missing %q", n.Type()))
				return
			}
			rep.Diagnostics = append(rep.Diagnostics, diag.New(diag.SyntaxWarning, src, offset, "unexpected %q", excerpt(source, n)))
		})
		if len(rep.Diagnostics) == 0 {
			rep.Diagnostics = append(rep.Diagnostics, diag.New(diag.SyntaxWarning, src, 0, "grammar reported an error"))
		}
	}

	q, err := NameQuery()
	if err != nil {
		return nil, err
	}
	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(q, root)
	for {
		match, ok := qc.NextMatch()
		if !ok {
			break
		}
		for _, c := range match.Captures {
			rep.Names = append(rep.Names, Name{
				Kind:   q.CaptureNameForId(c.Index),
				Name:   nodeText(c.Node, source),
				Offset: int(c.Node.StartByte()),
			})
		}
	}
	sort.SliceStable(rep.Names, func(i, j int) bool { return rep.Names[i].Offset < rep.Names[j].Offset })
	return rep, nil
}

// Unscanned returns a SYNTAX_WARNING for every class or id name the grammar
// found that is missing from selectors, the names the ICSS scanner
// reported for the same source. Such names, e.g. in nested rules, are
// left unscoped by the compiler.
func (r *Report) Unscanned(source string, selectors []model.Selector) diag.List {
	scanned := make(map[int]bool, len(selectors))
	for _, s := range selectors {
		scanned[s.Span.Start] = true
	}
	var out diag.List
	for _, n := range r.Names {
		if scanned[n.Offset] {
			continue
		}
		prefix := "."
		if n.Kind == "id" {
			prefix = "#"
		}
		out = append(out, diag.New(diag.SyntaxWarning, source, n.Offset,
			"%s%s is a selector to the CSS grammar but was not scoped", prefix, n.Name))
	}
	return out
}

// walkErrors calls fn for the outermost ERROR nodes and every MISSING node.
func walkErrors(n *sitter.Node, fn func(*sitter.Node)) {
	if n.IsMissing() || n.Type() == "ERROR" {
		fn(n)
		return
	}
	if !n.HasError() {
		return
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		walkErrors(n.Child(i), fn)
	}
}

func excerpt(source []byte, n *sitter.Node) string {
	text := nodeText(n, source)
	if len(text) > 40 {
		text = text[:40] + "..."
	}
	return text
}

func nodeText(node *sitter.Node, source []byte) string {
	return string(source[node.StartByte():node.EndByte()])
}
