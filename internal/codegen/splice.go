package codegen

import (
	"fmt"
	"sort"
	"strings"

	"github.com/phobologic/cssmodules/internal/model"
)

// Edit replaces the text covered by Span with Text. A zero-length span is
// an insertion.
type Edit struct {
	Span model.Span
	Text string
}

// OverlapError reports two edits that cover the same source bytes.
type OverlapError struct {
	First, Second model.Span
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("overlapping edits [%d,%d) and [%d,%d)",
		e.First.Start, e.First.End(), e.Second.Start, e.Second.End())
}

// Splice applies edits to src. Edits are sorted by descending start offset
// and applied back to front, so every span is interpreted against the
// original text. Touching spans and insertions are allowed; overlapping
// spans are rejected.
func Splice(src string, edits []Edit) (string, error) {
	if len(edits) == 0 {
		return src, nil
	}
	order := make([]int, len(edits))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool {
		a, b := edits[order[i]].Span, edits[order[j]].Span
		if a.Start != b.Start {
			return a.Start > b.Start
		}
		// Insertions at an offset go before a replacement starting there;
		// insertions at the same offset keep their input order.
		if a.Length != b.Length {
			return a.Length > b.Length
		}
		return order[i] > order[j]
	})
	sorted := make([]Edit, len(edits))
	for i, k := range order {
		sorted[i] = edits[k]
	}

	limit := len(src)
	for i, e := range sorted {
		if e.Span.Start < 0 || e.Span.Length < 0 || e.Span.End() > len(src) {
			return "", fmt.Errorf("edit [%d,%d) outside source of length %d", e.Span.Start, e.Span.End(), len(src))
		}
		if e.Span.End() > limit {
			return "", &OverlapError{First: e.Span, Second: sorted[i-1].Span}
		}
		limit = e.Span.Start
	}

	// pieces are collected back to front: tail, replacement, gap, ...
	pieces := make([]string, 0, 2*len(sorted)+1)
	end := len(src)
	for _, e := range sorted {
		pieces = append(pieces, src[e.Span.End():end], e.Text)
		end = e.Span.Start
	}
	pieces = append(pieces, src[:end])

	var b strings.Builder
	b.Grow(len(src))
	for i := len(pieces) - 1; i >= 0; i-- {
		b.WriteString(pieces[i])
	}
	return b.String(), nil
}
