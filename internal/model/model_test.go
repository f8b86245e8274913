package model

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestExportTable(t *testing.T) {
	t.Parallel()

	var tbl ExportTable
	tbl.Set("b", Resolved("x"))
	tbl.Set("a", Resolved("y"))
	tbl.Append("b", Resolved("z"))
	tbl.Set("a", Resolved("w"))

	if got := strings.Join(tbl.Names(), ","); got != "b,a" {
		t.Errorf("Names() = %s, want b,a", got)
	}
	if v, _ := tbl.Get("b"); len(v) != 2 || v[1].Literal != "z" {
		t.Errorf("b = %+v", v)
	}
	if v, _ := tbl.Get("a"); len(v) != 1 || v[0].Literal != "w" {
		t.Errorf("a = %+v", v)
	}
	if _, ok := tbl.Get("c"); ok {
		t.Error("unexpected c")
	}
}

// TestExportTableDecoded verifies lookups on a table that was decoded
// without its index.
func TestExportTableDecoded(t *testing.T) {
	t.Parallel()

	var tbl ExportTable
	if err := json.Unmarshal([]byte(`{"entries":[{"name":"a","values":[{"literal":"x"}]}]}`), &tbl); err != nil {
		t.Fatal(err)
	}
	tbl.Append("a", Resolved("y"))
	if v, ok := tbl.Get("a"); !ok || len(v) != 2 {
		t.Errorf("a = %+v", v)
	}
	if tbl.Len() != 1 {
		t.Errorf("Len() = %d", tbl.Len())
	}
}

func TestRenderValues(t *testing.T) {
	t.Parallel()

	m := &Module{Imports: []ImportPlaceholder{{Token: "___ICSS_IMPORT_0_0___", URL: "base.css", Name: "btn"}}}
	m.Exports.Set("a", Resolved("app__a"), Pending("base.css", "btn"), Resolved("legacy"))

	got, ok := m.ExportString("a")
	if !ok || got != "app__a ___ICSS_IMPORT_0_0___ legacy" {
		t.Errorf("ExportString = %q", got)
	}
	if tok := m.ImportToken(ImportRef{URL: "other.css", Name: "btn"}); tok != "" {
		t.Errorf("unknown ref token = %q", tok)
	}
}

func TestExternalImportText(t *testing.T) {
	t.Parallel()

	if got := (ExternalImport{URL: "https://x/a.css"}).Text(); got != "@import url(https://x/a.css);" {
		t.Errorf("Text() = %q", got)
	}
	if got := (ExternalImport{URL: "b.css", Media: "print"}).Text(); got != "@import url(b.css) print;" {
		t.Errorf("Text() = %q", got)
	}
}
