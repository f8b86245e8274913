package scope

import (
	"errors"
	"testing"

	"github.com/phobologic/cssmodules/internal/diag"
	"github.com/phobologic/cssmodules/internal/model"
	"github.com/phobologic/cssmodules/internal/parse"
)

var underscored = IdentFunc(func(local string) string { return "_" + local })

func resolve(t *testing.T, src string) *Result {
	t.Helper()
	pr := parse.Parse(src, parse.Options{DefaultMode: model.Local, Scoping: true})
	if pr.Fatal() {
		t.Fatalf("parse %q: %v", src, pr.Errors.Err())
	}
	return Resolve(src, pr, underscored)
}

func render(values []model.Value) string {
	m := &model.Module{}
	return m.RenderValues(values)
}

func exportString(t *testing.T, r *Result, name string) string {
	t.Helper()
	values, ok := r.Exports.Get(name)
	if !ok {
		t.Fatalf("export %q missing; have %v", name, r.Exports.Names())
	}
	var out string
	for i, v := range values {
		if i > 0 {
			out += " "
		}
		if v.IsPending() {
			out += "<" + v.Ref.URL + "#" + v.Ref.Name + ">"
			continue
		}
		out += v.Literal
	}
	return out
}

func TestResolveFirstSeenOrder(t *testing.T) {
	t.Parallel()

	r := resolve(t, ".b .a {} .a, #c {} .b {}")
	var names []string
	for _, l := range r.Table.Locals {
		names = append(names, l.Name)
	}
	want := []string{"b", "a", "c"}
	if len(names) != len(want) {
		t.Fatalf("locals = %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("locals = %v, want %v", names, want)
		}
	}
	if id, _ := r.Table.Ident("a"); id != "_a" {
		t.Errorf("ident a = %q", id)
	}
}

func TestResolveCompositionOrder(t *testing.T) {
	t.Parallel()

	r := resolve(t, ".c1 {} .c3 { composes: c1 } .c5 { composes: c3 }")
	if got := exportString(t, r, "c3"); got != "_c3 _c1" {
		t.Errorf("c3 = %q", got)
	}
	if got := exportString(t, r, "c5"); got != "_c5 _c3 _c1" {
		t.Errorf("c5 = %q", got)
	}
}

func TestResolveDiamondKeepsDuplicates(t *testing.T) {
	t.Parallel()

	r := resolve(t, ".base {} .l { composes: base } .r { composes: base } .top { composes: l r }")
	if got := exportString(t, r, "top"); got != "_top _l _base _r _base" {
		t.Errorf("top = %q", got)
	}
}

func TestResolveExternalAndGlobal(t *testing.T) {
	t.Parallel()

	r := resolve(t, `.a { composes: x y from "./other.css"; composes: g from global; composes: z from "./other.css" }`)
	if got := exportString(t, r, "a"); got != "_a <./other.css#x> <./other.css#y> g <./other.css#z>" {
		t.Errorf("a = %q", got)
	}
	if len(r.ImportURLs) != 1 || r.ImportURLs[0] != "./other.css" {
		t.Errorf("import urls = %v", r.ImportURLs)
	}
	if len(r.Imports) != 3 || r.Imports[2].Token != "___ICSS_IMPORT_0_2___" {
		t.Errorf("imports = %+v", r.Imports)
	}
}

func TestResolveUnknownTarget(t *testing.T) {
	t.Parallel()

	r := resolve(t, ".a { composes: missing }")
	if !r.Fatal() {
		t.Fatal("expected an error")
	}
	if !errors.Is(r.Errors.Err(), &diag.Error{Code: diag.UnknownCompositionTarget}) {
		t.Errorf("errors = %v", r.Errors)
	}
}

func TestResolveCycles(t *testing.T) {
	t.Parallel()

	for _, src := range []string{
		".a { composes: a }",
		".a { composes: b } .b { composes: a }",
		".a { composes: b } .b { composes: c } .c { composes: a }",
	} {
		r := resolve(t, src)
		if !errors.Is(r.Errors.Err(), &diag.Error{Code: diag.CircularComposition}) {
			t.Errorf("%q: errors = %v", src, r.Errors)
		}
	}
}

func TestResolveGlobalSelectorsNotScoped(t *testing.T) {
	t.Parallel()

	r := resolve(t, ":global(.g) .l {}")
	if _, ok := r.Table.Lookup("g"); ok {
		t.Error("global name entered the local table")
	}
	if _, ok := r.Exports.Get("g"); ok {
		t.Error("global name exported")
	}
}

func TestResolveValues(t *testing.T) {
	t.Parallel()

	src := `@value primary: red;
@value border: 1px solid primary;
@value accent, base as themeBase from "./theme.css";
@value alias: accent;
:import("./icss.css") { hidden: remote; }
:export { exported: primary; imported: hidden }
.a { color: primary }`
	r := resolve(t, src)
	if r.Fatal() {
		t.Fatal(r.Errors.Err())
	}
	if got := exportString(t, r, "border"); got != "1px solid red" {
		t.Errorf("border = %q", got)
	}
	if got := exportString(t, r, "accent"); got != "<./theme.css#accent>" {
		t.Errorf("accent = %q", got)
	}
	if got := exportString(t, r, "themeBase"); got != "<./theme.css#base>" {
		t.Errorf("themeBase = %q", got)
	}
	if got := exportString(t, r, "alias"); got != "<./theme.css#accent>" {
		t.Errorf("alias = %q", got)
	}
	if got := exportString(t, r, "exported"); got != "red" {
		t.Errorf("exported = %q", got)
	}
	if got := exportString(t, r, "imported"); got != "<./icss.css#remote>" {
		t.Errorf("imported = %q", got)
	}
	if _, ok := r.Exports.Get("hidden"); ok {
		t.Error(":import alias must not be exported")
	}
	if got := r.Replacements["primary"]; got != "red" {
		t.Errorf("replacement primary = %q", got)
	}
	if got := r.Replacements["alias"]; got != "___ICSS_IMPORT_0_0___" {
		t.Errorf("replacement alias = %q", got)
	}
	if got := r.Replacements["hidden"]; got != "___ICSS_IMPORT_1_0___" {
		t.Errorf("replacement hidden = %q", got)
	}
	names := r.Exports.Names()
	if names[len(names)-1] != "a" {
		t.Errorf("local names must follow values: %v", names)
	}
}

func TestResolveValueRedefinitionLastWins(t *testing.T) {
	t.Parallel()

	r := resolve(t, "@value x: 1px; @value x: 2px;")
	if got := exportString(t, r, "x"); got != "2px" {
		t.Errorf("x = %q", got)
	}
	if r.Exports.Len() != 1 {
		t.Errorf("exports = %v", r.Exports.Names())
	}
}

func TestResolveEscapedName(t *testing.T) {
	t.Parallel()

	r := resolve(t, `.a\:b {}`)
	if got := exportString(t, r, "a:b"); got != "_a:b" {
		t.Errorf("a:b = %q", got)
	}
}

func TestResolveRenderTokens(t *testing.T) {
	t.Parallel()

	r := resolve(t, `.a { composes: x from "./o.css" }`)
	m := &model.Module{Imports: r.Imports}
	values, _ := r.Exports.Get("a")
	if got := m.RenderValues(values); got != "_a ___ICSS_IMPORT_0_0___" {
		t.Errorf("rendered = %q", got)
	}
	if got := render([]model.Value{model.Resolved("x")}); got != "x" {
		t.Errorf("render = %q", got)
	}
}
