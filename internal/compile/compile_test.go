package compile

import (
	"errors"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/aymerick/douceur/parser"

	"github.com/phobologic/cssmodules/internal/diag"
	"github.com/phobologic/cssmodules/internal/model"
)

func compile(t *testing.T, path, src string, opts Options) *model.Module {
	t.Helper()
	m, err := Compile(Input{Path: path, Source: src}, opts)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if m.Diagnostics.HasFatal() {
		t.Fatalf("Compile(%q): %v", src, m.Diagnostics.Err())
	}
	return m
}

func readable() Options {
	opts := DefaultOptions()
	opts.LocalIdentName = "[name]__[local]"
	return opts
}

func TestCompileEmpty(t *testing.T) {
	t.Parallel()

	m := compile(t, "a.css", "", DefaultOptions())
	if m.CSS != "" || m.Exports.Len() != 0 || len(m.Dependencies) != 0 || len(m.Diagnostics) != 0 {
		t.Errorf("empty input produced %+v", m)
	}
}

func TestCompileIdempotent(t *testing.T) {
	t.Parallel()

	src := `@import "./base.css" screen;
@value primary: #BF4040;
.a { color: primary; background: url(./bg.png) }
.b { composes: a; composes: c from "./other.css" }`
	first := compile(t, "src/x.css", src, DefaultOptions())
	for i := 0; i < 3; i++ {
		again := compile(t, "src/x.css", src, DefaultOptions())
		if again.CSS != first.CSS {
			t.Fatalf("css differs: %q vs %q", again.CSS, first.CSS)
		}
		a, b := strings.Join(again.Exports.Names(), ","), strings.Join(first.Exports.Names(), ",")
		if a != b {
			t.Fatalf("export names differ: %s vs %s", a, b)
		}
		for _, name := range first.Exports.Names() {
			x, _ := first.ExportString(name)
			y, _ := again.ExportString(name)
			if x != y {
				t.Fatalf("export %s differs: %q vs %q", name, x, y)
			}
		}
	}
}

func TestCompileCompositionOrder(t *testing.T) {
	t.Parallel()

	m := compile(t, "m.css", ".c1 { color: red } .c3 { composes: c1 } .c5 { composes: c3 }", readable())
	tests := map[string]string{
		"c1": "m__c1",
		"c3": "m__c3 m__c1",
		"c5": "m__c5 m__c3 m__c1",
	}
	for name, want := range tests {
		if got, _ := m.ExportString(name); got != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}
	if !strings.Contains(m.CSS, ".m__c3") || strings.Contains(m.CSS, "composes") {
		t.Errorf("css = %q", m.CSS)
	}
}

func TestCompileImportDedup(t *testing.T) {
	t.Parallel()

	src := "@import url(a.css) screen;\n@import url(a.css) print;\n.x { composes: y from \"a.css\" }\n.z { composes: w from \"a.css\" }"
	m := compile(t, "dir/m.css", src, DefaultOptions())
	imports := m.DependenciesOf(model.KindImport)
	if len(imports) != 2 || imports[0].URL != "dir/a.css" || imports[0].Media != "screen" || imports[1].Media != "print" {
		t.Errorf("import dependencies = %+v", imports)
	}
	values := m.DependenciesOf(model.KindValue)
	if len(values) != 1 || values[0].URL != "dir/a.css" || values[0].Request != "a.css" {
		t.Errorf("value dependencies = %+v", values)
	}
}

func TestCompileExternalImportAndURLs(t *testing.T) {
	t.Parallel()

	src := `@import url(https://fonts.example/x.css) screen;
.a { background: url(./img/a.png?v=1#frag), url(data:image/png;base64,AAAA), url(/abs.png) }`
	m := compile(t, "m.css", src, DefaultOptions())
	if len(m.External) != 1 || m.External[0].Text() != "@import url(https://fonts.example/x.css) screen;" {
		t.Errorf("external = %+v", m.External)
	}
	if len(m.URLs) != 1 {
		t.Fatalf("url placeholders = %+v", m.URLs)
	}
	u := m.URLs[0]
	if u.URL != "img/a.png" || u.Hash != "#frag" {
		t.Errorf("url placeholder = %+v", u)
	}
	if !strings.Contains(m.CSS, "url(data:image/png;base64,AAAA)") || !strings.Contains(m.CSS, "url(/abs.png)") {
		t.Errorf("non-requestable urls rewritten: %q", m.CSS)
	}
	if !strings.Contains(m.CSS, "url("+u.Token+")") {
		t.Errorf("placeholder missing from %q", m.CSS)
	}
}

func TestCompileDisabledURLAndImport(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	opts.URL = false
	opts.ImportFilter = func(url, _ string) bool { return !strings.HasSuffix(url, "keep.css") }
	src := "@import 'keep.css';\n@import 'drop.css';\n.a { background: url(a.png) }"
	m := compile(t, "m.css", src, opts)
	if !strings.Contains(m.CSS, "url(a.png)") || len(m.URLs) != 0 {
		t.Errorf("url handled while disabled: %q", m.CSS)
	}
	if !strings.Contains(m.CSS, "@import 'keep.css';") || strings.Contains(m.CSS, "drop.css") {
		t.Errorf("import filter ignored: %q", m.CSS)
	}
}

func TestCompileModes(t *testing.T) {
	t.Parallel()

	src := ".a {} :global(.b) {} :local(.c) {}"
	tests := []struct {
		mode Mode
		want string
	}{
		{ModeLocal, ".m__a {} .b {} .m__c {}"},
		{ModeGlobal, ".a {} .b {} .m__c {}"},
		{ModeICSS, ".a {} :global(.b) {} :local(.c) {}"},
	}
	for _, tt := range tests {
		opts := readable()
		opts.Mode = tt.mode
		m := compile(t, "m.css", src, opts)
		if m.CSS != tt.want {
			t.Errorf("mode %s: css = %q, want %q", tt.mode, m.CSS, tt.want)
		}
	}
}

func TestCompileSelectorListsInPseudoClasses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mode Mode
		src  string
		want string
	}{
		{ModePure, ":is(h1, h2) .title {}", ":is(h1, h2) .m__title {}"},
		{ModeLocal, ":global :is(.a, .b) .c {}", ":is(.a, .b) .c {}"},
		{ModeLocal, ":not(.a, .b) .c, .d {}", ":not(.m__a, .m__b) .m__c, .m__d {}"},
	}
	for _, tt := range tests {
		opts := readable()
		opts.Mode = tt.mode
		m := compile(t, "m.css", tt.src, opts)
		if m.CSS != tt.want {
			t.Errorf("%s %q: css = %q, want %q", tt.mode, tt.src, m.CSS, tt.want)
		}
	}
}

func TestCompileKeyframes(t *testing.T) {
	t.Parallel()

	src := `@value fade: fadeIn;
.a { animation: spin 1s linear infinite, fade 2s }
@keyframes spin { to { transform: rotate(360deg) } }
@keyframes :global(pulse) { to { opacity: 0 } }`

	m := compile(t, "m.css", src, readable())
	for _, want := range []string{
		".m__a { animation: m__spin 1s linear infinite, fadeIn 2s }",
		"@keyframes m__spin { to { transform: rotate(360deg) } }",
		"@keyframes pulse { to { opacity: 0 } }",
	} {
		if !strings.Contains(m.CSS, want) {
			t.Errorf("css missing %q:\n%s", want, m.CSS)
		}
	}
	if got, _ := m.ExportString("spin"); got != "m__spin" {
		t.Errorf("spin export = %q", got)
	}
	if _, ok := m.ExportString("pulse"); ok {
		t.Error("global keyframes should not be exported")
	}

	opts := readable()
	opts.Mode = ModeGlobal
	m = compile(t, "m.css", src, opts)
	for _, want := range []string{"animation: spin 1s", "@keyframes spin {"} {
		if !strings.Contains(m.CSS, want) {
			t.Errorf("global mode css missing %q:\n%s", want, m.CSS)
		}
	}
}

func TestCompileFatalErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  string
		mode Mode
		code diag.Code
	}{
		{"syntax", ":local(.a {}", ModeLocal, diag.SyntaxError},
		{"unknown target", ".a { composes: nope }", ModeLocal, diag.UnknownCompositionTarget},
		{"cycle", ".a { composes: b } .b { composes: a }", ModeLocal, diag.CircularComposition},
		{"impure", "div {}", ModePure, diag.ImpureSelector},
		{"unresolvable", `.a { composes: b from "../../outside.css" }`, ModeLocal, diag.UnresolvableImport},
	}
	for _, tt := range tests {
		opts := DefaultOptions()
		opts.Mode = tt.mode
		m, err := Compile(Input{Path: "m.css", Source: tt.src}, opts)
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if !errors.Is(m.Diagnostics.Err(), &diag.Error{Code: tt.code}) {
			t.Errorf("%s: diagnostics = %v", tt.name, m.Diagnostics)
		}
		if m.CSS != "" || m.Exports.Len() != 0 {
			t.Errorf("%s: failed module carries output %+v", tt.name, m)
		}
		if m.Diagnostics[0].File != "m.css" {
			t.Errorf("%s: file not stamped: %+v", tt.name, m.Diagnostics[0])
		}
	}
}

func TestCompileMalformedURLWarning(t *testing.T) {
	t.Parallel()

	m := compile(t, "m.css", ".a { background: url() }", readable())
	if len(m.Diagnostics.Warnings()) != 1 {
		t.Errorf("warnings = %v", m.Diagnostics)
	}
	if m.CSS != ".m__a { background: url() }" {
		t.Errorf("css = %q", m.CSS)
	}
}

func TestCompileExportsConvention(t *testing.T) {
	t.Parallel()

	src := ".btn-primary {} .icon_small {}"
	tests := []struct {
		conv ExportsConvention
		want string
	}{
		{AsIs, "btn-primary,icon_small"},
		{CamelCase, "btn-primary,btnPrimary,icon_small,iconSmall"},
		{CamelCaseOnly, "btnPrimary,iconSmall"},
		{Dashes, "btn-primary,btnPrimary,icon_small"},
		{DashesOnly, "btnPrimary,icon_small"},
		{"false", "btn-primary,icon_small"},
		{"true", "btn-primary,btnPrimary,icon_small,iconSmall"},
		{"only", "btnPrimary,iconSmall"},
	}
	for _, tt := range tests {
		opts := readable()
		opts.ExportsConvention = tt.conv
		m := compile(t, "m.css", src, opts)
		if got := strings.Join(m.Exports.Names(), ","); got != tt.want {
			t.Errorf("%s: names = %s, want %s", tt.conv, got, tt.want)
		}
	}
}

func TestCompileOutputWellFormed(t *testing.T) {
	t.Parallel()

	src := `@value gap: 4px;
.a, .b:hover > .c { margin: gap; background: url(./x.png) }
:global(.d) .e { composes: a; color: red }
@media (min-width: 10px) { .a { padding: gap } }`
	m := compile(t, "m.css", src, DefaultOptions())
	sheet, err := parser.Parse(m.CSS)
	if err != nil {
		t.Fatalf("generated css does not parse: %v\n%s", err, m.CSS)
	}
	if len(sheet.Rules) != 3 {
		t.Errorf("rules = %d, want 3\n%s", len(sheet.Rules), m.CSS)
	}
	for _, r := range sheet.Rules {
		for _, d := range r.Declarations {
			if d.Property == "composes" {
				t.Errorf("composes survived in %q", r.Prelude)
			}
		}
	}
}

func TestCompileInvalidOptions(t *testing.T) {
	t.Parallel()

	for _, opts := range []Options{
		{Mode: "scoped"},
		{DefaultScope: "both"},
		{HashFunction: "crc0"},
		{ExportsConvention: "kebab"},
	} {
		if _, err := Compile(Input{Path: "m.css"}, opts); err == nil {
			t.Errorf("options %+v accepted", opts)
		}
	}
}

func TestParseExportsConvention(t *testing.T) {
	t.Parallel()

	tests := map[string]ExportsConvention{
		"false": AsIs, "true": CamelCase, "only": CamelCaseOnly,
		"dashes": Dashes, "dashesOnly": DashesOnly, "": AsIs,
	}
	for in, want := range tests {
		got, err := ParseExportsConvention(in)
		if err != nil || got != want {
			t.Errorf("ParseExportsConvention(%q) = %q, %v", in, got, err)
		}
	}
}

func TestFingerprint(t *testing.T) {
	t.Parallel()

	a := DefaultOptions()
	b := DefaultOptions()
	if a.Fingerprint() != b.Fingerprint() {
		t.Error("equal options must share a fingerprint")
	}
	b.LocalIdentSalt = "x"
	if a.Fingerprint() == b.Fingerprint() {
		t.Error("salt must change the fingerprint")
	}
}

func TestResolvers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		request, from, want string
		notRequestable      bool
	}{
		{"./a.css", "src/b.css", "src/a.css", false},
		{"../a.css", "src/b.css", "a.css", false},
		{"~pkg/a.css", "src/b.css", "pkg/a.css", false},
		{"a.png?v=2", "b.css", "a.png", false},
		{"http://x/a.css", "b.css", "", true},
		{"//cdn/a.css", "b.css", "", true},
		{"/abs.css", "b.css", "", true},
		{"#frag", "b.css", "", true},
		{"data:text/css,x", "b.css", "", true},
	}
	for _, tt := range tests {
		got, err := PathResolver{}.Resolve(tt.request, model.KindImport, tt.from)
		if tt.notRequestable {
			if !errors.Is(err, ErrNotRequestable) {
				t.Errorf("%q: err = %v", tt.request, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("%q from %q = %q, %v; want %q", tt.request, tt.from, got, err, tt.want)
		}
	}

	fsys := fstest.MapFS{"src/a.css": {Data: []byte(".a{}")}}
	r := FileResolver{FS: fsys}
	if _, err := r.Resolve("./a.css", model.KindImport, "src/b.css"); err != nil {
		t.Errorf("existing file: %v", err)
	}
	if _, err := r.Resolve("./missing.css", model.KindValue, "src/b.css"); err == nil {
		t.Error("missing file resolved")
	}
	if _, err := r.Resolve("./missing.png", model.KindURL, "src/b.css"); err != nil {
		t.Errorf("url assets are not checked: %v", err)
	}
}

func TestSplitHash(t *testing.T) {
	t.Parallel()

	tests := []struct{ in, req, hash string }{
		{"a.svg", "a.svg", ""},
		{"a.svg#icon", "a.svg", "#icon"},
		{"a.svg?#iefix", "a.svg", "?#iefix"},
		{"a.svg?v=1#x", "a.svg?v=1", "#x"},
	}
	for _, tt := range tests {
		req, hash := SplitHash(tt.in)
		if req != tt.req || hash != tt.hash {
			t.Errorf("SplitHash(%q) = %q, %q", tt.in, req, hash)
		}
	}
}

func TestCompositions(t *testing.T) {
	t.Parallel()

	src := `.a { color: red }
.b { composes: a; composes: x y from "./lib/x.css" }
:global(.g) { color: blue }
.b:hover { composes: z from global }`
	comps, diags, err := Compositions(Input{Path: "src/m.css", Source: src}, DefaultOptions())
	if err != nil || len(diags) != 0 {
		t.Fatalf("Compositions: %v %v", err, diags)
	}
	if len(comps) != 2 || comps[0].Name != "a" || comps[1].Name != "b" {
		t.Fatalf("compositions = %+v", comps)
	}
	refs := comps[1].Refs
	if len(refs) != 4 {
		t.Fatalf("refs = %+v", refs)
	}
	if refs[0].Name != "a" || refs[0].External() {
		t.Errorf("ref 0 = %+v", refs[0])
	}
	if refs[1].From != "src/lib/x.css" || refs[2].Name != "y" || refs[2].From != "src/lib/x.css" {
		t.Errorf("external refs = %+v %+v", refs[1], refs[2])
	}
	if !refs[3].Global || refs[3].Name != "z" {
		t.Errorf("ref 3 = %+v", refs[3])
	}
}
