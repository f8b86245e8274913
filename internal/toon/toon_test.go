package toon

import (
	"strings"
	"testing"
)

func TestEncodeValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", `""`},
		{"simple", "hello", "hello"},
		{"leading space", " hello", `" hello"`},
		{"trailing space", "hello ", `"hello "`},
		{"newline", "a\nb", `"a\nb"`},
		{"tab", "a\tb", `"a\tb"`},
		{"true keyword", "true", `"true"`},
		{"True keyword", "True", `"True"`},
		{"null keyword", "null", `"null"`},
		{"integer", "42", "42"},
		{"negative integer", "-1", "-1"},
		{"float", "3.14", "3.14"},
		{"comma", "a,b", `"a,b"`},
		{"colon", "a:b", `"a:b"`},
		{"quote", `a"b`, `"a\"b"`},
		{"backslash", `a\b`, `"a\\b"`},
		{"brace", "a{b", `"a{b"`},
		{"dash prefix", "-webkit-box", `"-webkit-box"`},
		{"path", "src/button.module.css", "src/button.module.css"},
		{"class list", "app__a base__btn", "app__a base__btn"},
		{"color", "#BF4040", "#BF4040"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := encodeValue(tt.in)
			if got != tt.want {
				t.Errorf("encodeValue(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestEncode(t *testing.T) {
	t.Parallel()

	modules := &Table{Name: "modules", Columns: []string{"path", "id"}}
	modules.Append("src/a.css", 0)
	modules.Append("src/b.css", 1)
	exports := &Table{Name: "exports", Columns: []string{"file", "name", "value"}}
	exports.Append("src/a.css", "btn", "a__btn b__base")
	diagnostics := &Table{Name: "diagnostics", Columns: []string{"file", "code"}, OmitEmpty: true}

	got := Encode(Document{
		Fields: []Field{{"root", "web"}, {"modules", "2"}},
		Tables: []*Table{modules, exports, diagnostics},
	})

	want := []string{
		"root: web",
		"modules: 2",
		"modules[2]{path,id}:",
		"  src/a.css,0",
		"  src/b.css,1",
		"exports[1]{file,name,value}:",
		"  src/a.css,btn,a__btn b__base",
	}
	lines := strings.Split(got, "\n")
	if len(lines) != len(want) {
		t.Fatalf("got %d lines:\n%s", len(lines), got)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d: got %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestEncodeEmpty(t *testing.T) {
	t.Parallel()

	got := Encode(Document{Tables: []*Table{{Name: "modules", Columns: []string{"path", "id"}}}})
	if got != "modules[0]{path,id}:" {
		t.Errorf("expected empty modules section, got:\n%s", got)
	}
}
