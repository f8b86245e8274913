package ident

import (
	"fmt"
	"strings"
	"testing"
)

func TestAllocateLocalTemplate(t *testing.T) {
	t.Parallel()

	ctx := Context{ResourcePath: "src/components/button.css", Root: "src"}
	tests := []struct {
		template string
		local    string
		want     string
	}{
		{"[local]", "primary", "primary"},
		{"-1[local]", "test", "_-1test"},
		{"1[local]", "test", "_1test"},
		{"--[local]", "test", "_--test"},
		{"[name]__[local]", "primary", "button__primary"},
		{"[path][name]-[local]", "x", "components-button-x"},
		{"[folder]-[ext]-[local]", "x", "components-css-x"},
		{"[local]", "a.b c", "a-b-c"},
		{"[local]", "ünï", "ünï"},
		{"[unknown]", "x", "-unknown-"},
	}
	for _, tt := range tests {
		got, err := Allocate(ctx, tt.template, tt.local)
		if err != nil {
			t.Fatalf("Allocate(%q, %q): %v", tt.template, tt.local, err)
		}
		if got != tt.want {
			t.Errorf("Allocate(%q, %q) = %q, want %q", tt.template, tt.local, got, tt.want)
		}
	}
}

func TestAllocateDeterministic(t *testing.T) {
	t.Parallel()

	ctx := Context{ResourcePath: "a/b.css", Salt: "salt"}
	first, err := Allocate(ctx, "[hash:base64:8]", "name")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		got, _ := Allocate(ctx, "[hash:base64:8]", "name")
		if got != first {
			t.Fatalf("run %d: %q != %q", i, got, first)
		}
	}
	if len(first) < 8 || len(first) > 9 {
		t.Errorf("length of %q: want 8 (or 9 with escape prefix)", first)
	}
}

func TestAllocateSaltChangesHash(t *testing.T) {
	t.Parallel()

	a, _ := Allocate(Context{ResourcePath: "a.css", Salt: "one"}, "[hash]", "x")
	b, _ := Allocate(Context{ResourcePath: "a.css", Salt: "two"}, "[hash]", "x")
	c, _ := Allocate(Context{ResourcePath: "b.css", Salt: "one"}, "[hash]", "x")
	if a == b || a == c {
		t.Errorf("expected distinct hashes, got %q %q %q", a, b, c)
	}
	if n := len(strings.TrimPrefix(a, "_")); n != DefaultHashDigestLength {
		t.Errorf("default digest length: got %d", n)
	}
}

func TestAllocateContentHash(t *testing.T) {
	t.Parallel()

	a, _ := Allocate(Context{ResourcePath: "a.css", Content: ".x{}"}, "[contenthash:8]", "x")
	b, _ := Allocate(Context{ResourcePath: "b.css", Content: ".x{}"}, "[contenthash:8]", "x")
	c, _ := Allocate(Context{ResourcePath: "a.css", Content: ".y{}"}, "[contenthash:8]", "x")
	if a != b {
		t.Errorf("same content should hash equal: %q vs %q", a, b)
	}
	if a == c {
		t.Errorf("different content should differ: %q", a)
	}
}

func TestAllocateHashFunctions(t *testing.T) {
	t.Parallel()

	seen := make(map[string]string)
	for _, fn := range HashFunctions() {
		got, err := Allocate(Context{ResourcePath: "a.css"}, "["+fn+":hash:hex:16]", "x")
		if err != nil {
			t.Fatalf("%s: %v", fn, err)
		}
		if prev, dup := seen[got]; dup {
			t.Errorf("%s and %s produced the same digest %q", fn, prev, got)
		}
		seen[got] = fn
	}
}

func TestAllocateDigests(t *testing.T) {
	t.Parallel()

	for _, d := range []string{"hex", "base26", "base32", "base36", "base49", "base52", "base58", "base62", "base64"} {
		got, err := Allocate(Context{ResourcePath: "a.css"}, "[hash:"+d+":6]", "x")
		if err != nil {
			t.Fatalf("%s: %v", d, err)
		}
		if got == "" {
			t.Errorf("%s: empty identifier", d)
		}
	}
}

func TestAllocateUnknownHash(t *testing.T) {
	t.Parallel()

	if _, err := Allocate(Context{}, "[whirlpool:hash]", "x"); err == nil {
		t.Error("expected error for unknown hash function")
	}
	if _, err := Allocate(Context{}, "[hash:base13]", "x"); err == nil {
		t.Error("expected error for unknown digest")
	}
	if _, err := NewAllocator(Context{HashFunction: "nope"}, "[local]"); err == nil {
		t.Error("expected NewAllocator to reject unknown hash function")
	}
}

func TestAllocateNoCollisions(t *testing.T) {
	t.Parallel()

	ctx := Context{ResourcePath: "styles/app.css"}
	seen := make(map[string]string, 10000)
	for i := 0; i < 10000; i++ {
		name := fmt.Sprintf("name%d", i)
		got, err := Allocate(ctx, "[hash:base64:8]", name)
		if err != nil {
			t.Fatal(err)
		}
		if prev, dup := seen[got]; dup {
			t.Fatalf("collision between %q and %q: %q", prev, name, got)
		}
		seen[got] = name
	}
}

func TestEscapeValidity(t *testing.T) {
	t.Parallel()

	inputs := []string{"0abc", "-0abc", "--x", "a b", "a/b", "", "ok", "-a", "\xff"}
	for _, in := range inputs {
		got := Escape(in)
		if got == "" {
			continue
		}
		if isDigit(got[0]) {
			t.Errorf("Escape(%q) = %q starts with a digit", in, got)
		}
		if strings.HasPrefix(got, "--") || (got[0] == '-' && len(got) > 1 && isDigit(got[1])) {
			t.Errorf("Escape(%q) = %q has an invalid start", in, got)
		}
	}
	if got := Escape("\xff"); got != "-" {
		t.Errorf("invalid UTF-8: got %q", got)
	}
}

func TestAllocatorMemoizes(t *testing.T) {
	t.Parallel()

	a, err := NewAllocator(Context{ResourcePath: "a.css"}, "[name]_[local]_[hash:6]")
	if err != nil {
		t.Fatal(err)
	}
	x1 := a.Ident("x")
	x2 := a.Ident("x")
	y := a.Ident("y")
	if x1 != x2 {
		t.Errorf("memoized ident changed: %q vs %q", x1, x2)
	}
	if x1 == y {
		t.Errorf("distinct names share ident %q", x1)
	}
	if !strings.HasPrefix(x1, "a_x_") {
		t.Errorf("unexpected ident %q", x1)
	}
}

func TestAllocatePrefix(t *testing.T) {
	t.Parallel()

	got, err := Allocate(Context{Prefix: "app-"}, "[local]", "btn")
	if err != nil {
		t.Fatal(err)
	}
	if got != "app-btn" {
		t.Errorf("got %q", got)
	}
}
