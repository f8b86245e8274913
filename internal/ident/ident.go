// Package ident derives scoped identifiers for local class and id names.
//
// An identifier is produced from a template such as "[name]__[local]--[hash:base64:5]".
// Supported placeholders:
//
//	[local]        the logical name
//	[name]         resource base name without extension
//	[ext]          resource extension without the dot
//	[path]         resource directory relative to Context.Root, with a trailing slash
//	[folder]       name of the resource directory
//	[hash]         hash of salt, resource path and logical name
//	[contenthash]  hash of salt, resource content and logical name
//
// Hash placeholders accept an optional hash function prefix, digest and
// length: [md5:hash:hex:8], [hash:base64:5], [contenthash:6].
package ident

import (
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// DefaultTemplate is used when no template is configured.
const DefaultTemplate = "[hash:base64]"

// Hash defaults applied when a Context leaves them unset.
const (
	DefaultHashFunction     = "md4"
	DefaultHashDigest       = "hex"
	DefaultHashDigestLength = 20
)

// Context carries the per-module inputs of identifier derivation.
type Context struct {
	ResourcePath     string
	Root             string
	Content          string
	Salt             string
	Prefix           string
	HashFunction     string
	HashDigest       string
	HashDigestLength int
}

func (c Context) withDefaults() Context {
	if c.HashFunction == "" {
		c.HashFunction = DefaultHashFunction
	}
	if c.HashDigest == "" {
		c.HashDigest = DefaultHashDigest
	}
	if c.HashDigestLength <= 0 {
		c.HashDigestLength = DefaultHashDigestLength
	}
	return c
}

// Validate checks that the hash function and digest are supported.
func (c Context) Validate() error {
	c = c.withDefaults()
	if _, err := newHash(c.HashFunction); err != nil {
		return err
	}
	if !validDigest(c.HashDigest) {
		return fmt.Errorf("unknown digest %q", c.HashDigest)
	}
	return nil
}

// relativePath returns the resource path relative to Root using forward
// slashes.
func (c Context) relativePath() string {
	p := strings.ReplaceAll(c.ResourcePath, `\`, "/")
	root := strings.TrimSuffix(strings.ReplaceAll(c.Root, `\`, "/"), "/")
	if root != "" && strings.HasPrefix(p, root+"/") {
		p = p[len(root)+1:]
	}
	return strings.TrimPrefix(p, "./")
}

var (
	placeholderRe = regexp.MustCompile(`\[[^\[\]]*\]`)
	hashRe        = regexp.MustCompile(`^(?:([^:\]]+):)?(hash|contenthash)(?::([a-z]+\d*))?(?::(\d+))?$`)
)

// Allocate returns the identifier for local under template. It is a pure
// function of its inputs.
func Allocate(ctx Context, template, local string) (string, error) {
	ctx = ctx.withDefaults()
	if template == "" {
		template = DefaultTemplate
	}

	rel := ctx.relativePath()
	dir, file := path.Split(rel)
	ext := path.Ext(file)
	base := strings.TrimSuffix(file, ext)

	var firstErr error
	out := placeholderRe.ReplaceAllStringFunc(template, func(tok string) string {
		inner := tok[1 : len(tok)-1]
		switch inner {
		case "local":
			return local
		case "name":
			return base
		case "ext":
			return strings.TrimPrefix(ext, ".")
		case "path":
			return dir
		case "folder":
			if dir == "" {
				return ""
			}
			return path.Base(strings.TrimSuffix(dir, "/"))
		}
		m := hashRe.FindStringSubmatch(inner)
		if m == nil {
			return tok
		}
		function, encoding, length := ctx.HashFunction, ctx.HashDigest, ctx.HashDigestLength
		if m[1] != "" {
			function = m[1]
		}
		if m[3] != "" {
			encoding = m[3]
		}
		if m[4] != "" {
			n, err := strconv.Atoi(m[4])
			if err == nil {
				length = n
			}
		}
		source := rel
		if m[2] == "contenthash" {
			source = ctx.Content
		}
		h, err := digest(function, encoding, length, ctx.Salt, source, "\x00", local)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("template %q: %w", template, err)
			}
			return ""
		}
		return h
	})
	if firstErr != nil {
		return "", firstErr
	}
	return Escape(ctx.Prefix + out), nil
}

// Escape turns s into a valid CSS identifier. Characters other than ASCII
// letters, digits, "_", "-" and U+00A0..U+FFFF become "-"; a leading digit,
// "-digit" or "--" is prefixed with "_".
func Escape(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 1)
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size
		switch {
		case r == utf8.RuneError && size == 1:
			b.WriteByte('-')
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		case r >= 0xA0 && r <= 0xFFFF:
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	out := b.String()
	if needsUnderscore(out) {
		return "_" + out
	}
	return out
}

func needsUnderscore(s string) bool {
	if s == "" {
		return false
	}
	if isDigit(s[0]) {
		return true
	}
	if s[0] == '-' && len(s) > 1 && (isDigit(s[1]) || s[1] == '-') {
		return true
	}
	return false
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// Allocator memoizes Allocate for one module.
type Allocator struct {
	ctx      Context
	template string
	cache    map[string]string
}

// NewAllocator validates ctx and returns an allocator for one module.
func NewAllocator(ctx Context, template string) (*Allocator, error) {
	if err := ctx.Validate(); err != nil {
		return nil, err
	}
	if _, err := Allocate(ctx, template, "x"); err != nil {
		return nil, err
	}
	return &Allocator{ctx: ctx, template: template, cache: make(map[string]string)}, nil
}

// Ident returns the identifier for local. Identical names always map to
// the same identifier.
func (a *Allocator) Ident(local string) string {
	if id, ok := a.cache[local]; ok {
		return id
	}
	// The template and context were validated by NewAllocator.
	id, _ := Allocate(a.ctx, a.template, local)
	a.cache[local] = id
	return id
}
