package compile

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"

	"github.com/phobologic/cssmodules/internal/ident"
	"github.com/phobologic/cssmodules/internal/model"
	"github.com/phobologic/cssmodules/internal/parse"
)

// Mode selects how selectors are scoped.
type Mode string

const (
	// ModeLocal scopes selectors locally unless marked :global.
	ModeLocal Mode = "local"
	// ModeGlobal leaves selectors global unless marked :local.
	ModeGlobal Mode = "global"
	// ModePure is ModeLocal and rejects selectors without a local name.
	ModePure Mode = "pure"
	// ModeICSS only processes :import, :export, @value, @import and url().
	ModeICSS Mode = "icss"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeLocal, ModeGlobal, ModePure, ModeICSS:
		return m, nil
	case "":
		return ModeLocal, nil
	}
	return "", fmt.Errorf("unknown mode %q (want local, global, pure or icss)", s)
}

// ExportsConvention controls the casing of export keys.
type ExportsConvention string

const (
	AsIs          ExportsConvention = "asIs"
	CamelCase     ExportsConvention = "camelCase"
	CamelCaseOnly ExportsConvention = "camelCaseOnly"
	Dashes        ExportsConvention = "dashes"
	DashesOnly    ExportsConvention = "dashesOnly"
)

// ParseExportsConvention accepts the convention names and the legacy
// camelCaseExports values false, true, "only", "dashes" and "dashesOnly".
func ParseExportsConvention(s string) (ExportsConvention, error) {
	switch strings.TrimSpace(s) {
	case "", "false", string(AsIs):
		return AsIs, nil
	case "true", string(CamelCase):
		return CamelCase, nil
	case "only", string(CamelCaseOnly):
		return CamelCaseOnly, nil
	case string(Dashes):
		return Dashes, nil
	case string(DashesOnly):
		return DashesOnly, nil
	}
	return "", fmt.Errorf("unknown exports convention %q", s)
}

// Filter decides per url whether it is handled; resourcePath is the
// stylesheet being compiled.
type Filter func(url, resourcePath string) bool

// Options is the configuration bag of a compilation.
type Options struct {
	Mode Mode
	// DefaultScope overrides the scope derived from Mode ("local" or "global").
	DefaultScope string

	URL       bool
	URLFilter Filter

	Import       bool
	ImportFilter Filter

	LocalIdentName   string
	LocalIdentSalt   string
	LocalIdentPrefix string
	HashFunction     string
	HashDigest       string
	HashDigestLength int
	// Context is the root that [path] and [hash] are computed relative to.
	Context string

	ExportsConvention ExportsConvention
	Resolver          Resolver
}

// DefaultOptions returns local scoping with url() and @import handling
// enabled.
func DefaultOptions() Options {
	return Options{
		Mode:              ModeLocal,
		URL:               true,
		Import:            true,
		LocalIdentName:    ident.DefaultTemplate,
		ExportsConvention: AsIs,
		Resolver:          PathResolver{},
	}
}

// Validate checks the option values.
func (o Options) Validate() error {
	if _, err := ParseMode(string(o.Mode)); err != nil {
		return err
	}
	switch o.DefaultScope {
	case "", "local", "global":
	default:
		return fmt.Errorf("unknown default scope %q (want local or global)", o.DefaultScope)
	}
	if _, err := ParseExportsConvention(string(o.ExportsConvention)); err != nil {
		return err
	}
	if err := o.identContext("", "").Validate(); err != nil {
		return fmt.Errorf("local ident: %w", err)
	}
	return nil
}

func (o Options) parseOptions() parse.Options {
	mode, _ := ParseMode(string(o.Mode))
	opts := parse.Options{
		DefaultMode: model.Local,
		Scoping:     mode != ModeICSS,
		Pure:        mode == ModePure,
	}
	if mode == ModeGlobal {
		opts.DefaultMode = model.Global
	}
	switch o.DefaultScope {
	case "local":
		opts.DefaultMode = model.Local
	case "global":
		opts.DefaultMode = model.Global
	}
	return opts
}

func (o Options) identContext(path, source string) ident.Context {
	return ident.Context{
		ResourcePath:     path,
		Root:             o.Context,
		Content:          source,
		Salt:             o.LocalIdentSalt,
		Prefix:           o.LocalIdentPrefix,
		HashFunction:     o.HashFunction,
		HashDigest:       o.HashDigest,
		HashDigestLength: o.HashDigestLength,
	}
}

func (o Options) resolver() Resolver {
	if o.Resolver == nil {
		return PathResolver{}
	}
	return o.Resolver
}

// Fingerprint hashes every option that affects compiler output. Filters
// and resolvers are functions and only contribute their presence.
func (o Options) Fingerprint() string {
	h := xxhash.New()
	for _, s := range []string{
		string(o.Mode), o.DefaultScope,
		strconv.FormatBool(o.URL), strconv.FormatBool(o.URLFilter != nil),
		strconv.FormatBool(o.Import), strconv.FormatBool(o.ImportFilter != nil),
		o.LocalIdentName, o.LocalIdentSalt, o.LocalIdentPrefix,
		o.HashFunction, o.HashDigest, strconv.Itoa(o.HashDigestLength),
		o.Context, string(o.ExportsConvention), fmt.Sprintf("%T", o.Resolver),
	} {
		_, _ = h.WriteString(s)
		_, _ = h.Write([]byte{0})
	}
	return strconv.FormatUint(h.Sum64(), 16)
}

// camelCase converts "foo-bar_baz" to "fooBarBaz".
func camelCase(s string) string {
	var b strings.Builder
	upper := false
	first := true
	for _, r := range s {
		if r == '-' || r == '_' || unicode.IsSpace(r) {
			upper = !first
			continue
		}
		switch {
		case first:
			r = unicode.ToLower(r)
		case upper:
			r = unicode.ToUpper(r)
		}
		b.WriteRune(r)
		upper = false
		first = false
	}
	if b.Len() == 0 {
		return s
	}
	return b.String()
}

// dashesCamelCase converts only dashes: "foo-bar_baz" to "fooBar_baz".
func dashesCamelCase(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size
		if r == '-' && i < len(s) {
			next, n := utf8.DecodeRuneInString(s[i:])
			if next != '-' {
				b.WriteRune(unicode.ToUpper(next))
				i += n
				continue
			}
		}
		b.WriteRune(r)
	}
	return b.String()
}

// applyConvention rewrites the export keys of t according to c. Legacy
// names such as "true" and "only" are accepted; Validate has already
// rejected unknown ones.
func applyConvention(t model.ExportTable, c ExportsConvention) model.ExportTable {
	if canonical, err := ParseExportsConvention(string(c)); err == nil {
		c = canonical
	}
	var convert func(string) string
	only := false
	switch c {
	case CamelCase:
		convert = camelCase
	case CamelCaseOnly:
		convert, only = camelCase, true
	case Dashes:
		convert = dashesCamelCase
	case DashesOnly:
		convert, only = dashesCamelCase, true
	default:
		return t
	}
	var out model.ExportTable
	for _, e := range t.Entries {
		alt := convert(e.Name)
		if only {
			out.Set(alt, e.Values...)
			continue
		}
		out.Set(e.Name, e.Values...)
		if alt != e.Name {
			if _, exists := t.Get(alt); !exists {
				out.Set(alt, e.Values...)
			}
		}
	}
	return out
}
