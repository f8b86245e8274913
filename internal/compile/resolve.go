package compile

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"strings"

	"github.com/phobologic/cssmodules/internal/model"
)

// ErrNotRequestable is returned by a Resolver for urls that stay literal
// references outside the module system.
var ErrNotRequestable = errors.New("not requestable")

// Resolver maps a request written in the stylesheet at from to a
// normalized module reference. It returns ErrNotRequestable for urls that
// are passed through unchanged; any other error makes the import
// unresolvable.
type Resolver interface {
	Resolve(request string, kind model.DependencyKind, from string) (string, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(request string, kind model.DependencyKind, from string) (string, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(request string, kind model.DependencyKind, from string) (string, error) {
	return f(request, kind, from)
}

var schemeRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z\d+\-.]*:`)

// IsRequestable reports whether url names a resource the module system
// should load: not a url with a scheme, not protocol-relative, not
// root-absolute and not a fragment.
func IsRequestable(url string) bool {
	url = strings.TrimSpace(url)
	switch {
	case url == "":
		return false
	case strings.HasPrefix(url, "#"), strings.HasPrefix(url, "/"):
		return false
	case schemeRe.MatchString(url):
		return false
	}
	return true
}

// SplitHash separates a url into its request and the "?#..." or "#..."
// suffix.
func SplitHash(url string) (request, hash string) {
	i := strings.IndexByte(url, '#')
	if i < 0 {
		return url, ""
	}
	if i > 0 && url[i-1] == '?' {
		i--
	}
	return url[:i], url[i:]
}

// PathResolver resolves requests relative to the requesting module's
// directory. A leading "~" marks a path relative to the project root.
type PathResolver struct{}

// Resolve implements Resolver.
func (PathResolver) Resolve(request string, _ model.DependencyKind, from string) (string, error) {
	if !IsRequestable(request) {
		return "", ErrNotRequestable
	}
	request, _, _ = strings.Cut(request, "?")
	if strings.HasPrefix(request, "~") {
		return path.Clean(strings.TrimPrefix(strings.TrimPrefix(request, "~"), "/")), nil
	}
	ref := path.Join(path.Dir(strings.ReplaceAll(from, `\`, "/")), request)
	if ref == ".." || strings.HasPrefix(ref, "../") {
		return "", fmt.Errorf("%q escapes the project root", request)
	}
	return ref, nil
}

// FileResolver is a PathResolver that also requires stylesheet
// dependencies to exist in FS. url() assets are not checked.
type FileResolver struct {
	FS fs.FS
}

// Resolve implements Resolver.
func (r FileResolver) Resolve(request string, kind model.DependencyKind, from string) (string, error) {
	ref, err := PathResolver{}.Resolve(request, kind, from)
	if err != nil || kind == model.KindURL {
		return ref, err
	}
	if _, err := fs.Stat(r.FS, ref); err != nil {
		return "", fmt.Errorf("resolve %q from %s: %w", request, from, err)
	}
	return ref, nil
}
