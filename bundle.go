package main

import (
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/phobologic/cssmodules/internal/compile"
	"github.com/phobologic/cssmodules/internal/model"
)

type bundleFlags struct {
	root       string
	publicPath string
	sourceMaps bool
	exports    bool
}

func newBundleCmd(a *app) *cobra.Command {
	var f bundleFlags
	cmd := &cobra.Command{
		Use:   "bundle <entry.css>",
		Short: "Print the merged stylesheet of an entry and its dependencies",
		Long: `Compile an entry stylesheet and everything it imports or composes from,
then print the stylesheet a browser would see: each module once, dependencies
first, @import media queries applied as @media blocks.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBundle(cmd, a, args[0], f)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.root, "root", ".", "project root that imports are resolved against")
	fl.StringVar(&f.publicPath, "public-path", "", "prefix for rewritten url() references")
	fl.BoolVar(&f.sourceMaps, "source-maps", false, "read <file>.css.map input maps and inline them")
	fl.BoolVar(&f.exports, "exports", false, "print the entry's exports after the stylesheet as a comment")
	return cmd
}

// entryPath returns entry relative to root, slash separated.
func entryPath(root, entry string) (string, error) {
	abs, err := filepath.Abs(entry)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || path.IsAbs(rel) || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%s is outside the project root %s", entry, root)
	}
	return rel, nil
}

// entryBuild is an entry stylesheet compiled with its transitive
// dependencies.
type entryBuild struct {
	root    string
	rel     string
	opts    compile.Options
	modules []*model.Module
}

// compileEntry compiles entry and its transitive dependencies. adjust, if
// set, may change the configured compiler options first.
func compileEntry(cmd *cobra.Command, a *app, rootFlag, entry string, sourceMaps bool, adjust func(*compile.Options)) (*entryBuild, error) {
	root, err := projectRoot(rootFlag)
	if err != nil {
		return nil, err
	}
	cfg, err := a.setup(cmd, root)
	if err != nil {
		return nil, err
	}
	opts, err := cfg.CompileOptions(root)
	if err != nil {
		return nil, err
	}
	if adjust != nil {
		adjust(&opts)
	}
	rel, err := entryPath(root, entry)
	if err != nil {
		return nil, err
	}

	c := newCompiler(root, opts, a.logger)
	c.sourceMaps = sourceMaps
	ctx := cmd.Context()
	modules := c.closure(ctx, c.compileFilesConcurrent(ctx, []string{rel}))
	if failed := reportDiagnostics(a.logger, modules); failed > 0 {
		return nil, fmt.Errorf("%d of %d stylesheets failed to compile", failed, len(modules))
	}
	return &entryBuild{root: root, rel: rel, opts: opts, modules: modules}, nil
}

func runBundle(cmd *cobra.Command, a *app, entry string, f bundleFlags) error {
	b, err := compileEntry(cmd, a, f.root, entry, f.sourceMaps, nil)
	if err != nil {
		return err
	}
	l, err := linkModules(a, b.modules, publicURL(f.publicPath))
	if err != nil {
		return err
	}
	css, err := l.Bundle(b.rel, f.sourceMaps)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(a.stdout, css+"\n"); err != nil {
		return err
	}
	if !f.exports {
		return nil
	}
	exports, err := l.Exports(b.rel)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(a.stdout, "/* exports")
	for _, e := range exports {
		_, _ = fmt.Fprintf(a.stdout, "   %s: %s\n", e.Name, e.Value)
	}
	_, _ = fmt.Fprintln(a.stdout, "*/")
	return nil
}
