package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/phobologic/cssmodules/internal/cache"
	"github.com/phobologic/cssmodules/internal/config"
	"github.com/phobologic/cssmodules/internal/discover"
	"github.com/phobologic/cssmodules/internal/graph"
	"github.com/phobologic/cssmodules/internal/link"
	"github.com/phobologic/cssmodules/internal/manifest"
	"github.com/phobologic/cssmodules/internal/model"
)

type buildFlags struct {
	onlyModules bool
	exclude     []string
	format      string
	cachePath   string
	out         string
	publicPath  string
	syntaxCheck bool
	sourceMaps  bool
}

func newBuildCmd(a *app) *cobra.Command {
	var f buildFlags
	cmd := &cobra.Command{
		Use:   "build [root]",
		Short: "Compile every stylesheet under root and print a manifest",
		Long: `Compile every .css file under root (default "."), link composes and
@value imports across files, and print a manifest of modules, exports,
dependencies and diagnostics.

Inside a git work tree only files known to git are compiled; elsewhere
.gitignore is honored. Flags override the [build] section of .cssmodules.toml.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) > 0 {
				root = args[0]
			}
			return runBuild(cmd, a, root, f)
		},
	}
	fl := cmd.Flags()
	fl.BoolVar(&f.onlyModules, "only-modules", false, "compile only *.module.css files")
	fl.StringSliceVar(&f.exclude, "exclude", nil, "gitignore-style patterns to skip (repeatable)")
	fl.StringVarP(&f.format, "format", "f", "", "manifest format: toon, json, yaml or toml")
	fl.StringVar(&f.cachePath, "cache", "", "compile cache database path")
	fl.StringVarP(&f.out, "out", "o", "", "write linked CSS for each module under this directory")
	fl.StringVar(&f.publicPath, "public-path", "", "prefix for rewritten url() references")
	fl.BoolVar(&f.syntaxCheck, "syntax-check", false, "cross-check stylesheets with the tree-sitter CSS grammar")
	fl.BoolVar(&f.sourceMaps, "source-maps", false, "read <file>.css.map input source maps")
	return cmd
}

// mergeBuildFlags applies explicitly set flags over the config file values.
func mergeBuildFlags(cmd *cobra.Command, cfg config.BuildConfig, f buildFlags) buildFlags {
	changed := cmd.Flags().Changed
	if !changed("only-modules") {
		f.onlyModules = cfg.OnlyModules
	}
	if !changed("exclude") {
		f.exclude = cfg.Exclude
	}
	if !changed("format") {
		f.format = cfg.Format
	}
	if !changed("cache") {
		f.cachePath = cfg.Cache
	}
	if !changed("out") {
		f.out = cfg.Out
	}
	if !changed("public-path") {
		f.publicPath = cfg.PublicPath
	}
	if !changed("syntax-check") {
		f.syntaxCheck = cfg.SyntaxCheck
	}
	if !changed("source-maps") {
		f.sourceMaps = cfg.SourceMaps
	}
	return f
}

// projectRoot returns root as an absolute directory.
func projectRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolving root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("root path: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s: not a directory", abs)
	}
	return abs, nil
}

// underRoot resolves p against root unless it is absolute.
func underRoot(root, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}

func publicURL(prefix string) func(string) string {
	if prefix == "" {
		return nil
	}
	return func(ref string) string {
		return strings.TrimSuffix(prefix, "/") + "/" + ref
	}
}

func runBuild(cmd *cobra.Command, a *app, root string, f buildFlags) error {
	ctx := cmd.Context()
	root, err := projectRoot(root)
	if err != nil {
		return err
	}
	cfg, err := a.setup(cmd, root)
	if err != nil {
		return err
	}
	f = mergeBuildFlags(cmd, cfg.Build, f)
	format, err := manifest.ParseFormat(f.format)
	if err != nil {
		return err
	}
	opts, err := cfg.CompileOptions(root)
	if err != nil {
		return err
	}

	files, err := discover.Files(root, discover.Options{OnlyModules: f.onlyModules, Exclude: f.exclude})
	if err != nil {
		return fmt.Errorf("discovering files: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no stylesheets found under %s", root)
	}
	a.logger.Info("discovered stylesheets", "root", root, "count", len(files))

	c := newCompiler(root, opts, a.logger)
	c.syntaxCheck = f.syntaxCheck
	c.sourceMaps = f.sourceMaps
	if f.cachePath != "" {
		db, err := cache.Open(underRoot(root, f.cachePath))
		if err != nil {
			return err
		}
		defer db.Close()
		c.cache = db
	}

	paths := make([]string, len(files))
	for i, file := range files {
		paths[i] = file.Path
	}
	modules := c.closure(ctx, c.compileFilesConcurrent(ctx, paths))

	failed := reportDiagnostics(a.logger, modules)
	var l *link.Linker
	if failed == 0 {
		l, err = linkModules(a, modules, publicURL(f.publicPath))
		if err != nil {
			return err
		}
	}

	m, err := manifest.Build(filepath.Base(root), modules, l)
	if err != nil {
		return err
	}
	if err := manifest.Encode(a.stdout, m, format); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d stylesheets failed to compile", failed, len(modules))
	}

	if f.out != "" {
		if err := writeOutputs(ctx, a, l, modules, underRoot(root, f.out)); err != nil {
			return err
		}
	}
	return nil
}

// linkModules links compiled modules and logs the link order. Circular
// @import chains are allowed and only logged.
func linkModules(a *app, modules []*model.Module, public func(string) string) (*link.Linker, error) {
	l, err := link.New(modules, link.Options{PublicURL: public})
	if err != nil {
		return nil, err
	}
	order, err := l.Order()
	var cycle *graph.CycleError
	switch {
	case errors.As(err, &cycle):
		a.logger.Warn("circular @import", "cycle", strings.Join(cycle.Path, " -> "))
	case err != nil:
		return nil, err
	default:
		a.logger.Debug("link order", "modules", strings.Join(order, ","))
	}
	return l, nil
}

// writeOutputs writes each module's linked CSS to dir, mirroring the
// source layout.
func writeOutputs(ctx context.Context, a *app, l *link.Linker, modules []*model.Module, dir string) error {
	for _, m := range modules {
		if err := ctx.Err(); err != nil {
			return err
		}
		css, err := l.CSS(m.Path)
		if err != nil {
			return err
		}
		target := filepath.Join(dir, filepath.FromSlash(m.Path))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
		if err := os.WriteFile(target, []byte(css), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", target, err)
		}
		a.logger.Debug("wrote css", "file", target)
	}
	return nil
}
