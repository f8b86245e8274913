package main

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/cssmodules/internal/cache"
	"github.com/phobologic/cssmodules/internal/compile"
	"github.com/phobologic/cssmodules/internal/diag"
	"github.com/phobologic/cssmodules/internal/graph"
	"github.com/phobologic/cssmodules/internal/model"
	"github.com/phobologic/cssmodules/internal/syntax"
)

// compiler compiles stylesheets under root. Paths are root-relative and
// slash separated.
type compiler struct {
	root        string
	opts        compile.Options
	fingerprint string
	cache       *cache.Cache // optional
	syntaxCheck bool
	sourceMaps  bool
	logger      *slog.Logger
}

func newCompiler(root string, opts compile.Options, logger *slog.Logger) *compiler {
	return &compiler{root: root, opts: opts, fingerprint: opts.Fingerprint(), logger: logger}
}

// read loads a stylesheet and, with sourceMaps set, its sibling .map file.
func (c *compiler) read(path string) (compile.Input, error) {
	abs := filepath.Join(c.root, filepath.FromSlash(path))
	source, err := os.ReadFile(abs)
	if err != nil {
		return compile.Input{}, err
	}
	in := compile.Input{Path: path, Source: string(source)}
	if c.sourceMaps {
		data, err := os.ReadFile(abs + ".map")
		switch {
		case err == nil && json.Valid(data):
			in.SourceMap = data
		case err == nil:
			c.logger.Warn("ignoring invalid source map", "file", path+".map")
		case !errors.Is(err, fs.ErrNotExist):
			c.logger.Warn("reading source map", "file", path+".map", "err", err)
		}
	}
	return in, nil
}

// compileOne compiles path, consulting the cache first. A file that
// cannot be read yields a module carrying an UNRESOLVABLE_IMPORT error.
func (c *compiler) compileOne(ctx context.Context, parser *sitter.Parser, path string) *model.Module {
	in, err := c.read(path)
	if err != nil {
		d := diag.Wrap(diag.UnresolvableImport, err, "cannot read stylesheet")
		d.File = path
		return &model.Module{Path: path, Diagnostics: diag.List{d}}
	}

	m := c.cached(ctx, in)
	if m == nil {
		m, err = compile.Compile(in, c.opts)
		if err != nil {
			d := diag.Wrap(diag.InternalError, err, "compile")
			d.File = path
			return &model.Module{Path: path, Diagnostics: diag.List{d}}
		}
		c.store(ctx, in, m)
	}

	if parser != nil {
		rep, err := syntax.Check(ctx, parser, []byte(in.Source))
		if err != nil {
			c.logger.Warn("syntax check failed", "file", path, "err", err)
		} else {
			diags := rep.Diagnostics
			// Names are only comparable when the grammar parsed cleanly.
			if len(diags) == 0 {
				if selectors, ok := compile.Selectors(in, c.opts); ok {
					diags = rep.Unscanned(in.Source, selectors)
				}
			}
			m.Diagnostics = append(m.Diagnostics, diags.WithFile(path)...)
		}
	}
	return m
}

func (c *compiler) cached(ctx context.Context, in compile.Input) *model.Module {
	if c.cache == nil {
		return nil
	}
	m, ok, err := c.cache.Get(ctx, c.key(in))
	if err != nil {
		c.logger.Warn("cache read failed", "file", in.Path, "err", err)
		return nil
	}
	if ok {
		c.logger.Debug("cache hit", "file", in.Path)
		return m
	}
	return nil
}

func (c *compiler) store(ctx context.Context, in compile.Input, m *model.Module) {
	if c.cache == nil {
		return
	}
	key := c.key(in)
	if err := c.cache.Put(ctx, key, m); err != nil {
		c.logger.Warn("cache write failed", "file", in.Path, "err", err)
		return
	}
	if err := c.cache.Prune(ctx, in.Path, key); err != nil {
		c.logger.Warn("cache prune failed", "file", in.Path, "err", err)
	}
}

func (c *compiler) key(in compile.Input) string {
	return cache.Key(c.fingerprint, in.Path, in.Source+"\x00"+string(in.SourceMap))
}

// compileFilesConcurrent compiles paths on one worker per CPU and returns
// the modules in the order of paths.
func (c *compiler) compileFilesConcurrent(ctx context.Context, paths []string) []*model.Module {
	if len(paths) == 0 {
		return nil
	}
	type result struct {
		index  int
		module *model.Module
	}

	numWorkers := runtime.GOMAXPROCS(0)
	if numWorkers > len(paths) {
		numWorkers = len(paths)
	}

	work := make(chan int, len(paths))
	results := make(chan result, len(paths))

	var wg sync.WaitGroup
	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			// Each goroutine gets its own parser
			var parser *sitter.Parser
			if c.syntaxCheck {
				parser = syntax.NewParser()
				defer parser.Close()
			}

			for idx := range work {
				results <- result{index: idx, module: c.compileOne(ctx, parser, paths[idx])}
			}
		}()
	}

	for i := range paths {
		work <- i
	}
	close(work)

	go func() {
		wg.Wait()
		close(results)
	}()

	// Collect results in original order
	modules := make([]*model.Module, len(paths))
	for r := range results {
		modules[r.index] = r.module
	}
	return modules
}

// closure compiles the modules that the given ones depend on but that are
// not among them, until every import and composes target is present.
func (c *compiler) closure(ctx context.Context, modules []*model.Module) []*model.Module {
	for {
		paths := make([]string, len(modules))
		for i, m := range modules {
			paths[i] = m.Path
		}
		missing := graph.Missing(paths, graph.BuildGraph(modules))
		if len(missing) == 0 {
			return modules
		}
		c.logger.Debug("compiling dependencies", "count", len(missing))
		modules = append(modules, c.compileFilesConcurrent(ctx, missing)...)
	}
}

// reportDiagnostics logs every diagnostic and returns the number of modules
// with fatal errors.
func reportDiagnostics(logger *slog.Logger, modules []*model.Module) int {
	var all diag.List
	failed := 0
	for _, m := range modules {
		all = append(all, m.Diagnostics...)
		if m.Diagnostics.HasFatal() {
			failed++
		}
	}
	all.Sort()
	for _, d := range all {
		attrs := []any{"file", d.File, "code", string(d.Code)}
		if d.Line > 0 {
			attrs = append(attrs, "line", d.Line, "column", d.Column)
		}
		if d.Fatal() {
			logger.Error(d.Message, attrs...)
		} else {
			logger.Warn(d.Message, attrs...)
		}
	}
	return failed
}
