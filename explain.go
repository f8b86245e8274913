package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/xlab/treeprint"

	"github.com/phobologic/cssmodules/internal/compile"
	"github.com/phobologic/cssmodules/internal/link"
)

func newExplainCmd(a *app) *cobra.Command {
	var root string
	cmd := &cobra.Command{
		Use:   "explain <file.css>",
		Short: "Show how each exported class name is composed",
		Long: `Print a tree of the local class names of a stylesheet. Each name lists
its final exported value and the names it composes, following composes
chains into other files.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(cmd, a, root, args[0])
		},
	}
	cmd.Flags().StringVar(&root, "root", ".", "project root that imports are resolved against")
	return cmd
}

func runExplain(cmd *cobra.Command, a *app, rootFlag, entry string) error {
	// Composition targets name the original class names.
	asIs := func(o *compile.Options) { o.ExportsConvention = compile.AsIs }
	b, err := compileEntry(cmd, a, rootFlag, entry, false, asIs)
	if err != nil {
		return err
	}
	l, err := linkModules(a, b.modules, nil)
	if err != nil {
		return err
	}

	e := &explainer{root: b.root, opts: b.opts, linker: l, comps: make(map[string][]compile.Composition)}
	tree := treeprint.NewWithRoot(b.rel)
	if err := e.module(tree, b.rel); err != nil {
		return err
	}
	_, err = fmt.Fprint(a.stdout, tree.String())
	return err
}

// explainer walks composition chains across files, caching the
// compositions of every file it visits.
type explainer struct {
	root   string
	opts   compile.Options
	linker *link.Linker
	comps  map[string][]compile.Composition
}

func (e *explainer) compositions(path string) ([]compile.Composition, error) {
	if c, ok := e.comps[path]; ok {
		return c, nil
	}
	source, err := os.ReadFile(filepath.Join(e.root, filepath.FromSlash(path)))
	if err != nil {
		return nil, err
	}
	comps, diags, err := compile.Compositions(compile.Input{Path: path, Source: string(source)}, e.opts)
	if err != nil {
		return nil, err
	}
	if err := diags.Err(); err != nil {
		return nil, err
	}
	e.comps[path] = comps
	return comps, nil
}

func (e *explainer) module(tree treeprint.Tree, path string) error {
	comps, err := e.compositions(path)
	if err != nil {
		return err
	}
	for _, c := range comps {
		value, err := e.linker.Symbol(path, c.Name)
		if err != nil {
			return err
		}
		branch := tree.AddMetaBranch(value, c.Name)
		if err := e.refs(branch, path, c, map[string]bool{path + "\x00" + c.Name: true}); err != nil {
			return err
		}
	}
	return nil
}

// refs adds the composes targets of c to tree. onPath guards against
// cycles, which the compiler has already rejected within a file.
func (e *explainer) refs(tree treeprint.Tree, path string, c compile.Composition, onPath map[string]bool) error {
	for _, ref := range c.Refs {
		switch {
		case ref.Global:
			tree.AddMetaNode("global", ref.Name)
			continue
		case ref.External():
			value, err := e.linker.Symbol(ref.From, ref.Name)
			if err != nil {
				return err
			}
			branch := tree.AddMetaBranch(value, ref.Name+" from "+ref.From)
			if err := e.follow(branch, ref.From, ref.Name, onPath); err != nil {
				return err
			}
		default:
			value, err := e.linker.Symbol(path, ref.Name)
			if err != nil {
				return err
			}
			branch := tree.AddMetaBranch(value, ref.Name)
			if err := e.follow(branch, path, ref.Name, onPath); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *explainer) follow(tree treeprint.Tree, path, name string, onPath map[string]bool) error {
	key := path + "\x00" + name
	if onPath[key] {
		return nil
	}
	comps, err := e.compositions(path)
	if err != nil {
		return err
	}
	for _, c := range comps {
		if c.Name != name {
			continue
		}
		onPath[key] = true
		defer delete(onPath, key)
		return e.refs(tree, path, c, onPath)
	}
	return nil
}
