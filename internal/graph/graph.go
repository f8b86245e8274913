// Package graph builds the dependency graph between compiled stylesheets
// and orders it for linking.
package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/phobologic/cssmodules/internal/model"
)

// Edge is a module-to-module dependency. Kinds lists every way Source
// depends on Target (@import, composes/value import).
type Edge struct {
	Source string
	Target string
	Kinds  []model.DependencyKind
}

// BuildGraph creates module edges from the import and value dependencies of
// the compiled modules. url() assets are not modules and produce no edges.
// Edges are deduplicated and sorted by source then target.
func BuildGraph(modules []*model.Module) []Edge {
	type edgeKey struct{ src, tgt string }
	edgeKinds := make(map[edgeKey][]model.DependencyKind)

	for _, m := range modules {
		for _, d := range m.Dependencies {
			if d.Kind == model.KindURL || d.URL == m.Path {
				continue
			}
			key := edgeKey{m.Path, d.URL}
			if !contains(edgeKinds[key], d.Kind) {
				edgeKinds[key] = append(edgeKinds[key], d.Kind)
			}
		}
	}

	edges := make([]Edge, 0, len(edgeKinds))
	for key, kinds := range edgeKinds {
		edges = append(edges, Edge{Source: key.src, Target: key.tgt, Kinds: kinds})
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Source != edges[j].Source {
			return edges[i].Source < edges[j].Source
		}
		return edges[i].Target < edges[j].Target
	})
	return edges
}

// Missing returns the targets of edges that are not among nodes, sorted.
func Missing(nodes []string, edges []Edge) []string {
	known := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		known[n] = struct{}{}
	}
	missing := make(map[string]struct{})
	for _, e := range edges {
		if _, ok := known[e.Target]; !ok {
			missing[e.Target] = struct{}{}
		}
	}
	return sortedKeys(missing)
}

// CycleError reports modules that depend on each other.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return "dependency cycle: " + strings.Join(e.Path, " -> ")
}

// Order returns nodes in dependency-first order: every module comes after
// the modules it depends on. Independent modules keep sorted order, so the
// result is deterministic. Edges to unknown targets are ignored; a cycle
// is returned as a *CycleError.
func Order(nodes []string, edges []Edge) ([]string, error) {
	sortedNodes := append([]string(nil), nodes...)
	sort.Strings(sortedNodes)

	known := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		known[n] = struct{}{}
	}
	out := make(map[string][]string)
	for _, e := range edges {
		if _, ok := known[e.Target]; ok {
			out[e.Source] = append(out[e.Source], e.Target)
		}
	}
	for k := range out {
		sort.Strings(out[k])
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(nodes))
	order := make([]string, 0, len(nodes))
	var stack []string

	var visit func(n string) error
	visit = func(n string) error {
		switch state[n] {
		case done:
			return nil
		case visiting:
			start := 0
			for i, s := range stack {
				if s == n {
					start = i
				}
			}
			path := append(append([]string(nil), stack[start:]...), n)
			return &CycleError{Path: path}
		}
		state[n] = visiting
		stack = append(stack, n)
		for _, t := range out[n] {
			if err := visit(t); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		state[n] = done
		order = append(order, n)
		return nil
	}

	for _, n := range sortedNodes {
		if err := visit(n); err != nil {
			return nil, fmt.Errorf("order modules: %w", err)
		}
	}
	return order, nil
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func contains(slice []model.DependencyKind, k model.DependencyKind) bool {
	for _, v := range slice {
		if v == k {
			return true
		}
	}
	return false
}
