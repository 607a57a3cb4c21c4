// Package graph holds the module graph: modules keyed by absolute path,
// ordered forward edges (dependencies) and reverse edges (importers).
// Cycles are legal.
package graph

import (
	"fmt"
	"slices"
	"sort"

	"github.com/leapstack-labs/leapbundle/pkg/core"
)

// Graph is the module graph of one build. It is not safe for concurrent
// mutation; the builder is its only writer.
type Graph struct {
	entry     string
	nodes     map[string]*core.Module
	deps      map[string][]string // importer -> dependencies, in reference order
	importers map[string][]string // dependency -> importers
}

// New creates an empty graph rooted at entry.
func New(entry string) *Graph {
	return &Graph{
		entry:     entry,
		nodes:     make(map[string]*core.Module),
		deps:      make(map[string][]string),
		importers: make(map[string][]string),
	}
}

// Clone returns a copy of the graph that shares module values. Modules are
// replaced, not mutated, by the builder, so the copy can be rebuilt while
// the original is still read.
func (g *Graph) Clone() *Graph {
	c := New(g.entry)
	for p, m := range g.nodes {
		c.nodes[p] = m
		c.deps[p] = slices.Clone(g.deps[p])
		c.importers[p] = slices.Clone(g.importers[p])
	}
	return c
}

// Entry returns the entry module path.
func (g *Graph) Entry() string { return g.entry }

// Add inserts a module, or replaces the module stored at its path.
// Edges are kept.
func (g *Graph) Add(m *core.Module) {
	if _, exists := g.nodes[m.Path]; !exists {
		g.deps[m.Path] = nil
		g.importers[m.Path] = nil
	}
	g.nodes[m.Path] = m
}

// Get returns the module at path.
func (g *Graph) Get(path string) (*core.Module, bool) {
	m, ok := g.nodes[path]
	return m, ok
}

// Has reports whether path is in the graph.
func (g *Graph) Has(path string) bool {
	_, ok := g.nodes[path]
	return ok
}

// SetDeps replaces the forward edges of path. Every dependency must
// already be in the graph (a pending placeholder is enough).
func (g *Graph) SetDeps(path string, deps []string) error {
	if _, ok := g.nodes[path]; !ok {
		return fmt.Errorf("module %q does not exist", path)
	}
	var unique []string
	for _, d := range deps {
		if _, ok := g.nodes[d]; !ok {
			return fmt.Errorf("dependency %q of %q does not exist", d, path)
		}
		if !slices.Contains(unique, d) {
			unique = append(unique, d)
		}
	}

	for _, old := range g.deps[path] {
		g.importers[old] = slices.DeleteFunc(g.importers[old], func(s string) bool { return s == path })
	}
	g.deps[path] = unique
	for _, d := range unique {
		if !slices.Contains(g.importers[d], path) {
			g.importers[d] = append(g.importers[d], path)
		}
	}
	return nil
}

// Deps returns the dependencies of path in reference order.
func (g *Graph) Deps(path string) []string {
	return g.deps[path]
}

// Importers returns the modules that reference path, sorted.
func (g *Graph) Importers(path string) []string {
	out := slices.Clone(g.importers[path])
	sort.Strings(out)
	return out
}

// Remove deletes a module and all its edges.
func (g *Graph) Remove(path string) {
	if _, ok := g.nodes[path]; !ok {
		return
	}
	for _, d := range g.deps[path] {
		g.importers[d] = slices.DeleteFunc(g.importers[d], func(s string) bool { return s == path })
	}
	for _, imp := range g.importers[path] {
		g.deps[imp] = slices.DeleteFunc(g.deps[imp], func(s string) bool { return s == path })
	}
	delete(g.nodes, path)
	delete(g.deps, path)
	delete(g.importers, path)
}

// Len returns the number of modules.
func (g *Graph) Len() int { return len(g.nodes) }

// EdgeCount returns the number of forward edges.
func (g *Graph) EdgeCount() int {
	count := 0
	for _, deps := range g.deps {
		count += len(deps)
	}
	return count
}

// Paths returns all module paths, sorted.
func (g *Graph) Paths() []string {
	paths := make([]string, 0, len(g.nodes))
	for p := range g.nodes {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Modules returns all modules sorted by path.
func (g *Graph) Modules() []*core.Module {
	paths := g.Paths()
	mods := make([]*core.Module, len(paths))
	for i, p := range paths {
		mods[i] = g.nodes[p]
	}
	return mods
}

// Failed returns the paths of modules in failed state, sorted.
func (g *Graph) Failed() []string {
	var failed []string
	for p, m := range g.nodes {
		if m.Status == core.ModuleFailed {
			failed = append(failed, p)
		}
	}
	sort.Strings(failed)
	return failed
}

// Reachable returns the set of paths reachable from the entry, the entry
// included.
func (g *Graph) Reachable() map[string]bool {
	seen := make(map[string]bool, len(g.nodes))
	if _, ok := g.nodes[g.entry]; !ok {
		return seen
	}
	stack := []string{g.entry}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[p] {
			continue
		}
		seen[p] = true
		stack = append(stack, g.deps[p]...)
	}
	return seen
}

// Prune removes every module not reachable from the entry and returns
// the removed paths, sorted.
func (g *Graph) Prune() []string {
	reachable := g.Reachable()
	var removed []string
	for p := range g.nodes {
		if !reachable[p] {
			removed = append(removed, p)
		}
	}
	sort.Strings(removed)
	for _, p := range removed {
		g.Remove(p)
	}
	return removed
}

// Dependents returns all modules that transitively import any of the
// given paths, excluding the paths themselves unless they sit on a cycle.
func (g *Graph) Dependents(paths []string) []string {
	affected := make(map[string]bool)

	var mark func(p string)
	mark = func(p string) {
		for _, imp := range g.importers[p] {
			if !affected[imp] {
				affected[imp] = true
				mark(imp)
			}
		}
	}
	for _, p := range paths {
		mark(p)
	}

	result := make([]string, 0, len(affected))
	for p := range affected {
		result = append(result, p)
	}
	sort.Strings(result)
	return result
}

// HasCycle reports whether the graph contains a cycle, along with one
// cycle path. Cycles are legal; this is used for reporting.
func (g *Graph) HasCycle() (bool, []string) {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	parent := make(map[string]string)

	var cyclePath []string

	var dfs func(p string) bool
	dfs = func(p string) bool {
		visited[p] = true
		onStack[p] = true

		for _, d := range g.deps[p] {
			if !visited[d] {
				parent[d] = p
				if dfs(d) {
					return true
				}
			} else if onStack[d] {
				cyclePath = []string{d}
				for curr := p; curr != d; curr = parent[curr] {
					cyclePath = append([]string{curr}, cyclePath...)
				}
				cyclePath = append([]string{d}, cyclePath...)
				return true
			}
		}

		onStack[p] = false
		return false
	}

	for _, p := range g.Paths() {
		if !visited[p] && dfs(p) {
			return true, cyclePath
		}
	}
	return false, nil
}
