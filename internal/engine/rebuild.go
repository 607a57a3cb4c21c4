package engine

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"time"

	"github.com/leapstack-labs/leapbundle/internal/cache"
	"github.com/leapstack-labs/leapbundle/internal/graph"
	"github.com/leapstack-labs/leapbundle/pkg/core"
)

// Update describes the effect of a rebuild on the graph.
type Update struct {
	// Changed lists modules whose transformed code or dependencies changed.
	Changed []string
	// Added lists modules that joined the graph.
	Added []string
	// Removed lists modules that left the graph.
	Removed []string
	// EntryChanged is set when the entry module is among Changed.
	EntryChanged bool
}

// Empty reports whether the rebuild changed nothing.
func (u *Update) Empty() bool {
	return len(u.Changed) == 0 && len(u.Added) == 0 && len(u.Removed) == 0
}

// Rebuild brings the graph up to date after the given files changed on
// disk (modified, created or removed). Only dirty modules are
// re-transformed: changed paths in the graph and every module left failed
// by the previous build. Importers of removed or created paths re-resolve
// their references.
//
// The graph is replaced only when Rebuild returns without a context
// error. Module failures are returned as a *BuildError alongside the update.
func (e *Engine) Rebuild(ctx context.Context, changed []string) (*Update, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.graph == nil {
		g, err := e.build(ctx)
		if g == nil {
			return nil, err
		}
		return &Update{Added: g.Paths(), EntryChanged: true}, err
	}

	start := time.Now()
	finish := e.recordBuild(ctx, cache.BuildKindRebuild)

	old := e.graph
	g := old.Clone()

	dirty := make(map[string]bool)
	relink := make(map[string]bool)
	created := false

	for _, p := range changed {
		p = filepath.Clean(p)
		if !filepath.IsAbs(p) {
			p = filepath.Join(e.root, p)
		}
		exists := isFile(p)
		switch {
		case g.Has(p) && exists:
			dirty[p] = true
		case g.Has(p):
			// Removed: importers must re-resolve.
			for _, imp := range g.Importers(p) {
				relink[imp] = true
			}
			if p == e.entry {
				dirty[p] = true
			} else {
				g.Remove(p)
			}
		case exists:
			created = true
		}
	}
	for _, m := range g.Modules() {
		// Failed modules are retried; pending ones were left by a bail.
		if m.Status != core.ModuleBuilt {
			dirty[m.Path] = true
		}
	}
	if created {
		// A new file can shadow or satisfy any resolution.
		for _, p := range g.Paths() {
			relink[p] = true
		}
	}

	var frontier []string
	var errs []*ModuleError
	for _, p := range sortedKeys(relink) {
		if dirty[p] || !g.Has(p) {
			continue
		}
		newPaths, relinkErrs := e.relink(g, p)
		frontier = append(frontier, newPaths...)
		errs = append(errs, relinkErrs...)
	}
	frontier = append(sortedKeys(dirty), frontier...)

	e.logger.Debug("rebuilding", "changed", len(changed), "dirty", len(dirty), "relinked", len(relink))

	expandErrs, err := e.expand(ctx, g, frontier, nil)
	if err != nil {
		finish(nil, err)
		return nil, err
	}
	errs = append(errs, expandErrs...)
	g.Prune()

	update := diff(old, g)
	e.graph = g

	buildErr := buildError(errs)
	finish(g, buildErr)

	e.logger.Info("rebuild completed",
		"changed", len(update.Changed), "added", len(update.Added), "removed", len(update.Removed),
		"errors", len(errs), "duration", time.Since(start))
	return update, buildErr
}

// relink re-resolves the specifiers of a module that was not re-transformed.
// It returns paths newly inserted as placeholders.
func (e *Engine) relink(g *graph.Graph, path string) ([]string, []*ModuleError) {
	cur, _ := g.Get(path)
	if cur.Status == core.ModulePending {
		return nil, nil
	}

	m := *cur
	m.Diagnostics = slices.DeleteFunc(slices.Clone(cur.Diagnostics), func(d core.Diagnostic) bool {
		return d.Source == "resolve"
	})
	m.Status = core.ModuleBuilt
	m.Err = nil
	errs := e.resolveDeps(&m)
	if slices.Equal(m.Deps, cur.Deps) && len(errs) == 0 {
		return nil, nil
	}

	var added, deps []string
	for _, d := range m.Deps {
		if d == "" {
			continue
		}
		if !g.Has(d) {
			g.Add(e.placeholder(d))
			added = append(added, d)
		}
		deps = append(deps, d)
	}
	g.Add(&m)
	_ = g.SetDeps(path, deps)
	return added, errs
}

// diff compares two graphs module by module.
func diff(old, cur *graph.Graph) *Update {
	u := &Update{}
	for _, p := range cur.Paths() {
		m, _ := cur.Get(p)
		prev, ok := old.Get(p)
		if !ok {
			u.Added = append(u.Added, p)
			continue
		}
		if prev == m {
			continue
		}
		if !bytes.Equal(prev.Code, m.Code) || !slices.Equal(prev.Deps, m.Deps) || prev.Status != m.Status {
			u.Changed = append(u.Changed, p)
		}
	}
	for _, p := range old.Paths() {
		if !cur.Has(p) {
			u.Removed = append(u.Removed, p)
		}
	}
	u.EntryChanged = slices.Contains(u.Changed, cur.Entry())
	return u
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
