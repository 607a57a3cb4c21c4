package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/leapbundle/internal/cache"
	"github.com/leapstack-labs/leapbundle/internal/graph"
	"github.com/leapstack-labs/leapbundle/internal/scanner"
	"github.com/leapstack-labs/leapbundle/internal/transform"
	"github.com/leapstack-labs/leapbundle/pkg/core"
)

// processed is the result of transforming one module off the graph.
type processed struct {
	module *core.Module
	errs   []*ModuleError
}

// Build builds the module graph from the entry. Module failures do not stop
// unrelated modules (unless Bail is set); they are returned as a
// *BuildError alongside the graph.
func (e *Engine) Build(ctx context.Context) (*graph.Graph, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.build(ctx)
}

func (e *Engine) build(ctx context.Context) (*graph.Graph, error) {
	start := time.Now()
	e.logger.Info("starting build", "entry", e.entry)
	finish := e.recordBuild(ctx, cache.BuildKindBuild)

	g := graph.New(e.entry)
	g.Add(e.placeholder(e.entry))

	errs, err := e.expand(ctx, g, []string{e.entry}, nil)
	if err != nil {
		finish(nil, err)
		return nil, err
	}
	g.Prune()

	e.graph = g
	buildErr := buildError(errs)
	finish(g, buildErr)

	if buildErr != nil {
		e.logger.Error("build failed", "modules", g.Len(), "errors", len(errs), "duration", time.Since(start))
		return g, buildErr
	}
	e.logger.Info("build completed", "modules", g.Len(), "duration", time.Since(start))
	return g, nil
}

func buildError(errs []*ModuleError) error {
	if len(errs) == 0 {
		return nil
	}
	return &BuildError{Errors: errs}
}

func (e *Engine) placeholder(path string) *core.Module {
	return &core.Module{Path: path, ID: e.ID(path), Status: core.ModulePending}
}

// expand transforms the frontier level by level until no new paths are
// discovered. Paths found for the first time are inserted as pending
// placeholders before the next level runs, so a reference back to a path
// already in the graph never enqueues it twice. onAdded is called for
// every path inserted.
func (e *Engine) expand(ctx context.Context, g *graph.Graph, frontier []string, onAdded func(string)) ([]*ModuleError, error) {
	var errs []*ModuleError

	for len(frontier) > 0 {
		results, err := e.processLevel(ctx, frontier)
		if err != nil {
			return nil, err
		}

		var next []string
		levelFailed := false
		for _, r := range results {
			m := r.module
			g.Add(m)
			errs = append(errs, r.errs...)
			if len(r.errs) > 0 {
				levelFailed = true
			}

			var deps []string
			for _, d := range m.Deps {
				if d == "" {
					continue
				}
				if !g.Has(d) {
					g.Add(e.placeholder(d))
					next = append(next, d)
					if onAdded != nil {
						onAdded(d)
					}
				}
				deps = append(deps, d)
			}
			if err := g.SetDeps(m.Path, deps); err != nil {
				return nil, err
			}
		}

		if levelFailed && e.bail {
			e.logger.Debug("bailing after module error", "pending", len(next))
			break
		}
		frontier = next
	}

	return errs, nil
}

// processLevel transforms every path of a level concurrently. Results keep
// the order of paths so graph writes are deterministic.
func (e *Engine) processLevel(ctx context.Context, paths []string) ([]processed, error) {
	results := make([]processed, len(paths))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(e.concurrency)
	for i, p := range paths {
		eg.Go(func() error {
			results[i] = e.process(egCtx, p)
			return egCtx.Err()
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// process reads, transforms, scans and resolves one module. It touches no
// shared state besides the cache.
func (e *Engine) process(ctx context.Context, path string) processed {
	m := &core.Module{Path: path, ID: e.ID(path), Status: core.ModuleFailed}

	info, err := os.Stat(path)
	if err != nil {
		m.Err = err
		return processed{module: m, errs: []*ModuleError{{Path: path, Kind: KindRead, Err: err}}}
	}
	raw, err := os.ReadFile(path) //nolint:gosec // G304: module paths come from resolution
	if err != nil {
		m.Err = err
		return processed{module: m, errs: []*ModuleError{{Path: path, Kind: KindRead, Err: err}}}
	}
	m.Raw = raw
	m.ModTime = info.ModTime()
	sum := sha256.Sum256(raw)
	m.Hash = hex.EncodeToString(sum[:])

	res, err := e.transform(ctx, m)
	if err != nil {
		var chainErr *transform.ChainError
		if errors.As(err, &chainErr) {
			m.Diagnostics = chainErr.Diagnostics
		}
		m.Err = err
		return processed{module: m, errs: []*ModuleError{{Path: path, Kind: KindTransform, Err: err}}}
	}
	m.Code = res.Code
	m.Map = res.Map
	m.Kind = res.Kind
	m.Assets = res.Assets
	m.Diagnostics = res.Diagnostics

	if e.parses(path) {
		specs, diags := scanner.Scan(m.Kind, path, m.Code)
		m.Diagnostics = append(m.Diagnostics, diags...)
		if core.HasErrors(diags) {
			err := &transform.ChainError{Path: path, Transform: "scanner", Diagnostics: diags}
			m.Err = err
			return processed{module: m, errs: []*ModuleError{{Path: path, Kind: KindTransform, Err: err}}}
		}
		m.Specifiers = specs
	}

	errs := e.resolveDeps(m)
	if len(errs) == 0 {
		m.Status = core.ModuleBuilt
	}
	return processed{module: m, errs: errs}
}

// resolveDeps fills m.Deps from m.Specifiers. Unresolved specifiers leave an
// empty entry and mark the module failed.
func (e *Engine) resolveDeps(m *core.Module) []*ModuleError {
	var errs []*ModuleError
	m.Deps = make([]string, len(m.Specifiers))
	for i, spec := range m.Specifiers {
		dep, err := e.resolver.Resolve(m.Path, spec)
		if err != nil {
			errs = append(errs, &ModuleError{Path: m.Path, Kind: KindResolution, Err: err})
			m.Diagnostics = append(m.Diagnostics, core.Diagnostic{
				Severity: core.SeverityError,
				Message:  err.Error(),
				Path:     m.Path,
				Source:   "resolve",
			})
			continue
		}
		m.Deps[i] = dep
	}
	if len(errs) > 0 {
		m.Status = core.ModuleFailed
		m.Err = errs[0].Err
	}
	return errs
}

// transform runs the module's chain, consulting the cache first.
func (e *Engine) transform(ctx context.Context, m *core.Module) (*transform.Result, error) {
	chain := e.chainFor(m.Path)

	var key string
	if e.cache != nil {
		key = cache.Key(m.Path, transform.ChainKey(chain), e.publicPath, m.Raw)
		entry, ok, err := e.cache.Get(ctx, key)
		if err != nil {
			e.logger.Warn("cache read failed", "path", m.Path, "error", err)
		} else if ok {
			e.logger.Debug("cache hit", "path", m.Path)
			return &transform.Result{
				Code:        entry.Code,
				Map:         entry.Map,
				Kind:        entry.Kind,
				Diagnostics: entry.Diagnostics,
				Assets:      entry.Assets,
			}, nil
		}
	}

	res, err := transform.Run(ctx, transform.Input{
		Path:       m.Path,
		ID:         m.ID,
		Source:     m.Raw,
		PublicPath: e.publicPath,
	}, chain)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("transformed module", "path", m.Path, "steps", len(chain), "kind", res.Kind)

	if e.cache != nil {
		if err := e.cache.Put(ctx, key, m.Path, &cache.Entry{
			Kind:        res.Kind,
			Code:        res.Code,
			Map:         res.Map,
			Diagnostics: res.Diagnostics,
			Assets:      res.Assets,
		}); err != nil {
			e.logger.Warn("cache write failed", "path", m.Path, "error", err)
		}
	}
	return res, nil
}
