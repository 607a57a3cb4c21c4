// Package engine builds the module graph: it resolves references from the
// entry, runs each module's transform chain and keeps the graph current
// across incremental rebuilds.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sync"

	"github.com/leapstack-labs/leapbundle/internal/cache"
	"github.com/leapstack-labs/leapbundle/internal/graph"
	"github.com/leapstack-labs/leapbundle/internal/matcher"
	"github.com/leapstack-labs/leapbundle/internal/resolve"
	"github.com/leapstack-labs/leapbundle/internal/transform"
	"github.com/leapstack-labs/leapbundle/pkg/core"
)

// Config holds engine configuration.
type Config struct {
	// Root is the project root. Relative paths are resolved against it.
	Root string
	// Entry is the entry module path.
	Entry string
	// Rules select the transform chain of each module.
	Rules []core.Rule
	// NoParse patterns select modules that are transformed but never
	// scanned for references. They match the slash-separated absolute path.
	NoParse []string
	// Roots are the module roots searched for bare specifiers.
	Roots []string
	// Extensions are tried when a specifier names no file as written.
	Extensions []string
	// PublicPath is the URL prefix emitted assets are served under.
	PublicPath string
	// Bail stops a build at the first level with a module error.
	Bail bool
	// Concurrency bounds parallel transforms (default GOMAXPROCS).
	Concurrency int
	// Cache is an optional transform cache.
	Cache *cache.Store
	// Registry provides transforms (default: the built-ins).
	Registry *transform.Registry
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// Engine builds and incrementally rebuilds the module graph.
type Engine struct {
	root        string
	entry       string
	publicPath  string
	bail        bool
	concurrency int

	matcher  *matcher.Matcher
	noParse  []*regexp.Regexp
	chains   [][]transform.Step // indexed like the rules
	resolver *resolve.Resolver
	cache    *cache.Store
	logger   *slog.Logger

	mu    sync.Mutex
	graph *graph.Graph
}

// New validates the configuration, compiles rules and instantiates every
// transform chain. All configuration errors surface here.
func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, &ConfigError{Field: "root", Err: err}
	}

	if cfg.Entry == "" {
		return nil, &ConfigError{Field: "entry", Err: errors.New("entry is required")}
	}
	entry := cfg.Entry
	if !filepath.IsAbs(entry) {
		entry = filepath.Join(root, entry)
	}
	entry = filepath.Clean(entry)
	info, err := os.Stat(entry)
	if err != nil {
		return nil, &ConfigError{Field: "entry", Err: err}
	}
	if !info.Mode().IsRegular() {
		return nil, &ConfigError{Field: "entry", Err: fmt.Errorf("%s is not a file", entry)}
	}

	m, err := matcher.New(cfg.Rules, root)
	if err != nil {
		return nil, &ConfigError{Field: "rules", Err: err}
	}

	noParse := make([]*regexp.Regexp, 0, len(cfg.NoParse))
	for i, pattern := range cfg.NoParse {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, &ConfigError{Field: fmt.Sprintf("no_parse[%d]", i), Err: err}
		}
		noParse = append(noParse, re)
	}

	registry := cfg.Registry
	if registry == nil {
		registry = transform.NewRegistry(transform.Env{Root: root, Logger: logger})
	}

	chains := make([][]transform.Step, len(cfg.Rules))
	for i, rule := range cfg.Rules {
		chain, err := registry.Chain(rule.Use)
		if err != nil {
			return nil, &ConfigError{Field: fmt.Sprintf("rules[%d].use", i), Err: err}
		}
		chains[i] = chain
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}

	logger.Debug("initializing engine", "root", root, "entry", entry, "rules", len(cfg.Rules))

	return &Engine{
		root:        root,
		entry:       entry,
		publicPath:  cfg.PublicPath,
		bail:        cfg.Bail,
		concurrency: concurrency,
		matcher:     m,
		noParse:     noParse,
		chains:      chains,
		resolver:    resolve.New(root, cfg.Roots, cfg.Extensions),
		cache:       cfg.Cache,
		logger:      logger,
	}, nil
}

// Root returns the absolute project root.
func (e *Engine) Root() string { return e.root }

// Entry returns the absolute entry path.
func (e *Engine) Entry() string { return e.entry }

// ModuleRoots returns the absolute module roots.
func (e *Engine) ModuleRoots() []string { return e.resolver.Roots() }

// Graph returns the graph of the last build, or nil before the first build.
// The graph must not be modified, nor read during a build.
func (e *Engine) Graph() *graph.Graph {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.graph
}

// ID returns the project-relative, slash-separated id of a module path.
func (e *Engine) ID(path string) string {
	rel, err := filepath.Rel(e.root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// chainFor concatenates the chains of every rule matching path, in rule order.
// parses reports whether the transformed code of path is scanned for
// references.
func (e *Engine) parses(path string) bool {
	p := filepath.ToSlash(path)
	for _, re := range e.noParse {
		if re.MatchString(p) {
			return false
		}
	}
	return true
}

func (e *Engine) chainFor(path string) []transform.Step {
	var chain []transform.Step
	for _, m := range e.matcher.Match(filepath.ToSlash(path)) {
		chain = append(chain, e.chains[m.Index]...)
	}
	return chain
}

// recordBuild records a build in the cache history when a cache is configured.
func (e *Engine) recordBuild(ctx context.Context, kind cache.BuildKind) func(g *graph.Graph, err error) {
	if e.cache == nil {
		return func(*graph.Graph, error) {}
	}
	b, err := e.cache.StartBuild(ctx, kind)
	if err != nil {
		e.logger.Warn("failed to record build", "error", err)
		return func(*graph.Graph, error) {}
	}
	return func(g *graph.Graph, buildErr error) {
		modules, errCount := 0, 0
		if g != nil {
			modules = g.Len()
		}
		var be *BuildError
		if errors.As(buildErr, &be) {
			errCount = len(be.Errors)
		} else if buildErr != nil {
			errCount = 1
		}
		// The build context may be cancelled by now.
		if err := e.cache.FinishBuild(context.WithoutCancel(ctx), b, modules, errCount, buildErr); err != nil {
			e.logger.Warn("failed to record build", "error", err)
		}
	}
}
