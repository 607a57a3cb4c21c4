package commands

import (
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapbundle/internal/bundle"
	"github.com/leapstack-labs/leapbundle/internal/cache"
	"github.com/leapstack-labs/leapbundle/internal/cli/config"
	"github.com/leapstack-labs/leapbundle/internal/cli/output"
	intconfig "github.com/leapstack-labs/leapbundle/internal/config"
	"github.com/leapstack-labs/leapbundle/internal/engine"
)

// errCacheDisabled is returned by commands that need the cache when it is turned off.
var errCacheDisabled = errors.New("the build cache is disabled (cache.enabled: false)")

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Engine   *engine.Engine
	Emitter  *bundle.Emitter
	Cache    *cache.Store // nil when the cache is disabled
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext with engine, emitter and cache.
// Returns the context and a cleanup function that must be called (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	return newCommandContext(cmd, false)
}

// newServeContext is NewCommandContext with the dev server's public path.
func newServeContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	return newCommandContext(cmd, true)
}

func newCommandContext(cmd *cobra.Command, serving bool) (*CommandContext, func(), error) {
	cmdCtx := NewCommandContextWithoutEngine(cmd)
	cfg := cmdCtx.Cfg

	store, err := openCache(cfg, cmdCtx.Logger)
	if err != nil {
		return nil, nil, err
	}

	publicPath := cfg.Output.PublicPath
	if serving {
		publicPath = cfg.ServePublicPath()
	}

	eng, err := createEngine(cfg, store, publicPath, cmdCtx.Logger)
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return nil, nil, err
	}

	cmdCtx.Engine = eng
	cmdCtx.Cache = store
	cmdCtx.Emitter = bundle.NewEmitter(bundle.Config{
		OutputPath:  cfg.Output.Path,
		Filename:    cfg.Output.Filename,
		PublicPath:  publicPath,
		Chunking:    cfg.Output.Chunking,
		ModuleRoots: eng.ModuleRoots(),
		Gzip:        cfg.Output.Gzip,
		Logger:      cmdCtx.Logger,
	})

	cleanup := func() {
		if store != nil {
			_ = store.Close()
		}
	}
	return cmdCtx, cleanup, nil
}

// NewCommandContextWithoutEngine creates a CommandContext without an engine.
// Useful for commands that only need configuration and output.
func NewCommandContextWithoutEngine(cmd *cobra.Command) *CommandContext {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())
	mode := output.Mode(cfg.OutputFormat)
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Renderer: r,
	}
}

// openCacheStore opens the cache for commands that require it.
func openCacheStore(cmd *cobra.Command) (*CommandContext, func(), error) {
	cmdCtx := NewCommandContextWithoutEngine(cmd)
	store, err := openCache(cmdCtx.Cfg, cmdCtx.Logger)
	if err != nil {
		return nil, nil, err
	}
	if store == nil {
		return nil, nil, errCacheDisabled
	}
	cmdCtx.Cache = store
	return cmdCtx, func() { _ = store.Close() }, nil
}

// Helper functions shared across commands

// getConfig returns the current configuration.
// It uses config.GetCurrentConfig() if available, otherwise falls back to defaults
// rooted at the working directory.
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}

	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	cfg := &config.Config{
		ProjectRoot:  cwd,
		Verbose:      os.Getenv(config.EnvPrefix+"VERBOSE") == "true",
		OutputFormat: os.Getenv(config.EnvPrefix + "FORMAT"),
	}
	cfg.Cache.Enabled = true
	intconfig.ApplyDefaults(&cfg.Config)
	cfg.ResolvePaths(cwd)
	return cfg
}

func openCache(cfg *config.Config, logger *slog.Logger) (*cache.Store, error) {
	if !cfg.Cache.Enabled {
		return nil, nil
	}
	return cache.Open(cfg.Cache.Path, logger)
}

func createEngine(cfg *config.Config, store *cache.Store, publicPath string, logger *slog.Logger) (*engine.Engine, error) {
	return engine.New(engine.Config{
		Root:        cfg.ProjectRoot,
		Entry:       cfg.Entry,
		Rules:       cfg.Rules,
		NoParse:     cfg.NoParse,
		Roots:       cfg.Resolve.Roots,
		Extensions:  cfg.Resolve.Extensions,
		PublicPath:  publicPath,
		Bail:        cfg.Bail,
		Concurrency: cfg.Concurrency,
		Cache:       store,
		Logger:      logger,
	})
}
