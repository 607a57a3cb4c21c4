package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapbundle/internal/bootstrap"
	"github.com/leapstack-labs/leapbundle/internal/cli/output"
	"github.com/leapstack-labs/leapbundle/internal/devserver"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"dev"},
		Short:   "Start the development server",
		Long: `Serve the bundle from memory, rebuild it when source files change and
push updates to connected browsers.

Changed modules are sent as hot updates. A change to the entry module, or a
removed module, asks the browser to reload the page unless --hot-only is
set. Build failures keep the last good artifact and show an overlay.`,
		Example: `  # Serve on the configured host and port
  leapbundle serve

  # Serve on all interfaces without host checking
  leapbundle dev --host 0.0.0.0 --disable-host-check

  # Never reload the page
  leapbundle serve --hot-only`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd)
		},
	}

	return cmd
}

func runServe(cmd *cobra.Command) error {
	cmdCtx, cleanup, err := newServeContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := cmdCtx.Renderer
	srv := devserver.New(serverConfig(cmdCtx, func(res devserver.RebuildResult) {
		reportRebuild(r, res)
	}), cmdCtx.Engine, cmdCtx.Emitter)

	go func() {
		select {
		case <-srv.Ready():
			r.Success(fmt.Sprintf("Serving at http://%s", srv.ListenAddr()))
			if a := srv.Session().Artifact(); a != nil {
				r.Muted(fmt.Sprintf("%s (%s)", a.Entry, a.Hash))
			}
		case <-ctx.Done():
		}
	}()

	if err := srv.Serve(ctx); err != nil {
		return fmt.Errorf("dev server failed: %w", err)
	}
	r.Muted("Server stopped")
	return nil
}

// serverConfig maps the CLI configuration onto the dev server's.
func serverConfig(cmdCtx *CommandContext, onRebuild func(devserver.RebuildResult)) devserver.Config {
	cfg := cmdCtx.Cfg
	return devserver.Config{
		Host:             cfg.DevServer.Host,
		Port:             cfg.DevServer.Port,
		StaticRoot:       cfg.DevServer.StaticRoot,
		PublicPath:       cfg.ServePublicPath(),
		HotOnly:          cfg.DevServer.HotOnly,
		DisableHostCheck: cfg.DevServer.DisableHostCheck,
		AllowedHosts:     cfg.DevServer.AllowedHosts,
		Debounce:         cfg.DevServer.Debounce,
		Document:         cfg.Bootstrap.Document,
		MountID:          cfg.Bootstrap.MountID,
		Global:           cfg.Bootstrap.Global,
		Flags:            bootstrap.Flags(cfg.Bootstrap.Flags),
		WatchRoots:       []string{cfg.ProjectRoot},
		OnRebuild:        onRebuild,
		Logger:           cmdCtx.Logger,
	}
}

func reportRebuild(r *output.Renderer, res devserver.RebuildResult) {
	if res.Discarded {
		return
	}
	detail := fmt.Sprintf("%d changed, %s", len(res.Paths), res.Duration.Round(time.Millisecond))
	if res.Err != nil {
		r.StatusLine("rebuild", "failed", detail)
		for _, msg := range res.Messages {
			r.Diagnostics(msg.Diagnostics)
		}
		return
	}
	r.StatusLine("rebuild", "success", detail)
}
