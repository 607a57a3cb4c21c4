package commands

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapbundle/internal/cli/output"
)

// NewCacheCommand creates the cache command and its subcommands.
func NewCacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the transform cache",
	}

	cmd.AddCommand(newCacheStatsCommand())
	cmd.AddCommand(newCacheClearCommand())

	return cmd
}

func newCacheStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show transform cache statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := openCacheStore(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			r := cmdCtx.Renderer
			entries, size, err := cmdCtx.Cache.Stats(cmd.Context())
			if err != nil {
				return err
			}
			version, err := cmdCtx.Cache.Version()
			if err != nil {
				return err
			}

			switch r.EffectiveMode() {
			case output.ModeJSON:
				return r.JSON(map[string]any{
					"path":           cmdCtx.Cache.Path(),
					"entries":        entries,
					"size":           size,
					"schema_version": version,
				})
			case output.ModeMarkdown:
				r.Println(output.FormatHeader(1, "Transform Cache"))
				r.Println(output.FormatKeyValue("Path", cmdCtx.Cache.Path()))
				r.Println(output.FormatKeyValue("Entries", fmt.Sprintf("%d", entries)))
				r.Println(output.FormatKeyValue("Size", humanize.IBytes(uint64(size)))) //nolint:gosec // sizes are non-negative
			default:
				r.Header(1, "Transform Cache")
				r.Printf("%s %s\n", r.Styles().Muted.Render("path:   "), cmdCtx.Cache.Path())
				r.Printf("%s %d\n", r.Styles().Muted.Render("entries:"), entries)
				r.Printf("%s %s\n", r.Styles().Muted.Render("size:   "), humanize.IBytes(uint64(size))) //nolint:gosec // sizes are non-negative
			}
			return nil
		},
	}
}

func newCacheClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached transform result",
		Long: `Remove every cached transform result. The build history is kept.
The next build runs every transform chain again.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := openCacheStore(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			n, err := cmdCtx.Cache.Clear(cmd.Context())
			if err != nil {
				return err
			}

			r := cmdCtx.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(map[string]int64{"removed": n})
			}
			r.Success(fmt.Sprintf("Removed %d cached transform results", n))
			return nil
		},
	}
}
