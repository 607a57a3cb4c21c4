package commands

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapbundle/internal/cache"
	"github.com/leapstack-labs/leapbundle/internal/cli/output"
)

// NewBuildsCommand creates the builds command.
func NewBuildsCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "builds",
		Short: "Show recent builds",
		Long: `List the most recent builds and dev server rebuilds recorded in the
build cache, newest first.`,
		Example: `  # Show the last 20 builds
  leapbundle builds

  # Show the last 5 builds as JSON
  leapbundle builds --limit 5 --format json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBuilds(cmd, limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of builds to show")

	return cmd
}

// BuildInfo is a build in the JSON output of the builds command.
type BuildInfo struct {
	ID         string     `json:"id"`
	Kind       string     `json:"kind"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	DurationMS int64      `json:"duration_ms"`
	Modules    int        `json:"modules"`
	Errors     int        `json:"errors"`
	Error      string     `json:"error,omitempty"`
}

func runBuilds(cmd *cobra.Command, limit int) error {
	cmdCtx, cleanup, err := openCacheStore(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	r := cmdCtx.Renderer
	builds, err := cmdCtx.Cache.ListBuilds(cmd.Context(), limit)
	if err != nil {
		return err
	}

	if r.EffectiveMode() == output.ModeJSON {
		infos := make([]BuildInfo, 0, len(builds))
		for _, b := range builds {
			infos = append(infos, buildInfo(b))
		}
		return r.JSON(infos)
	}

	if len(builds) == 0 {
		r.Muted("No builds recorded yet")
		return nil
	}

	r.Header(1, fmt.Sprintf("Builds (%d)", len(builds)))
	rows := make([][]any, 0, len(builds))
	for _, b := range builds {
		duration := "-"
		if !b.FinishedAt.IsZero() {
			duration = b.Duration().Round(time.Millisecond).String()
		}
		rows = append(rows, []any{
			shortID(b.ID), string(b.Kind), string(b.Status),
			humanize.Time(b.StartedAt), duration, b.Modules, b.Errors,
		})
	}
	r.Table([]string{"ID", "Kind", "Status", "Started", "Duration", "Modules", "Errors"}, rows)
	return nil
}

func buildInfo(b *cache.Build) BuildInfo {
	info := BuildInfo{
		ID:         b.ID,
		Kind:       string(b.Kind),
		Status:     string(b.Status),
		StartedAt:  b.StartedAt,
		DurationMS: b.Duration().Milliseconds(),
		Modules:    b.Modules,
		Errors:     b.Errors,
		Error:      b.Error,
	}
	if !b.FinishedAt.IsZero() {
		finished := b.FinishedAt
		info.FinishedAt = &finished
	}
	return info
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
