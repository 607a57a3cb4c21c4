package commands

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapbundle/internal/bundle"
	"github.com/leapstack-labs/leapbundle/internal/cli/output"
	"github.com/leapstack-labs/leapbundle/internal/engine"
	"github.com/leapstack-labs/leapbundle/internal/graph"
	"github.com/leapstack-labs/leapbundle/pkg/core"
)

// NewBuildCommand creates the build command.
func NewBuildCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the bundle",
		Long: `Resolve the module graph from the entry, run every module's transform
chain and write the artifact to the output path.

Module failures are reported with the module path and reason; any failure
makes the command exit non-zero and leaves the previous artifact in place.`,
		Example: `  # Build with leapbundle.yaml from the current project
  leapbundle build

  # Split vendor modules into their own chunk
  leapbundle build --chunking split

  # Machine-readable summary
  leapbundle build --format json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBuild(cmd)
		},
	}

	return cmd
}

// BuildSummary is the JSON output of the build command.
type BuildSummary struct {
	Entry      string        `json:"entry"`
	Hash       string        `json:"hash"`
	OutputPath string        `json:"output_path"`
	Modules    int           `json:"modules"`
	Files      []FileSummary `json:"files"`
	Assets     []FileSummary `json:"assets,omitempty"`
	DurationMS int64         `json:"duration_ms"`
}

// FileSummary describes one written file.
type FileSummary struct {
	Name string `json:"name"`
	Size int    `json:"size"`
}

func runBuild(cmd *cobra.Command) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	r := cmdCtx.Renderer
	start := time.Now()

	g, err := cmdCtx.Engine.Build(cmd.Context())
	if err != nil {
		reportBuildError(r, g, err)
		return fmt.Errorf("build failed: %w", err)
	}

	art, err := cmdCtx.Emitter.Emit(g)
	if err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}

	summary := summarize(art, g, cmdCtx.Cfg.Output.Path, time.Since(start))
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(summary)
	}
	renderBuildSummary(r, summary)
	return nil
}

func summarize(art *bundle.Artifact, g *graph.Graph, outPath string, d time.Duration) BuildSummary {
	s := BuildSummary{
		Entry:      art.Entry,
		Hash:       art.Hash,
		OutputPath: outPath,
		Modules:    g.Len(),
		DurationMS: d.Milliseconds(),
	}
	for _, f := range art.Files {
		s.Files = append(s.Files, FileSummary{Name: f.Name, Size: len(f.Content)})
	}
	for _, a := range art.Assets {
		s.Assets = append(s.Assets, FileSummary{Name: filepath.ToSlash(filepath.Join(bundle.AssetDir, a.Name)), Size: len(a.Content)})
	}
	return s
}

func renderBuildSummary(r *output.Renderer, s BuildSummary) {
	r.Header(1, "Build")

	rows := make([][]any, 0, len(s.Files)+len(s.Assets))
	for _, f := range append(append([]FileSummary{}, s.Files...), s.Assets...) {
		rows = append(rows, []any{f.Name, humanize.IBytes(uint64(f.Size))}) //nolint:gosec // sizes are non-negative
	}
	r.Table([]string{"File", "Size"}, rows)

	if r.EffectiveMode() == output.ModeMarkdown {
		r.Println(output.FormatKeyValue("Entry", s.Entry))
		r.Println(output.FormatKeyValue("Modules", fmt.Sprintf("%d", s.Modules)))
		r.Println(output.FormatKeyValue("Hash", s.Hash))
		r.Println(output.FormatKeyValue("Output", s.OutputPath))
		return
	}
	r.Success(fmt.Sprintf("Built %d modules in %dms", s.Modules, s.DurationMS))
	r.Muted(fmt.Sprintf("%s → %s (%s)", s.Entry, s.OutputPath, s.Hash))
}

// reportBuildError prints one failure line per module plus its diagnostics.
func reportBuildError(r *output.Renderer, g *graph.Graph, err error) {
	var be *engine.BuildError
	if !errors.As(err, &be) {
		r.Error(err.Error())
		return
	}
	for _, me := range be.Errors {
		r.Error(fmt.Sprintf("%s: %s error: %v", me.Path, me.Kind, me.Err))
		if g == nil {
			continue
		}
		if m, ok := g.Get(me.Path); ok {
			r.Diagnostics(errorDiagnostics(m.Diagnostics))
		}
	}
}

func errorDiagnostics(diags []core.Diagnostic) []core.Diagnostic {
	var out []core.Diagnostic
	for _, d := range diags {
		if d.IsError() {
			out = append(out, d)
		}
	}
	return out
}
