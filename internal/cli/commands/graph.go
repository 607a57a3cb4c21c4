package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapbundle/internal/cli/output"
	"github.com/leapstack-labs/leapbundle/internal/graph"
)

// NewGraphCommand creates the graph command.
func NewGraphCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Show the module graph",
		Long: `Build the module graph and display every module with its dependencies
and importers.

Failed modules are marked; the graph is shown even when the build fails.

Output adapts to environment:
  - Terminal: Styled output with colors
  - Piped/Scripted: Markdown format (agent-friendly)`,
		Example: `  # Show the graph
  leapbundle graph

  # Output as JSON
  leapbundle graph --format json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGraph(cmd)
		},
	}

	return cmd
}

// GraphNode is a module in the JSON output of the graph command.
type GraphNode struct {
	ID        string   `json:"id"`
	Kind      string   `json:"kind"`
	Status    string   `json:"status"`
	Deps      []string `json:"deps"`
	Importers []string `json:"importers"`
}

// GraphOutput is the JSON output of the graph command.
type GraphOutput struct {
	Entry string      `json:"entry"`
	Nodes []GraphNode `json:"nodes"`
	Edges int         `json:"edges"`
	Cycle []string    `json:"cycle,omitempty"`
}

func runGraph(cmd *cobra.Command) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	eng := cmdCtx.Engine
	r := cmdCtx.Renderer

	g, err := eng.Build(cmd.Context())
	if g == nil {
		return fmt.Errorf("failed to build graph: %w", err)
	}
	if err != nil {
		cmdCtx.Logger.Warn("graph has failed modules", "error", err)
	}

	out := graphOutput(g, eng.ID)
	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(out)
	case output.ModeMarkdown:
		graphMarkdown(r, out)
	default:
		graphText(r, out)
	}
	return nil
}

func graphOutput(g *graph.Graph, id func(string) string) GraphOutput {
	ids := func(paths []string) []string {
		out := make([]string, len(paths))
		for i, p := range paths {
			out[i] = id(p)
		}
		return out
	}

	out := GraphOutput{Entry: id(g.Entry()), Edges: g.EdgeCount()}
	for _, m := range g.Modules() {
		out.Nodes = append(out.Nodes, GraphNode{
			ID:        m.ID,
			Kind:      m.Kind,
			Status:    m.Status.String(),
			Deps:      ids(g.Deps(m.Path)),
			Importers: ids(g.Importers(m.Path)),
		})
	}
	if ok, cycle := g.HasCycle(); ok {
		out.Cycle = ids(cycle)
	}
	return out
}

// graphText outputs the graph in styled text format.
func graphText(r *output.Renderer, out GraphOutput) {
	styles := r.Styles()

	r.Header(1, "Module Graph")
	r.Printf("%s %s\n\n", styles.Muted.Render("entry:"), styles.ModulePath.Render(out.Entry))

	for _, n := range out.Nodes {
		name := styles.ModulePath.Render(n.ID)
		if n.Status == "failed" {
			name = styles.Error.Render(n.ID + " (failed)")
		}
		r.Printf("  %s %s\n", name, styles.Muted.Render(n.Kind))
		if len(n.Deps) > 0 {
			r.Printf("    %s %s\n", styles.Muted.Render("depends on:"), strings.Join(n.Deps, ", "))
		}
		if len(n.Importers) > 0 {
			r.Printf("    %s %s\n", styles.Muted.Render("used by:"), strings.Join(n.Importers, ", "))
		}
	}
	r.Println("")

	if len(out.Cycle) > 0 {
		r.Println(styles.Warning.Render("cycle: " + strings.Join(out.Cycle, " → ")))
	}
	r.Println(styles.Muted.Render(fmt.Sprintf("Total: %d modules, %d references", len(out.Nodes), out.Edges)))
}

// graphMarkdown outputs the graph in markdown format.
func graphMarkdown(r *output.Renderer, out GraphOutput) {
	r.Println(output.FormatHeader(1, "Module Graph"))
	r.Println("")

	for _, n := range out.Nodes {
		line := "- " + n.ID
		if n.Status == "failed" {
			line += " (failed)"
		}
		r.Println(line)
		if len(n.Deps) > 0 {
			r.Printf("  - depends on: %s\n", strings.Join(n.Deps, ", "))
		}
		if len(n.Importers) > 0 {
			r.Printf("  - used by: %s\n", strings.Join(n.Importers, ", "))
		}
	}
	r.Println("")

	r.Println(output.FormatHeader(2, "Summary"))
	r.Println(output.FormatKeyValue("Entry", out.Entry))
	r.Println(output.FormatKeyValue("Total Modules", fmt.Sprintf("%d", len(out.Nodes))))
	r.Println(output.FormatKeyValue("Total References", fmt.Sprintf("%d", out.Edges)))
	if len(out.Cycle) > 0 {
		r.Println(output.FormatKeyValue("Cycle", strings.Join(out.Cycle, " → ")))
	}
}
