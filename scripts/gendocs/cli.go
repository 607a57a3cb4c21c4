package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/leapstack-labs/leapbundle/internal/cli"
	cliconfig "github.com/leapstack-labs/leapbundle/internal/cli/config"
	"github.com/leapstack-labs/leapbundle/internal/config"
)

// generateCLIDocs writes index.md plus one page per top-level command.
// Subcommands are documented on their parent's page.
func generateCLIDocs(outDir string) error {
	log.Printf("Generating CLI docs to %s", outDir)

	if err := os.MkdirAll(outDir, 0750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	root := cli.NewRootCmd()
	pages := map[string][]byte{"index.md": cliIndex(root)}
	for _, cmd := range documented(root) {
		pages[cmd.Name()+".md"] = commandPage(cmd)
	}

	names := make([]string, 0, len(pages))
	for name := range pages {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(outDir, name), pages[name], 0600); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
		log.Printf("  Generated %s", name)
	}
	return nil
}

// documented returns the visible children of cmd, skipping help and the
// shell completion plumbing.
func documented(cmd *cobra.Command) []*cobra.Command {
	var out []*cobra.Command
	for _, c := range cmd.Commands() {
		if c.Hidden || c.Name() == "help" || strings.HasPrefix(c.Name(), "__") {
			continue
		}
		out = append(out, c)
	}
	return out
}

func cliIndex(root *cobra.Command) []byte {
	w := NewMarkdownWriter()
	w.Frontmatter("CLI Reference", "Command-line interface reference for leapbundle")
	w.GeneratedMarker()

	w.Header(1, "CLI Reference")
	w.Paragraph(root.Long)
	w.CodeBlock("bash", "go install github.com/leapstack-labs/leapbundle/cmd/leapbundle@latest\n\nleapbundle <command> [options]")

	w.Header(2, "Commands")
	var rows [][]string
	for _, cmd := range documented(root) {
		link := fmt.Sprintf("[%s](/cli/%s)", InlineCode(cmd.Name()), cmd.Name())
		rows = append(rows, []string{link, cleanDescription(cmd.Short)})
		for _, sub := range documented(cmd) {
			link := fmt.Sprintf("[%s](/cli/%s#%s)", InlineCode(cmd.Name()+" "+sub.Name()), cmd.Name(), sub.Name())
			rows = append(rows, []string{link, cleanDescription(sub.Short)})
		}
	}
	w.Table([]string{"Command", "Description"}, rows)

	w.Header(2, "Global Options")
	w.Paragraph("Every global option overrides the matching `leapbundle.yaml` key for one invocation.")
	w.Table(flagHeaders, flagRows(root.PersistentFlags()))

	w.Header(2, "Environment Variables")
	w.Paragraph(fmt.Sprintf("Each configuration key can be set with a `%s` variable. A double underscore separates nested keys. Precedence, lowest first: defaults, `leapbundle.yaml`, environment, flags.", cliconfig.EnvPrefix))
	var envRows [][]string
	for _, key := range sortedKeys(config.Defaults()) {
		envRows = append(envRows, []string{InlineCode(envVar(key)), InlineCode(key)})
	}
	w.Table([]string{"Variable", "Key"}, envRows)

	w.Header(2, "Exit Codes")
	w.Table([]string{"Code", "Meaning"}, [][]string{
		{InlineCode("0"), "Success"},
		{InlineCode("1"), "Configuration, resolution, transform or transport error (details on stderr)"},
	})
	return w.Bytes()
}

func commandPage(cmd *cobra.Command) []byte {
	w := NewMarkdownWriter()
	w.Frontmatter(cmd.Name(), cmd.Short)
	w.GeneratedMarker()
	w.Header(1, cmd.Name())
	describeCommand(w, cmd, 2)

	if parent := cmd.InheritedFlags(); parent.HasAvailableFlags() {
		w.Header(2, "Global Options")
		w.Paragraph("See the [CLI reference](/cli/) for options shared by every command.")
	}
	return w.Bytes()
}

// describeCommand writes usage, aliases, flags and examples for cmd, then a
// section per subcommand one heading level down.
func describeCommand(w *MarkdownWriter, cmd *cobra.Command, level int) {
	if cmd.Long != "" {
		w.Paragraph(cmd.Long)
	} else {
		w.Paragraph(cmd.Short)
	}

	w.Header(level, "Usage")
	w.CodeBlock("bash", usage(cmd))

	if len(cmd.Aliases) > 0 {
		aliases := make([]string, len(cmd.Aliases))
		for i, a := range cmd.Aliases {
			aliases[i] = InlineCode(a)
		}
		w.Header(level, "Aliases")
		w.BulletList(aliases)
	}

	if cmd.HasAvailableLocalFlags() {
		w.Header(level, "Options")
		w.Table(flagHeaders, flagRows(cmd.LocalNonPersistentFlags()))
	}

	if cmd.Example != "" {
		w.Header(level, "Examples")
		w.CodeBlock("bash", cleanExample(cmd.Example))
	}

	for _, sub := range documented(cmd) {
		w.Header(level, sub.Name())
		describeCommand(w, sub, level+1)
	}
}

// usage is the command line with the binary name, e.g. "leapbundle cache clear".
func usage(cmd *cobra.Command) string {
	if cmd.HasAvailableSubCommands() && !cmd.Runnable() {
		return cmd.CommandPath() + " <subcommand> [options]"
	}
	return cmd.UseLine()
}

var flagHeaders = []string{"Option", "Short", "Default", "Description"}

func flagRows(flags *pflag.FlagSet) [][]string {
	var rows [][]string
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Hidden {
			return
		}
		short := ""
		if f.Shorthand != "" {
			short = InlineCode("-" + f.Shorthand)
		}
		rows = append(rows, []string{
			InlineCode("--" + f.Name),
			short,
			flagDefault(f),
			cleanDescription(f.Usage),
		})
	})
	return rows
}

// flagDefault hides zero values, which mean "use the configuration".
func flagDefault(f *pflag.Flag) string {
	switch f.DefValue {
	case "", "0", "0s", "false", "[]":
		return ""
	}
	return InlineCode(f.DefValue)
}

// envVar inverts the loader's mapping: dev_server.port becomes
// LEAPBUNDLE_DEV_SERVER__PORT.
func envVar(key string) string {
	return cliconfig.EnvPrefix + strings.ToUpper(strings.ReplaceAll(key, ".", "__"))
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// cleanExample strips the indentation shared by all non-blank lines.
func cleanExample(example string) string {
	lines := strings.Split(strings.Trim(example, "\n"), "\n")
	indent := ""
	first := true
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lead := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		if first || len(lead) < len(indent) {
			indent = lead
			first = false
		}
	}
	for i, line := range lines {
		lines[i] = strings.TrimPrefix(line, indent)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
