package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapbundle/internal/cli/output"
	intconfig "github.com/leapstack-labs/leapbundle/internal/config"
)

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool
	var example bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new leapbundle project",
		Long: `Initialize a new leapbundle project with a configuration file and an
entry module.

This creates:
  - leapbundle.yaml configuration file
  - index.js entry module
  - .gitignore for build output and the cache

Use --example to create a small application with a host document, CSS,
JSON data and a Starlark transform script.`,
		Example: `  # Initialize in current directory
  leapbundle init

  # Initialize with a full working example
  leapbundle init --example

  # Initialize in a new directory
  leapbundle init my-app --example

  # Force overwrite existing config
  leapbundle init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			cfg := getConfig()
			r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat))

			if example {
				return runInitExample(r, dir, force)
			}
			return runInit(r, dir, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")
	cmd.Flags().BoolVar(&example, "example", false, "Create an example application")

	return cmd
}

// prepareInit creates dir and refuses to overwrite an existing config without force.
func prepareInit(dir string, force bool) error {
	if dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	configPath := filepath.Join(dir, intconfig.ConfigFileName)
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("%s already exists. Use --force to overwrite", intconfig.ConfigFileName)
	}
	return nil
}

func runInit(r *output.Renderer, dir string, force bool) error {
	if err := prepareInit(dir, force); err != nil {
		return err
	}

	if err := copyTemplate("minimal", dir, force); err != nil {
		return fmt.Errorf("failed to initialize project: %w", err)
	}

	files, _ := listTemplateFiles("minimal")
	for _, f := range files {
		r.StatusLine(f, "success", "")
	}

	r.Println("")
	r.Success("leapbundle project initialized!")
	r.Println("")
	r.Println("Next steps:")
	r.Println("  1. Edit index.js")
	r.Println("  2. Run 'leapbundle serve' and open http://localhost:3030")
	r.Println("  3. Run 'leapbundle build' to write the bundle")

	return nil
}

func runInitExample(r *output.Renderer, dir string, force bool) error {
	if err := prepareInit(dir, force); err != nil {
		return err
	}

	if err := copyTemplate("example", dir, force); err != nil {
		return fmt.Errorf("failed to initialize project: %w", err)
	}

	files, _ := listTemplateFiles("example")
	groups := groupTemplateFiles(files)

	sections := []struct{ key, title string }{
		{"config", "Configuration"},
		{"source", "Source"},
		{"public", "Static files"},
		{"tools", "Transform scripts"},
	}
	for i, s := range sections {
		if i > 0 {
			r.Println("")
		}
		r.Header(2, s.title)
		for _, f := range groups[s.key] {
			r.StatusLine(f, "success", "")
		}
	}

	r.Println("")
	r.Success("leapbundle project initialized with an example application!")
	r.Println("")
	r.Println("Next steps:")
	r.Println("  leapbundle serve    Start the dev server with hot updates")
	r.Println("  leapbundle build    Write the bundle to bundle/")
	r.Println("  leapbundle graph    Show the module graph")

	return nil
}
