package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/leapbundle/internal/config"
	"github.com/leapstack-labs/leapbundle/internal/transform"
)

// generateSchemaDocs generates the configuration reference.
func generateSchemaDocs(outDir string) error {
	log.Printf("Generating schema docs to %s", outDir)

	if err := os.MkdirAll(outDir, 0750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := generateConfigurationDoc(outDir); err != nil {
		return fmt.Errorf("failed to generate configuration.md: %w", err)
	}
	log.Printf("  Generated configuration.md")

	return nil
}

// ConfigField describes one leapbundle.yaml key.
type ConfigField struct {
	Key         string
	Type        string
	Description string
	Section     string // "build", "dev_server", "bootstrap", "cache"
}

func getConfigSchema() []ConfigField {
	return []ConfigField{
		{Key: "entry", Type: "string", Description: "Entry module, relative to the project root", Section: "build"},
		{Key: "output.path", Type: "string", Description: "Directory the artifact is written to", Section: "build"},
		{Key: "output.filename", Type: "string", Description: "Artifact filename", Section: "build"},
		{Key: "output.public_path", Type: "string", Description: "URL prefix for emitted assets", Section: "build"},
		{Key: "output.chunking", Type: "string", Description: "Chunking mode: single or split", Section: "build"},
		{Key: "output.gzip", Type: "bool", Description: "Also write a gzip-compressed artifact", Section: "build"},
		{Key: "resolve.roots", Type: "[]string", Description: "Directories searched for bare specifiers", Section: "build"},
		{Key: "resolve.extensions", Type: "[]string", Description: "Extensions tried for extensionless specifiers", Section: "build"},
		{Key: "no_parse", Type: "[]string", Description: "Patterns of modules whose transformed code is not scanned for references", Section: "build"},
		{Key: "bail", Type: "bool", Description: "Stop at the first module error", Section: "build"},
		{Key: "concurrency", Type: "int", Description: "Parallel transform workers (0 uses GOMAXPROCS)", Section: "build"},
		{Key: "dev_server.host", Type: "string", Description: "Listen host", Section: "dev_server"},
		{Key: "dev_server.port", Type: "int", Description: "Listen port", Section: "dev_server"},
		{Key: "dev_server.static_root", Type: "string", Description: "Directory served for non-bundle paths", Section: "dev_server"},
		{Key: "dev_server.public_path", Type: "string", Description: "Public path used while serving", Section: "dev_server"},
		{Key: "dev_server.hot_only", Type: "bool", Description: "Never fall back to a full page reload", Section: "dev_server"},
		{Key: "dev_server.disable_host_check", Type: "bool", Description: "Accept any Host header", Section: "dev_server"},
		{Key: "dev_server.allowed_hosts", Type: "[]string", Description: "Extra Host header values to accept", Section: "dev_server"},
		{Key: "dev_server.debounce", Type: "duration", Description: "Quiet period before a rebuild starts", Section: "dev_server"},
		{Key: "bootstrap.document", Type: "string", Description: "HTML document the bundle is injected into", Section: "bootstrap"},
		{Key: "bootstrap.mount_id", Type: "string", Description: "Element id the application mounts on", Section: "bootstrap"},
		{Key: "bootstrap.global", Type: "string", Description: "Global name holding the entry exports", Section: "bootstrap"},
		{Key: "bootstrap.flags", Type: "map[string]any", Description: "Flags passed to the entry's init function", Section: "bootstrap"},
		{Key: "cache.enabled", Type: "bool", Description: "Persist transform results between builds", Section: "cache"},
		{Key: "cache.path", Type: "string", Description: "Cache database path", Section: "cache"},
	}
}

func generateConfigurationDoc(outDir string) error {
	w := NewMarkdownWriter()

	w.Frontmatter("Configuration", "leapbundle configuration reference")
	w.GeneratedMarker()

	w.Header(1, "Configuration")
	w.Paragraph("leapbundle is configured via `leapbundle.yaml` in your project root. Every key can be overridden with a `LEAPBUNDLE_` environment variable or a command-line flag.")

	defaults := config.Defaults()
	sections := []struct {
		key   string
		title string
	}{
		{"build", "Build"},
		{"dev_server", "Dev Server"},
		{"bootstrap", "Bootstrap"},
		{"cache", "Cache"},
	}
	fields := getConfigSchema()
	for _, sec := range sections {
		w.Header(2, sec.title)
		var rows [][]string
		for _, f := range fields {
			if f.Section != sec.key {
				continue
			}
			def := "-"
			if v, ok := defaults[f.Key]; ok {
				def = InlineCode(fmt.Sprint(v))
			}
			rows = append(rows, []string{InlineCode(f.Key), f.Type, def, f.Description})
		}
		w.Table([]string{"Key", "Type", "Default", "Description"}, rows)
	}

	w.Header(2, "Rules")
	w.Paragraph("Each rule selects modules by path and lists the transforms applied to them, in order. A module matches when its slash-separated path matches `test`, lies under an `include` prefix when any are given, and lies under no `exclude` prefix. A module runs the `use` lists of every matching rule, concatenated in declaration order.")

	registry := transform.NewRegistry(transform.Env{})
	var names []string
	for _, name := range registry.Names() {
		names = append(names, InlineCode(name))
	}
	w.Paragraph("Built-in transforms:")
	w.BulletList(names)

	w.Header(3, "Example")
	w.CodeBlock("yaml", `entry: ./src/index.js
output:
  path: dist
rules:
  - test: '\.js$'
    exclude: [node_modules/]
    use:
      - transform: esbuild
      - transform: hot
  - test: '\.css$'
    use:
      - transform: style
dev_server:
  port: 3030
  static_root: public`)

	filename := filepath.Join(outDir, "configuration.md")
	return os.WriteFile(filename, w.Bytes(), 0600)
}
