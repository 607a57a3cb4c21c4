// Package config provides configuration management for the leapbundle CLI.
//
// This package extends the project configuration from internal/config
// with CLI-specific fields and the layered loading of defaults, config
// file, environment variables and flags.
package config

import (
	intconfig "github.com/leapstack-labs/leapbundle/internal/config"
)

// Config holds all CLI configuration options.
type Config struct {
	intconfig.Config `koanf:",squash"`

	// ProjectRoot is the directory relative paths are resolved against.
	ProjectRoot  string `koanf:"-"`
	Verbose      bool   `koanf:"verbose"`
	OutputFormat string `koanf:"format"`
}

// Default configuration values
const (
	DefaultOutput = "auto" // Auto-detect: TTY=text, non-TTY=markdown
	EnvPrefix     = "LEAPBUNDLE_"
)

// flagKeys maps CLI flag names to config keys.
var flagKeys = map[string]string{
	"entry":              "entry",
	"out-dir":            "output.path",
	"public-path":        "output.public_path",
	"chunking":           "output.chunking",
	"gzip":               "output.gzip",
	"bail":               "bail",
	"concurrency":        "concurrency",
	"host":               "dev_server.host",
	"port":               "dev_server.port",
	"static-root":        "dev_server.static_root",
	"hot-only":           "dev_server.hot_only",
	"disable-host-check": "dev_server.disable_host_check",
	"debounce":           "dev_server.debounce",
	"verbose":            "verbose",
	"format":             "format",
}

// pathFlags are resolved against the working directory, not the project root.
var pathFlags = map[string]func(c *Config, abs string){
	"entry":       func(c *Config, abs string) { c.Entry = abs },
	"out-dir":     func(c *Config, abs string) { c.Output.Path = abs },
	"static-root": func(c *Config, abs string) { c.DevServer.StaticRoot = abs },
}
