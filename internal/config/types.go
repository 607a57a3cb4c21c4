// Package config provides the project configuration types for leapbundle.
// This package is decoupled from CLI concerns: it describes and validates
// leapbundle.yaml and converts it into component configurations.
package config

import (
	"time"

	"github.com/leapstack-labs/leapbundle/pkg/core"
)

// Config is the project configuration read from leapbundle.yaml.
type Config struct {
	Entry       string          `koanf:"entry"`
	Output      OutputConfig    `koanf:"output"`
	Resolve     ResolveConfig   `koanf:"resolve"`
	Rules       []core.Rule     `koanf:"rules"`
	NoParse     []string        `koanf:"no_parse"`
	Bail        bool            `koanf:"bail"`
	Concurrency int             `koanf:"concurrency"`
	DevServer   DevServerConfig `koanf:"dev_server"`
	Bootstrap   BootstrapConfig `koanf:"bootstrap"`
	Cache       CacheConfig     `koanf:"cache"`
}

// OutputConfig describes where and how artifacts are written.
type OutputConfig struct {
	Filename   string `koanf:"filename"`
	Path       string `koanf:"path"`
	PublicPath string `koanf:"public_path"`
	Chunking   string `koanf:"chunking"` // single, split
	Gzip       bool   `koanf:"gzip"`
}

// ResolveConfig controls specifier resolution.
type ResolveConfig struct {
	// Roots are searched, in order, for bare specifiers.
	Roots      []string `koanf:"roots"`
	Extensions []string `koanf:"extensions"`
}

// DevServerConfig holds dev server settings.
type DevServerConfig struct {
	Host       string `koanf:"host"`
	Port       int    `koanf:"port"`
	StaticRoot string `koanf:"static_root"`
	// PublicPath overrides output.public_path while serving.
	PublicPath       string        `koanf:"public_path"`
	HotOnly          bool          `koanf:"hot_only"`
	DisableHostCheck bool          `koanf:"disable_host_check"`
	AllowedHosts     []string      `koanf:"allowed_hosts"`
	Debounce         time.Duration `koanf:"debounce"`
}

// BootstrapConfig describes how the served document starts the application.
type BootstrapConfig struct {
	Document string `koanf:"document"`
	MountID  string `koanf:"mount_id"`
	// Global is the dotted path of the object exposing init, for example Elm.App.
	Global string         `koanf:"global"`
	Flags  map[string]any `koanf:"flags"`
}

// CacheConfig controls the persistent transform cache.
type CacheConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

// ServePublicPath returns the public path used while serving.
func (c *Config) ServePublicPath() string {
	if c.DevServer.PublicPath != "" {
		return c.DevServer.PublicPath
	}
	return c.Output.PublicPath
}
