package config

import "time"

// Default configuration values.
const (
	DefaultEntry      = "index.js"
	DefaultFilename   = "index.js"
	DefaultOutputPath = "bundle"
	DefaultPublicPath = "/"
	DefaultChunking   = "single"
	DefaultHost       = "localhost"
	DefaultPort       = 3030
	DefaultDebounce   = 100 * time.Millisecond
	DefaultMountID    = "app"
	DefaultCachePath  = ".leapbundle/cache.db"
)

// DefaultRoots are the module roots searched when none are configured.
func DefaultRoots() []string { return []string{"node_modules"} }

// DefaultExtensions are tried when a specifier names no existing file.
func DefaultExtensions() []string { return []string{".js", ".json", ".css"} }

// Defaults returns the default configuration as a flat koanf map.
func Defaults() map[string]any {
	return map[string]any{
		"entry":               DefaultEntry,
		"output.filename":     DefaultFilename,
		"output.path":         DefaultOutputPath,
		"output.public_path":  DefaultPublicPath,
		"output.chunking":     DefaultChunking,
		"output.gzip":         false,
		"resolve.roots":       DefaultRoots(),
		"resolve.extensions":  DefaultExtensions(),
		"bail":                false,
		"concurrency":         0,
		"dev_server.host":     DefaultHost,
		"dev_server.port":     DefaultPort,
		"dev_server.hot_only": false,
		"dev_server.debounce": DefaultDebounce.String(),
		"bootstrap.mount_id":  DefaultMountID,
		"cache.enabled":       true,
		"cache.path":          DefaultCachePath,
	}
}

// ApplyDefaults fills unset fields of c.
func ApplyDefaults(c *Config) {
	if c == nil {
		return
	}
	if c.Entry == "" {
		c.Entry = DefaultEntry
	}
	if c.Output.Filename == "" {
		c.Output.Filename = DefaultFilename
	}
	if c.Output.Path == "" {
		c.Output.Path = DefaultOutputPath
	}
	if c.Output.PublicPath == "" {
		c.Output.PublicPath = DefaultPublicPath
	}
	if c.Output.Chunking == "" {
		c.Output.Chunking = DefaultChunking
	}
	if c.Resolve.Roots == nil {
		c.Resolve.Roots = DefaultRoots()
	}
	if c.Resolve.Extensions == nil {
		c.Resolve.Extensions = DefaultExtensions()
	}
	if c.DevServer.Host == "" {
		c.DevServer.Host = DefaultHost
	}
	if c.DevServer.Port == 0 {
		c.DevServer.Port = DefaultPort
	}
	if c.DevServer.Debounce == 0 {
		c.DevServer.Debounce = DefaultDebounce
	}
	if c.Bootstrap.MountID == "" {
		c.Bootstrap.MountID = DefaultMountID
	}
	if c.Cache.Path == "" {
		c.Cache.Path = DefaultCachePath
	}
}
