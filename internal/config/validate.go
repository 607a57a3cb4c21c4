package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/leapstack-labs/leapbundle/internal/bundle"
	"github.com/leapstack-labs/leapbundle/internal/cache"
	"github.com/leapstack-labs/leapbundle/internal/matcher"
)

// ValidationError reports an invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid %s: %s: %v", e.Field, e.Message, e.Err)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Validate checks the configuration. It compiles every rule pattern so that
// malformed patterns fail before any build work starts.
func (c *Config) Validate() error {
	if c.Entry == "" {
		return invalid("entry", "entry is required")
	}

	if c.Output.Filename == "" {
		return invalid("output.filename", "filename is required")
	}
	if strings.ContainsAny(c.Output.Filename, `/\`) {
		return invalid("output.filename", "%q must be a plain file name", c.Output.Filename)
	}
	if c.Output.Path == "" {
		return invalid("output.path", "path is required")
	}
	switch c.Output.Chunking {
	case bundle.ChunkingSingle, bundle.ChunkingSplit:
	default:
		return invalid("output.chunking", "%q is not one of single, split", c.Output.Chunking)
	}

	for i, ext := range c.Resolve.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return invalid(fmt.Sprintf("resolve.extensions[%d]", i), "%q must start with a dot", ext)
		}
	}

	for i, rule := range c.Rules {
		for j, use := range rule.Use {
			if use.Transform == "" {
				return invalid(fmt.Sprintf("rules[%d].use[%d]", i, j), "transform name is required")
			}
		}
	}
	if _, err := matcher.New(c.Rules, "."); err != nil {
		field := "rules"
		var pe *matcher.PatternError
		if errors.As(err, &pe) {
			field = fmt.Sprintf("rules[%d].test", pe.Index)
		}
		return &ValidationError{Field: field, Message: "malformed pattern", Err: err}
	}

	for i, pattern := range c.NoParse {
		if _, err := regexp.Compile(pattern); err != nil {
			return &ValidationError{Field: fmt.Sprintf("no_parse[%d]", i), Message: "malformed pattern", Err: err}
		}
	}

	if c.Concurrency < 0 {
		return invalid("concurrency", "must not be negative")
	}

	if c.DevServer.Port < 0 || c.DevServer.Port > 65535 {
		return invalid("dev_server.port", "%d is out of range", c.DevServer.Port)
	}
	if c.DevServer.Debounce < 0 {
		return invalid("dev_server.debounce", "must not be negative")
	}

	if c.Bootstrap.MountID == "" {
		return invalid("bootstrap.mount_id", "mount id is required")
	}
	if v, ok := c.Bootstrap.Flags["serverHost"]; ok {
		if _, isString := v.(string); !isString {
			return invalid("bootstrap.flags.serverHost", "must be a URL string")
		}
	}

	if c.Cache.Enabled && c.Cache.Path == "" {
		return invalid("cache.path", "path is required when the cache is enabled")
	}
	return nil
}

// ResolvePaths makes every file system path in c absolute, relative to root.
func (c *Config) ResolvePaths(root string) {
	c.Entry = resolvePathRelativeTo(c.Entry, root)
	c.Output.Path = resolvePathRelativeTo(c.Output.Path, root)
	c.DevServer.StaticRoot = resolvePathRelativeTo(c.DevServer.StaticRoot, root)
	c.Bootstrap.Document = resolvePathRelativeTo(c.Bootstrap.Document, root)
	if c.Cache.Path != cache.Memory {
		c.Cache.Path = resolvePathRelativeTo(c.Cache.Path, root)
	}
}

// resolvePathRelativeTo resolves a path relative to baseDir if it's not absolute.
// Returns the path unchanged if it's empty or already absolute.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}
