package engine

import (
	"fmt"
	"strings"
)

// ConfigError reports a configuration problem found before any build work.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ErrorKind classifies a per-module failure.
type ErrorKind string

// Module error kinds.
const (
	KindRead       ErrorKind = "read"
	KindResolution ErrorKind = "resolution"
	KindTransform  ErrorKind = "transform"
)

// ModuleError is a failure confined to one module.
type ModuleError struct {
	Path string
	Kind ErrorKind
	Err  error
}

func (e *ModuleError) Error() string {
	return fmt.Sprintf("%s error in %s: %v", e.Kind, e.Path, e.Err)
}

func (e *ModuleError) Unwrap() error { return e.Err }

// BuildError collects the module errors of one build or rebuild.
type BuildError struct {
	Errors []*ModuleError
}

func (e *BuildError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	msgs := make([]string, len(e.Errors))
	for i, me := range e.Errors {
		msgs[i] = me.Error()
	}
	return fmt.Sprintf("%d module errors:\n  %s", len(e.Errors), strings.Join(msgs, "\n  "))
}

// Unwrap exposes the module errors to errors.Is and errors.As.
func (e *BuildError) Unwrap() []error {
	errs := make([]error, len(e.Errors))
	for i, me := range e.Errors {
		errs[i] = me
	}
	return errs
}
