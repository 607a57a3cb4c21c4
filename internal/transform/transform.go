// Package transform defines the transform interface, the registry of
// built-in transforms and the chain executor that folds a module's source
// through an ordered list of transforms.
package transform

import (
	"context"

	"github.com/leapstack-labs/leapbundle/pkg/core"
)

// Input is what a transform receives: the output of the previous step
// (or the raw file content for the first step).
type Input struct {
	// Path is the absolute module path.
	Path string
	// ID is the project-relative module id.
	ID string
	// Source is the current content.
	Source []byte
	// Kind is the content kind produced by the previous step ("" for raw input).
	Kind string
	// PublicPath is the URL prefix under which emitted assets are served.
	PublicPath string
}

// Output is what a transform produces.
type Output struct {
	Code []byte
	// Map is an optional source map. Empty means "unchanged".
	Map []byte
	// Kind overrides the content kind. Empty keeps the previous kind.
	Kind        string
	Diagnostics []core.Diagnostic
	Assets      []core.Asset
}

// Transform converts one module's content.
type Transform interface {
	Name() string
	Transform(ctx context.Context, in *Input) (*Output, error)
}

// Step is an instantiated transform in a chain.
type Step struct {
	Transform Transform
	// Key identifies the step configuration for caching.
	Key string
}

// Keyer is implemented by transforms whose cache key depends on more than
// their name and options (for example a script's content).
type Keyer interface {
	CacheKey() string
}
