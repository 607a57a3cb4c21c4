package transform

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/go-viper/mapstructure/v2"

	"github.com/leapstack-labs/leapbundle/pkg/core"
)

// Env carries project context to transform factories.
type Env struct {
	// Root is the project root, used to resolve relative option paths.
	Root   string
	Logger *slog.Logger
}

// Factory instantiates a transform from its options.
type Factory func(env Env, options map[string]any) (Transform, error)

// UnknownTransformError is returned for a rule naming an unregistered transform.
type UnknownTransformError struct {
	Name string
}

func (e *UnknownTransformError) Error() string {
	return fmt.Sprintf("unknown transform %q", e.Name)
}

// OptionsError is returned when a transform rejects its options.
type OptionsError struct {
	Transform string
	Err       error
}

func (e *OptionsError) Error() string {
	return fmt.Sprintf("invalid options for transform %q: %v", e.Transform, e.Err)
}

func (e *OptionsError) Unwrap() error { return e.Err }

// Registry maps transform names to factories.
type Registry struct {
	factories map[string]Factory
	env       Env
}

// NewRegistry creates a registry with the built-in transforms registered.
func NewRegistry(env Env) *Registry {
	if env.Logger == nil {
		env.Logger = slog.New(slog.DiscardHandler)
	}
	r := &Registry{
		factories: make(map[string]Factory),
		env:       env,
	}
	r.Register("esbuild", newEsbuild)
	r.Register("style", newStyle)
	r.Register("yaml", newYAML)
	r.Register("json", newJSON)
	r.Register("raw", newRaw)
	r.Register("asset", newAsset)
	r.Register("hot", newHot)
	r.Register("starlark", newStarlark)
	return r
}

// Register adds or replaces a factory.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// Names returns the registered transform names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New instantiates a single transform step.
func (r *Registry) New(spec core.TransformSpec) (Step, error) {
	factory, ok := r.factories[spec.Transform]
	if !ok {
		return Step{}, &UnknownTransformError{Name: spec.Transform}
	}

	t, err := factory(r.env, spec.Options)
	if err != nil {
		return Step{}, &OptionsError{Transform: spec.Transform, Err: err}
	}

	return Step{Transform: t, Key: stepKey(spec, t)}, nil
}

// Chain instantiates every spec in order.
func (r *Registry) Chain(specs []core.TransformSpec) ([]Step, error) {
	steps := make([]Step, 0, len(specs))
	for _, spec := range specs {
		step, err := r.New(spec)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func stepKey(spec core.TransformSpec, t Transform) string {
	// encoding/json sorts map keys, so equal options give equal keys.
	opts, _ := json.Marshal(spec.Options)
	key := spec.Transform + string(opts)
	if k, ok := t.(Keyer); ok {
		key += "#" + k.CacheKey()
	}
	return key
}

// decodeOptions decodes a raw options map into a typed struct.
// Unknown keys are rejected.
func decodeOptions(options map[string]any, target any) error {
	if len(options) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		TagName:          "json",
	})
	if err != nil {
		return err
	}
	return dec.Decode(options)
}
