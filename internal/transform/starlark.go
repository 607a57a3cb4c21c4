package transform

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/leapstack-labs/leapbundle/internal/starlark"
	"github.com/leapstack-labs/leapbundle/pkg/core"
)

type starlarkOptions struct {
	Script   string         `json:"script"`
	Function string         `json:"function"`
	Options  map[string]any `json:"options"`
}

// starlarkTransform delegates to a user script's transform function.
type starlarkTransform struct {
	script  *starlark.Script
	options map[string]any
	key     string
}

func newStarlark(env Env, options map[string]any) (Transform, error) {
	var opts starlarkOptions
	if err := decodeOptions(options, &opts); err != nil {
		return nil, err
	}
	if opts.Script == "" {
		return nil, fmt.Errorf("script is required")
	}

	path := opts.Script
	if !filepath.IsAbs(path) {
		path = filepath.Join(env.Root, path)
	}

	script, err := starlark.LoadScript(path, opts.Function, env.Logger)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(script.Source())
	return &starlarkTransform{
		script:  script,
		options: opts.Options,
		key:     hex.EncodeToString(sum[:]),
	}, nil
}

func (t *starlarkTransform) Name() string { return "starlark" }

// CacheKey changes whenever the script content does.
func (t *starlarkTransform) CacheKey() string { return t.key }

func (t *starlarkTransform) Transform(ctx context.Context, in *Input) (*Output, error) {
	result, err := t.script.Call(ctx, string(in.Source), in.Path, t.options)
	if err != nil {
		var evalErr *starlark.EvalError
		if errors.As(err, &evalErr) {
			return &Output{Diagnostics: []core.Diagnostic{core.Errorf("starlark", "%s", evalErr.Message)}}, nil
		}
		return nil, err
	}

	switch v := result.(type) {
	case string:
		return &Output{Code: []byte(v)}, nil
	case map[string]any:
		return outputFromDict(v)
	default:
		return nil, fmt.Errorf("%s: transform returned %T, want string or dict", t.script.Path(), result)
	}
}

func outputFromDict(d map[string]any) (*Output, error) {
	out := &Output{}
	for key, value := range d {
		switch key {
		case "code":
			s, ok := value.(string)
			if !ok {
				return nil, fmt.Errorf("code must be a string, got %T", value)
			}
			out.Code = []byte(s)
		case "map":
			s, ok := value.(string)
			if !ok && value != nil {
				return nil, fmt.Errorf("map must be a string, got %T", value)
			}
			out.Map = []byte(s)
		case "kind":
			s, ok := value.(string)
			if !ok {
				return nil, fmt.Errorf("kind must be a string, got %T", value)
			}
			out.Kind = s
		case "diagnostics":
			diags, err := diagnosticsFromList(value)
			if err != nil {
				return nil, err
			}
			out.Diagnostics = diags
		default:
			return nil, fmt.Errorf("unknown result key %q", key)
		}
	}
	return out, nil
}

func diagnosticsFromList(value any) ([]core.Diagnostic, error) {
	list, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("diagnostics must be a list, got %T", value)
	}
	diags := make([]core.Diagnostic, 0, len(list))
	for i, item := range list {
		switch v := item.(type) {
		case string:
			diags = append(diags, core.Warnf("starlark", "%s", v))
		case map[string]any:
			d := core.Diagnostic{Severity: core.SeverityWarning, Source: "starlark"}
			if msg, ok := v["message"].(string); ok {
				d.Message = msg
			}
			if sev, ok := v["severity"].(string); ok {
				parsed, ok := core.ParseSeverity(sev)
				if !ok {
					return nil, fmt.Errorf("diagnostics[%d]: unknown severity %q", i, sev)
				}
				d.Severity = parsed
			}
			if line, ok := v["line"].(int64); ok {
				d.Line = int(line)
			}
			if col, ok := v["column"].(int64); ok {
				d.Column = int(col)
			}
			diags = append(diags, d)
		default:
			return nil, fmt.Errorf("diagnostics[%d] must be a string or dict, got %T", i, item)
		}
	}
	return diags, nil
}
