package transform

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/leapbundle/pkg/core"
)

// Result is the outcome of running a chain over one module.
type Result struct {
	Code        []byte
	Map         []byte
	Kind        string
	Diagnostics []core.Diagnostic
	Assets      []core.Asset
}

// ChainError is returned when a transform reports an error diagnostic.
type ChainError struct {
	Path string
	// Transform is the name of the transform that halted the chain.
	Transform   string
	Diagnostics []core.Diagnostic
}

func (e *ChainError) Error() string {
	msgs := make([]string, 0, len(e.Diagnostics))
	for _, d := range e.Diagnostics {
		if d.IsError() {
			msgs = append(msgs, d.Message)
		}
	}
	return fmt.Sprintf("transform %s failed for %s: %s", e.Transform, e.Path, strings.Join(msgs, "; "))
}

// KindFromPath infers the initial content kind from a file extension.
func KindFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".js", ".mjs", ".cjs", ".jsx", ".ts", ".tsx", ".mts", ".cts":
		return core.KindJS
	case ".css":
		return core.KindCSS
	default:
		return core.KindText
	}
}

// Run folds source through the chain in order. The output of each step is
// the input of the next. An empty chain passes the source through unchanged.
// The first error diagnostic halts the chain; warnings accumulate.
func Run(ctx context.Context, in Input, chain []Step) (*Result, error) {
	res := &Result{
		Code: in.Source,
		Kind: in.Kind,
	}
	if res.Kind == "" {
		res.Kind = KindFromPath(in.Path)
	}

	for _, step := range chain {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		name := step.Transform.Name()
		stepIn := in
		stepIn.Source = res.Code
		stepIn.Kind = res.Kind

		out, err := step.Transform.Transform(ctx, &stepIn)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			d := core.Errorf(name, "%v", err)
			d.Path = in.Path
			res.Diagnostics = append(res.Diagnostics, d)
			return nil, &ChainError{Path: in.Path, Transform: name, Diagnostics: res.Diagnostics}
		}
		if out == nil {
			continue
		}

		for _, d := range out.Diagnostics {
			if d.Source == "" {
				d.Source = name
			}
			if d.Path == "" {
				d.Path = in.Path
			}
			res.Diagnostics = append(res.Diagnostics, d)
		}
		if core.HasErrors(out.Diagnostics) {
			return nil, &ChainError{Path: in.Path, Transform: name, Diagnostics: res.Diagnostics}
		}

		res.Code = out.Code
		if len(out.Map) > 0 {
			res.Map = out.Map
		}
		if out.Kind != "" {
			res.Kind = out.Kind
		}
		res.Assets = append(res.Assets, out.Assets...)
	}

	return res, nil
}

// ChainKey joins the step keys of a chain.
func ChainKey(chain []Step) string {
	keys := make([]string, len(chain))
	for i, s := range chain {
		keys[i] = s.Key
	}
	return strings.Join(keys, "|")
}
