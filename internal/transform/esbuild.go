package transform

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/leapstack-labs/leapbundle/pkg/core"
)

type esbuildOptions struct {
	Loader    string            `json:"loader"`
	Target    string            `json:"target"`
	Format    string            `json:"format"`
	JSX       string            `json:"jsx"`
	Minify    bool              `json:"minify"`
	Sourcemap bool              `json:"sourcemap"`
	Define    map[string]string `json:"define"`
}

// esbuildTransform transpiles JS, TS, JSX and CSS with esbuild.
type esbuildTransform struct {
	opts   esbuildOptions
	loader api.Loader
	target api.Target
	format api.Format
	jsx    api.JSX
}

var esbuildLoaders = map[string]api.Loader{
	"js":   api.LoaderJS,
	"jsx":  api.LoaderJSX,
	"ts":   api.LoaderTS,
	"tsx":  api.LoaderTSX,
	"css":  api.LoaderCSS,
	"json": api.LoaderJSON,
	"text": api.LoaderText,
}

var esbuildTargets = map[string]api.Target{
	"esnext": api.ESNext,
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
}

func newEsbuild(_ Env, options map[string]any) (Transform, error) {
	t := &esbuildTransform{
		opts:   esbuildOptions{Format: "cjs", Target: "es2020"},
		target: api.ES2020,
		format: api.FormatCommonJS,
		jsx:    api.JSXAutomatic,
	}
	if err := decodeOptions(options, &t.opts); err != nil {
		return nil, err
	}

	if t.opts.Loader != "" {
		l, ok := esbuildLoaders[t.opts.Loader]
		if !ok {
			return nil, fmt.Errorf("unknown loader %q", t.opts.Loader)
		}
		t.loader = l
	}

	target, ok := esbuildTargets[strings.ToLower(t.opts.Target)]
	if !ok {
		return nil, fmt.Errorf("unknown target %q", t.opts.Target)
	}
	t.target = target

	switch t.opts.Format {
	case "cjs":
		t.format = api.FormatCommonJS
	case "esm":
		t.format = api.FormatESModule
	case "iife":
		t.format = api.FormatIIFE
	default:
		return nil, fmt.Errorf("unknown format %q", t.opts.Format)
	}

	switch t.opts.JSX {
	case "", "automatic":
		t.jsx = api.JSXAutomatic
	case "transform":
		t.jsx = api.JSXTransform
	case "preserve":
		t.jsx = api.JSXPreserve
	default:
		return nil, fmt.Errorf("unknown jsx mode %q", t.opts.JSX)
	}

	return t, nil
}

func (t *esbuildTransform) Name() string { return "esbuild" }

func (t *esbuildTransform) loaderFor(path string) api.Loader {
	if t.loader != api.LoaderNone {
		return t.loader
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	switch ext {
	case "mjs", "cjs":
		return api.LoaderJS
	case "mts", "cts":
		return api.LoaderTS
	}
	if l, ok := esbuildLoaders[ext]; ok {
		return l
	}
	return api.LoaderJS
}

func (t *esbuildTransform) Transform(_ context.Context, in *Input) (*Output, error) {
	loader := t.loaderFor(in.Path)

	opts := api.TransformOptions{
		Loader:            loader,
		Sourcefile:        in.ID,
		Target:            t.target,
		JSX:               t.jsx,
		MinifyWhitespace:  t.opts.Minify,
		MinifyIdentifiers: t.opts.Minify,
		MinifySyntax:      t.opts.Minify,
		Define:            t.opts.Define,
		LogLevel:          api.LogLevelSilent,
	}
	kind := core.KindJS
	if loader == api.LoaderCSS {
		kind = core.KindCSS
	} else {
		opts.Format = t.format
	}
	if t.opts.Sourcemap {
		opts.Sourcemap = api.SourceMapExternal
	}

	result := api.Transform(string(in.Source), opts)

	out := &Output{
		Code: result.Code,
		Map:  result.Map,
		Kind: kind,
	}
	out.Diagnostics = append(out.Diagnostics, esbuildDiagnostics(result.Errors, core.SeverityError)...)
	out.Diagnostics = append(out.Diagnostics, esbuildDiagnostics(result.Warnings, core.SeverityWarning)...)
	return out, nil
}

func esbuildDiagnostics(msgs []api.Message, sev core.Severity) []core.Diagnostic {
	diags := make([]core.Diagnostic, 0, len(msgs))
	for _, m := range msgs {
		d := core.Diagnostic{Severity: sev, Message: m.Text, Source: "esbuild"}
		if m.Location != nil {
			d.Line = m.Location.Line
			d.Column = m.Location.Column
		}
		diags = append(diags, d)
	}
	return diags
}
