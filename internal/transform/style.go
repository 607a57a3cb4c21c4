package transform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/leapstack-labs/leapbundle/internal/scanner"
	"github.com/leapstack-labs/leapbundle/pkg/core"
)

type styleOptions struct {
	Minify bool `json:"minify"`
}

// styleTransform turns CSS into a JS module that injects a <style> element.
// @import rules become require calls so imported sheets join the graph.
type styleTransform struct {
	opts styleOptions
}

var importRule = regexp.MustCompile(`(?m)^[ \t]*@import\s+[^;]*;[ \t]*\r?\n?`)

func newStyle(_ Env, options map[string]any) (Transform, error) {
	t := &styleTransform{}
	if err := decodeOptions(options, &t.opts); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *styleTransform) Name() string { return "style" }

func (t *styleTransform) Transform(_ context.Context, in *Input) (*Output, error) {
	if in.Kind != "" && in.Kind != core.KindCSS {
		return nil, fmt.Errorf("style expects css input, got %s", in.Kind)
	}

	imports, diags := scanner.Scan(core.KindCSS, in.Path, in.Source)
	if core.HasErrors(diags) {
		return &Output{Diagnostics: diags}, nil
	}

	css := importRule.ReplaceAll(in.Source, nil)
	if t.opts.Minify {
		result := api.Transform(string(css), api.TransformOptions{
			Loader:           api.LoaderCSS,
			MinifyWhitespace: true,
			MinifySyntax:     true,
			LogLevel:         api.LogLevelSilent,
		})
		if len(result.Errors) > 0 {
			return &Output{Diagnostics: esbuildDiagnostics(result.Errors, core.SeverityError)}, nil
		}
		css = result.Code
	}

	cssJSON, err := json.Marshal(string(css))
	if err != nil {
		return nil, err
	}
	idJSON, err := json.Marshal(in.ID)
	if err != nil {
		return nil, err
	}

	var b bytes.Buffer
	for _, spec := range imports {
		specJSON, _ := json.Marshal(spec)
		fmt.Fprintf(&b, "require(%s);\n", specJSON)
	}
	fmt.Fprintf(&b, "var css = %s;\n", cssJSON)
	fmt.Fprintf(&b, `if (typeof document !== "undefined") {
  var id = %s;
  var el = document.querySelector('style[data-leapbundle="' + id + '"]');
  if (!el) {
    el = document.createElement("style");
    el.setAttribute("data-leapbundle", id);
    document.head.appendChild(el);
  }
  el.textContent = css;
}
module.exports = css;
`, idJSON)

	return &Output{Code: b.Bytes(), Kind: core.KindJS, Diagnostics: diags}, nil
}
