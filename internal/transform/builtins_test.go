package transform

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapbundle/internal/testutil"
	"github.com/leapstack-labs/leapbundle/pkg/core"
)

func runOne(t *testing.T, r *Registry, spec core.TransformSpec, in Input) (*Result, error) {
	t.Helper()
	s, err := r.New(spec)
	require.NoError(t, err)
	return Run(context.Background(), in, []Step{s})
}

func TestEsbuild_ESMBecomesCommonJS(t *testing.T) {
	r := NewRegistry(Env{})
	res, err := runOne(t, r, core.TransformSpec{Transform: "esbuild"}, Input{
		Path:   "/app/src/index.ts",
		ID:     "src/index.ts",
		Source: []byte(`import { greet } from "./greet"; const n: number = 1; export default greet(n);`),
	})
	require.NoError(t, err)
	assert.Equal(t, core.KindJS, res.Kind)
	assert.Contains(t, string(res.Code), `require("./greet")`)
	assert.NotContains(t, string(res.Code), ": number")
}

func TestEsbuild_CSSKeepsKind(t *testing.T) {
	r := NewRegistry(Env{})
	res, err := runOne(t, r, core.TransformSpec{Transform: "esbuild", Options: map[string]any{"minify": true}}, Input{
		Path:   "/app/a.css",
		Source: []byte("body {\n  color: red;\n}\n"),
	})
	require.NoError(t, err)
	assert.Equal(t, core.KindCSS, res.Kind)
	assert.Equal(t, "body{color:red}", strings.TrimSpace(string(res.Code)))
}

func TestEsbuild_SyntaxError(t *testing.T) {
	r := NewRegistry(Env{})
	_, err := runOne(t, r, core.TransformSpec{Transform: "esbuild"}, Input{
		Path:   "/app/a.js",
		Source: []byte("const = ;"),
	})

	var cerr *ChainError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "esbuild", cerr.Transform)
	assert.Positive(t, cerr.Diagnostics[0].Line)
}

func TestEsbuild_SourceMap(t *testing.T) {
	r := NewRegistry(Env{})
	res, err := runOne(t, r, core.TransformSpec{Transform: "esbuild", Options: map[string]any{"sourcemap": true}}, Input{
		Path:   "/app/a.js",
		ID:     "a.js",
		Source: []byte("export const a = 1;"),
	})
	require.NoError(t, err)
	assert.Contains(t, string(res.Map), `"sources"`)
}

func TestStyle(t *testing.T) {
	r := NewRegistry(Env{})
	res, err := runOne(t, r, core.TransformSpec{Transform: "style"}, Input{
		Path:   "/app/main.css",
		ID:     "main.css",
		Source: []byte("@import \"./reset.css\";\nbody { color: red; }\n"),
	})
	require.NoError(t, err)

	code := string(res.Code)
	assert.Equal(t, core.KindJS, res.Kind)
	assert.True(t, strings.HasPrefix(code, `require("./reset.css");`))
	assert.Contains(t, code, `var css = "body { color: red; }\n";`)
	assert.Contains(t, code, `"main.css"`)
	assert.NotContains(t, code, "@import")
}

func TestStyle_RejectsJS(t *testing.T) {
	r := NewRegistry(Env{})
	_, err := runOne(t, r, core.TransformSpec{Transform: "style"}, Input{
		Path:   "/app/a.js",
		Source: []byte("x"),
	})
	var cerr *ChainError
	require.True(t, errors.As(err, &cerr))
}

func TestYAML(t *testing.T) {
	r := NewRegistry(Env{})
	res, err := runOne(t, r, core.TransformSpec{Transform: "yaml"}, Input{
		Path:   "/app/config.yaml",
		Source: []byte("name: demo\nports: [1, 2]\n"),
	})
	require.NoError(t, err)
	assert.Equal(t, "module.exports = {\"name\":\"demo\",\"ports\":[1,2]};\n", string(res.Code))

	_, err = runOne(t, r, core.TransformSpec{Transform: "yaml"}, Input{
		Path:   "/app/bad.yaml",
		Source: []byte("a: [1, 2\n"),
	})
	require.Error(t, err)
}

func TestJSON(t *testing.T) {
	r := NewRegistry(Env{})
	res, err := runOne(t, r, core.TransformSpec{Transform: "json"}, Input{
		Path:   "/app/data.json",
		Source: []byte("{\n  \"a\": 1\n}\n"),
	})
	require.NoError(t, err)
	assert.Equal(t, "module.exports = {\"a\":1};\n", string(res.Code))

	_, err = runOne(t, r, core.TransformSpec{Transform: "json"}, Input{
		Path:   "/app/bad.json",
		Source: []byte("{"),
	})
	var cerr *ChainError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "json", cerr.Transform)
}

func TestRaw(t *testing.T) {
	r := NewRegistry(Env{})
	res, err := runOne(t, r, core.TransformSpec{Transform: "raw"}, Input{
		Path:   "/app/a.txt",
		Source: []byte("say \"hi\"\n"),
	})
	require.NoError(t, err)
	assert.Equal(t, "module.exports = \"say \\\"hi\\\"\\n\";\n", string(res.Code))
}

func TestAsset(t *testing.T) {
	r := NewRegistry(Env{})
	in := Input{
		Path:       "/app/img/logo.png",
		ID:         "img/logo.png",
		Source:     []byte("PNGDATA"),
		PublicPath: "http://localhost:3030/",
	}
	res, err := runOne(t, r, core.TransformSpec{Transform: "asset"}, in)
	require.NoError(t, err)

	require.Len(t, res.Assets, 1)
	name := res.Assets[0].Name
	assert.Regexp(t, `^logo\.[0-9a-f]{8}\.png$`, name)
	assert.Equal(t, "PNGDATA", string(res.Assets[0].Content))
	assert.Equal(t, `module.exports = "http://localhost:3030/assets/`+name+"\";\n", string(res.Code))

	again, err := runOne(t, r, core.TransformSpec{Transform: "asset"}, in)
	require.NoError(t, err)
	assert.Equal(t, name, again.Assets[0].Name)

	in.Source = []byte("OTHER")
	changed, err := runOne(t, r, core.TransformSpec{Transform: "asset"}, in)
	require.NoError(t, err)
	assert.NotEqual(t, name, changed.Assets[0].Name)
}

func TestHot(t *testing.T) {
	r := NewRegistry(Env{})
	res, err := runOne(t, r, core.TransformSpec{Transform: "hot"}, Input{
		Path:   "/app/a.js",
		Source: []byte("module.exports = 1;"),
	})
	require.NoError(t, err)
	assert.Equal(t, "module.exports = 1;"+hotStanza, string(res.Code))

	res, err = runOne(t, r, core.TransformSpec{Transform: "hot"}, Input{
		Path:   "/app/Main.elm",
		Source: []byte("module Main exposing (..)"),
	})
	require.NoError(t, err)
	assert.Equal(t, "module Main exposing (..)", string(res.Code))
}

func TestStarlarkTransform(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "elm.star"), []byte(`
def transform(source, path, options):
    if "syntax error" in source:
        fail("I ran into something unexpected")
    return {
        "code": options["global"] + " = " + repr(source) + ";",
        "kind": "js",
        "diagnostics": ["unused import"],
    }
`), 0o600))

	r := NewRegistry(Env{Root: root, Logger: testutil.NewTestLogger(t)})
	spec := core.TransformSpec{Transform: "starlark", Options: map[string]any{
		"script":  "elm.star",
		"options": map[string]any{"global": "Elm"},
	}}

	res, err := runOne(t, r, spec, Input{Path: "/app/Main.elm", Source: []byte("main")})
	require.NoError(t, err)
	assert.Equal(t, `Elm = "main";`, string(res.Code))
	assert.Equal(t, core.KindJS, res.Kind)
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, core.SeverityWarning, res.Diagnostics[0].Severity)

	_, err = runOne(t, r, spec, Input{Path: "/app/Main.elm", Source: []byte("syntax error")})
	var cerr *ChainError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "starlark", cerr.Transform)
	assert.Equal(t, "I ran into something unexpected", cerr.Diagnostics[0].Message)
}

func TestStarlarkTransform_BadResult(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "t.star"), []byte(`
def transform(source, path, options):
    return 42
`), 0o600))

	r := NewRegistry(Env{Root: root})
	_, err := runOne(t, r, core.TransformSpec{Transform: "starlark", Options: map[string]any{"script": "t.star"}},
		Input{Path: "/app/a.txt"})
	var cerr *ChainError
	require.True(t, errors.As(err, &cerr))
	assert.Contains(t, cerr.Diagnostics[0].Message, "want string or dict")
}
