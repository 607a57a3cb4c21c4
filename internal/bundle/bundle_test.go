package bundle

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapbundle/internal/graph"
	"github.com/leapstack-labs/leapbundle/pkg/core"
)

type mod struct {
	id    string
	code  string
	deps  map[string]string // specifier -> id
	order []string          // specifier order
}

// fixture builds a graph rooted at /app from modules given in insertion order.
func fixture(t *testing.T, mods []mod) *graph.Graph {
	t.Helper()
	path := func(id string) string { return "/app/" + id }

	g := graph.New(path(mods[0].id))
	for _, m := range mods {
		cm := &core.Module{Path: path(m.id), ID: m.id, Code: []byte(m.code), Kind: core.KindJS, Status: core.ModuleBuilt}
		for _, spec := range m.order {
			cm.Specifiers = append(cm.Specifiers, spec)
			cm.Deps = append(cm.Deps, path(m.deps[spec]))
		}
		g.Add(cm)
	}
	for _, m := range mods {
		cm, _ := g.Get(path(m.id))
		require.NoError(t, g.SetDeps(cm.Path, cm.Deps))
	}
	return g
}

func sample() []mod {
	return []mod{
		{id: "index.js", code: `var a = require("./a"); require("lodash");`,
			deps: map[string]string{"./a": "a.js", "lodash": "node_modules/lodash/index.js"}, order: []string{"./a", "lodash"}},
		{id: "a.js", code: `module.exports = require("./index");`,
			deps: map[string]string{"./index": "index.js"}, order: []string{"./index"}},
		{id: "node_modules/lodash/index.js", code: `module.exports = {};`},
	}
}

func TestRender_Deterministic(t *testing.T) {
	e := NewEmitter(Config{PublicPath: "/"})

	first, err := e.Render(fixture(t, sample()))
	require.NoError(t, err)
	again, err := e.Render(fixture(t, sample()))
	require.NoError(t, err)

	reversed := sample()
	reversed[1], reversed[2] = reversed[2], reversed[1]
	reordered, err := e.Render(fixture(t, reversed))
	require.NoError(t, err)

	require.Len(t, first.Files, 1)
	assert.Equal(t, first.Files[0].Content, again.Files[0].Content)
	assert.Equal(t, first.Files[0].Content, reordered.Files[0].Content)
	assert.Equal(t, first.Hash, reordered.Hash)
	assert.Equal(t, "index.js", first.Entry)
}

func TestRender_Format(t *testing.T) {
	a, err := NewEmitter(Config{}).Render(fixture(t, sample()))
	require.NoError(t, err)

	content := string(a.Files[0].Content)
	assert.True(t, strings.HasPrefix(content, string(runtimeJS)))
	assert.True(t, strings.HasSuffix(content, "__leapbundle.start(\"index.js\");\n"))
	assert.Equal(t, 1, strings.Count(content, "\n"+registerPrefix))
}

func TestRender_RoundTrip(t *testing.T) {
	a, err := NewEmitter(Config{}).Render(fixture(t, sample()))
	require.NoError(t, err)

	m, err := Parse(a.Files[0].Content)
	require.NoError(t, err)
	assert.Equal(t, "index.js", m.Entry)
	assert.Len(t, m.Modules, 3)

	rec, err := m.Require("index.js", "./a")
	require.NoError(t, err)
	assert.Equal(t, "a.js", rec.ID)
	assert.Equal(t, `module.exports = require("./index");`, rec.Code)

	back, err := m.Require("a.js", "./index")
	require.NoError(t, err)
	assert.Equal(t, "index.js", back.ID)

	_, err = m.Require("a.js", "./nope")
	require.Error(t, err)
}

func TestRender_Split(t *testing.T) {
	e := NewEmitter(Config{Filename: "app.js", Chunking: ChunkingSplit, ModuleRoots: []string{"/app/node_modules"}})
	a, err := e.Render(fixture(t, sample()))
	require.NoError(t, err)

	require.Len(t, a.Files, 2)
	assert.Equal(t, "vendor.app.js", a.Files[0].Name)
	assert.Equal(t, "app.js", a.Files[1].Name)
	assert.Contains(t, string(a.Files[0].Content), "node_modules/lodash/index.js")
	assert.NotContains(t, string(a.Files[1].Content), `"node_modules/lodash/index.js":{`)
	assert.NotContains(t, string(a.Files[0].Content), startPrefix)

	m, err := Parse(a.Files[0].Content, a.Files[1].Content)
	require.NoError(t, err)
	rec, err := m.Require("index.js", "lodash")
	require.NoError(t, err)
	assert.Equal(t, "module.exports = {};", rec.Code)
}

func TestRender_RejectsUnbuiltModules(t *testing.T) {
	g := fixture(t, sample())
	m, _ := g.Get("/app/a.js")
	failed := *m
	failed.Status = core.ModuleFailed
	g.Add(&failed)

	_, err := NewEmitter(Config{}).Render(g)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a.js is failed")
}

func TestRender_Assets(t *testing.T) {
	mods := sample()
	g := fixture(t, mods)
	m, _ := g.Get("/app/a.js")
	withAsset := *m
	withAsset.Assets = []core.Asset{{Name: "logo.1234abcd.png", Content: []byte("PNG")}}
	g.Add(&withAsset)

	a, err := NewEmitter(Config{}).Render(g)
	require.NoError(t, err)
	as, ok := a.Asset("logo.1234abcd.png")
	require.True(t, ok)
	assert.Equal(t, "PNG", string(as.Content))
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte("console.log(1);\n"))
	require.Error(t, err)

	_, err = Parse([]byte(registerPrefix + "{oops" + callSuffix + "\n"))
	require.Error(t, err)

	_, err = Parse([]byte(registerPrefix + "{}" + callSuffix + "\n" + startPrefix + `"x.js"` + callSuffix + "\n"))
	require.Error(t, err)
}

func TestEmit_WritesAtomicallyWithGzip(t *testing.T) {
	out := filepath.Join(t.TempDir(), "bundle")
	g := fixture(t, sample())
	m, _ := g.Get("/app/a.js")
	withAsset := *m
	withAsset.Assets = []core.Asset{{Name: "logo.png", Content: []byte("PNG")}}
	g.Add(&withAsset)

	e := NewEmitter(Config{OutputPath: out, Filename: "index.js", Gzip: true})
	a, err := e.Emit(g)
	require.NoError(t, err)

	written, err := os.ReadFile(filepath.Join(out, "index.js"))
	require.NoError(t, err)
	assert.Equal(t, a.Files[0].Content, written)

	compressed, err := os.ReadFile(filepath.Join(out, "index.js.gz"))
	require.NoError(t, err)
	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	require.NoError(t, err)
	plain, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, written, plain)

	asset, err := os.ReadFile(filepath.Join(out, AssetDir, "logo.png"))
	require.NoError(t, err)
	assert.Equal(t, "PNG", string(asset))

	// Emitting an unchanged graph again gives byte-identical output.
	_, err = e.Emit(g)
	require.NoError(t, err)
	again, err := os.ReadFile(filepath.Join(out, "index.js"))
	require.NoError(t, err)
	assert.Equal(t, written, again)

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	for _, entry := range entries {
		assert.False(t, strings.HasSuffix(entry.Name(), ".tmp"), "leftover temp file %s", entry.Name())
	}
}

func TestWrite_RequiresOutputPath(t *testing.T) {
	a, err := NewEmitter(Config{}).Render(fixture(t, sample()))
	require.NoError(t, err)
	require.Error(t, NewEmitter(Config{}).Write(a))
}
