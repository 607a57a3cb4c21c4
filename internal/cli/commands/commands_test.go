package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapbundle/internal/cli/config"
	"github.com/leapstack-labs/leapbundle/internal/cli/testutil"
	"github.com/leapstack-labs/leapbundle/internal/engine"
	"github.com/leapstack-labs/leapbundle/pkg/core"
)

// loadProject loads the config of a test project and returns it for tweaking.
func loadProject(t *testing.T, root string) *config.Config {
	t.Helper()
	config.ResetConfig()
	t.Cleanup(config.ResetConfig)

	cfg, err := config.LoadConfig(filepath.Join(root, "leapbundle.yaml"), nil)
	require.NoError(t, err)
	return cfg
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestCommandMetadata(t *testing.T) {
	build := NewBuildCommand()
	assert.Equal(t, "build", build.Use)
	assert.NotEmpty(t, build.Example)

	serve := NewServeCommand()
	assert.Equal(t, "serve", serve.Use)
	assert.Equal(t, []string{"dev"}, serve.Aliases)

	graph := NewGraphCommand()
	assert.Equal(t, "graph", graph.Use)

	builds := NewBuildsCommand()
	assert.NotNil(t, builds.Flags().Lookup("limit"), "--limit flag should exist")

	cache := NewCacheCommand()
	names := make([]string, 0, len(cache.Commands()))
	for _, c := range cache.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"clear", "stats"}, names)
}

func TestBuildCommand(t *testing.T) {
	root := testutil.SetupTestProject(t)
	loadProject(t, root)

	out, _, err := execute(t, NewBuildCommand())
	require.NoError(t, err)

	testutil.AssertNoANSI(t, out)
	testutil.AssertValidMarkdown(t, out)
	assert.Contains(t, out, "# Build")
	assert.Contains(t, out, "index.js")
	assert.Contains(t, out, "- **Modules:** 3")

	content, err := os.ReadFile(filepath.Join(root, "dist", "index.js"))
	require.NoError(t, err)
	assert.Contains(t, string(content), `__leapbundle.start("index.js");`)
}

func TestBuildCommand_JSON(t *testing.T) {
	root := testutil.SetupTestProject(t)
	cfg := loadProject(t, root)
	cfg.OutputFormat = "json"

	out, _, err := execute(t, NewBuildCommand())
	require.NoError(t, err)

	var summary BuildSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, "index.js", summary.Entry)
	assert.Equal(t, 3, summary.Modules)
	require.Len(t, summary.Files, 1)
	assert.Equal(t, "index.js", summary.Files[0].Name)
	assert.NotEmpty(t, summary.Hash)
}

func TestBuildCommand_ModuleError(t *testing.T) {
	root := testutil.SetupTestProject(t)
	testutil.WriteFile(t, root, "data.json", "{not json")
	loadProject(t, root)

	_, errOut, err := execute(t, NewBuildCommand())
	require.Error(t, err)

	var be *engine.BuildError
	require.ErrorAs(t, err, &be)
	assert.Contains(t, err.Error(), "build failed")
	assert.Contains(t, errOut, filepath.Join(root, "data.json"))
	assert.Contains(t, errOut, "transform error")

	_, statErr := os.Stat(filepath.Join(root, "dist", "index.js"))
	assert.True(t, os.IsNotExist(statErr), "a failed build must not write an artifact")
}

func TestBuildCommand_MissingEntry(t *testing.T) {
	root := testutil.SetupTestProject(t)
	require.NoError(t, os.Remove(filepath.Join(root, "index.js")))
	loadProject(t, root)

	_, _, err := execute(t, NewBuildCommand())

	var ce *engine.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "entry", ce.Field)
}

func TestGraphCommand_JSON(t *testing.T) {
	root := testutil.SetupTestProject(t)
	cfg := loadProject(t, root)
	cfg.OutputFormat = "json"

	out, _, err := execute(t, NewGraphCommand())
	require.NoError(t, err)

	var g GraphOutput
	require.NoError(t, json.Unmarshal([]byte(out), &g))
	assert.Equal(t, "index.js", g.Entry)
	assert.Equal(t, 2, g.Edges)
	require.Len(t, g.Nodes, 3)

	byID := make(map[string]GraphNode, len(g.Nodes))
	for _, n := range g.Nodes {
		byID[n.ID] = n
	}
	assert.Equal(t, []string{"app.js"}, byID["index.js"].Deps)
	assert.Equal(t, []string{"app.js"}, byID["data.json"].Importers)
	assert.Equal(t, "built", byID["data.json"].Status)
	assert.Empty(t, g.Cycle)
}

func TestGraphCommand_Markdown(t *testing.T) {
	root := testutil.SetupTestProject(t)
	loadProject(t, root)

	out, _, err := execute(t, NewGraphCommand())
	require.NoError(t, err)

	testutil.AssertValidMarkdown(t, out)
	assert.Contains(t, out, "- app.js\n  - depends on: data.json\n  - used by: index.js\n")
	assert.Contains(t, out, "- **Total Modules:** 3")
}

func TestGraphCommand_ShowsFailedModules(t *testing.T) {
	root := testutil.SetupTestProject(t)
	testutil.WriteFile(t, root, "data.json", "{not json")
	loadProject(t, root)

	out, _, err := execute(t, NewGraphCommand())
	require.NoError(t, err)
	assert.Contains(t, out, "- data.json (failed)")
}

func TestBuildsAndCacheCommands(t *testing.T) {
	root := testutil.SetupTestProject(t)
	cfg := loadProject(t, root)

	_, _, err := execute(t, NewBuildCommand())
	require.NoError(t, err)

	cfg.OutputFormat = "json"

	out, _, err := execute(t, NewBuildsCommand(), "--limit", "5")
	require.NoError(t, err)
	var builds []BuildInfo
	require.NoError(t, json.Unmarshal([]byte(out), &builds))
	require.Len(t, builds, 1)
	assert.Equal(t, "build", builds[0].Kind)
	assert.Equal(t, "success", builds[0].Status)
	assert.Equal(t, 3, builds[0].Modules)
	assert.NotNil(t, builds[0].FinishedAt)

	out, _, err = execute(t, NewCacheCommand(), "stats")
	require.NoError(t, err)
	var stats map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.InDelta(t, 3, stats["entries"], 0)

	out, _, err = execute(t, NewCacheCommand(), "clear")
	require.NoError(t, err)
	assert.JSONEq(t, `{"removed": 3}`, out)
}

func TestBuildsCommand_Markdown(t *testing.T) {
	root := testutil.SetupTestProject(t)
	loadProject(t, root)

	out, _, err := execute(t, NewBuildsCommand())
	require.NoError(t, err)
	assert.Contains(t, out, "No builds recorded yet")

	_, _, err = execute(t, NewBuildCommand())
	require.NoError(t, err)

	out, _, err = execute(t, NewBuildsCommand())
	require.NoError(t, err)
	assert.Contains(t, out, "# Builds (1)")
	assert.Contains(t, out, "| success |")
}

func TestCacheCommands_Disabled(t *testing.T) {
	root := testutil.SetupTestProject(t)
	cfg := loadProject(t, root)
	cfg.Cache.Enabled = false

	_, _, err := execute(t, NewBuildsCommand())
	require.ErrorIs(t, err, errCacheDisabled)

	_, _, err = execute(t, NewCacheCommand(), "clear")
	require.ErrorIs(t, err, errCacheDisabled)

	// Builds still work without a cache.
	_, _, err = execute(t, NewBuildCommand())
	require.NoError(t, err)
	_, statErr := os.Stat(cfg.Cache.Path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestServerConfig(t *testing.T) {
	root := testutil.SetupTestProject(t)
	testutil.WriteFile(t, root, "leapbundle.yaml", testutil.ProjectConfig+`
dev_server: {host: 0.0.0.0, port: 4000, public_path: "http://localhost:4000/static/", hot_only: true, debounce: 50ms}
bootstrap: {global: Elm.App, flags: {serverHost: "http://api.test"}}
`)
	cfg := loadProject(t, root)

	sc := serverConfig(&CommandContext{Cfg: cfg}, nil)
	assert.Equal(t, "0.0.0.0", sc.Host)
	assert.Equal(t, 4000, sc.Port)
	assert.Equal(t, "http://localhost:4000/static/", sc.PublicPath)
	assert.True(t, sc.HotOnly)
	assert.Equal(t, "Elm.App", sc.Global)
	assert.Equal(t, "http://api.test", sc.Flags["serverHost"])
	assert.Equal(t, "app", sc.MountID)
	assert.Equal(t, []string{root}, sc.WatchRoots)
}

func TestReportBuildError(t *testing.T) {
	tr := testutil.NewTestRenderer("text", false)
	err := &engine.BuildError{Errors: []*engine.ModuleError{
		{Path: "/app/main.js", Kind: engine.KindResolution, Err: os.ErrNotExist},
	}}

	reportBuildError(tr.Renderer, nil, err)

	assert.Contains(t, tr.ErrorOutput(), "/app/main.js: resolution error: file does not exist")
	assert.Empty(t, tr.Output())
}

func TestErrorDiagnostics(t *testing.T) {
	diags := []core.Diagnostic{core.Warnf("hot", "w"), core.Errorf("json", "bad")}
	assert.Equal(t, []core.Diagnostic{core.Errorf("json", "bad")}, errorDiagnostics(diags))
}
