package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapbundle/internal/cli/commands"
	"github.com/leapstack-labs/leapbundle/internal/cli/config"
	"github.com/leapstack-labs/leapbundle/internal/cli/testutil"
)

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	config.ResetConfig()
	t.Cleanup(config.ResetConfig)
	cfgFile = ""

	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestRoot_Version(t *testing.T) {
	out, _, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "leapbundle v"+Version)

	out, _, err = run(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "Built with Go and esbuild")
}

func TestRoot_Subcommands(t *testing.T) {
	cmd := NewRootCmd()
	names := make(map[string]bool)
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"build", "serve", "graph", "builds", "cache", "init", "version", "completion"} {
		assert.True(t, names[want], "missing subcommand %q", want)
	}

	serve, _, err := cmd.Find([]string{"dev"})
	require.NoError(t, err)
	assert.Equal(t, "serve", serve.Name())
}

func TestRoot_BuildWithProjectDir(t *testing.T) {
	root := testutil.SetupTestProject(t)

	out, _, err := run(t, "build", "--project-dir", root, "--format", "json", "--out-dir", filepath.Join(root, "out"), "--no-cache")
	require.NoError(t, err)

	var summary commands.BuildSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, filepath.Join(root, "out"), summary.OutputPath)
	assert.Equal(t, 3, summary.Modules)

	_, err = os.Stat(filepath.Join(root, "out", "index.js"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(root, ".leapbundle", "cache.db"))
	assert.True(t, os.IsNotExist(err), "--no-cache must not create the cache")
}

func TestRoot_EnvOverridesFile(t *testing.T) {
	root := testutil.SetupTestProject(t)
	t.Setenv("LEAPBUNDLE_OUTPUT__FILENAME", "app.js")

	_, _, err := run(t, "build", "--config", filepath.Join(root, "leapbundle.yaml"), "--format", "json")
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(root, "dist", "app.js"))
	require.NoError(t, err)
}

func TestRoot_InvalidFormat(t *testing.T) {
	root := testutil.SetupTestProject(t)

	_, _, err := run(t, "graph", "--project-dir", root, "--format", "yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --format")
}

func TestRoot_InvalidConfig(t *testing.T) {
	root := testutil.SetupTestProject(t)

	_, _, err := run(t, "build", "--project-dir", root, "--chunking", "sideways")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "output.chunking")
}

func TestRoot_VerboseLogsToStderr(t *testing.T) {
	root := testutil.SetupTestProject(t)

	_, errOut, err := run(t, "build", "--project-dir", root, "--verbose", "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, errOut, "level=DEBUG")
	assert.Contains(t, errOut, "using config file")
}

func TestCompletionCommand(t *testing.T) {
	out, _, err := run(t, "completion", "bash")
	require.NoError(t, err)
	assert.Contains(t, out, "leapbundle")

	_, _, err = run(t, "completion", "tcsh")
	require.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, false).Debug("hidden")
	NewLogger(&buf, false).Info("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}
