package devserver

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapbundle/internal/bundle"
	"github.com/leapstack-labs/leapbundle/internal/engine"
	"github.com/leapstack-labs/leapbundle/internal/testutil"
	"github.com/leapstack-labs/leapbundle/pkg/core"
)

func TestSession_EngineRebuildFallsBackOnError(t *testing.T) {
	root := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(root, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
		return path
	}
	write("index.js", `module.exports = require("./data.json");`)
	data := write("data.json", `{"a": 1}`)

	logger := testutil.NewTestLogger(t)
	eng, err := engine.New(engine.Config{
		Root:   root,
		Entry:  "index.js",
		Rules:  []core.Rule{{Test: `\.json$`, Use: []core.TransformSpec{{Transform: "json"}}}},
		Logger: logger,
	})
	require.NoError(t, err)
	emitter := bundle.NewEmitter(bundle.Config{PublicPath: "/", Logger: logger})

	s, results, _ := startSession(t, eng, emitter, SessionConfig{Debounce: -1, Logger: logger})
	first := s.Artifact()
	require.NotNil(t, first)
	sub := s.Subscribe()
	defer s.Unsubscribe(sub)

	write("data.json", `{"a": `)
	s.Notify(data)
	res := waitResult(t, results)
	require.Error(t, res.Err)

	msg := receive(t, sub)
	require.Equal(t, MessageBuildError, msg.Type)
	require.NotEmpty(t, msg.Diagnostics)
	assert.Equal(t, "json", msg.Diagnostics[0].Source)
	assert.Equal(t, first.Hash, s.Artifact().Hash)

	write("data.json", `{"a": 2}`)
	s.Notify(data)
	res = waitResult(t, results)
	require.NoError(t, res.Err)

	update := receive(t, sub)
	require.Equal(t, MessageModuleUpdate, update.Type)
	assert.Equal(t, "data.json", update.Path)
	assert.Contains(t, update.Content, `{\"a\":2}`)
	assert.Equal(t, MessageBuildOK, receive(t, sub).Type)
	assert.NotEqual(t, first.Hash, s.Artifact().Hash)
}

// countingEngine counts rebuilds of a real engine.
type countingEngine struct {
	*engine.Engine
	rebuilds atomic.Int32
}

func (c *countingEngine) Rebuild(ctx context.Context, changed []string) (*engine.Update, error) {
	c.rebuilds.Add(1)
	return c.Engine.Rebuild(ctx, changed)
}

type liveProject struct {
	t    *testing.T
	root string
	eng  *countingEngine
	emit *bundle.Emitter
}

func newLiveProject(t *testing.T, files map[string]string) *liveProject {
	t.Helper()
	p := &liveProject{t: t, root: t.TempDir()}
	for name, content := range files {
		p.write(name, content)
	}
	logger := testutil.NewTestLogger(t)
	eng, err := engine.New(engine.Config{
		Root:   p.root,
		Entry:  "index.js",
		Rules:  []core.Rule{{Test: `\.json$`, Use: []core.TransformSpec{{Transform: "json"}}}},
		Logger: logger,
	})
	require.NoError(t, err)
	p.eng = &countingEngine{Engine: eng}
	p.emit = bundle.NewEmitter(bundle.Config{PublicPath: "/", Logger: logger})
	return p
}

func (p *liveProject) write(name, content string) string {
	p.t.Helper()
	path := filepath.Join(p.root, filepath.FromSlash(name))
	require.NoError(p.t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(p.t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// serve runs a dev server watching the project until the test ends.
func (p *liveProject) serve() *Server {
	p.t.Helper()
	s := New(Config{
		Host:       "127.0.0.1",
		Port:       0,
		Debounce:   20 * time.Millisecond,
		WatchRoots: []string{p.root},
		Logger:     testutil.NewTestLogger(p.t),
	}, p.eng, p.emit)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Serve(ctx) }()
	p.t.Cleanup(func() {
		cancel()
		<-errc
	})

	select {
	case <-s.Ready():
	case <-time.After(5 * time.Second):
		p.t.Fatal("server did not become ready")
	}
	// Give the watcher time to add the initial directories.
	time.Sleep(200 * time.Millisecond)
	return s
}

func recordCode(s *Session, id string) string {
	art := s.Artifact()
	if art == nil {
		return ""
	}
	rec, ok := art.Records[id]
	if !ok {
		return ""
	}
	return rec.Code
}

func TestSession_CoalescesWritesToOneFile(t *testing.T) {
	p := newLiveProject(t, map[string]string{
		"index.js":  `module.exports = require("./data.json");`,
		"data.json": `{"v": 0}`,
	})
	s, results, _ := startSession(t, p.eng, p.emit, SessionConfig{Debounce: 100 * time.Millisecond})

	for _, content := range []string{`{"v": 1}`, `{"v": 2}`, `{"v": 3}`} {
		s.Notify(p.write("data.json", content))
	}

	res := waitResult(t, results)
	require.NoError(t, res.Err)
	assert.Equal(t, []string{filepath.Join(p.root, "data.json")}, res.Paths)

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(1), p.eng.rebuilds.Load())
	assert.Contains(t, recordCode(s, "data.json"), `{"v":3}`)
}

func TestServe_RebuildsWhenWatchedFileChanges(t *testing.T) {
	p := newLiveProject(t, map[string]string{
		"index.js":  `module.exports = require("./data.json");`,
		"data.json": `{"v": 1}`,
	})
	s := p.serve()
	require.Contains(t, recordCode(s.Session(), "data.json"), `{"v":1}`)

	p.write("data.json", `{"v": 2}`)

	require.Eventually(t, func() bool {
		return strings.Contains(recordCode(s.Session(), "data.json"), `{"v":2}`)
	}, 5*time.Second, 20*time.Millisecond)
}

func TestServe_WatchesCreatedDirectories(t *testing.T) {
	p := newLiveProject(t, map[string]string{
		"index.js": `module.exports = require("./lib/x.js");`,
	})
	s := p.serve()
	require.Nil(t, s.Session().Artifact())
	require.NotNil(t, s.Session().Failure())

	require.NoError(t, os.Mkdir(filepath.Join(p.root, "lib"), 0o750))
	time.Sleep(300 * time.Millisecond)
	p.write("lib/x.js", `module.exports = "x";`)

	require.Eventually(t, func() bool {
		return s.Session().Artifact() != nil && s.Session().Failure() == nil
	}, 5*time.Second, 20*time.Millisecond)
	assert.Contains(t, recordCode(s.Session(), "lib/x.js"), `"x"`)
}

func TestServe_WatchesFilesInCreatedTree(t *testing.T) {
	p := newLiveProject(t, map[string]string{
		"index.js": `module.exports = require("./lib/deep/x.js");`,
	})
	s := p.serve()
	require.Nil(t, s.Session().Artifact())

	// Created in one go, before any watch on lib can exist.
	staging := filepath.Join(t.TempDir(), "lib")
	require.NoError(t, os.MkdirAll(filepath.Join(staging, "deep"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(staging, "deep", "x.js"), []byte(`module.exports = 1;`), 0o600))
	require.NoError(t, os.Rename(staging, filepath.Join(p.root, "lib")))

	require.Eventually(t, func() bool {
		return s.Session().Artifact() != nil
	}, 5*time.Second, 20*time.Millisecond)
}
