package bootstrap

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/leapstack-labs/leapbundle/internal/testutil"
)

const hostDoc = `<!DOCTYPE html><html><head><title>app</title></head><body><div id="app"></div></body></html>`

type fakeRuntime struct {
	calls int
	mount *html.Node
	flags Flags
	err   error
	panic any
}

func (f *fakeRuntime) Init(mount *html.Node, flags Flags) error {
	f.calls++
	f.mount = mount
	f.flags = flags
	if f.panic != nil {
		panic(f.panic)
	}
	return f.err
}

func parse(t *testing.T, src string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(src))
	require.NoError(t, err)
	return doc
}

func TestRun_PassesFlagsVerbatim(t *testing.T) {
	rt := &fakeRuntime{}
	flags := Flags{"serverHost": "http://api.wordcloud.io"}

	res := Run(parse(t, hostDoc), "app", rt, flags, testutil.NewTestLogger(t))

	require.True(t, res.OK())
	assert.Equal(t, 1, rt.calls)
	assert.Equal(t, flags, rt.flags)
	assert.Equal(t, "div", rt.mount.Data)
	assert.Same(t, rt.mount, res.Mount)
}

func TestRun_MissingMountNeverInits(t *testing.T) {
	rt := &fakeRuntime{}

	res := Run(parse(t, `<html><body><div id="other"></div></body></html>`), "app", rt, Flags{}, testutil.NewTestLogger(t))
	assert.Nil(t, Run(parse(t, hostDoc), "app", &fakeRuntime{}, nil, nil).Err, "a nil logger is allowed")

	assert.ErrorIs(t, res.Err, ErrMountNotFound)
	assert.Zero(t, rt.calls)
	assert.Nil(t, res.Mount)
}

func TestRun_InitErrorIsCaught(t *testing.T) {
	rt := &fakeRuntime{err: errors.New("bad flags")}
	logger, logs := testutil.NewCaptureLogger(t)

	res := Run(parse(t, hostDoc), "app", rt, nil, logger)

	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "bad flags")
	assert.False(t, res.Panicked)
	assert.Contains(t, logs.String(), "bootstrap failed")
	assert.Contains(t, logs.String(), "mount_id=app")
}

func TestRun_InitPanicIsCaught(t *testing.T) {
	rt := &fakeRuntime{panic: "runtime exploded"}
	logger, logs := testutil.NewCaptureLogger(t)

	var res Result
	require.NotPanics(t, func() {
		res = Run(parse(t, hostDoc), "app", rt, nil, logger)
	})
	assert.Contains(t, logs.String(), "level=ERROR")
	assert.True(t, res.Panicked)
	assert.Contains(t, res.Err.Error(), "runtime exploded")
	assert.NotNil(t, res.Mount)
}

func TestDocument_ScriptRuntime(t *testing.T) {
	rt := &ScriptRuntime{
		Global:  "Elm.App",
		Scripts: []string{"/vendor.index.js", "/index.js"},
		Client:  "/__leapbundle/client.js",
	}

	out, res := Document([]byte(hostDoc), "app", rt, Flags{"serverHost": "http://api.wordcloud.io"}, nil)
	require.True(t, res.OK())

	s := string(out)
	flagsAt := strings.Index(s, `window.__LEAPBUNDLE_FLAGS__ = {"serverHost":"http://api.wordcloud.io"};`)
	vendorAt := strings.Index(s, `<script src="/vendor.index.js"></script>`)
	mainAt := strings.Index(s, `<script src="/index.js"></script>`)
	clientAt := strings.Index(s, `<script src="/__leapbundle/client.js"></script>`)
	initAt := strings.Index(s, `Elm.App.init({node: document.getElementById("app"), flags: window.__LEAPBUNDLE_FLAGS__});`)

	for _, at := range []int{flagsAt, vendorAt, mainAt, clientAt, initAt} {
		require.GreaterOrEqual(t, at, 0, s)
	}
	assert.Less(t, flagsAt, vendorAt)
	assert.Less(t, vendorAt, mainAt)
	assert.Less(t, mainAt, clientAt)
	assert.Less(t, clientAt, initAt)
	assert.Contains(t, s, `<div id="app"></div>`)
	assert.Contains(t, s, `window.addEventListener("load", function () { try { Elm.App.init(`)
	assert.Contains(t, s, `} catch (e) { console.log(e); } });</script>`)
}

func TestDocument_FailureServesOriginal(t *testing.T) {
	src := []byte(`<html><body><main></main></body></html>`)
	out, res := Document(src, "app", &ScriptRuntime{Global: "Elm.App"}, nil, nil)

	assert.ErrorIs(t, res.Err, ErrMountNotFound)
	assert.Equal(t, src, out)

	out, res = Document([]byte(hostDoc), "app", &ScriptRuntime{Global: "alert(1)//"}, nil, nil)
	require.Error(t, res.Err)
	assert.Equal(t, hostDoc, string(out))
}
