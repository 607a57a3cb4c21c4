package transform

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapbundle/pkg/core"
)

// funcTransform adapts a function for tests.
type funcTransform struct {
	name string
	fn   func(in *Input) (*Output, error)
}

func (f funcTransform) Name() string { return f.name }

func (f funcTransform) Transform(_ context.Context, in *Input) (*Output, error) {
	return f.fn(in)
}

func step(name string, fn func(in *Input) (*Output, error)) Step {
	return Step{Transform: funcTransform{name: name, fn: fn}, Key: name}
}

func appendStep(suffix string) Step {
	return step("append"+suffix, func(in *Input) (*Output, error) {
		return &Output{Code: append(append([]byte{}, in.Source...), suffix...)}, nil
	})
}

func upperStep() Step {
	return step("upper", func(in *Input) (*Output, error) {
		out := make([]byte, len(in.Source))
		for i, c := range in.Source {
			if c >= 'a' && c <= 'z' {
				c -= 'a' - 'A'
			}
			out[i] = c
		}
		return &Output{Code: out}, nil
	})
}

func TestRun_FoldOrder(t *testing.T) {
	in := Input{Path: "/app/a.txt", Source: []byte("x")}

	first, err := Run(context.Background(), in, []Step{appendStep("y"), upperStep()})
	require.NoError(t, err)
	second, err := Run(context.Background(), in, []Step{upperStep(), appendStep("y")})
	require.NoError(t, err)

	assert.Equal(t, "XY", string(first.Code))
	assert.Equal(t, "Xy", string(second.Code))
}

func TestRun_EmptyChainPassesThrough(t *testing.T) {
	res, err := Run(context.Background(), Input{Path: "/app/a.css", Source: []byte("a{}")}, nil)
	require.NoError(t, err)
	assert.Equal(t, "a{}", string(res.Code))
	assert.Equal(t, core.KindCSS, res.Kind)
}

func TestRun_ErrorDiagnosticHaltsChain(t *testing.T) {
	called := false
	chain := []Step{
		step("warn", func(in *Input) (*Output, error) {
			return &Output{Code: in.Source, Diagnostics: []core.Diagnostic{core.Warnf("", "careful")}}, nil
		}),
		step("broken", func(_ *Input) (*Output, error) {
			return &Output{Diagnostics: []core.Diagnostic{core.Errorf("", "unexpected token")}}, nil
		}),
		step("never", func(in *Input) (*Output, error) {
			called = true
			return &Output{Code: in.Source}, nil
		}),
	}

	res, err := Run(context.Background(), Input{Path: "/app/a.js", Source: []byte("x")}, chain)
	assert.Nil(t, res)
	assert.False(t, called)

	var cerr *ChainError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "broken", cerr.Transform)
	assert.Equal(t, "/app/a.js", cerr.Path)
	require.Len(t, cerr.Diagnostics, 2)
	assert.Equal(t, "warn", cerr.Diagnostics[0].Source)
	assert.Equal(t, core.SeverityError, cerr.Diagnostics[1].Severity)
	assert.Contains(t, cerr.Error(), "unexpected token")
}

func TestRun_GoErrorBecomesDiagnostic(t *testing.T) {
	chain := []Step{step("explode", func(_ *Input) (*Output, error) {
		return nil, errors.New("boom")
	})}

	_, err := Run(context.Background(), Input{Path: "/app/a.js"}, chain)

	var cerr *ChainError
	require.True(t, errors.As(err, &cerr))
	require.Len(t, cerr.Diagnostics, 1)
	assert.Equal(t, "boom", cerr.Diagnostics[0].Message)
	assert.Equal(t, "explode", cerr.Diagnostics[0].Source)
}

func TestRun_WarningsAssetsAndLastMap(t *testing.T) {
	chain := []Step{
		step("a", func(in *Input) (*Output, error) {
			return &Output{
				Code:        in.Source,
				Map:         []byte("map-a"),
				Assets:      []core.Asset{{Name: "a.png"}},
				Diagnostics: []core.Diagnostic{core.Warnf("", "w1")},
			}, nil
		}),
		step("b", func(in *Input) (*Output, error) {
			return &Output{Code: in.Source, Kind: core.KindJS, Assets: []core.Asset{{Name: "b.png"}}}, nil
		}),
		step("c", func(in *Input) (*Output, error) {
			return &Output{Code: in.Source, Map: []byte("map-c"), Diagnostics: []core.Diagnostic{core.Warnf("", "w2")}}, nil
		}),
		step("d", func(in *Input) (*Output, error) {
			return &Output{Code: in.Source}, nil
		}),
	}

	res, err := Run(context.Background(), Input{Path: "/app/a.txt", Source: []byte("x")}, chain)
	require.NoError(t, err)
	assert.Equal(t, "map-c", string(res.Map))
	assert.Equal(t, core.KindJS, res.Kind)
	assert.Len(t, res.Assets, 2)
	require.Len(t, res.Diagnostics, 2)
	assert.Equal(t, "/app/a.txt", res.Diagnostics[0].Path)
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, Input{Path: "/app/a.js"}, []Step{appendStep("y")})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestKindFromPath(t *testing.T) {
	assert.Equal(t, core.KindJS, KindFromPath("/a/b.ts"))
	assert.Equal(t, core.KindJS, KindFromPath("/a/b.MJS"))
	assert.Equal(t, core.KindCSS, KindFromPath("/a/b.css"))
	assert.Equal(t, core.KindText, KindFromPath("/a/Main.elm"))
}

func TestChainKey(t *testing.T) {
	assert.Equal(t, "a|b", ChainKey([]Step{{Key: "a"}, {Key: "b"}}))
	assert.Equal(t, "", ChainKey(nil))
}
