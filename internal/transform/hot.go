package transform

import (
	"bytes"
	"context"
	"fmt"

	"github.com/leapstack-labs/leapbundle/pkg/core"
)

const hotStanza = "\nif (module.hot) { module.hot.accept(); }\n"

// hotTransform marks a JS module as able to replace itself in place.
type hotTransform struct{}

func newHot(_ Env, options map[string]any) (Transform, error) {
	if len(options) > 0 {
		return nil, fmt.Errorf("hot takes no options")
	}
	return hotTransform{}, nil
}

func (hotTransform) Name() string { return "hot" }

func (hotTransform) Transform(_ context.Context, in *Input) (*Output, error) {
	if in.Kind != core.KindJS {
		// Only JS can carry the stanza; put hot after the compiling step.
		return &Output{Code: in.Source}, nil
	}
	if bytes.Contains(in.Source, []byte(hotStanza)) {
		return &Output{Code: in.Source}, nil
	}
	code := make([]byte, 0, len(in.Source)+len(hotStanza))
	code = append(code, in.Source...)
	code = append(code, hotStanza...)
	return &Output{Code: code}, nil
}
