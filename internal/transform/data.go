package transform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/leapbundle/pkg/core"
)

// yamlTransform converts a YAML document into a CommonJS module.
type yamlTransform struct{}

func newYAML(_ Env, options map[string]any) (Transform, error) {
	if len(options) > 0 {
		return nil, fmt.Errorf("yaml takes no options")
	}
	return yamlTransform{}, nil
}

func (yamlTransform) Name() string { return "yaml" }

func (yamlTransform) Transform(_ context.Context, in *Input) (*Output, error) {
	var doc any
	if err := yaml.Unmarshal(in.Source, &doc); err != nil {
		return &Output{Diagnostics: []core.Diagnostic{core.Errorf("yaml", "invalid YAML: %v", err)}}, nil
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return &Output{Diagnostics: []core.Diagnostic{core.Errorf("yaml", "cannot represent YAML as JSON: %v", err)}}, nil
	}
	return &Output{Code: exportsOf(data), Kind: core.KindJS}, nil
}

// jsonTransform validates JSON and wraps it as a CommonJS module.
type jsonTransform struct{}

func newJSON(_ Env, options map[string]any) (Transform, error) {
	if len(options) > 0 {
		return nil, fmt.Errorf("json takes no options")
	}
	return jsonTransform{}, nil
}

func (jsonTransform) Name() string { return "json" }

func (jsonTransform) Transform(_ context.Context, in *Input) (*Output, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, in.Source); err != nil {
		return &Output{Diagnostics: []core.Diagnostic{core.Errorf("json", "invalid JSON: %v", err)}}, nil
	}
	return &Output{Code: exportsOf(buf.Bytes()), Kind: core.KindJS}, nil
}

// rawTransform exports the source text as a string.
type rawTransform struct{}

func newRaw(_ Env, options map[string]any) (Transform, error) {
	if len(options) > 0 {
		return nil, fmt.Errorf("raw takes no options")
	}
	return rawTransform{}, nil
}

func (rawTransform) Name() string { return "raw" }

func (rawTransform) Transform(_ context.Context, in *Input) (*Output, error) {
	data, err := json.Marshal(string(in.Source))
	if err != nil {
		return nil, err
	}
	return &Output{Code: exportsOf(data), Kind: core.KindJS}, nil
}

func exportsOf(value []byte) []byte {
	out := make([]byte, 0, len(value)+20)
	out = append(out, "module.exports = "...)
	out = append(out, value...)
	out = append(out, ";\n"...)
	return out
}
