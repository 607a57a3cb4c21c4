// Package scanner extracts module references from transformed code.
//
// JS and CSS are scanned by running an esbuild build over the code with a
// resolver plugin that marks every import as external; the build's
// metafile then lists the imports in source order.
package scanner

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/leapstack-labs/leapbundle/pkg/core"
)

const stdinName = "<stdin>"

// metafile mirrors the parts of esbuild's metafile the scanner reads.
type metafile struct {
	Inputs map[string]metafileInput `json:"inputs"`
}

type metafileInput struct {
	Imports []metafileImport `json:"imports"`
}

type metafileImport struct {
	Path     string `json:"path"`
	Kind     string `json:"kind"`
	External bool   `json:"external,omitempty"`
	Original string `json:"original,omitempty"`
}

// referenceKinds are the esbuild import kinds that become graph edges.
// url() tokens in CSS are left to the browser.
var referenceKinds = map[string]bool{
	"import-statement": true,
	"require-call":     true,
	"dynamic-import":   true,
	"require-resolve":  true,
	"import-rule":      true,
}

var externalPlugin = api.Plugin{
	Name: "leapbundle-external",
	Setup: func(build api.PluginBuild) {
		build.OnResolve(api.OnResolveOptions{Filter: ".*"}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
			return api.OnResolveResult{Path: args.Path, External: true}, nil
		})
	},
}

// Scan returns the ordered, de-duplicated specifiers referenced by code.
// Kinds other than js and css have no references.
func Scan(kind, path string, code []byte) ([]string, []core.Diagnostic) {
	var loader api.Loader
	switch kind {
	case core.KindJS:
		loader = api.LoaderJS
	case core.KindCSS:
		loader = api.LoaderCSS
	default:
		return nil, nil
	}

	result := api.Build(api.BuildOptions{
		Stdin: &api.StdinOptions{
			Contents:   string(code),
			Sourcefile: path,
			ResolveDir: filepath.Dir(path),
			Loader:     loader,
		},
		Bundle:   true,
		Write:    false,
		Metafile: true,
		LogLevel: api.LogLevelSilent,
		Platform: api.PlatformNeutral,
		Plugins:  []api.Plugin{externalPlugin},
	})

	if len(result.Errors) > 0 {
		diags := make([]core.Diagnostic, 0, len(result.Errors))
		for _, m := range result.Errors {
			d := core.Diagnostic{Severity: core.SeverityError, Message: m.Text, Path: path, Source: "scanner"}
			if m.Location != nil {
				d.Line = m.Location.Line
				d.Column = m.Location.Column
			}
			diags = append(diags, d)
		}
		return nil, diags
	}

	specs, err := parseMetafile(result.Metafile, path)
	if err != nil {
		return nil, []core.Diagnostic{{
			Severity: core.SeverityError,
			Message:  err.Error(),
			Path:     path,
			Source:   "scanner",
		}}
	}
	return specs, nil
}

func parseMetafile(raw, path string) ([]string, error) {
	var meta metafile
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil, fmt.Errorf("failed to parse metafile: %w", err)
	}

	input, ok := meta.Inputs[stdinName]
	if !ok {
		// esbuild keys stdin by its Sourcefile when one is given. External
		// imports are not inputs, so the scanned code is the only entry.
		for name, in := range meta.Inputs {
			if name == path || strings.HasSuffix(path, name) || len(meta.Inputs) == 1 {
				input = in
				ok = true
				break
			}
		}
	}
	if !ok {
		return nil, nil
	}

	seen := make(map[string]bool, len(input.Imports))
	var specs []string
	for _, imp := range input.Imports {
		if !referenceKinds[imp.Kind] {
			continue
		}
		spec := imp.Original
		if spec == "" {
			spec = imp.Path
		}
		if spec == "" || IsURL(spec) || seen[spec] {
			continue
		}
		seen[spec] = true
		specs = append(specs, spec)
	}
	return specs, nil
}

// IsURL reports whether a specifier points outside the filesystem.
func IsURL(spec string) bool {
	for _, prefix := range []string{"data:", "http:", "https:", "//"} {
		if strings.HasPrefix(spec, prefix) {
			return true
		}
	}
	return false
}
