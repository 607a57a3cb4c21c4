// Package resolve maps import specifiers to files on disk.
package resolve

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultExtensions are tried when a specifier has no matching file as written.
var DefaultExtensions = []string{".js", ".json", ".css"}

// Error reports a specifier that matched no file.
type Error struct {
	// From is the referencing module path.
	From      string
	Specifier string
	// Tried lists every candidate path checked, in order.
	Tried []string
}

func (e *Error) Error() string {
	return fmt.Sprintf("cannot resolve %q from %s", e.Specifier, e.From)
}

// Resolver resolves specifiers relative to the referencing module or
// through the configured module roots.
type Resolver struct {
	roots      []string
	extensions []string
}

// New creates a resolver. Roots are searched in order for bare specifiers;
// relative roots are resolved against projectRoot.
func New(projectRoot string, roots, extensions []string) *Resolver {
	abs := make([]string, 0, len(roots))
	for _, r := range roots {
		if !filepath.IsAbs(r) {
			r = filepath.Join(projectRoot, r)
		}
		abs = append(abs, filepath.Clean(r))
	}
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	return &Resolver{roots: abs, extensions: extensions}
}

// Roots returns the absolute module roots.
func (r *Resolver) Roots() []string { return r.roots }

// IsRelative reports whether a specifier is resolved against its importer.
func IsRelative(spec string) bool {
	return strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../") ||
		spec == "." || spec == ".." || filepath.IsAbs(spec)
}

// Resolve returns the absolute path of the file spec refers to from the
// module at from.
func (r *Resolver) Resolve(from, spec string) (string, error) {
	var tried []string

	if IsRelative(spec) {
		base := spec
		if !filepath.IsAbs(base) {
			base = filepath.Join(filepath.Dir(from), filepath.FromSlash(spec))
		}
		if p, ok := r.candidates(base, &tried); ok {
			return p, nil
		}
		return "", &Error{From: from, Specifier: spec, Tried: tried}
	}

	for _, root := range r.roots {
		if p, ok := r.candidates(filepath.Join(root, filepath.FromSlash(spec)), &tried); ok {
			return p, nil
		}
	}
	return "", &Error{From: from, Specifier: spec, Tried: tried}
}

func (r *Resolver) candidates(base string, tried *[]string) (string, bool) {
	if isFile(base, tried) {
		return base, true
	}
	for _, ext := range r.extensions {
		if isFile(base+ext, tried) {
			return base + ext, true
		}
	}

	if main := packageMain(base); main != "" {
		target := filepath.Join(base, filepath.FromSlash(main))
		if isFile(target, tried) {
			return target, true
		}
		for _, ext := range r.extensions {
			if isFile(target+ext, tried) {
				return target + ext, true
			}
		}
	}

	for _, ext := range r.extensions {
		index := filepath.Join(base, "index"+ext)
		if isFile(index, tried) {
			return index, true
		}
	}
	return "", false
}

func isFile(path string, tried *[]string) bool {
	*tried = append(*tried, path)
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// packageMain reads the main field of dir/package.json, if present.
func packageMain(dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, "package.json")) //nolint:gosec // G304: path derived from module roots
	if err != nil {
		return ""
	}
	var pkg struct {
		Main string `json:"main"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return ""
	}
	return pkg.Main
}
