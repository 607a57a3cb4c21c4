// Package bundle renders a module graph into a deployable artifact and
// writes it to disk.
//
// An artifact file is the runtime loader followed by a register call whose
// argument maps module ids to {code, deps}; the main file ends with a start
// call for the entry module.
package bundle

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/leapstack-labs/leapbundle/internal/graph"
	"github.com/leapstack-labs/leapbundle/pkg/core"
)

//go:embed runtime.js
var runtimeJS []byte

const (
	registerPrefix = "__leapbundle.register("
	startPrefix    = "__leapbundle.start("
	callSuffix     = ");"
)

// Chunking modes.
const (
	ChunkingSingle = "single"
	ChunkingSplit  = "split"
)

// AssetDir is the output subdirectory holding emitted assets.
const AssetDir = "assets"

// Record is a module as stored in an artifact.
type Record struct {
	ID   string            `json:"-"`
	Code string            `json:"code"`
	Deps map[string]string `json:"deps"`
}

// File is one output file of an artifact.
type File struct {
	Name    string
	Content []byte
}

// Artifact is a rendered bundle. It is immutable once rendered.
type Artifact struct {
	// Files are in load order: vendor chunk first when split.
	Files      []File
	Assets     []core.Asset
	PublicPath string
	// Entry is the entry module id.
	Entry string
	// Hash identifies the artifact content.
	Hash string
	// Records holds every module record by id, for hot updates.
	Records map[string]*Record
}

// File returns the named output file.
func (a *Artifact) File(name string) (File, bool) {
	for _, f := range a.Files {
		if f.Name == name {
			return f, true
		}
	}
	return File{}, false
}

// Asset returns the named asset.
func (a *Artifact) Asset(name string) (core.Asset, bool) {
	for _, as := range a.Assets {
		if as.Name == name {
			return as, true
		}
	}
	return core.Asset{}, false
}

// Config holds emitter configuration.
type Config struct {
	// OutputPath is the directory artifacts are written to.
	OutputPath string
	// Filename is the main artifact file name.
	Filename   string
	PublicPath string
	// Chunking is "single" or "split".
	Chunking string
	// ModuleRoots are the absolute roots whose modules go to the vendor chunk.
	ModuleRoots []string
	// Gzip writes a .gz sibling next to every file.
	Gzip bool
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// Emitter renders and writes artifacts.
type Emitter struct {
	cfg    Config
	logger *slog.Logger
}

// NewEmitter creates an emitter.
func NewEmitter(cfg Config) *Emitter {
	if cfg.Filename == "" {
		cfg.Filename = "index.js"
	}
	if cfg.Chunking == "" {
		cfg.Chunking = ChunkingSingle
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Emitter{cfg: cfg, logger: logger}
}

// VendorName returns the vendor chunk file name.
func (e *Emitter) VendorName() string {
	return "vendor." + e.cfg.Filename
}

// Render renders the graph. Every module must be built. Output is
// byte-identical for an unchanged graph.
func (e *Emitter) Render(g *graph.Graph) (*Artifact, error) {
	entry, ok := g.Get(g.Entry())
	if !ok {
		return nil, fmt.Errorf("entry %s is not in the graph", g.Entry())
	}

	records := make(map[string]*Record, g.Len())
	main := make(map[string]*Record)
	vendor := make(map[string]*Record)
	assets := make(map[string]core.Asset)

	for _, m := range g.Modules() {
		if m.Status != core.ModuleBuilt {
			return nil, fmt.Errorf("module %s is %s", m.ID, m.Status)
		}
		rec := &Record{ID: m.ID, Code: string(m.Code), Deps: make(map[string]string, len(m.Specifiers))}
		for i, spec := range m.Specifiers {
			if i >= len(m.Deps) || m.Deps[i] == "" {
				continue
			}
			dep, ok := g.Get(m.Deps[i])
			if !ok {
				return nil, fmt.Errorf("module %s references %s outside the graph", m.ID, m.Deps[i])
			}
			rec.Deps[spec] = dep.ID
		}
		if _, dup := records[m.ID]; dup {
			return nil, fmt.Errorf("duplicate module id %s", m.ID)
		}
		records[m.ID] = rec

		if e.cfg.Chunking == ChunkingSplit && e.isVendor(m.Path) && m.Path != g.Entry() {
			vendor[m.ID] = rec
		} else {
			main[m.ID] = rec
		}
		for _, a := range m.Assets {
			assets[a.Name] = a
		}
	}

	a := &Artifact{
		PublicPath: e.cfg.PublicPath,
		Entry:      entry.ID,
		Records:    records,
	}

	if len(vendor) > 0 {
		content, err := renderFile(vendor, "")
		if err != nil {
			return nil, err
		}
		a.Files = append(a.Files, File{Name: e.VendorName(), Content: content})
	}
	content, err := renderFile(main, entry.ID)
	if err != nil {
		return nil, err
	}
	a.Files = append(a.Files, File{Name: e.cfg.Filename, Content: content})

	names := make([]string, 0, len(assets))
	for name := range assets {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		a.Assets = append(a.Assets, assets[name])
	}

	h := sha256.New()
	for _, f := range a.Files {
		h.Write(f.Content)
	}
	for _, as := range a.Assets {
		h.Write([]byte(as.Name))
		h.Write(as.Content)
	}
	a.Hash = hex.EncodeToString(h.Sum(nil))[:16]

	e.logger.Debug("rendered artifact", "modules", len(records), "files", len(a.Files), "assets", len(a.Assets), "hash", a.Hash)
	return a, nil
}

func (e *Emitter) isVendor(path string) bool {
	for _, root := range e.cfg.ModuleRoots {
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// renderFile writes the runtime, one register call and, when entry is
// set, the start call. encoding/json sorts map keys, which makes the
// output deterministic.
func renderFile(records map[string]*Record, entry string) ([]byte, error) {
	manifest, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}

	var b bytes.Buffer
	b.Write(runtimeJS)
	b.WriteString(registerPrefix)
	b.Write(manifest)
	b.WriteString(callSuffix + "\n")
	if entry != "" {
		id, err := json.Marshal(entry)
		if err != nil {
			return nil, err
		}
		b.WriteString(startPrefix)
		b.Write(id)
		b.WriteString(callSuffix + "\n")
	}
	return b.Bytes(), nil
}

// RecordJSON encodes a module record for a hot update message.
func RecordJSON(r *Record) ([]byte, error) {
	return json.Marshal(r)
}
