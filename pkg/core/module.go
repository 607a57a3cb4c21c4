package core

import "time"

// ModuleStatus tracks a module through the graph build.
type ModuleStatus int

const (
	// ModulePending marks a forward placeholder: discovered but not yet transformed.
	ModulePending ModuleStatus = iota
	// ModuleBuilt marks a module whose transform chain completed.
	ModuleBuilt
	// ModuleFailed marks a module whose resolution or transform chain failed.
	ModuleFailed
)

// String returns the string representation of the status.
func (s ModuleStatus) String() string {
	switch s {
	case ModulePending:
		return "pending"
	case ModuleBuilt:
		return "built"
	case ModuleFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Content kinds understood by the reference scanner and the runtime loader.
const (
	KindJS    = "js"
	KindCSS   = "css"
	KindText  = "text"
	KindAsset = "asset"
)

// Asset is an auxiliary file produced by a transform (for example an extracted image).
type Asset struct {
	Name    string `json:"name"`
	Content []byte `json:"content"`
}

// Module is a node of the module graph.
type Module struct {
	// Path is the absolute filesystem path.
	Path string
	// ID is the project-relative, slash-separated path used inside artifacts.
	ID string

	Raw  []byte
	Code []byte
	Map  []byte
	Kind string
	// Hash is the content hash of Raw.
	Hash string

	// Specifiers holds the references found in Code, in source order.
	Specifiers []string
	// Deps holds the resolved absolute path for each specifier ("" if unresolved).
	Deps []string

	ModTime     time.Time
	Assets      []Asset
	Diagnostics []Diagnostic
	Status      ModuleStatus
	// Err is set when Status is ModuleFailed.
	Err error
}

// DepFor returns the resolved path for a specifier, if any.
func (m *Module) DepFor(specifier string) (string, bool) {
	for i, s := range m.Specifiers {
		if s == specifier && i < len(m.Deps) && m.Deps[i] != "" {
			return m.Deps[i], true
		}
	}
	return "", false
}
