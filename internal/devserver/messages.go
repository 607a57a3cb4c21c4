package devserver

import "github.com/leapstack-labs/leapbundle/pkg/core"

// MessageType names a client update message.
type MessageType string

// Client update messages.
const (
	// MessageModuleUpdate carries the new record of one module.
	MessageModuleUpdate MessageType = "moduleUpdate"
	// MessageReloadRequired asks the client to reload the page.
	MessageReloadRequired MessageType = "reloadRequired"
	// MessageBuildError carries the diagnostics of a failed rebuild.
	MessageBuildError MessageType = "buildError"
	// MessageHotRejected tells a hot-only client that a reload was needed
	// but not sent.
	MessageHotRejected MessageType = "hotRejected"
	// MessageBuildOK follows a successful rebuild and clears the overlay.
	MessageBuildOK MessageType = "buildOK"
)

// Message is pushed to connected clients after a rebuild.
type Message struct {
	Type MessageType `json:"type"`
	// Seq increases with every broadcast; clients ignore repeats.
	Seq uint64 `json:"seq"`
	// Path is the module id for a module update.
	Path string `json:"path,omitempty"`
	// Content is the JSON-encoded module record for a module update.
	Content     string            `json:"content,omitempty"`
	Hash        string            `json:"hash,omitempty"`
	Reason      string            `json:"reason,omitempty"`
	Diagnostics []core.Diagnostic `json:"diagnostics,omitempty"`
}

// signals is the datastar signal payload wrapping a message.
type signals struct {
	Leapbundle Message `json:"leapbundle"`
}
