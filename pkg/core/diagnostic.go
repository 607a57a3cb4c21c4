package core

import (
	"fmt"
	"strings"
)

// Diagnostic is a message produced while transforming or resolving a module.
type Diagnostic struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Path     string   `json:"path,omitempty"`
	Line     int      `json:"line,omitempty"`
	Column   int      `json:"column,omitempty"`
	// Source names the transform (or builder stage) that produced the message.
	Source string `json:"source,omitempty"`
}

// String formats the diagnostic as path:line:col: severity: message.
func (d Diagnostic) String() string {
	var b strings.Builder
	if d.Path != "" {
		b.WriteString(d.Path)
		if d.Line > 0 {
			fmt.Fprintf(&b, ":%d:%d", d.Line, d.Column)
		}
		b.WriteString(": ")
	}
	b.WriteString(d.Severity.String())
	b.WriteString(": ")
	if d.Source != "" {
		b.WriteString("[" + d.Source + "] ")
	}
	b.WriteString(d.Message)
	return b.String()
}

// IsError reports whether the diagnostic halts a transform chain.
func (d Diagnostic) IsError() bool {
	return d.Severity == SeverityError
}

// HasErrors reports whether any diagnostic is an error.
func HasErrors(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.IsError() {
			return true
		}
	}
	return false
}

// Errorf builds an error diagnostic.
func Errorf(source, format string, args ...any) Diagnostic {
	return Diagnostic{Severity: SeverityError, Source: source, Message: fmt.Sprintf(format, args...)}
}

// Warnf builds a warning diagnostic.
func Warnf(source, format string, args ...any) Diagnostic {
	return Diagnostic{Severity: SeverityWarning, Source: source, Message: fmt.Sprintf(format, args...)}
}
