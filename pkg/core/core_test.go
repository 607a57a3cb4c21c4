package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiagnosticString(t *testing.T) {
	tests := []struct {
		name string
		d    Diagnostic
		want string
	}{
		{"bare", Errorf("", "boom"), "error: boom"},
		{"with source", Warnf("hot", "no handler"), "warning: [hot] no handler"},
		{"with path", Diagnostic{Severity: SeverityError, Path: "src/a.js", Message: "x"}, "src/a.js: error: x"},
		{"with position", Diagnostic{Severity: SeverityInfo, Path: "a.css", Line: 2, Column: 5, Source: "style", Message: "m"}, "a.css:2:5: info: [style] m"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.d.String())
		})
	}
}

func TestHasErrors(t *testing.T) {
	assert.False(t, HasErrors(nil))
	assert.False(t, HasErrors([]Diagnostic{Warnf("x", "w")}))
	assert.True(t, HasErrors([]Diagnostic{Warnf("x", "w"), Errorf("x", "e")}))
}

func TestParseSeverity(t *testing.T) {
	for in, want := range map[string]Severity{"error": SeverityError, "WARN": SeverityWarning, "info": SeverityInfo} {
		got, ok := ParseSeverity(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	got, ok := ParseSeverity("fatal")
	assert.False(t, ok)
	assert.Equal(t, SeverityWarning, got)
}

func TestDiagnosticJSON(t *testing.T) {
	data, err := json.Marshal(Errorf("json", "bad"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"severity":"error","message":"bad","source":"json"}`, string(data))

	var d Diagnostic
	require.NoError(t, json.Unmarshal([]byte(`{"severity":"info","message":"m"}`), &d))
	assert.Equal(t, SeverityInfo, d.Severity)
}

func TestModuleDepFor(t *testing.T) {
	m := &Module{Specifiers: []string{"./a.js", "./b.js"}, Deps: []string{"/p/a.js", ""}}

	dep, ok := m.DepFor("./a.js")
	assert.True(t, ok)
	assert.Equal(t, "/p/a.js", dep)

	_, ok = m.DepFor("./b.js")
	assert.False(t, ok, "unresolved specifier")
	_, ok = m.DepFor("./c.js")
	assert.False(t, ok)
}
