package output

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Styles holds the lipgloss styles used by the renderer.
type Styles struct {
	Header1    lipgloss.Style
	Header2    lipgloss.Style
	Bold       lipgloss.Style
	Muted      lipgloss.Style
	Info       lipgloss.Style
	Success    lipgloss.Style
	Warning    lipgloss.Style
	Error      lipgloss.Style
	ModulePath lipgloss.Style
}

// NewStyles builds styles bound to a lipgloss renderer.
func NewStyles(lr *lipgloss.Renderer) *Styles {
	return &Styles{
		Header1:    lr.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		Header2:    lr.NewStyle().Bold(true),
		Bold:       lr.NewStyle().Bold(true),
		Muted:      lr.NewStyle().Foreground(lipgloss.Color("8")),
		Info:       lr.NewStyle().Foreground(lipgloss.Color("6")),
		Success:    lr.NewStyle().Foreground(lipgloss.Color("2")),
		Warning:    lr.NewStyle().Foreground(lipgloss.Color("3")),
		Error:      lr.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		ModulePath: lr.NewStyle().Foreground(lipgloss.Color("14")),
	}
}

// plainStyles renders everything without escape sequences.
func plainStyles(lr *lipgloss.Renderer) *Styles {
	lr.SetColorProfile(termenv.Ascii)
	return NewStyles(lr)
}
