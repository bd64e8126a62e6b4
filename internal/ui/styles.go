package ui

import (
	"github.com/charmbracelet/lipgloss"
)

// StyleManager encapsulates all TUI styles
type StyleManager struct {
	// List view styles
	Command  lipgloss.Style
	Output   lipgloss.Style
	Selected lipgloss.Style
	Cursor   lipgloss.Style
	Dim      lipgloss.Style

	// Detail styles
	DetailHeader lipgloss.Style
	DetailKey    lipgloss.Style
	Warning      lipgloss.Style

	// Chrome styles
	Divider lipgloss.Style

	// Colors for direct access
	SelectedBg lipgloss.Color
}

// DefaultStyles returns a StyleManager with default styles
func DefaultStyles() *StyleManager {
	return &StyleManager{
		Command:      lipgloss.NewStyle().Foreground(lipgloss.Color("6")),
		Output:       lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		Selected:     lipgloss.NewStyle().Background(lipgloss.Color("236")),
		Cursor:       lipgloss.NewStyle().Foreground(lipgloss.Color("212")),
		Dim:          lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		DetailHeader: lipgloss.NewStyle().Bold(true),
		DetailKey:    lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		Warning:      lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
		Divider:      lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		SelectedBg:   lipgloss.Color("236"),
	}
}

// WithSelection returns a copy of the given style with the selected background applied
func (s *StyleManager) WithSelection(style lipgloss.Style) lipgloss.Style {
	return style.Background(s.SelectedBg)
}

// Global style manager instance
var styles = DefaultStyles()
