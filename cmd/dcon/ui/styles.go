package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Palette colors for terminal output.
var (
	ColorPrimary = lipgloss.AdaptiveColor{Light: "#2e7d32", Dark: "#81c784"}
	ColorText    = lipgloss.AdaptiveColor{Light: "#1a1a1a", Dark: "#e6e6e6"}
	ColorMuted   = lipgloss.AdaptiveColor{Light: "#6b6b6b", Dark: "#8a8a8a"}
	ColorError   = lipgloss.AdaptiveColor{Light: "#c62828", Dark: "#ef5350"}
)

// Styles groups the lipgloss styles used by dcon's commands.
type Styles struct {
	Title lipgloss.Style
	Body  lipgloss.Style
	Muted lipgloss.Style
	Bold  lipgloss.Style
	Error lipgloss.Style
}

// DefaultStyles returns the standard dcon styles.
func DefaultStyles() Styles {
	return Styles{
		Title: lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true),
		Body:  lipgloss.NewStyle().Foreground(ColorText),
		Muted: lipgloss.NewStyle().Foreground(ColorMuted),
		Bold:  lipgloss.NewStyle().Foreground(ColorText).Bold(true),
		Error: lipgloss.NewStyle().Foreground(ColorError).Bold(true),
	}
}

// Divider returns a horizontal rule of the given width.
func Divider(s Styles, width int) string {
	if width < 1 {
		width = 1
	}
	return s.Muted.Render(strings.Repeat("─", width))
}

