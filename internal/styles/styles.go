package styles

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/NamanBalaji/rangedl/internal/status"
)

var (
	Text     = lipgloss.Color("#cdd6f4")
	Subtext0 = lipgloss.Color("#a6adc8")

	Pink   = lipgloss.Color("#f5c2e7")
	Mauve  = lipgloss.Color("#cba6f7")
	Red    = lipgloss.Color("#f38ba8")
	Yellow = lipgloss.Color("#f9e2af")
	Green  = lipgloss.Color("#a6e3a1")
	Teal   = lipgloss.Color("#94e2d5")
)

var (
	HeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(Pink).Padding(0, 1)
	CellStyle   = lipgloss.NewStyle().Foreground(Text).Padding(0, 1)
	MutedStyle  = lipgloss.NewStyle().Foreground(Subtext0)
	BorderStyle = lipgloss.NewStyle().Foreground(Subtext0)

	StatusPending   = lipgloss.NewStyle().Foreground(Yellow).Bold(true)
	StatusActive    = lipgloss.NewStyle().Foreground(Teal).Bold(true)
	StatusCompleted = lipgloss.NewStyle().Foreground(Green).Bold(true)
	StatusCancelled = lipgloss.NewStyle().Foreground(Mauve).Bold(true)
	StatusFailed    = lipgloss.NewStyle().Foreground(Red).Bold(true)

	SuccessStyle = lipgloss.NewStyle().Foreground(Green)
	ErrorStyle   = lipgloss.NewStyle().Foreground(Red)
	WarningStyle = lipgloss.NewStyle().Foreground(Yellow)
)

// Status returns the style used to render s.
func Status(s status.Status) lipgloss.Style {
	switch s {
	case status.Active:
		return StatusActive
	case status.Completed:
		return StatusCompleted
	case status.Cancelled:
		return StatusCancelled
	case status.Failed:
		return StatusFailed
	default:
		return StatusPending
	}
}
