package ui

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

// Color palette for text output.
const (
	colorSuccess = lipgloss.Color("#10B981")
	colorError   = lipgloss.Color("#EF4444")
	colorWarning = lipgloss.Color("#F59E0B")
	colorMuted   = lipgloss.Color("#6B7280")
	colorAccent  = lipgloss.Color("#7C3AED")
)

// styles holds the lipgloss styles of one Printer. They are bound to a
// renderer for the Printer's writer so that color is only emitted when
// that writer is a color-capable terminal.
type styles struct {
	ok      lipgloss.Style
	fail    lipgloss.Style
	warn    lipgloss.Style
	muted   lipgloss.Style
	member  lipgloss.Style
	heading lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		ok:      r.NewStyle().Foreground(colorSuccess),
		fail:    r.NewStyle().Bold(true).Foreground(colorError),
		warn:    r.NewStyle().Foreground(colorWarning),
		muted:   r.NewStyle().Foreground(colorMuted),
		member:  r.NewStyle().Bold(true),
		heading: r.NewStyle().Bold(true).Foreground(colorAccent),
	}
}
