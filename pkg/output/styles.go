// Package output renders run progress, step results and summaries for the
// terminal.
package output

import "github.com/charmbracelet/lipgloss"

// Step status glyphs convey meaning without relying on color alone.
const (
	GlyphStart   = "▶"
	GlyphPassed  = "✓"
	GlyphFailed  = "✗"
	GlyphSkipped = "⊘"
	GlyphWarn    = "⚠"
)

// Palette adapts to terminal capabilities via lipgloss.
var (
	colorGreen  = lipgloss.Color("42")
	colorRed    = lipgloss.Color("196")
	colorYellow = lipgloss.Color("214")
	colorBlue   = lipgloss.Color("39")
	colorCyan   = lipgloss.Color("51")
	colorDim    = lipgloss.Color("240")
)

// styles are bound to the renderer of one writer so color detection
// follows that writer rather than stdout.
type styles struct {
	header  lipgloss.Style
	passed  lipgloss.Style
	failed  lipgloss.Style
	skipped lipgloss.Style
	warn    lipgloss.Style
	info    lipgloss.Style
	dim     lipgloss.Style
	label   lipgloss.Style
	panel   lipgloss.Style
	title   lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		header: r.NewStyle().
			Bold(true).
			Foreground(colorCyan),
		passed: r.NewStyle().
			Foreground(colorGreen).
			Bold(true),
		failed: r.NewStyle().
			Foreground(colorRed).
			Bold(true),
		skipped: r.NewStyle().
			Faint(true),
		warn: r.NewStyle().
			Foreground(colorYellow),
		info: r.NewStyle().
			Foreground(colorBlue),
		dim: r.NewStyle().
			Foreground(colorDim),
		label: r.NewStyle().
			Bold(true).
			Foreground(colorBlue),
		panel: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorDim).
			Padding(0, 1),
		title: r.NewStyle().
			Bold(true).
			Foreground(colorCyan),
	}
}
