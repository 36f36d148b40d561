package output

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// newMarkdownRenderer returns a glamour renderer, styled for the terminal
// when tty is set and plain otherwise. Nil means rendering is unavailable.
func newMarkdownRenderer(tty bool) *glamour.TermRenderer {
	style := glamour.WithStandardStyle("notty")
	if tty {
		style = glamour.WithAutoStyle()
	}
	r, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(100))
	if err != nil {
		return nil
	}
	return r
}

// renderMarkdown converts a markdown string to styled terminal output.
// Falls back to the raw input if rendering fails.
func renderMarkdown(r *glamour.TermRenderer, md string) string {
	if r == nil || strings.TrimSpace(md) == "" {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	// Glamour adds surrounding newlines; trim for inline use
	return strings.Trim(out, "\n")
}
