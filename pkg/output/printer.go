package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/ormasoftchile/skillrun/pkg/runtime"
	"github.com/ormasoftchile/skillrun/pkg/schema"
	"github.com/ormasoftchile/skillrun/pkg/state"
)

// OutputPreviewWidth bounds step output shown in verbose mode.
const OutputPreviewWidth = 500

// Printer writes human-readable or JSON progress to a writer. It
// implements runtime.Reporter.
type Printer struct {
	w       io.Writer
	verbose bool
	json    bool
	st      styles
	md      *glamour.TermRenderer
}

var _ runtime.Reporter = (*Printer)(nil)

// New returns a Printer on w. Verbose shows step output; jsonOut switches
// every event to one JSON document per line.
func New(w io.Writer, verbose, jsonOut bool) *Printer {
	tty := isTerminal(w)
	return &Printer{
		w:       w,
		verbose: verbose,
		json:    jsonOut,
		st:      newStyles(lipgloss.NewRenderer(w)),
		md:      newMarkdownRenderer(tty),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}

func (p *Printer) println(s string) {
	fmt.Fprintln(p.w, s)
}

// Info prints an informational line. Suppressed in JSON mode.
func (p *Printer) Info(msg string) {
	if p.json {
		return
	}
	p.println(p.st.info.Render(msg))
}

// Success prints a confirmation line. Suppressed in JSON mode.
func (p *Printer) Success(msg string) {
	if p.json {
		return
	}
	p.println(p.st.passed.Render(GlyphPassed + " " + msg))
}

// Warn implements runtime.Reporter.
func (p *Printer) Warn(msg string) {
	if p.json {
		return
	}
	p.println(p.st.warn.Render(GlyphWarn + " " + msg))
}

// Error prints an error line, in JSON mode as {"error": msg}.
func (p *Printer) Error(msg string) {
	if p.json {
		_ = p.JSON(map[string]string{"error": msg})
		return
	}
	p.println(p.st.failed.Render(GlyphFailed + " " + msg))
}

// JSON writes v as an indented JSON document.
func (p *Printer) JSON(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

// Panel prints body inside a bordered box headed by title.
func (p *Printer) Panel(title, body string) {
	content := body
	if title != "" {
		content = p.st.title.Render(title) + "\n" + body
	}
	p.println(p.st.panel.Render(content))
}

// Markdown renders md for the terminal.
func (p *Printer) Markdown(md string) {
	p.println(renderMarkdown(p.md, md))
}

// Field prints an aligned "label: value" line.
func (p *Printer) Field(label, value string) {
	p.println(p.st.label.Render(label+":") + " " + value)
}

// StepStarted implements runtime.Reporter.
func (p *Printer) StepStarted(index, total int, step schema.Step) {
	if p.json {
		return
	}
	p.println("\n" + p.st.header.Render(fmt.Sprintf("%s Step %d/%d: %s [%s]", GlyphStart, index+1, total, step.Name, step.ID)))
}

type stepEvent struct {
	Step     string  `json:"step"`
	Status   string  `json:"status"`
	Output   string  `json:"output"`
	Error    string  `json:"error"`
	Duration float64 `json:"duration"`
}

// StepFinished implements runtime.Reporter.
func (p *Printer) StepFinished(step schema.Step, r *state.StepResult) {
	if p.json {
		_ = p.JSON(stepEvent{
			Step:     step.Name,
			Status:   string(r.Status),
			Output:   r.Output,
			Error:    r.Error,
			Duration: r.Duration.Seconds(),
		})
		return
	}

	line := fmt.Sprintf("%s [%s]", step.Name, r.Status)
	if r.Duration > 0 {
		line += fmt.Sprintf(" (%.2fs)", r.Duration.Seconds())
	}
	switch r.Status {
	case state.StatusCompleted, state.StatusFailed:
		p.println("  " + p.glyph(r.Status) + " " + line)
	default:
		p.println("  " + p.st.skipped.Render(GlyphSkipped+" "+line))
	}

	if r.Output != "" && p.verbose {
		if step.Type == schema.StepPrompt {
			p.Markdown(r.Output)
		} else {
			p.Panel("Output", runewidth.Truncate(r.Output, OutputPreviewWidth, "…"))
		}
	}
	if r.Error != "" {
		p.println(p.st.failed.Render("   Error: " + r.Error))
	}
}

// glyph renders the status mark used in step lines.
func (p *Printer) glyph(s state.StepStatus) string {
	switch s {
	case state.StatusCompleted:
		return p.st.passed.Render(GlyphPassed)
	case state.StatusFailed:
		return p.st.failed.Render(GlyphFailed)
	}
	return p.st.skipped.Render(GlyphSkipped)
}

type summaryEvent struct {
	Skill     string  `json:"skill"`
	Total     int     `json:"total_steps"`
	Completed int     `json:"completed"`
	Failed    int     `json:"failed"`
	Skipped   int     `json:"skipped"`
	Duration  float64 `json:"duration"`
	StatePath string  `json:"state_path,omitempty"`
}

// Finished implements runtime.Reporter.
func (p *Printer) Finished(s runtime.Summary) {
	if p.json {
		_ = p.JSON(summaryEvent{
			Skill:     s.Skill,
			Total:     s.Total,
			Completed: s.Completed,
			Failed:    s.Failed,
			Skipped:   s.Skipped,
			Duration:  s.Duration.Seconds(),
			StatePath: s.StatePath,
		})
		return
	}

	rule := p.st.dim.Render(strings.Repeat("=", 50))
	p.println("\n" + rule)
	p.println("Skill: " + s.Skill)
	p.println(fmt.Sprintf("Steps: %d/%d completed", s.Completed, s.Total))
	if s.Failed > 0 {
		p.println(p.st.failed.Render(fmt.Sprintf("Failed: %d", s.Failed)))
	}
	if s.Skipped > 0 {
		p.println(p.st.warn.Render(fmt.Sprintf("Skipped: %d", s.Skipped)))
	}
	p.println(fmt.Sprintf("Duration: %.2fs", s.Duration.Seconds()))
	if s.StatePath != "" {
		p.println("State: " + s.StatePath)
	}
	p.println(rule)
}

// StatusReport is the view of a persisted run. Pending is filled when the
// skill could be resolved; History comes from the run's trace file.
type StatusReport struct {
	state.Summary
	Pending []string             `json:"pending_steps,omitempty"`
	History []runtime.TraceEvent `json:"history,omitempty"`
}

// RunStatus prints the status panel of a persisted run followed by its
// step history.
func (p *Printer) RunStatus(r StatusReport) {
	if p.json {
		_ = p.JSON(r)
		return
	}
	s := r.Summary
	lines := []string{
		"Task: " + s.TaskSlug,
		"Current Step: " + s.CurrentStep,
		fmt.Sprintf("Completed: %d/%d", s.StepsCompleted, s.StepsTotal),
		fmt.Sprintf("Failed: %d", s.StepsFailed),
	}
	if len(r.Pending) > 0 {
		lines = append(lines, "Pending: "+strings.Join(r.Pending, ", "))
	}
	lines = append(lines,
		"Started: "+s.StartedAt.Format(time.RFC3339),
		"Updated: "+s.UpdatedAt.Format(time.RFC3339),
	)
	p.Panel("Skill Run: "+s.SkillName, strings.Join(lines, "\n"))

	if len(r.History) == 0 {
		return
	}
	p.println(p.st.title.Render("History"))
	for _, ev := range r.History {
		if ev.Result == nil {
			continue
		}
		line := fmt.Sprintf("%s  %s %s [%s] (%.2fs)",
			p.st.dim.Render(ev.Timestamp.Format(time.TimeOnly)),
			p.glyph(ev.Result.Status), ev.Result.StepID, ev.Result.Status, ev.Result.Duration.Seconds())
		if ev.Result.Error != "" {
			line += " " + p.st.failed.Render(ev.Result.Error)
		}
		p.println(line)
	}
}

// SkillEntry is one row of a skill listing.
type SkillEntry struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
	Path        string `json:"path"`
}

// SkillList prints discovered skills.
func (p *Printer) SkillList(entries []SkillEntry) {
	if p.json {
		_ = p.JSON(entries)
		return
	}
	if len(entries) == 0 {
		p.Warn("No skills found")
		return
	}
	width := 0
	for _, e := range entries {
		if w := runewidth.StringWidth(e.Name); w > width {
			width = w
		}
	}
	for _, e := range entries {
		pad := strings.Repeat(" ", width-runewidth.StringWidth(e.Name))
		p.println(fmt.Sprintf("%s%s  %s  %s", p.st.label.Render(e.Name), pad, p.st.dim.Render("v"+e.Version), e.Description))
	}
}
