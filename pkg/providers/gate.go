package providers

import (
	"context"
	"errors"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/ormasoftchile/skillrun/pkg/gate"
	"github.com/ormasoftchile/skillrun/pkg/schema"
	"github.com/ormasoftchile/skillrun/pkg/state"
)

const askOutputWidth = 200

// GateCheck runs gate-check steps through a gate.Checker and applies the
// resolved action.
type GateCheck struct {
	Checker   *gate.Checker
	Collector InputCollector
}

var _ Capability = (*GateCheck)(nil)

func (g *GateCheck) Handles(step schema.Step) bool { return step.Type == schema.StepGateCheck }

// Execute implements Capability.
func (g *GateCheck) Execute(ctx context.Context, step schema.Step, run *state.Context, _ *schema.Skill, dryRun bool) *state.StepResult {
	r, done := result(step)

	checker := *g.Checker
	checker.DryRun = checker.DryRun || dryRun
	gr := checker.Check(ctx, step, run)

	if gr.Passed {
		r.Status = state.StatusCompleted
		r.Output = gr.ValidationOutput
		if r.Output == "" && dryRun {
			r.Output = gr.Message
		}
		r.Metadata["gate_passed"] = true
		return done()
	}

	r.Metadata["gate_passed"] = false
	r.Metadata["action"] = string(gr.Action)

	switch gr.Action {
	case schema.OnFailureSkip:
		r.Status = state.StatusSkipped
		r.Output = gr.Message
	case schema.OnFailureAsk:
		if g.confirm(gr) {
			r.Status = state.StatusCompleted
			r.Output = "User chose to continue despite gate failure"
			r.Metadata["user_choice"] = "continue"
		} else {
			r.Status = state.StatusFailed
			r.Output = gr.ValidationOutput
			r.Error = "User aborted: " + gr.Message
			r.Metadata["user_choice"] = "abort"
		}
	default:
		r.Status = state.StatusFailed
		r.Output = gr.ValidationOutput
		r.Error = gr.Message
	}
	return done()
}

// confirm asks whether to continue past a failed gate. Anything other than
// y or yes, including cancelled input, declines.
func (g *GateCheck) confirm(gr gate.Result) bool {
	if g.Collector == nil {
		return false
	}
	output := gr.ValidationOutput
	if output == "" {
		output = "none"
	}
	g.Collector.Show("⚠️  " + gr.Message)
	g.Collector.Show("Output: " + runewidth.Truncate(output, askOutputWidth, ""))

	answer, err := g.Collector.Prompt("Continue anyway? [y/N]: ")
	if err != nil {
		if !errors.Is(err, ErrInputCancelled) {
			g.Collector.Show(err.Error())
		}
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

// Instruction implements Capability.
func (g *GateCheck) Instruction(step schema.Step, run *state.Context, skill *schema.Skill) *Instruction {
	validation := run.Interpolate(step.Validation)
	in := newInstruction(skill, step, "bash", validation)
	in.GateCheck = map[string]any{
		"enabled":            true,
		"validation_command": validation,
		"on_failure":         string(step.OnFailure.Resolve()),
	}
	return in
}
