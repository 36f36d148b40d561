package providers

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ormasoftchile/skillrun/pkg/schema"
	"github.com/ormasoftchile/skillrun/pkg/state"
)

// UserInputVar returns the variable a user_input step publishes its choice
// under.
func UserInputVar(stepID string) string {
	return "user_input_" + stepID
}

// UserInput presents a numbered option list and records the choice.
type UserInput struct {
	Collector InputCollector
}

var _ Capability = (*UserInput)(nil)

func (u *UserInput) Handles(step schema.Step) bool { return step.Type == schema.StepUserInput }

// Execute implements Capability.
func (u *UserInput) Execute(_ context.Context, step schema.Step, run *state.Context, _ *schema.Skill, dryRun bool) *state.StepResult {
	r, done := result(step)

	if dryRun {
		ids := make([]string, 0, len(step.Options))
		for _, o := range step.Options {
			ids = append(ids, o.ID)
		}
		r.Status = state.StatusCompleted
		r.Output = "[DRY RUN] Would ask user: " + step.Name
		r.Metadata["options"] = ids
		return done()
	}

	if u.Collector == nil {
		r.Status = state.StatusFailed
		r.Error = "Input cancelled or invalid"
		return done()
	}

	u.Collector.Show("\n" + step.Name)
	for i, o := range step.Options {
		line := fmt.Sprintf("  %d. %s", i+1, o.Label)
		if o.Description != "" {
			line += " - " + o.Description
		}
		u.Collector.Show(line)
	}

	answer, err := u.Collector.Prompt("Enter choice (number): ")
	if err != nil {
		r.Status = state.StatusFailed
		r.Error = "Input cancelled or invalid"
		return done()
	}
	n, err := strconv.Atoi(answer)
	if err != nil {
		r.Status = state.StatusFailed
		r.Error = "Input cancelled or invalid"
		return done()
	}
	if n < 1 || n > len(step.Options) {
		r.Status = state.StatusFailed
		r.Error = "Invalid choice"
		return done()
	}

	chosen := step.Options[n-1]
	run.Set(UserInputVar(step.ID), chosen.ID)
	r.Status = state.StatusCompleted
	r.Output = chosen.ID
	r.Metadata["selected"] = chosen.ID
	r.Metadata["label"] = chosen.Label
	return done()
}

// Instruction implements Capability.
func (u *UserInput) Instruction(step schema.Step, _ *state.Context, skill *schema.Skill) *Instruction {
	in := newInstruction(skill, step, "user_input", step.Name)
	options := make([]map[string]string, 0, len(step.Options))
	for _, o := range step.Options {
		options = append(options, map[string]string{
			"id":          o.ID,
			"label":       o.Label,
			"description": o.Description,
		})
	}
	in.GateCheck = map[string]any{"options": options}
	return in
}
