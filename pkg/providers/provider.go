// Package providers implements the step capabilities (command, gate check,
// user input, prompt) and the dispatcher that routes a step to one of them.
package providers

import (
	"context"
	"errors"
	"time"

	"github.com/ormasoftchile/skillrun/pkg/schema"
	"github.com/ormasoftchile/skillrun/pkg/state"
)

// ErrInputCancelled is returned by collectors when the user interrupts or
// closes input.
var ErrInputCancelled = errors.New("input cancelled")

// Capability executes one step variant.
type Capability interface {
	// Handles reports whether the capability executes step.
	Handles(step schema.Step) bool

	// Execute runs the step and always returns a result. Failures are
	// reported through the result's status and error text.
	Execute(ctx context.Context, step schema.Step, run *state.Context, skill *schema.Skill, dryRun bool) *state.StepResult

	// Instruction describes the step for an external executor without
	// running it.
	Instruction(step schema.Step, run *state.Context, skill *schema.Skill) *Instruction
}

// InstructionVersion is the version tag of Instruction documents.
const InstructionVersion = "1.0"

// Instruction is a self-contained description of one step for an external
// executor.
type Instruction struct {
	Version     string          `json:"version"`
	SkillID     string          `json:"skill_id"`
	CurrentStep StepRef         `json:"current_step"`
	Instruction InstructionBody `json:"instruction"`
	GateCheck   map[string]any  `json:"gate_check"`
}

// StepRef identifies the step an Instruction belongs to.
type StepRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// InstructionBody is the action to perform.
type InstructionBody struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

func newInstruction(skill *schema.Skill, step schema.Step, kind, content string) *Instruction {
	return &Instruction{
		Version:     InstructionVersion,
		SkillID:     skill.Name,
		CurrentStep: StepRef{ID: step.ID, Name: step.Name},
		Instruction: InstructionBody{Type: kind, Content: content},
		GateCheck:   map[string]any{},
	}
}

// result starts a StepResult and returns a function that stamps its
// duration.
func result(step schema.Step) (*state.StepResult, func() *state.StepResult) {
	start := time.Now()
	r := state.NewStepResult(step.ID)
	return r, func() *state.StepResult {
		r.Duration = time.Since(start)
		return r
	}
}
