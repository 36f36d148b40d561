package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ormasoftchile/skillrun/pkg/executor"
	"github.com/ormasoftchile/skillrun/pkg/schema"
	"github.com/ormasoftchile/skillrun/pkg/state"
)

// Command runs shell command steps.
type Command struct {
	Exec executor.CommandExecutor
}

var _ Capability = (*Command)(nil)

func (c *Command) Handles(step schema.Step) bool { return step.Type == schema.StepCommand }

// Execute implements Capability.
func (c *Command) Execute(ctx context.Context, step schema.Step, run *state.Context, _ *schema.Skill, dryRun bool) *state.StepResult {
	r, done := result(step)
	command := run.Interpolate(step.Command)

	if dryRun {
		r.Status = state.StatusCompleted
		r.Output = "[DRY RUN] Would execute: " + command
		return done()
	}

	res, err := c.Exec.Run(ctx, command, step.TimeoutDuration())
	if err != nil {
		r.Status = state.StatusFailed
		if errors.Is(err, executor.ErrTimeout) {
			r.Error = fmt.Sprintf("Command timed out after %ds", step.TimeoutSeconds())
		} else {
			r.Error = err.Error()
		}
		return done()
	}

	r.Output = strings.TrimSpace(res.Stdout)
	r.Metadata["return_code"] = res.ExitCode
	if res.ExitCode == 0 {
		r.Status = state.StatusCompleted
	} else {
		r.Status = state.StatusFailed
		r.Error = strings.TrimSpace(res.Stderr)
	}
	return done()
}

// Instruction implements Capability.
func (c *Command) Instruction(step schema.Step, run *state.Context, skill *schema.Skill) *Instruction {
	return newInstruction(skill, step, "bash", run.Interpolate(step.Command))
}
