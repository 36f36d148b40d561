package providers

import (
	"context"
	"io"
	"log/slog"

	"github.com/ormasoftchile/skillrun/pkg/conversation"
	"github.com/ormasoftchile/skillrun/pkg/executor"
	"github.com/ormasoftchile/skillrun/pkg/gate"
	"github.com/ormasoftchile/skillrun/pkg/llm"
	"github.com/ormasoftchile/skillrun/pkg/schema"
	"github.com/ormasoftchile/skillrun/pkg/state"
	"github.com/ormasoftchile/skillrun/pkg/tools"
)

// Deps are the collaborators shared by the built-in capabilities.
type Deps struct {
	Exec         executor.CommandExecutor
	Notify       gate.Notifier
	Collector    InputCollector
	Provider     llm.Provider
	Tools        *tools.Registry
	Conversation conversation.Config
	Logger       *slog.Logger
}

// Dispatcher routes each step to the first capability that handles it.
type Dispatcher struct {
	caps   []Capability
	logger *slog.Logger
}

// NewDispatcher builds the command, gate check, user input and prompt
// capabilities from deps. A nil Exec runs commands with a plain shell.
func NewDispatcher(deps Deps) *Dispatcher {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	exec := deps.Exec
	if exec == nil {
		exec = &executor.Shell{}
	}
	checker := gate.NewChecker(exec, deps.Notify, false)
	checker.Logger = logger

	return NewDispatcherWith(logger,
		&Command{Exec: exec},
		&GateCheck{Checker: checker, Collector: deps.Collector},
		&UserInput{Collector: deps.Collector},
		&Prompt{
			Provider:     deps.Provider,
			Tools:        deps.Tools,
			Conversation: deps.Conversation,
			Logger:       logger,
		},
	)
}

// NewDispatcherWith builds a dispatcher over an explicit capability list,
// consulted in order.
func NewDispatcherWith(logger *slog.Logger, caps ...Capability) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Dispatcher{caps: caps, logger: logger}
}

// For returns the capability handling step, or nil.
func (d *Dispatcher) For(step schema.Step) Capability {
	for _, c := range d.caps {
		if c.Handles(step) {
			return c
		}
	}
	return nil
}

// Execute runs step with its capability. Steps no capability handles fail.
func (d *Dispatcher) Execute(ctx context.Context, step schema.Step, run *state.Context, skill *schema.Skill, dryRun bool) *state.StepResult {
	c := d.For(step)
	if c == nil {
		r, done := result(step)
		r.Status = state.StatusFailed
		r.Error = "Unsupported step type: " + string(step.Type)
		return done()
	}
	d.logger.Debug("dispatch step", "step", step.ID, "type", step.Type, "dry_run", dryRun)
	return c.Execute(ctx, step, run, skill, dryRun)
}

// Instruction describes step for an external executor.
func (d *Dispatcher) Instruction(step schema.Step, run *state.Context, skill *schema.Skill) *Instruction {
	c := d.For(step)
	if c == nil {
		return newInstruction(skill, step, "unknown", "Unknown step type: "+string(step.Type))
	}
	return c.Instruction(step, run, skill)
}
