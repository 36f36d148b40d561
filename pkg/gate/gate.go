// Package gate runs gate-check validation commands and resolves the step's
// failure policy into an action for the caller.
package gate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/ormasoftchile/skillrun/pkg/executor"
	"github.com/ormasoftchile/skillrun/pkg/schema"
	"github.com/ormasoftchile/skillrun/pkg/state"
)

// NotificationWidth bounds the message passed to a Notifier.
const NotificationWidth = 200

// Result is the outcome of a gate check.
type Result struct {
	Passed           bool             `json:"passed"`
	Message          string           `json:"message"`
	ValidationOutput string           `json:"validation_output"`
	Action           schema.OnFailure `json:"action,omitempty"`
}

// Notifier delivers a best-effort notification. It reports whether the
// notification was shown.
type Notifier func(title, message string) bool

// Checker evaluates gate-check steps.
type Checker struct {
	Exec   executor.CommandExecutor
	Notify Notifier
	DryRun bool
	Logger *slog.Logger
}

// NewChecker returns a Checker using exec for validation commands.
func NewChecker(exec executor.CommandExecutor, notify Notifier, dryRun bool) *Checker {
	return &Checker{Exec: exec, Notify: notify, DryRun: dryRun}
}

func (c *Checker) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Check runs the step's validation command and resolves the failure policy.
// The checker never loops: a retry action is returned to the caller.
func (c *Checker) Check(ctx context.Context, step schema.Step, run *state.Context) Result {
	if step.Validation == "" {
		return Result{Passed: true, Message: "No validation command specified"}
	}

	command := run.Interpolate(step.Validation)
	if c.DryRun {
		return Result{Passed: true, Message: "[DRY RUN] Would execute: " + command}
	}

	res, err := c.Exec.Run(ctx, command, step.TimeoutDuration())
	if err != nil {
		if errors.Is(err, executor.ErrTimeout) {
			return c.fail(step, fmt.Sprintf("Command timed out after %ds", step.TimeoutSeconds()), "Timeout")
		}
		return c.fail(step, err.Error(), err.Error())
	}

	output := strings.TrimSpace(res.Stdout)
	if output == "" {
		output = strings.TrimSpace(res.Stderr)
	}
	if res.ExitCode == 0 {
		c.logger().Debug("gate passed", "step", step.ID, "command", command)
		return Result{
			Passed:           true,
			Message:          "Gate check passed: " + step.Name,
			ValidationOutput: output,
		}
	}
	return c.fail(step, output, strings.TrimSpace(res.Stderr))
}

func (c *Checker) fail(step schema.Step, output, errText string) Result {
	message := fmt.Sprintf("Gate check failed: %s\nOutput: %s", step.Name, output)
	if errText != "" && errText != output {
		message += "\nError: " + errText
	}

	if c.Notify != nil {
		if !c.Notify("Gate Check Failed: "+step.Name, runewidth.Truncate(message, NotificationWidth, "")) {
			c.logger().Debug("notification not delivered", "step", step.ID)
		}
	}

	action := step.OnFailure.Resolve()
	c.logger().Info("gate failed", "step", step.ID, "action", string(action))

	switch action {
	case schema.OnFailureSkip:
		message = "Gate check failed but skipping: " + step.Name
	case schema.OnFailureRetry:
		message = "Gate check failed, will retry: " + step.Name
	case schema.OnFailureAsk:
		message = "Gate check failed, asking user: " + step.Name
	}

	return Result{
		Passed:           false,
		Message:          message,
		ValidationOutput: output,
		Action:           action,
	}
}
