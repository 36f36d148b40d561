package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/expr-lang/expr"

	"github.com/ormasoftchile/skillrun/pkg/providers"
	"github.com/ormasoftchile/skillrun/pkg/schema"
	"github.com/ormasoftchile/skillrun/pkg/state"
)

// DefaultMaxGateRetries is the number of extra attempts a gate check with
// on_failure: retry gets before it counts as failed.
const DefaultMaxGateRetries = 2

// ErrStopped is returned when the user cancels a step-by-step pause.
var ErrStopped = errors.New("run stopped by user")

// StepRunner executes one step. *providers.Dispatcher implements it.
type StepRunner interface {
	Execute(ctx context.Context, step schema.Step, run *state.Context, skill *schema.Skill, dryRun bool) *state.StepResult
}

// Options control a single run.
type Options struct {
	Task        string
	DryRun      bool
	StepByStep  bool
	ResumePath  string
	StateDir    string
	ProjectRoot string
	// MaxGateRetries of zero means DefaultMaxGateRetries; negative disables
	// retries.
	MaxGateRetries int
	Now            func() time.Time
}

// Engine is the runtime execution engine that drives a skill run.
type Engine struct {
	Skill     *schema.Skill
	State     *state.Context
	Steps     StepRunner
	Collector providers.InputCollector
	Reporter  Reporter
	Logger    *slog.Logger
	Options   Options

	statePath string
}

// NewEngine prepares a run of skill. With Options.ResumePath set the
// context is loaded from that state file; otherwise a fresh context is
// seeded with task, task_slug, project_root and date.
func NewEngine(skill *schema.Skill, steps StepRunner, opts Options) (*Engine, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	e := &Engine{Skill: skill, Steps: steps, Options: opts}

	if opts.ResumePath != "" {
		run, err := state.Load(opts.ResumePath)
		if err != nil {
			return nil, fmt.Errorf("load state: %w", err)
		}
		if run.SkillName != skill.Name {
			return nil, fmt.Errorf("state file %s belongs to skill %q, not %q", opts.ResumePath, run.SkillName, skill.Name)
		}
		e.State = run
		e.statePath = opts.ResumePath
		return e, nil
	}

	now := opts.Now()
	slug := TaskSlug(skill.Name, opts.Task, now)
	root := opts.ProjectRoot
	if root == "" {
		if wd, err := os.Getwd(); err == nil {
			root = wd
		}
	}

	run := state.New(skill.Name, slug)
	run.Set("task", opts.Task)
	run.Set("task_slug", slug)
	run.Set("project_root", root)
	run.Set("date", now.Format("2006-01-02"))
	e.State = run

	stateDir := opts.StateDir
	if stateDir == "" {
		stateDir = "."
	}
	e.statePath = filepath.Join(stateDir, slug+".json")
	return e, nil
}

// TaskSlug builds the run identifier yymmdd-<slug>. The slug is the first
// 30 characters of task, lower-cased, with spaces turned into dashes and
// everything outside [a-z0-9-] dropped. Without a task the skill name is
// used.
func TaskSlug(skillName, task string, now time.Time) string {
	prefix := now.Format("060102")
	if task == "" {
		return prefix + "-" + skillName
	}
	r := []rune(task)
	if len(r) > 30 {
		r = r[:30]
	}
	part := strings.ReplaceAll(strings.ToLower(string(r)), " ", "-")
	var b strings.Builder
	for _, c := range part {
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '-' {
			b.WriteRune(c)
		}
	}
	return prefix + "-" + b.String()
}

// StatePath is where the run is persisted.
func (e *Engine) StatePath() string { return e.statePath }

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (e *Engine) reporter() Reporter {
	if e.Reporter != nil {
		return e.Reporter
	}
	return nopReporter{}
}

func (e *Engine) maxGateRetries() int {
	switch {
	case e.Options.MaxGateRetries < 0:
		return 0
	case e.Options.MaxGateRetries == 0:
		return DefaultMaxGateRetries
	}
	return e.Options.MaxGateRetries
}

// Run executes the skill's steps in order. A failed gate check halts the
// run. The returned error is reserved for infrastructure failures,
// cancellation and ErrStopped; step failures are counted in the Summary.
func (e *Engine) Run(ctx context.Context) (*Summary, error) {
	sum := &Summary{
		Skill:    e.Skill.Name,
		TaskSlug: e.State.TaskSlug,
		Total:    len(e.Skill.Steps),
	}
	if !e.Options.DryRun {
		sum.StatePath = e.statePath
	}

	var trace *TraceWriter
	if !e.Options.DryRun {
		tw, err := NewTraceWriter(TracePath(e.statePath))
		if err != nil {
			return sum, err
		}
		defer tw.Close()
		trace = tw
	}

	e.logger().Info("run started", "skill", e.Skill.Name, "slug", e.State.TaskSlug, "steps", sum.Total, "dry_run", e.Options.DryRun)

	for i, step := range e.Skill.Steps {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		if e.State.IsStepCompleted(step.ID) {
			e.logger().Debug("skipping completed step", "step", step.ID)
			sum.Skipped++
			continue
		}
		e.State.CurrentStepID = step.ID

		if e.Options.StepByStep && !e.Options.DryRun && e.Collector != nil {
			if _, err := e.Collector.Prompt(fmt.Sprintf("\nPress Enter to execute step: %s", step.Name)); err != nil {
				return sum, ErrStopped
			}
		}

		result := e.guard(step)
		if result == nil {
			e.reporter().StepStarted(i, sum.Total, step)
			result = e.execute(ctx, step)
		}

		if err := e.record(step, result, sum, trace); err != nil {
			return sum, err
		}

		if result.Status == state.StatusFailed && step.Type == schema.StepGateCheck {
			e.reporter().Warn("Gate check failed - aborting")
			sum.Halted = true
			break
		}
	}

	e.logger().Info("run finished", "completed", sum.Completed, "failed", sum.Failed, "skipped", sum.Skipped)
	e.reporter().Finished(*sum)
	return sum, nil
}

// guard returns a skipped result when step must not run, or nil.
func (e *Engine) guard(step schema.Step) *state.StepResult {
	var unmet []string
	for _, dep := range step.Dependencies {
		if !e.State.IsStepCompleted(dep) {
			unmet = append(unmet, dep)
		}
	}
	if len(unmet) > 0 {
		e.reporter().Warn(fmt.Sprintf("Skipping %s: dependencies not met", step.ID))
		r := state.NewStepResult(step.ID)
		r.Status = state.StatusSkipped
		r.Metadata["unmet_dependencies"] = unmet
		return r
	}

	if step.When == "" {
		return nil
	}
	ok, err := e.evalWhen(step.When)
	if err != nil {
		r := state.NewStepResult(step.ID)
		r.Status = state.StatusFailed
		r.Error = err.Error()
		r.Metadata["when"] = step.When
		return r
	}
	if !ok {
		r := state.NewStepResult(step.ID)
		r.Status = state.StatusSkipped
		r.Metadata["when"] = step.When
		return r
	}
	return nil
}

// evalWhen evaluates a when guard with expr-lang against the run
// variables. Unknown names evaluate to nil.
func (e *Engine) evalWhen(exprStr string) (bool, error) {
	env := make(map[string]any, len(e.State.Variables))
	for k, v := range e.State.Variables {
		env[k] = v
	}
	program, err := expr.Compile(exprStr, expr.Env(env), expr.AllowUndefinedVariables(), expr.AsBool())
	if err != nil {
		return false, fmt.Errorf("compile when %q: %w", exprStr, err)
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("eval when %q: %w", exprStr, err)
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("when %q did not return bool (got %T)", exprStr, out)
	}
	return b, nil
}

// execute dispatches step, re-running a gate check whose resolved action
// is retry.
func (e *Engine) execute(ctx context.Context, step schema.Step) *state.StepResult {
	r := e.Steps.Execute(ctx, step, e.State, e.Skill, e.Options.DryRun)
	if step.Type != schema.StepGateCheck {
		return r
	}
	for attempt := 1; attempt <= e.maxGateRetries(); attempt++ {
		if r.Status != state.StatusFailed || r.Metadata["action"] != string(schema.OnFailureRetry) || ctx.Err() != nil {
			break
		}
		e.logger().Info("retrying gate check", "step", step.ID, "attempt", attempt+1)
		r = e.Steps.Execute(ctx, step, e.State, e.Skill, e.Options.DryRun)
		r.Metadata["attempts"] = attempt + 1
	}
	return r
}

// record stores result in the context, counts it, writes the trace and
// persists the snapshot.
func (e *Engine) record(step schema.Step, result *state.StepResult, sum *Summary, trace *TraceWriter) error {
	e.State.RecordStepResult(result)
	if result.Output != "" {
		e.State.Set(step.ID+"_output", result.Output)
	}
	sum.Duration += result.Duration

	switch result.Status {
	case state.StatusCompleted:
		sum.Completed++
	case state.StatusFailed:
		sum.Failed++
	case state.StatusSkipped:
		sum.Skipped++
	}
	e.reporter().StepFinished(step, result)
	e.logger().Debug("step finished", "step", step.ID, "status", result.Status, "duration", result.Duration)

	if trace != nil {
		if err := trace.Write(e.State, result); err != nil {
			return fmt.Errorf("write trace for step %q: %w", step.ID, err)
		}
	}
	if !e.Options.DryRun {
		if _, err := e.State.Save(e.statePath); err != nil {
			return fmt.Errorf("save state for step %q: %w", step.ID, err)
		}
	}
	return nil
}
