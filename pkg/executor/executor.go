// Package executor runs shell command lines for step capabilities, gate
// checks and the bash tool.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/ormasoftchile/skillrun/pkg/governance"
)

// ErrTimeout is returned when a command exceeds its timeout.
var ErrTimeout = errors.New("command timed out")

// Result holds the output of a single command execution.
type Result struct {
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
}

// Success reports whether the command exited with status 0.
func (r *Result) Success() bool { return r != nil && r.ExitCode == 0 }

// CommandExecutor abstracts shell execution so capabilities can be tested
// with scripted results.
type CommandExecutor interface {
	// Run executes command through the platform shell. A non-zero exit is
	// not an error; it is reported in Result.ExitCode. A timeout of zero
	// means no limit.
	Run(ctx context.Context, command string, timeout time.Duration) (*Result, error)
}

// Shell runs commands with sh -c (cmd.exe /C on Windows).
type Shell struct {
	Dir string
	Env []string
}

// Run implements CommandExecutor.
func (s *Shell) Run(ctx context.Context, command string, timeout time.Duration) (*Result, error) {
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	cmd := shellCommand(runCtx, command)
	cmd.Dir = s.Dir
	if len(s.Env) > 0 {
		cmd.Env = s.Env
	}
	// Background children can hold the pipes open after the shell exits.
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	duration := time.Since(start)

	if ctxErr := runCtx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		return nil, ctxErr
	}

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("execute command %q: %w", command, err)
		}
	}

	return &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode,
		Duration: duration,
	}, nil
}

func shellCommand(ctx context.Context, command string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.CommandContext(ctx, "cmd.exe", "/C", command)
	}
	return exec.CommandContext(ctx, "sh", "-c", command)
}

// Governed applies a governance policy around another executor: command
// lines are checked before they run and output is redacted afterwards.
type Governed struct {
	Next   CommandExecutor
	Policy *governance.Policy
}

// Run implements CommandExecutor.
func (g *Governed) Run(ctx context.Context, command string, timeout time.Duration) (*Result, error) {
	if g.Policy != nil {
		if err := g.Policy.Rules.CheckShellCommand(command); err != nil {
			return nil, err
		}
	}
	res, err := g.Next.Run(ctx, command, timeout)
	if err != nil || res == nil {
		return res, err
	}
	res.Stdout = g.Policy.Redacted(res.Stdout)
	res.Stderr = g.Policy.Redacted(res.Stderr)
	return res, nil
}

// New returns a shell executor rooted at dir. With a non-nil policy, the
// process environment is filtered through its deny_env_vars patterns and
// the shell is wrapped in Governed. The names of blocked variables are
// returned so callers can log them.
func New(dir string, pol *governance.Policy) (CommandExecutor, []string) {
	sh := &Shell{Dir: dir}
	if pol == nil || pol.Rules.Permissive() && len(pol.Redact) == 0 {
		return sh, nil
	}
	env, blocked := pol.Rules.FilterEnvVars(os.Environ())
	if len(blocked) > 0 {
		sh.Env = env
	}
	return &Governed{Next: sh, Policy: pol}, blocked
}

// Func adapts a function to CommandExecutor.
type Func func(ctx context.Context, command string, timeout time.Duration) (*Result, error)

// Run implements CommandExecutor.
func (f Func) Run(ctx context.Context, command string, timeout time.Duration) (*Result, error) {
	return f(ctx, command, timeout)
}
