// Package governance implements command allowlist/denylist, output redaction,
// and environment variable blocking for shell executions.
package governance

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ormasoftchile/skillrun/pkg/schema"
)

// ErrDenied is wrapped by every policy rejection.
var ErrDenied = errors.New("denied by governance policy")

// Rules are the command and environment restrictions of a skill.
type Rules struct {
	AllowedCommands []string
	DeniedCommands  []string
	DenyEnvVars     []string
}

// NewRules copies the restrictions out of a governance block. A nil block
// permits everything.
func NewRules(policy *schema.GovernancePolicy) *Rules {
	if policy == nil {
		return &Rules{}
	}
	return &Rules{
		AllowedCommands: policy.AllowedCommands,
		DeniedCommands:  policy.DeniedCommands,
		DenyEnvVars:     policy.DenyEnvVars,
	}
}

// Permissive reports whether no restriction is configured.
func (r *Rules) Permissive() bool {
	return r == nil || (len(r.AllowedCommands) == 0 && len(r.DeniedCommands) == 0 && len(r.DenyEnvVars) == 0)
}

// CheckCommand validates a program name against the allowlist/denylist.
// Deny takes precedence over allow.
func (r *Rules) CheckCommand(command string) error {
	if r == nil {
		return nil
	}
	name := filepath.Base(command)

	for _, denied := range r.DeniedCommands {
		if name == denied {
			return fmt.Errorf("command %q: %w", name, ErrDenied)
		}
	}

	if len(r.AllowedCommands) > 0 {
		for _, allowed := range r.AllowedCommands {
			if name == allowed {
				return nil
			}
		}
		return fmt.Errorf("command %q is not in the governance allowlist: %w", name, ErrDenied)
	}

	return nil
}

// CheckShellCommand checks the program of every segment of a shell command
// line, where segments are separated by pipes, ';', '&&' and '||'.
func (r *Rules) CheckShellCommand(line string) error {
	if r == nil || (len(r.AllowedCommands) == 0 && len(r.DeniedCommands) == 0) {
		return nil
	}
	for _, prog := range CommandNames(line) {
		if err := r.CheckCommand(prog); err != nil {
			return err
		}
	}
	return nil
}

// CommandNames returns the program name of each segment of a shell command
// line. Leading VAR=value assignments are skipped. Quoting is not parsed.
func CommandNames(line string) []string {
	segments := strings.FieldsFunc(line, func(r rune) bool {
		return r == '|' || r == ';' || r == '&' || r == '\n'
	})
	var names []string
	for _, seg := range segments {
		for _, f := range strings.Fields(seg) {
			if strings.Contains(f, "=") && !strings.HasPrefix(f, "=") {
				continue
			}
			f = strings.Trim(f, "()")
			if f == "" {
				continue
			}
			names = append(names, f)
			break
		}
	}
	return names
}

// CheckEnvVar validates an environment variable name against deny_env_vars patterns.
func (r *Rules) CheckEnvVar(name string) error {
	if r == nil {
		return nil
	}
	for _, pattern := range r.DenyEnvVars {
		matched, err := filepath.Match(pattern, name)
		if err != nil {
			// Invalid pattern blocks.
			return fmt.Errorf("invalid env var deny pattern %q: %w", pattern, err)
		}
		if matched {
			return fmt.Errorf("environment variable %q matches pattern %q: %w", name, pattern, ErrDenied)
		}
	}
	return nil
}
