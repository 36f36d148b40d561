// Package schema defines the Go struct types for skill definitions
// and provides strict YAML parsing.
package schema

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultStepTimeout is applied to steps that do not declare a timeout.
const DefaultStepTimeout = 120

// StepType selects the capability that executes a step.
type StepType string

const (
	StepCommand   StepType = "command"
	StepGateCheck StepType = "gate_check"
	StepUserInput StepType = "user_input"
	StepPrompt    StepType = "prompt"
)

// OnFailure is the failure policy of a gate check.
type OnFailure string

const (
	OnFailureAbort OnFailure = "abort"
	OnFailureRetry OnFailure = "retry"
	OnFailureSkip  OnFailure = "skip"
	OnFailureAsk   OnFailure = "ask"
)

// Resolve maps an empty or unrecognized policy to abort.
func (f OnFailure) Resolve() OnFailure {
	switch f {
	case OnFailureRetry, OnFailureSkip, OnFailureAsk:
		return f
	default:
		return OnFailureAbort
	}
}

// Skill is a named, versioned workflow of ordered steps and prompt bodies.
type Skill struct {
	Name        string            `yaml:"name"                  json:"name"        jsonschema:"required"`
	Version     string            `yaml:"version"               json:"version"     jsonschema:"required"`
	Description string            `yaml:"description,omitempty" json:"description,omitempty"`
	Triggers    Triggers          `yaml:"triggers,omitempty"    json:"triggers,omitempty"`
	Steps       []Step            `yaml:"steps,omitempty"       json:"steps,omitempty"`
	Prompts     map[string]string `yaml:"prompts,omitempty"     json:"prompts,omitempty"`
	Governance  *GovernancePolicy `yaml:"governance,omitempty"  json:"governance,omitempty"`

	// Source is the file the skill was loaded from.
	Source string `yaml:"-" json:"-"`
}

// Triggers lists the slash commands and keywords that select a skill.
type Triggers struct {
	Commands []string `yaml:"commands,omitempty" json:"commands,omitempty"`
	Keywords []string `yaml:"keywords,omitempty" json:"keywords,omitempty"`
}

// Step is a single unit of work. Type determines which fields apply:
// command for StepCommand, validation and on_failure for StepGateCheck,
// options for StepUserInput and prompt_ref for StepPrompt.
type Step struct {
	ID           string    `yaml:"id"                     json:"id"`
	Name         string    `yaml:"name,omitempty"         json:"name,omitempty"`
	Type         StepType  `yaml:"type,omitempty"         json:"type,omitempty"         jsonschema:"enum=command,enum=gate_check,enum=user_input,enum=prompt"`
	PromptRef    string    `yaml:"prompt_ref,omitempty"   json:"prompt_ref,omitempty"`
	Command      string    `yaml:"command,omitempty"      json:"command,omitempty"`
	Validation   string    `yaml:"validation,omitempty"   json:"validation,omitempty"`
	OnFailure    OnFailure `yaml:"on_failure,omitempty"   json:"on_failure,omitempty"   jsonschema:"enum=abort,enum=retry,enum=skip,enum=ask"`
	Options      []Option  `yaml:"options,omitempty"      json:"options,omitempty"`
	Dependencies []string  `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`
	Timeout      int       `yaml:"timeout,omitempty"      json:"timeout,omitempty"      jsonschema:"minimum=0"`
	When         string    `yaml:"when,omitempty"         json:"when,omitempty"`
}

// Option is one selectable answer of a user-input step.
type Option struct {
	ID          string `yaml:"id"                    json:"id"    jsonschema:"required"`
	Label       string `yaml:"label"                 json:"label" jsonschema:"required"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// GovernancePolicy restricts what command, gate and tool executions may run.
type GovernancePolicy struct {
	AllowedCommands []string        `yaml:"allowed_commands,omitempty" json:"allowed_commands,omitempty"`
	DeniedCommands  []string        `yaml:"denied_commands,omitempty"  json:"denied_commands,omitempty"`
	DenyEnvVars     []string        `yaml:"deny_env_vars,omitempty"    json:"deny_env_vars,omitempty"`
	Redact          []RedactionRule `yaml:"redact,omitempty"           json:"redact,omitempty"`
}

// RedactionRule is a regex pattern-replacement pair for sanitizing output.
type RedactionRule struct {
	Pattern string `yaml:"pattern" json:"pattern" jsonschema:"required"`
	Replace string `yaml:"replace" json:"replace" jsonschema:"required"`
}

// TimeoutDuration returns the step timeout, defaulting to DefaultStepTimeout seconds.
func (s Step) TimeoutDuration() time.Duration {
	return time.Duration(s.TimeoutSeconds()) * time.Second
}

// TimeoutSeconds returns the configured timeout in whole seconds.
func (s Step) TimeoutSeconds() int {
	if s.Timeout <= 0 {
		return DefaultStepTimeout
	}
	return s.Timeout
}

// Step returns the step with the given ID, or nil.
func (sk *Skill) Step(id string) *Step {
	for i := range sk.Steps {
		if sk.Steps[i].ID == id {
			return &sk.Steps[i]
		}
	}
	return nil
}

// StepIDs returns the step IDs in document order.
func (sk *Skill) StepIDs() []string {
	ids := make([]string, 0, len(sk.Steps))
	for _, s := range sk.Steps {
		ids = append(ids, s.ID)
	}
	return ids
}

// PromptBody looks up a named prompt. A leading '#' on ref is ignored.
func (sk *Skill) PromptBody(ref string) (string, bool) {
	body, ok := sk.Prompts[NormalizePromptRef(ref)]
	return body, ok && body != ""
}

// NormalizePromptRef strips the leading '#' markers from a prompt reference.
func NormalizePromptRef(ref string) string {
	return strings.TrimLeft(ref, "#")
}

// ApplyDefaults fills in the implicit values of every step.
func (sk *Skill) ApplyDefaults() {
	for i := range sk.Steps {
		s := &sk.Steps[i]
		if s.Name == "" {
			s.Name = s.ID
		}
		if s.Type == "" {
			s.Type = StepCommand
		}
		if s.OnFailure == "" {
			s.OnFailure = OnFailureAbort
		}
		if s.Timeout == 0 {
			s.Timeout = DefaultStepTimeout
		}
	}
	if sk.Prompts == nil {
		sk.Prompts = make(map[string]string)
	}
}

// LoadFile parses a skill YAML file.
func LoadFile(path string) (*Skill, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open skill: %w", err)
	}
	defer f.Close()
	sk, err := Load(f)
	if err != nil {
		return nil, err
	}
	sk.Source = path
	return sk, nil
}

// Load parses a skill from an io.Reader with strict unknown-field rejection.
func Load(r io.Reader) (*Skill, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var sk Skill
	if err := dec.Decode(&sk); err != nil {
		return nil, fmt.Errorf("decode skill: %w", err)
	}
	sk.ApplyDefaults()
	return &sk, nil
}
