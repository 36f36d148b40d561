package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// ValidationError represents a single validation error with location context.
type ValidationError struct {
	Phase    string `json:"phase"` // structural, semantic, domain
	Path     string `json:"path"`  // JSON-path-like location (e.g., "steps/0/type")
	Message  string `json:"message"`
	Severity string `json:"severity"` // error, warning
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("[%s] %s", e.Phase, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Phase, e.Path, e.Message)
}

// Validate checks the structure of a skill and returns every problem found.
// An empty result means the skill is valid. Problems are never fatal; the
// caller decides whether to run anyway.
func Validate(sk *Skill) []string {
	var errs []string

	if sk.Name == "" {
		errs = append(errs, "Skill name is required")
	}
	if sk.Version == "" {
		errs = append(errs, "Skill version is required")
	}

	ids := make(map[string]bool, len(sk.Steps))
	for _, s := range sk.Steps {
		if s.ID == "" {
			errs = append(errs, fmt.Sprintf("Step ID is required for step: %s", s.Name))
		}
		if ids[s.ID] {
			errs = append(errs, fmt.Sprintf("Duplicate step ID: %s", s.ID))
		}
		ids[s.ID] = true

		if s.PromptRef != "" {
			ref := NormalizePromptRef(s.PromptRef)
			if _, ok := sk.Prompts[ref]; !ok {
				errs = append(errs, fmt.Sprintf("Step '%s' references undefined prompt: %s", s.ID, ref))
			}
		}

		if s.When != "" {
			if _, err := expr.Compile(s.When, expr.AllowUndefinedVariables(), expr.AsBool()); err != nil {
				errs = append(errs, fmt.Sprintf("Step '%s' has invalid when expression: %v", s.ID, err))
			}
		}
	}

	// Dependencies are checked against the complete ID set so forward
	// references are accepted.
	for _, s := range sk.Steps {
		for _, dep := range s.Dependencies {
			if !ids[dep] {
				errs = append(errs, fmt.Sprintf("Step '%s' has undefined dependency: %s", s.ID, dep))
			}
		}
	}

	return errs
}

// ValidateFile performs the full 3-phase validation pipeline on a skill.
// Phase 1: Structural (strict YAML decode of the file or SKILL.md)
// Phase 2: Semantic (JSON Schema validation)
// Phase 3: Domain (Validate)
func ValidateFile(ref, dir string) (*Skill, []*ValidationError) {
	sk, err := Resolve(ref, dir)
	if err != nil {
		return nil, []*ValidationError{{
			Phase:    "structural",
			Message:  err.Error(),
			Severity: "error",
		}}
	}

	allErrors := ValidateSemantic(sk)
	for _, msg := range Validate(sk) {
		allErrors = append(allErrors, &ValidationError{
			Phase:    "domain",
			Message:  msg,
			Severity: "error",
		})
	}

	if len(allErrors) > 0 {
		return sk, allErrors
	}
	return sk, nil
}

// ValidateSemantic validates the skill against the generated JSON Schema.
func ValidateSemantic(sk *Skill) []*ValidationError {
	semanticErr := func(format string, args ...any) []*ValidationError {
		return []*ValidationError{{
			Phase:    "semantic",
			Message:  fmt.Sprintf(format, args...),
			Severity: "error",
		}}
	}

	data, err := json.Marshal(sk)
	if err != nil {
		return semanticErr("marshal for schema validation: %v", err)
	}
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return semanticErr("unmarshal document: %v", err)
	}

	sch, err := compiledSkillSchema()
	if err != nil {
		return semanticErr("%v", err)
	}

	if err := sch.Validate(doc); err != nil {
		ve, ok := err.(*sjsonschema.ValidationError)
		if !ok {
			return semanticErr("%v", err)
		}
		var errs []*ValidationError
		for _, cause := range flattenValidationErrors(ve) {
			errs = append(errs, &ValidationError{
				Phase:    "semantic",
				Path:     strings.Join(cause.InstanceLocation, "/"),
				Message:  fmt.Sprintf("%v", cause.ErrorKind),
				Severity: "error",
			})
		}
		return errs
	}
	return nil
}

func compiledSkillSchema() (*sjsonschema.Schema, error) {
	schemaJSON, err := GenerateJSONSchema()
	if err != nil {
		return nil, fmt.Errorf("generate schema: %w", err)
	}
	schemaDoc, err := sjsonschema.UnmarshalJSON(strings.NewReader(string(schemaJSON)))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	c := sjsonschema.NewCompiler()
	if err := c.AddResource("skill-v1.json", schemaDoc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	sch, err := c.Compile("skill-v1.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return sch, nil
}

// flattenValidationErrors recursively collects all leaf validation errors.
func flattenValidationErrors(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flattenValidationErrors(cause)...)
	}
	return flat
}
