package schema

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestValidateReportsAllProblems checks that every structural problem is
// collected instead of stopping at the first.
func TestValidateReportsAllProblems(t *testing.T) {
	sk := &Skill{
		Prompts: map[string]string{"known": "body"},
		Steps: []Step{
			{ID: "a", Name: "A"},
			{ID: "a", Name: "A again"},
			{Name: "nameless"},
			{ID: "p", PromptRef: "#unknown"},
			{ID: "d", Dependencies: []string{"ghost"}},
		},
	}

	errs := Validate(sk)
	assert.Equal(t, []string{
		"Skill name is required",
		"Skill version is required",
		"Duplicate step ID: a",
		"Step ID is required for step: nameless",
		"Step 'p' references undefined prompt: unknown",
		"Step 'd' has undefined dependency: ghost",
	}, errs)
}

// TestValidateAcceptsForwardDependencies checks dependencies are resolved
// against the full step set, not only the steps seen so far.
func TestValidateAcceptsForwardDependencies(t *testing.T) {
	sk := &Skill{
		Name:    "fwd",
		Version: "1.0",
		Steps: []Step{
			{ID: "first", Dependencies: []string{"second"}},
			{ID: "second"},
		},
	}
	assert.Empty(t, Validate(sk))
}

func TestValidateWhenExpression(t *testing.T) {
	sk := &Skill{
		Name:    "guarded",
		Version: "1.0",
		Steps: []Step{
			{ID: "ok", When: `mode == "full"`},
			{ID: "bad", When: `mode ==`},
		},
	}
	errs := Validate(sk)
	require.Len(t, errs, 1)
	assert.True(t, strings.HasPrefix(errs[0], "Step 'bad' has invalid when expression"), errs[0])
}

func TestValidateSemanticRejectsUnknownStepType(t *testing.T) {
	sk := &Skill{
		Name:    "bad-type",
		Version: "1.0",
		Steps:   []Step{{ID: "s1", Name: "s1", Type: "teleport", OnFailure: OnFailureAbort, Timeout: 10}},
	}
	errs := ValidateSemantic(sk)
	require.NotEmpty(t, errs)
	assert.Equal(t, "semantic", errs[0].Phase)
	assert.Contains(t, errs[0].Path, "steps")
}

func TestValidateSemanticAcceptsValidSkill(t *testing.T) {
	sk, err := Load(strings.NewReader(`
name: ok
version: "1.0"
steps:
  - id: ask
    type: user_input
    options:
      - {id: yes, label: "Yes"}
  - id: gate
    type: gate_check
    validation: "true"
    on_failure: retry
`))
	require.NoError(t, err)
	assert.Empty(t, ValidateSemantic(sk))
}

func TestValidateFilePipeline(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dup.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: dup
version: "1.0"
steps:
  - id: a
    command: echo a
  - id: a
    command: echo b
`), 0644))

	sk, errs := ValidateFile(path, dir)
	require.NotNil(t, sk)
	require.Len(t, errs, 1)
	assert.Equal(t, "domain", errs[0].Phase)
	assert.Equal(t, "[domain] Duplicate step ID: a", errs[0].Error())

	_, errs = ValidateFile(filepath.Join(dir, "absent.yaml"), dir)
	require.Len(t, errs, 1)
	assert.Equal(t, "structural", errs[0].Phase)
}

func TestGenerateJSONSchema(t *testing.T) {
	data, err := GenerateJSONSchema()
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "Skill Definition v1", doc["title"])
	assert.Contains(t, string(data), `"gate_check"`)
	assert.Contains(t, string(data), `"ask"`)
}
