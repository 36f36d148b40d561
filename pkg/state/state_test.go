package state

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterpolateMissingNilAndPresent(t *testing.T) {
	c := New("skill", "slug")

	assert.Equal(t, "${x}", c.Interpolate("${x}"), "absent variable keeps its placeholder")
	assert.Equal(t, "{{ x }}", c.Interpolate("{{ x }}"))

	c.Set("x", nil)
	assert.Equal(t, "", c.Interpolate("${x}"), "nil variable blanks its placeholder")
	assert.Equal(t, "[]", c.Interpolate("[{{x}}]"))

	c.Set("x", "42")
	assert.Equal(t, "42", c.Interpolate("${x}"))
	assert.Equal(t, "42/42", c.Interpolate("${x}/{{ x }}"))
}

func TestInterpolateWithoutPlaceholdersIsIdentity(t *testing.T) {
	c := New("skill", "slug")
	c.Set("a", "1")
	for _, s := range []string{"", "plain text", "$x {x} {{", "echo $HOME && awk '{print $1}'", "${unterminated"} {
		assert.Equal(t, s, c.Interpolate(s))
	}
}

func TestInterpolateRunsDollarPassFirst(t *testing.T) {
	c := New("skill", "slug")
	c.Set("inner", "{{target}}")
	c.Set("target", "resolved")
	assert.Equal(t, "resolved", c.Interpolate("${inner}"))
}

func TestInterpolateValueForms(t *testing.T) {
	c := New("skill", "slug")
	c.Set("n", 3)
	c.Set("f", 2.5)
	c.Set("whole", float64(7))
	c.Set("flag", true)
	c.Set("list", []any{"a", "b"})
	assert.Equal(t, "3 2.5 7 true", c.Interpolate("${n} ${f} ${whole} ${flag}"))
	assert.Equal(t, `["a","b"]`, c.Interpolate("${list}"))
}

func TestRecordStepResultPublishesOutput(t *testing.T) {
	c := New("skill", "slug")

	c.RecordStepResult(&StepResult{StepID: "build", Status: StatusFailed})
	_, ok := c.Variables[OutputVar("build")]
	assert.False(t, ok, "empty output publishes nothing")

	c.RecordStepResult(&StepResult{StepID: "build", Status: StatusCompleted, Output: "ok"})
	assert.Equal(t, "ok", c.Get("step_build_output", nil))
	assert.True(t, c.IsStepCompleted("build"))
	assert.Len(t, c.StepResults, 1, "re-recording overwrites the ledger entry")
	assert.NotNil(t, c.StepResult("build").Metadata)
}

func TestPendingAndCompletedSteps(t *testing.T) {
	c := New("skill", "slug")
	c.RecordStepResult(&StepResult{StepID: "a", Status: StatusCompleted})
	c.RecordStepResult(&StepResult{StepID: "b", Status: StatusFailed})
	c.RecordStepResult(&StepResult{StepID: "c", Status: StatusSkipped})

	ids := []string{"a", "b", "c", "d"}
	assert.Equal(t, []string{"b", "c", "d"}, c.PendingSteps(ids))
	assert.Equal(t, []string{"a"}, c.CompletedSteps(ids))
	assert.False(t, c.IsStepCompleted("d"))
}

func TestSummaryCounts(t *testing.T) {
	c := New("review", "240101-review")
	c.CurrentStepID = "b"
	c.RecordStepResult(&StepResult{StepID: "a", Status: StatusCompleted})
	c.RecordStepResult(&StepResult{StepID: "b", Status: StatusFailed})
	c.RecordStepResult(&StepResult{StepID: "c", Status: StatusSkipped})

	s := c.Summary()
	assert.Equal(t, "review", s.SkillName)
	assert.Equal(t, "240101-review", s.TaskSlug)
	assert.Equal(t, "b", s.CurrentStep)
	assert.Equal(t, 1, s.StepsCompleted)
	assert.Equal(t, 1, s.StepsFailed)
	assert.Equal(t, 3, s.StepsTotal)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs", "run.json")

	c := New("review", "240101-fix-bug")
	c.Set("task", "fix bug")
	c.Set("nothing", nil)
	c.CurrentStepID = "lint"
	c.RecordStepResult(&StepResult{
		StepID:   "lint",
		Status:   StatusCompleted,
		Output:   "clean",
		Duration: 1500 * time.Millisecond,
		Metadata: map[string]any{"return_code": float64(0)},
	})

	saved, err := c.Save(path)
	require.NoError(t, err)
	assert.Equal(t, path, saved)

	loaded, err := Load(saved)
	require.NoError(t, err)
	assert.Equal(t, c.SkillName, loaded.SkillName)
	assert.Equal(t, c.TaskSlug, loaded.TaskSlug)
	assert.Equal(t, c.CurrentStepID, loaded.CurrentStepID)
	assert.Equal(t, c.Variables, loaded.Variables)
	assert.Equal(t, c.StepResults, loaded.StepResults)
	assert.True(t, c.StartedAt.Equal(loaded.StartedAt))
	assert.True(t, c.UpdatedAt.Equal(loaded.UpdatedAt))
	assert.Equal(t, path, loaded.Path())

	_, ok := loaded.Variables["nothing"]
	assert.True(t, ok, "nil variables survive persistence")
}

func TestSaveDocumentShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.json")
	c := New("review", "slug")
	c.RecordStepResult(&StepResult{StepID: "s", Status: StatusSkipped, Duration: 2 * time.Second})
	_, err := c.Save(path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))

	for _, key := range []string{"skill_name", "task_slug", "variables", "step_results", "current_step_id", "started_at", "updated_at"} {
		assert.Contains(t, doc, key)
	}
	step := doc["step_results"].(map[string]any)["s"].(map[string]any)
	assert.Equal(t, "skipped", step["status"])
	assert.Equal(t, float64(2), step["duration"])
	assert.Equal(t, map[string]any{}, step["metadata"])
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.json")
	c := New("s", "slug")
	for i := 0; i < 3; i++ {
		c.Set("i", i)
		_, err := c.Save(path)
		require.NoError(t, err)
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "run.json", entries[0].Name())
}

func TestSaveWithoutPath(t *testing.T) {
	c := New("s", "slug")
	_, err := c.Save("")
	assert.ErrorIs(t, err, ErrNoPath)

	path := filepath.Join(t.TempDir(), "run.json")
	_, err = c.Save(path)
	require.NoError(t, err)
	again, err := c.Save("")
	require.NoError(t, err)
	assert.Equal(t, path, again)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))
	_, err := Load(path)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}
