// Package runtime drives a skill run: it walks the steps in order, applies
// dependency and when guards, dispatches each step to its capability and
// persists the run after every step.
package runtime

import (
	"time"

	"github.com/ormasoftchile/skillrun/pkg/schema"
	"github.com/ormasoftchile/skillrun/pkg/state"
)

// Summary is the outcome of one Engine.Run.
type Summary struct {
	Skill     string        `json:"skill"`
	TaskSlug  string        `json:"task_slug"`
	Total     int           `json:"total"`
	Completed int           `json:"completed"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Duration  time.Duration `json:"duration"`
	StatePath string        `json:"state_path,omitempty"`
	Halted    bool          `json:"halted,omitempty"`
}

// OK reports whether no step failed.
func (s *Summary) OK() bool { return s.Failed == 0 }

// Reporter receives progress events during a run.
type Reporter interface {
	StepStarted(index, total int, step schema.Step)
	StepFinished(step schema.Step, result *state.StepResult)
	Warn(message string)
	Finished(summary Summary)
}

type nopReporter struct{}

func (nopReporter) StepStarted(int, int, schema.Step)           {}
func (nopReporter) StepFinished(schema.Step, *state.StepResult) {}
func (nopReporter) Warn(string)                                 {}
func (nopReporter) Finished(Summary)                            {}

// TraceEvent wraps a StepResult for JSONL trace output.
type TraceEvent struct {
	Type      string            `json:"type"` // step_result
	Timestamp time.Time         `json:"timestamp"`
	Skill     string            `json:"skill"`
	TaskSlug  string            `json:"task_slug"`
	Result    *state.StepResult `json:"result"`
}
