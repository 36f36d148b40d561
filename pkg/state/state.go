// Package state holds the per-run variable store and step-result ledger,
// and persists them as a single JSON snapshot.
package state

import (
	"encoding/json"
	"errors"
	"math"
	"time"
)

// StepStatus is the lifecycle state of a step.
type StepStatus string

const (
	StatusPending    StepStatus = "pending"
	StatusInProgress StepStatus = "in_progress"
	StatusCompleted  StepStatus = "completed"
	StatusFailed     StepStatus = "failed"
	StatusSkipped    StepStatus = "skipped"
)

var (
	// ErrNotFound is returned by Load when the snapshot file does not exist.
	ErrNotFound = errors.New("state file not found")
	// ErrNoPath is returned by Save when neither an argument nor a previous
	// save or load supplied a location.
	ErrNoPath = errors.New("no state file path specified")
)

// StepResult is the uniform outcome of executing one step.
type StepResult struct {
	StepID   string
	Status   StepStatus
	Output   string
	Error    string
	Duration time.Duration
	Metadata map[string]any
}

// NewStepResult returns a pending result with an empty metadata map.
func NewStepResult(stepID string) *StepResult {
	return &StepResult{
		StepID:   stepID,
		Status:   StatusPending,
		Metadata: make(map[string]any),
	}
}

// stepResultJSON is the persisted shape; duration is in seconds.
type stepResultJSON struct {
	StepID   string         `json:"step_id"`
	Status   StepStatus     `json:"status"`
	Output   string         `json:"output"`
	Error    string         `json:"error"`
	Duration float64        `json:"duration"`
	Metadata map[string]any `json:"metadata"`
}

func (r StepResult) MarshalJSON() ([]byte, error) {
	md := r.Metadata
	if md == nil {
		md = map[string]any{}
	}
	return json.Marshal(stepResultJSON{
		StepID:   r.StepID,
		Status:   r.Status,
		Output:   r.Output,
		Error:    r.Error,
		Duration: r.Duration.Seconds(),
		Metadata: md,
	})
}

func (r *StepResult) UnmarshalJSON(data []byte) error {
	var raw stepResultJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Status == "" {
		raw.Status = StatusPending
	}
	if raw.Metadata == nil {
		raw.Metadata = make(map[string]any)
	}
	*r = StepResult{
		StepID:   raw.StepID,
		Status:   raw.Status,
		Output:   raw.Output,
		Error:    raw.Error,
		Duration: time.Duration(math.Round(raw.Duration * float64(time.Second))),
		Metadata: raw.Metadata,
	}
	return nil
}

// Context is the state of one skill run: variables, the step-result
// ledger and the location of its snapshot.
type Context struct {
	SkillName     string
	TaskSlug      string
	Variables     map[string]any
	StepResults   map[string]*StepResult
	CurrentStepID string
	StartedAt     time.Time
	UpdatedAt     time.Time

	path string
	now  func() time.Time
}

// New creates an empty Context for a fresh run.
func New(skillName, taskSlug string) *Context {
	c := &Context{
		SkillName:   skillName,
		TaskSlug:    taskSlug,
		Variables:   make(map[string]any),
		StepResults: make(map[string]*StepResult),
		now:         time.Now,
	}
	c.StartedAt = c.now()
	c.UpdatedAt = c.StartedAt
	return c
}

func (c *Context) touch() {
	if c.now == nil {
		c.now = time.Now
	}
	c.UpdatedAt = c.now()
}

// Set stores a variable, overwriting any previous value.
func (c *Context) Set(name string, value any) {
	c.Variables[name] = value
	c.touch()
}

// Get returns the variable value, or def when it is absent. A variable
// explicitly set to nil is present and returns nil.
func (c *Context) Get(name string, def any) any {
	if v, ok := c.Variables[name]; ok {
		return v
	}
	return def
}

// RecordStepResult overwrites the ledger entry for the result's step and
// publishes a non-empty output as step_<id>_output.
func (c *Context) RecordStepResult(r *StepResult) {
	if r.Metadata == nil {
		r.Metadata = make(map[string]any)
	}
	c.StepResults[r.StepID] = r
	c.touch()

	if r.Output != "" {
		c.Set(OutputVar(r.StepID), r.Output)
	}
}

// OutputVar names the variable that carries a step's output.
func OutputVar(stepID string) string {
	return "step_" + stepID + "_output"
}

// StepResult returns the recorded result for a step, or nil.
func (c *Context) StepResult(id string) *StepResult {
	return c.StepResults[id]
}

// IsStepCompleted reports whether the step finished with status completed.
func (c *Context) IsStepCompleted(id string) bool {
	r, ok := c.StepResults[id]
	return ok && r.Status == StatusCompleted
}

// CompletedSteps returns the IDs of completed steps in ids order.
func (c *Context) CompletedSteps(ids []string) []string {
	var out []string
	for _, id := range ids {
		if c.IsStepCompleted(id) {
			out = append(out, id)
		}
	}
	return out
}

// PendingSteps returns the IDs in ids that are not completed, in order.
func (c *Context) PendingSteps(ids []string) []string {
	var out []string
	for _, id := range ids {
		if !c.IsStepCompleted(id) {
			out = append(out, id)
		}
	}
	return out
}

// Path returns the location of the last save or load.
func (c *Context) Path() string {
	return c.path
}

// Summary is a compact view of a run for status reporting.
type Summary struct {
	SkillName      string    `json:"skill_name"`
	TaskSlug       string    `json:"task_slug"`
	CurrentStep    string    `json:"current_step"`
	StepsCompleted int       `json:"steps_completed"`
	StepsFailed    int       `json:"steps_failed"`
	StepsTotal     int       `json:"steps_total"`
	StartedAt      time.Time `json:"started_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Summary counts the ledger entries by status.
func (c *Context) Summary() Summary {
	s := Summary{
		SkillName:   c.SkillName,
		TaskSlug:    c.TaskSlug,
		CurrentStep: c.CurrentStepID,
		StepsTotal:  len(c.StepResults),
		StartedAt:   c.StartedAt,
		UpdatedAt:   c.UpdatedAt,
	}
	for _, r := range c.StepResults {
		switch r.Status {
		case StatusCompleted:
			s.StepsCompleted++
		case StatusFailed:
			s.StepsFailed++
		}
	}
	return s
}
