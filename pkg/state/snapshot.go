package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// snapshot is the persisted document.
type snapshot struct {
	SkillName     string                 `json:"skill_name"`
	TaskSlug      string                 `json:"task_slug"`
	Variables     map[string]any         `json:"variables"`
	StepResults   map[string]*StepResult `json:"step_results"`
	CurrentStepID string                 `json:"current_step_id"`
	StartedAt     time.Time              `json:"started_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

// Save writes the Context to path, or to the location of the last save or
// load when path is empty. The document is written to a temporary file in
// the same directory and renamed over the destination, so readers never
// observe a partial snapshot.
func (c *Context) Save(path string) (string, error) {
	if path == "" {
		path = c.path
	}
	if path == "" {
		return "", ErrNoPath
	}

	data, err := json.MarshalIndent(snapshot{
		SkillName:     c.SkillName,
		TaskSlug:      c.TaskSlug,
		Variables:     c.Variables,
		StepResults:   c.StepResults,
		CurrentStepID: c.CurrentStepID,
		StartedAt:     c.StartedAt,
		UpdatedAt:     c.UpdatedAt,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := atomicWrite(path, data); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	c.path = path
	return path, nil
}

func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename temp file to %s: %w", path, err)
	}
	return nil
}

// Load reconstructs a Context from a snapshot file. A missing file yields
// an error matching ErrNotFound.
func Load(path string) (*Context, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s: %w", ErrNotFound, path, err)
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	c := &Context{
		SkillName:     snap.SkillName,
		TaskSlug:      snap.TaskSlug,
		Variables:     snap.Variables,
		StepResults:   make(map[string]*StepResult, len(snap.StepResults)),
		CurrentStepID: snap.CurrentStepID,
		StartedAt:     snap.StartedAt,
		UpdatedAt:     snap.UpdatedAt,
		path:          path,
		now:           time.Now,
	}
	if c.Variables == nil {
		c.Variables = make(map[string]any)
	}
	for id, r := range snap.StepResults {
		if r == nil {
			continue
		}
		if r.StepID == "" {
			r.StepID = id
		}
		c.StepResults[id] = r
	}
	return c, nil
}
