package pipeline

import (
	"time"

	"github.com/google/uuid"
	"github.com/lehigh-university-libraries/colmap2mesh/internal/colmap"
)

// Status is the lifecycle state of one stage within a run.
type Status string

// Supported stage statuses.
const (
	StatusNotStarted Status = "not-started"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
	StatusSkipped    Status = "skipped"
)

// StageResult records what happened to one stage.
type StageResult struct {
	Name     string
	Status   Status
	Duration time.Duration
}

// Run is the state of a single pipeline invocation. It lives only as long
// as the process.
type Run struct {
	ID          string
	Stages      []StageResult
	FinalOutput string

	// Resumed is set when the final artifact already existed and no stage ran.
	Resumed bool

	ImageCount int
	Warnings   []colmap.ModelWarning
}

func newRun(finalOutput string, textured bool) *Run {
	r := &Run{
		ID:          uuid.NewString(),
		FinalOutput: finalOutput,
	}
	for _, name := range StageOrder {
		status := StatusNotStarted
		if name == StageTexture && !textured {
			status = StatusSkipped
		}
		r.Stages = append(r.Stages, StageResult{Name: name, Status: status})
	}
	return r
}

// Status returns the status of the named stage.
func (r *Run) Status(name string) Status {
	for _, s := range r.Stages {
		if s.Name == name {
			return s.Status
		}
	}
	return StatusNotStarted
}

func (r *Run) set(name string, status Status, d time.Duration) {
	for i := range r.Stages {
		if r.Stages[i].Name == name {
			r.Stages[i].Status = status
			r.Stages[i].Duration = d
			return
		}
	}
}

// Executed returns the names of stages that ran, successfully or not.
func (r *Run) Executed() []string {
	var names []string
	for _, s := range r.Stages {
		if s.Status == StatusSucceeded || s.Status == StatusFailed {
			names = append(names, s.Name)
		}
	}
	return names
}
