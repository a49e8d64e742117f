package history

import (
	"time"

	"tonearm/internal/analysis"
)

// Status represents the lifecycle of a journaled run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// InterruptedReason is the error message set on runs left behind by a daemon
// that stopped before they finished.
const InterruptedReason = "Interrupted by daemon shutdown"

// Run is one journaled analysis run.
type Run struct {
	ID            string
	AudioPath     string
	OutputDir     string
	Features      analysis.Features
	UseGPU        bool
	Status        Status
	ErrorMessage  string
	StageFailures map[string]string
	ResultPath    string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
}

// Finished reports whether the run has reached a terminal status.
func (r *Run) Finished() bool {
	return r != nil && r.Status != StatusRunning
}
