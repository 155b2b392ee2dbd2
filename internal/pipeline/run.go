package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/scan-io-git/warden/internal/audit"
	"github.com/scan-io-git/warden/internal/ci"
	"github.com/scan-io-git/warden/internal/git"
)

// RunStatus is the terminal state of a run.
type RunStatus string

const (
	StatusRunning               RunStatus = "RUNNING"
	StatusCompleted             RunStatus = "COMPLETED"
	StatusCompletedWithFailures RunStatus = "COMPLETED_WITH_FAILURES"
	StatusFailed                RunStatus = "FAILED"
)

// Run is the record of one pipeline execution.
type Run struct {
	ID             string                 `json:"id"`
	Status         RunStatus              `json:"status"`
	FramesExecuted int                    `json:"frames_executed"`
	FramesPassed   int                    `json:"frames_passed"`
	FramesFailed   int                    `json:"frames_failed"`
	StartedAt      time.Time              `json:"started_at"`
	CompletedAt    time.Time              `json:"completed_at,omitempty"`
	CI             ci.Environment         `json:"ci"`
	Repository     *git.Repository        `json:"repository,omitempty"`
	ExternalUsage  map[string]audit.Usage `json:"external_usage,omitempty"`
}

// NewRun starts a run record with a fresh id.
func NewRun(env ci.Environment, repo *git.Repository) *Run {
	return &Run{
		ID:         uuid.New().String(),
		Status:     StatusRunning,
		StartedAt:  time.Now().UTC(),
		CI:         env,
		Repository: repo,
	}
}

// SetStatus moves the run to a new status. FAILED is final.
func (r *Run) SetStatus(s RunStatus) {
	if r.Status == StatusFailed {
		return
	}
	r.Status = s
}
