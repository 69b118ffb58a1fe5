package work

import (
	"context"
	"time"

	"github.com/aristath/custodian/internal/events"
)

// DefaultTimeout bounds a task that was started without an explicit timeout.
const DefaultTimeout = 30 * time.Minute

// DefaultRetention is how long finished tasks remain queryable.
const DefaultRetention = 24 * time.Hour

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether the task has finished.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Func is the body of a task. Its result is kept in the task snapshot.
type Func func(ctx context.Context, progress *ProgressReporter) (any, error)

// Spec describes a task to start.
type Spec struct {
	// Type groups tasks of the same kind, e.g. "preprocess" or "backup".
	Type string

	// Description is a human readable subject, e.g. "2025-07-24".
	Description string

	// Timeout bounds the run; zero means DefaultTimeout.
	Timeout time.Duration

	Run Func
}

// Snapshot is the pulled state of a task.
type Snapshot struct {
	ID          string                  `json:"id"`
	Type        string                  `json:"type"`
	Description string                  `json:"description"`
	Status      Status                  `json:"status"`
	Progress    *events.JobProgressInfo `json:"progress,omitempty"`
	Result      any                     `json:"result,omitempty"`
	Error       string                  `json:"error,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
	StartedAt   *time.Time              `json:"started_at,omitempty"`
	FinishedAt  *time.Time              `json:"finished_at,omitempty"`
}

// Duration is how long the task ran, so far or in total.
func (s Snapshot) Duration() time.Duration {
	if s.StartedAt == nil {
		return 0
	}
	if s.FinishedAt == nil {
		return time.Since(*s.StartedAt)
	}
	return s.FinishedAt.Sub(*s.StartedAt)
}
