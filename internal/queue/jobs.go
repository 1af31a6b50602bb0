package queue

import (
	"context"
	"time"

	"github.com/codebuildervaibhav/content-pipeline/internal/types"
)

// Job is one background stage task, keyed by the id of the entity it produces
type Job struct {
	ID   string
	Kind types.Kind
	// Run does the work under a context carrying the job deadline
	Run func(ctx context.Context) (types.StageResult, error)
	// Finish receives Run's outcome, or the panic converted to an error.
	// It runs after the deadline context is released.
	Finish    func(result types.StageResult, err error)
	CreatedAt time.Time
}

// NewJob creates a new job with default values
func NewJob(id string, kind types.Kind, run func(ctx context.Context) (types.StageResult, error),
	finish func(types.StageResult, error)) *Job {
	return &Job{
		ID:        id,
		Kind:      kind,
		Run:       run,
		Finish:    finish,
		CreatedAt: time.Now(),
	}
}

// TaskInfo describes a queued or running job
type TaskInfo struct {
	ID        string
	Kind      types.Kind
	QueuedAt  time.Time
	StartedAt time.Time
	Deadline  time.Time
}

// Running reports whether the task has been picked up by a worker
func (t TaskInfo) Running() bool {
	return !t.StartedAt.IsZero()
}

// Expired reports whether a running task is past its deadline
func (t TaskInfo) Expired(now time.Time) bool {
	return t.Running() && now.After(t.Deadline)
}
