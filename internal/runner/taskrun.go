package runner

import (
	"time"

	"git.home.luguber.info/inful/buildflow/internal/task"
)

// Status is the lifecycle state of a TaskRun.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// TaskRun is one execution of a task within a top-level run.
// Err is set iff Status is StatusFailed.
type TaskRun struct {
	ID         string
	RunID      string // shared by every TaskRun of one Runner.Run call
	TaskName   string
	Kind       task.Kind
	StartedAt  time.Time
	FinishedAt time.Time
	Status     Status
	Err        error
}

// Duration returns the wall time of a finished run.
func (r TaskRun) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
