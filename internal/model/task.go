package model

import (
	"time"
)

// TaskKind identifies a class of background operation.
type TaskKind string

const (
	TaskKindInitialize  TaskKind = "initialize"
	TaskKindModelChange TaskKind = "model-change"
	TaskKindDownload    TaskKind = "download"
)

// TaskKinds returns all the known task kinds.
func TaskKinds() []TaskKind {
	return []TaskKind{TaskKindInitialize, TaskKindModelChange, TaskKindDownload}
}

// Validate returns an error if the kind is unknown.
func (k TaskKind) Validate() error {
	switch k {
	case TaskKindInitialize, TaskKindModelChange, TaskKindDownload:
		return nil
	}
	return ErrNotValid
}

// TaskState is the lifecycle state of a background task.
type TaskState string

const (
	TaskStateIdle       TaskState = "idle"
	TaskStateTriggering TaskState = "triggering"
	TaskStateRunning    TaskState = "running"
	TaskStateFinalizing TaskState = "finalizing"
	TaskStateCompleted  TaskState = "completed"
	TaskStateFailed     TaskState = "failed"
)

// Resting returns true when a task in this state can be started again.
func (s TaskState) Resting() bool {
	switch s {
	case TaskStateIdle, TaskStateCompleted, TaskStateFailed:
		return true
	}
	return false
}

// Terminal returns true for the final states of a task session.
func (s TaskState) Terminal() bool {
	return s == TaskStateCompleted || s == TaskStateFailed
}

// ProgressSample is the normalized result of a progress poll.
//
// Exists false means the backend has no record of the task, it must not be read as 0%.
type ProgressSample struct {
	Exists    bool
	Completed int
	Total     int
}

// Done returns true when the sample reports all the work completed.
func (p ProgressSample) Done() bool {
	return p.Exists && p.Total > 0 && p.Completed >= p.Total
}

// TaskRun is the record of a finished task session.
type TaskRun struct {
	ID         string
	Kind       TaskKind
	Subject    string
	State      TaskState
	Percent    int
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns how long the task session took.
func (t TaskRun) Duration() time.Duration {
	if t.FinishedAt.Before(t.StartedAt) {
		return 0
	}
	return t.FinishedAt.Sub(t.StartedAt)
}
