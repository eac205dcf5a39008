package lib

import (
	"errors"
	"time"

	"github.com/fynovel/fyctl/internal/model"
	"github.com/fynovel/fyctl/internal/task"
)

// BackendType identifies the backend implementation.
type BackendType string

const (
	// BackendHTTP talks to a real fy-novel backend over HTTP.
	BackendHTTP BackendType = "http"

	// BackendFake uses an in-memory simulation of the backend.
	// Use this for unit testing without infrastructure dependencies.
	BackendFake BackendType = "fake"
)

// TaskKind identifies a class of background task.
type TaskKind string

const (
	TaskKindInitialize  TaskKind = "initialize"
	TaskKindModelChange TaskKind = "model-change"
	TaskKindDownload    TaskKind = "download"
)

// TaskState is the lifecycle state of a task.
//
//	idle -> triggering -> running -> finalizing -> completed|failed
type TaskState string

const (
	TaskStateIdle       TaskState = "idle"
	TaskStateTriggering TaskState = "triggering"
	TaskStateRunning    TaskState = "running"
	TaskStateFinalizing TaskState = "finalizing"
	TaskStateCompleted  TaskState = "completed"
	TaskStateFailed     TaskState = "failed"
)

// Task is the progress of a task kind at the time of the call.
type Task struct {
	Kind TaskKind
	// SessionID identifies the current operation, empty when it never ran.
	SessionID string
	// Subject is what the operation works on (model name, novel title).
	Subject string
	State   TaskState
	// Percent is the progress from 0 to 100, it never goes back within an operation.
	Percent int
	// Merging is true when the progress reached its ceiling and the backend is finishing.
	Merging bool
	// Busy is true while the task blocks the tasks that depend on it.
	Busy      bool
	Err       error
	StartedAt time.Time
}

// TaskRun is a finished task operation from the history.
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

// RuntimeStatus is the state of the model runtime reported by the backend.
type RuntimeStatus struct {
	ContainerPresent bool
	Initializing     bool
	ChangingModel    bool
	// CurrentModel is empty when the runtime is not initialized.
	CurrentModel string
}

// Novel is a search result that can be downloaded.
type Novel struct {
	URL           string
	BookName      string
	Author        string
	Intro         string
	LatestChapter string
	LatestUpdate  string
}

// DownloadResult is the outcome of a finished download.
type DownloadResult struct {
	OutputPath string
	Elapsed    time.Duration
}

// HistoryOpts filters the task history.
type HistoryOpts struct {
	// Kind filters by task kind, empty means all.
	Kind TaskKind
	// Limit is the max number of runs, 0 means all.
	Limit int
}

var (
	// ErrNotFound is returned when a resource does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNotValid is returned when the input is not valid.
	ErrNotValid = errors.New("not valid")
	// ErrBusy is returned when another task blocks the operation.
	ErrBusy = errors.New("busy")
	// ErrTimeout is returned when a task exceeds its polling limits.
	ErrTimeout = errors.New("timeout")
	// ErrRejected is returned when the backend refuses to start a task.
	ErrRejected = errors.New("rejected")
)

func fromInternalTask(s task.Snapshot) Task {
	return Task{
		Kind:      TaskKind(s.Kind),
		SessionID: s.SessionID,
		Subject:   s.Subject,
		State:     TaskState(s.State),
		Percent:   s.Percent,
		Merging:   s.Plateaued,
		Busy:      s.Busy,
		Err:       mapError(s.Err),
		StartedAt: s.StartedAt,
	}
}

func fromInternalTaskRuns(runs []model.TaskRun) []TaskRun {
	out := make([]TaskRun, 0, len(runs))
	for _, r := range runs {
		out = append(out, TaskRun{
			ID:         r.ID,
			Kind:       TaskKind(r.Kind),
			Subject:    r.Subject,
			State:      TaskState(r.State),
			Percent:    r.Percent,
			Error:      r.Error,
			StartedAt:  r.StartedAt,
			FinishedAt: r.FinishedAt,
		})
	}
	return out
}

func fromInternalNovels(rs []model.SearchResult) []Novel {
	out := make([]Novel, 0, len(rs))
	for _, r := range rs {
		out = append(out, Novel(r))
	}
	return out
}

func toInternalNovel(n Novel) model.SearchResult { return model.SearchResult(n) }

func mapError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, model.ErrNotFound), errors.Is(err, model.ErrTaskNotFound):
		return joinErrors(err, ErrNotFound)
	case errors.Is(err, model.ErrNotValid):
		return joinErrors(err, ErrNotValid)
	case errors.Is(err, model.ErrBusy):
		return joinErrors(err, ErrBusy)
	case errors.Is(err, model.ErrTimeout):
		return joinErrors(err, ErrTimeout)
	case errors.Is(err, model.ErrTriggerRejected), errors.Is(err, model.ErrDeclined):
		return joinErrors(err, ErrRejected)
	default:
		return err
	}
}

func joinErrors(original, sentinel error) error {
	return &mappedError{original: original, sentinel: sentinel}
}

type mappedError struct {
	original error
	sentinel error
}

func (e *mappedError) Error() string { return e.original.Error() }

func (e *mappedError) Is(target error) bool {
	return target == e.sentinel
}

func (e *mappedError) Unwrap() error { return e.original }
