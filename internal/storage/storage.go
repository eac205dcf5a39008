package storage

import (
	"context"

	"github.com/fynovel/fyctl/internal/model"
)

// TaskRunFilter narrows the task runs listing.
type TaskRunFilter struct {
	// Kind filters by task kind, empty means all kinds.
	Kind model.TaskKind
	// Limit is the max number of runs returned, 0 means no limit.
	Limit int
}

// TaskRunRepository is the interface for the finished task sessions history.
type TaskRunRepository interface {
	CreateTaskRun(ctx context.Context, r model.TaskRun) error
	GetTaskRun(ctx context.Context, id string) (*model.TaskRun, error)
	// ListTaskRuns returns runs ordered from the most recent.
	ListTaskRuns(ctx context.Context, filter TaskRunFilter) ([]model.TaskRun, error)
}

// SearchCacheRepository is the interface for the last search results cache.
type SearchCacheRepository interface {
	// SaveSearchResults replaces the cached results.
	SaveSearchResults(ctx context.Context, query string, results []model.SearchResult) error
	// GetSearchResults returns the cached query and its results in their original order.
	GetSearchResults(ctx context.Context) (query string, results []model.SearchResult, err error)
	ClearSearchResults(ctx context.Context) error
}

// Repository groups all the persistence interfaces.
type Repository interface {
	TaskRunRepository
	SearchCacheRepository
}
