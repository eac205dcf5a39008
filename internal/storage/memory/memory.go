package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/fynovel/fyctl/internal/log"
	"github.com/fynovel/fyctl/internal/model"
	"github.com/fynovel/fyctl/internal/storage"
)

// RepositoryConfig is the configuration for the memory repository.
type RepositoryConfig struct {
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.Memory"})
	return nil
}

// Repository is an in-memory implementation of storage.Repository.
type Repository struct {
	runs        map[string]model.TaskRun
	searchQuery string
	search      []model.SearchResult
	searched    bool
	mu          sync.RWMutex
	logger      log.Logger
}

var _ storage.Repository = &Repository{}

// NewRepository creates a new memory repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Repository{
		runs:   make(map[string]model.TaskRun),
		logger: cfg.Logger,
	}, nil
}

// CreateTaskRun stores a finished task session.
func (r *Repository) CreateTaskRun(ctx context.Context, run model.TaskRun) error {
	if run.ID == "" {
		return fmt.Errorf("task run id is required: %w", model.ErrNotValid)
	}
	if err := run.Kind.Validate(); err != nil {
		return fmt.Errorf("invalid task run kind %q: %w", run.Kind, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.runs[run.ID]; ok {
		return fmt.Errorf("task run with id %s: %w", run.ID, model.ErrAlreadyExists)
	}

	r.runs[run.ID] = run
	r.logger.Debugf("Created task run in repository: %s", run.ID)

	return nil
}

// GetTaskRun retrieves a task run by ID.
func (r *Repository) GetTaskRun(ctx context.Context, id string) (*model.TaskRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	run, ok := r.runs[id]
	if !ok {
		return nil, fmt.Errorf("task run %s: %w", id, model.ErrNotFound)
	}

	runCopy := run
	return &runCopy, nil
}

// ListTaskRuns returns the task runs from the most recent.
func (r *Repository) ListTaskRuns(ctx context.Context, filter storage.TaskRunFilter) ([]model.TaskRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	runs := make([]model.TaskRun, 0, len(r.runs))
	for _, run := range r.runs {
		if filter.Kind != "" && run.Kind != filter.Kind {
			continue
		}
		runs = append(runs, run)
	}

	sort.Slice(runs, func(i, j int) bool {
		if runs[i].StartedAt.Equal(runs[j].StartedAt) {
			// ULIDs sort by creation time.
			return runs[i].ID > runs[j].ID
		}
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})

	if filter.Limit > 0 && len(runs) > filter.Limit {
		runs = runs[:filter.Limit]
	}

	return runs, nil
}

// SaveSearchResults replaces the cached search results.
func (r *Repository) SaveSearchResults(ctx context.Context, query string, results []model.SearchResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.searchQuery = query
	r.search = append([]model.SearchResult{}, results...)
	r.searched = true
	r.logger.Debugf("Cached %d search results for %q", len(results), query)

	return nil
}

// GetSearchResults returns the cached search results.
func (r *Repository) GetSearchResults(ctx context.Context) (string, []model.SearchResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.searched {
		return "", nil, fmt.Errorf("search results: %w", model.ErrNotFound)
	}

	return r.searchQuery, append([]model.SearchResult{}, r.search...), nil
}

// ClearSearchResults removes the cached search results.
func (r *Repository) ClearSearchResults(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.searchQuery = ""
	r.search = nil
	r.searched = false

	return nil
}
