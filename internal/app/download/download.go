package download

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fynovel/fyctl/internal/backend"
	"github.com/fynovel/fyctl/internal/busy"
	"github.com/fynovel/fyctl/internal/log"
	"github.com/fynovel/fyctl/internal/model"
	"github.com/fynovel/fyctl/internal/storage"
	"github.com/fynovel/fyctl/internal/task"
)

// ServiceConfig is the configuration for the download service.
type ServiceConfig struct {
	Backend backend.Backend
	Busy    *busy.Writer
	// Cache keeps the last search results, optional.
	Cache  storage.SearchCacheRepository
	Runs   storage.TaskRunRepository
	Tuning task.Tuning
	Logger log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Backend == nil {
		return fmt.Errorf("backend is required")
	}
	if c.Busy == nil {
		return fmt.Errorf("busy flag writer is required")
	}
	if c.Tuning.Interval == 0 {
		c.Tuning.Interval = time.Second
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Download"})
	return nil
}

// Service coordinates novel downloads, one at a time.
type Service struct {
	task.Observer
	handle  *task.Handle[model.SearchResult, model.CrawlResult]
	backend backend.Backend
	cache   storage.SearchCacheRepository
	logger  log.Logger
}

// NewService creates a new download service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	h, err := task.New(task.Config[model.SearchResult, model.CrawlResult]{
		Kind:    model.TaskKindDownload,
		Mode:    task.ModeBlocking,
		Trigger: cfg.Backend.TriggerDownload,
		Fetch:   cfg.Backend.PollDownloadProgress,
		Subject: model.SearchResult.Title,
		Busy:    cfg.Busy,
		Tuning:  cfg.Tuning,
		Runs:    cfg.Runs,
		Logger:  cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create task handle: %w", err)
	}

	return &Service{
		Observer: h,
		handle:   h,
		backend:  cfg.Backend,
		cache:    cfg.Cache,
		logger:   cfg.Logger,
	}, nil
}

// Start starts downloading the item.
func (s *Service) Start(ctx context.Context, item model.SearchResult) error {
	if err := item.Validate(); err != nil {
		return fmt.Errorf("invalid download item: %w", err)
	}

	if !s.handle.Start(ctx, item) {
		return fmt.Errorf("a download is already in progress: %w", model.ErrBusy)
	}

	return nil
}

// IsMerging returns true while the chapters are done and the book is being assembled.
func (s *Service) IsMerging() bool {
	snap := s.handle.Snapshot()
	return !snap.State.Resting() && (snap.Plateaued || snap.State == model.TaskStateFinalizing)
}

// Result returns the outcome of the last completed download.
func (s *Service) Result() (model.CrawlResult, bool) {
	return s.handle.Result()
}

// Search finds novels by name and caches the results.
func (s *Service) Search(ctx context.Context, name string) ([]model.SearchResult, error) {
	results, err := s.backend.Search(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("could not search %q: %w", name, err)
	}

	if s.cache != nil {
		if err := s.cache.SaveSearchResults(ctx, name, results); err != nil {
			s.logger.Warningf("Could not cache search results: %s", err)
		}
	}

	return results, nil
}

// CachedResults returns the results of the last search.
func (s *Service) CachedResults(ctx context.Context) (string, []model.SearchResult, error) {
	if s.cache == nil {
		return "", nil, fmt.Errorf("search cache is disabled: %w", model.ErrNotFound)
	}

	q, results, err := s.cache.GetSearchResults(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("could not get cached results: %w", err)
	}
	return q, results, nil
}

// CachedResult returns the item at the 1 based position of the last search results.
func (s *Service) CachedResult(ctx context.Context, position int) (model.SearchResult, error) {
	_, results, err := s.CachedResults(ctx)
	if err != nil {
		return model.SearchResult{}, err
	}

	if position < 1 || position > len(results) {
		return model.SearchResult{}, fmt.Errorf("position %d out of %d results: %w", position, len(results), model.ErrNotFound)
	}
	return results[position-1], nil
}

// ClearCache removes the cached search results.
func (s *Service) ClearCache(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.ClearSearchResults(ctx); err != nil && !errors.Is(err, model.ErrNotFound) {
		return fmt.Errorf("could not clear cache: %w", err)
	}
	return nil
}
