package initialize

import (
	"context"
	"fmt"
	"time"

	"github.com/fynovel/fyctl/internal/backend"
	"github.com/fynovel/fyctl/internal/busy"
	"github.com/fynovel/fyctl/internal/log"
	"github.com/fynovel/fyctl/internal/model"
	"github.com/fynovel/fyctl/internal/storage"
	"github.com/fynovel/fyctl/internal/task"
)

// ServiceConfig is the configuration for the initialize service.
type ServiceConfig struct {
	Backend backend.Backend
	Busy    *busy.Writer
	Runs    storage.TaskRunRepository
	Tuning  task.Tuning
	Logger  log.Logger
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
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Initialize"})
	return nil
}

// Service coordinates the model runtime initialization.
type Service struct {
	task.Observer
	handle  *task.Handle[struct{}, model.TriggerResult]
	backend backend.Backend
	logger  log.Logger
}

// NewService creates a new initialize service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	b := cfg.Backend
	h, err := task.New(task.Config[struct{}, model.TriggerResult]{
		Kind:      model.TaskKindInitialize,
		Mode:      task.ModeAcknowledged,
		Trigger:   func(ctx context.Context, _ struct{}) (model.TriggerResult, error) { return b.TriggerInit(ctx) },
		Fetch:     func(ctx context.Context, _ struct{}) (model.ProgressSample, error) { return b.PollInitProgress(ctx) },
		Rejection: func(r model.TriggerResult) string { return r.ErrorMessage },
		Subject:   func(struct{}) string { return "model runtime" },
		Busy:      cfg.Busy,
		Tuning:    cfg.Tuning,
		Runs:      cfg.Runs,
		Logger:    cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create task handle: %w", err)
	}

	return &Service{
		Observer: h,
		handle:   h,
		backend:  cfg.Backend,
		logger:   cfg.Logger,
	}, nil
}

// Start triggers the initialization.
func (s *Service) Start(ctx context.Context) error {
	if !s.handle.Start(ctx, struct{}{}) {
		return fmt.Errorf("initialization already in progress: %w", model.ErrBusy)
	}
	return nil
}

// Attach follows an initialization the backend already has in flight.
func (s *Service) Attach(ctx context.Context) bool {
	return s.handle.Attach(ctx, struct{}{})
}

// Status returns the runtime environment status.
func (s *Service) Status(ctx context.Context) (model.ContainerStatus, error) {
	st, err := s.backend.HasInit(ctx)
	if err != nil {
		return model.ContainerStatus{}, fmt.Errorf("could not get runtime status: %w", err)
	}
	return st, nil
}
