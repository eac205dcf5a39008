// Package modelchange coordinates the change of the model served by the runtime.
//
// The selected (pending) model and the model in use are separate: the model in use
// only changes once the backend reports the change finished.
package modelchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fynovel/fyctl/internal/backend"
	"github.com/fynovel/fyctl/internal/busy"
	"github.com/fynovel/fyctl/internal/log"
	"github.com/fynovel/fyctl/internal/model"
	"github.com/fynovel/fyctl/internal/storage"
	"github.com/fynovel/fyctl/internal/task"
)

// Confirmer asks the user to accept a model change.
type Confirmer interface {
	Confirm(ctx context.Context, current, target string) (bool, error)
}

// ConfirmerFunc is a helper to use functions as Confirmer.
type ConfirmerFunc func(ctx context.Context, current, target string) (bool, error)

func (f ConfirmerFunc) Confirm(ctx context.Context, current, target string) (bool, error) {
	return f(ctx, current, target)
}

// AlwaysConfirm accepts every change.
var AlwaysConfirm = ConfirmerFunc(func(context.Context, string, string) (bool, error) { return true, nil })

// ServiceConfig is the configuration for the model change service.
type ServiceConfig struct {
	Backend   backend.Backend
	Busy      *busy.Writer
	Confirmer Confirmer
	Runs      storage.TaskRunRepository
	Tuning    task.Tuning
	Logger    log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Backend == nil {
		return fmt.Errorf("backend is required")
	}
	if c.Busy == nil {
		return fmt.Errorf("busy flag writer is required")
	}
	if c.Confirmer == nil {
		return fmt.Errorf("confirmer is required")
	}
	if c.Tuning.Interval == 0 {
		c.Tuning.Interval = 2 * time.Second
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.ModelChange"})
	return nil
}

// Service coordinates model changes.
type Service struct {
	task.Observer
	handle    *task.Handle[string, model.TriggerResult]
	backend   backend.Backend
	confirmer Confirmer
	logger    log.Logger

	mu         sync.Mutex
	current    string
	pending    string
	requesting bool
}

// NewService creates a new model change service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &Service{
		backend:   cfg.Backend,
		confirmer: cfg.Confirmer,
		logger:    cfg.Logger,
	}

	h, err := task.New(task.Config[string, model.TriggerResult]{
		Kind:      model.TaskKindModelChange,
		Mode:      task.ModeAcknowledged,
		Trigger:   cfg.Backend.TriggerModelChange,
		Fetch:     func(ctx context.Context, _ string) (model.ProgressSample, error) { return cfg.Backend.PollModelChangeProgress(ctx) },
		Rejection: func(r model.TriggerResult) string { return r.ErrorMessage },
		OnSuccess: s.onSuccess,
		OnFailure: func(string, error) { s.revert() },
		Subject:   func(target string) string { return target },
		Busy:      cfg.Busy,
		Tuning:    cfg.Tuning,
		Runs:      cfg.Runs,
		Logger:    cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create task handle: %w", err)
	}
	s.Observer = h
	s.handle = h

	return s, nil
}

// Refresh loads the model in use from the backend, it also resets the selection.
func (s *Service) Refresh(ctx context.Context) (string, error) {
	current, err := s.backend.GetCurrentModel(ctx)
	if err != nil {
		return "", fmt.Errorf("could not get current model: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = current
	if s.handle.Snapshot().State.Resting() {
		s.pending = current
	}

	return current, nil
}

// Models returns the models the runtime can serve.
func (s *Service) Models(ctx context.Context) ([]string, error) {
	models, err := s.backend.GetModelList(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not list models: %w", err)
	}
	return models, nil
}

// Current returns the model in use, as of the last refresh or finished change.
func (s *Service) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Pending returns the selected model.
func (s *Service) Pending() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Request asks for confirmation and starts the change to the target model.
// The user is asked even when the target is the model in use, that reinstalls it.
func (s *Service) Request(ctx context.Context, target string) error {
	if !s.reserve() {
		return fmt.Errorf("model change already in progress: %w", model.ErrBusy)
	}
	defer s.release()

	models, err := s.Models(ctx)
	if err != nil {
		return err
	}
	if !contains(models, target) {
		return fmt.Errorf("model %q is not available: %w", target, model.ErrNotValid)
	}

	s.mu.Lock()
	current := s.current
	s.pending = target
	s.mu.Unlock()

	ok, err := s.confirmer.Confirm(ctx, current, target)
	if err != nil {
		s.revert()
		return fmt.Errorf("could not confirm model change: %w", err)
	}
	if !ok {
		s.revert()
		s.logger.Infof("Model change to %s declined", target)
		return fmt.Errorf("model change to %q: %w", target, model.ErrDeclined)
	}

	if err := s.backend.ResetModelChangeTask(ctx); err != nil {
		s.revert()
		return fmt.Errorf("could not reset model change task: %w", err)
	}

	if !s.handle.Start(ctx, target) {
		s.revert()
		return fmt.Errorf("model change already in progress: %w", model.ErrBusy)
	}

	return nil
}

// Attach follows a model change the backend already has in flight.
func (s *Service) Attach(ctx context.Context) bool {
	if !s.reserve() {
		return false
	}
	defer s.release()

	return s.handle.Attach(ctx, s.Pending())
}

// Stop ends the change in flight, if any, and drops the selection.
func (s *Service) Stop() {
	s.handle.Stop()
	s.revert()
}

func (s *Service) onSuccess(ctx context.Context, target string, _ model.TriggerResult) {
	current, err := s.backend.GetCurrentModel(ctx)
	if err != nil {
		s.logger.Warningf("Could not refresh current model, assuming %s: %s", target, err)
		current = target
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = current
	s.pending = current
	s.logger.Infof("Model in use is now %s", current)
}

// reserve claims the request slot, no other request or attach can run until release.
func (s *Service) reserve() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.requesting || !s.handle.Snapshot().State.Resting() {
		return false
	}
	s.requesting = true
	return true
}

func (s *Service) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requesting = false
}

func (s *Service) revert() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = s.current
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
