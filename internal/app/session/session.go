// Package session owns the task coordinators of the application and the busy
// state they share.
//
// Views get the coordinators from a session and only observe them, the session is
// the single owner of their lifetime.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/fynovel/fyctl/internal/app/download"
	"github.com/fynovel/fyctl/internal/app/initialize"
	"github.com/fynovel/fyctl/internal/app/modelchange"
	"github.com/fynovel/fyctl/internal/backend"
	"github.com/fynovel/fyctl/internal/busy"
	"github.com/fynovel/fyctl/internal/log"
	"github.com/fynovel/fyctl/internal/model"
	"github.com/fynovel/fyctl/internal/storage"
	"github.com/fynovel/fyctl/internal/task"
)

// Config is the configuration of a session.
type Config struct {
	Backend    backend.Backend
	Repository storage.Repository
	Confirmer  modelchange.Confirmer

	InitTuning        task.Tuning
	ModelChangeTuning task.Tuning
	DownloadTuning    task.Tuning

	Logger log.Logger
}

func (c *Config) defaults() error {
	if c.Backend == nil {
		return fmt.Errorf("backend is required")
	}
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Confirmer == nil {
		c.Confirmer = modelchange.AlwaysConfirm
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "session.Session"})
	return nil
}

// Session groups the coordinators of the three task kinds.
type Session struct {
	Init        *initialize.Service
	ModelChange *modelchange.Service
	Download    *download.Service

	state     *busy.State
	repo      storage.Repository
	logger    log.Logger
	closeOnce sync.Once
}

// New returns a new session with idle coordinators.
func New(cfg Config) (*Session, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	state := busy.NewState()
	writers := map[model.TaskKind]*busy.Writer{}
	for _, k := range model.TaskKinds() {
		w, err := state.Claim(k)
		if err != nil {
			return nil, fmt.Errorf("could not claim %s busy flag: %w", k, err)
		}
		writers[k] = w
	}

	initSvc, err := initialize.NewService(initialize.ServiceConfig{
		Backend: cfg.Backend,
		Busy:    writers[model.TaskKindInitialize],
		Runs:    cfg.Repository,
		Tuning:  cfg.InitTuning,
		Logger:  cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create initialize service: %w", err)
	}

	modelSvc, err := modelchange.NewService(modelchange.ServiceConfig{
		Backend:   cfg.Backend,
		Busy:      writers[model.TaskKindModelChange],
		Confirmer: cfg.Confirmer,
		Runs:      cfg.Repository,
		Tuning:    cfg.ModelChangeTuning,
		Logger:    cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create model change service: %w", err)
	}

	downloadSvc, err := download.NewService(download.ServiceConfig{
		Backend: cfg.Backend,
		Busy:    writers[model.TaskKindDownload],
		Cache:   cfg.Repository,
		Runs:    cfg.Repository,
		Tuning:  cfg.DownloadTuning,
		Logger:  cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create download service: %w", err)
	}

	return &Session{
		Init:        initSvc,
		ModelChange: modelSvc,
		Download:    downloadSvc,
		state:       state,
		repo:        cfg.Repository,
		logger:      cfg.Logger,
	}, nil
}

// Busy returns the read only view of the shared busy flags.
func (s *Session) Busy() busy.Reader { return s.state }

// WatchBusy notifies when any busy flag changes.
func (s *Session) WatchBusy() (<-chan struct{}, func()) { return s.state.Watch() }

// Observers returns the coordinators in display order.
func (s *Session) Observers() []task.Observer {
	return []task.Observer{s.Init, s.ModelChange, s.Download}
}

// StartInit triggers the runtime initialization.
func (s *Session) StartInit(ctx context.Context) error {
	return s.Init.Start(ctx)
}

// RequestModelChange starts a model change, it's blocked while the runtime initializes.
func (s *Session) RequestModelChange(ctx context.Context, target string) error {
	if s.state.Busy(model.TaskKindInitialize) {
		return fmt.Errorf("can't change the model while the runtime initializes: %w", model.ErrBusy)
	}
	return s.ModelChange.Request(ctx, target)
}

// StartDownload starts a download, it's blocked while the runtime initializes or changes its model.
func (s *Session) StartDownload(ctx context.Context, item model.SearchResult) error {
	if s.state.AnyBusy(model.TaskKindInitialize, model.TaskKindModelChange) {
		return fmt.Errorf("can't download while the model runtime is busy: %w", model.ErrBusy)
	}
	return s.Download.Start(ctx, item)
}

// Sync loads the runtime status and follows the operations the backend already has in flight.
func (s *Session) Sync(ctx context.Context) (model.ContainerStatus, error) {
	st, err := s.Init.Status(ctx)
	if err != nil {
		return model.ContainerStatus{}, err
	}

	if st.IsInitializing && s.Init.Attach(ctx) {
		s.logger.Infof("Following initialization in flight")
	}

	if st.ContainerPresent {
		if _, err := s.ModelChange.Refresh(ctx); err != nil {
			s.logger.Warningf("Could not load current model: %s", err)
		}
	}

	if st.IsChangingModel && s.ModelChange.Attach(ctx) {
		s.logger.Infof("Following model change in flight")
	}

	return st, nil
}

// History returns the finished task sessions.
func (s *Session) History(ctx context.Context, filter storage.TaskRunFilter) ([]model.TaskRun, error) {
	runs, err := s.repo.ListTaskRuns(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("could not list task runs: %w", err)
	}
	return runs, nil
}

// Close stops every coordinator. It's safe to call it multiple times.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		for _, o := range s.Observers() {
			o.Stop()
		}
		s.logger.Debugf("Session closed")
	})
}
