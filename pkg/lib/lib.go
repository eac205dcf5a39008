package lib

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fynovel/fyctl/internal/app/modelchange"
	"github.com/fynovel/fyctl/internal/app/session"
	"github.com/fynovel/fyctl/internal/backend"
	"github.com/fynovel/fyctl/internal/backend/fake"
	backendhttp "github.com/fynovel/fyctl/internal/backend/http"
	"github.com/fynovel/fyctl/internal/conventions"
	"github.com/fynovel/fyctl/internal/log"
	"github.com/fynovel/fyctl/internal/model"
	"github.com/fynovel/fyctl/internal/storage"
	"github.com/fynovel/fyctl/internal/storage/sqlite"
	"github.com/fynovel/fyctl/internal/task"
)

// Config configures the SDK client.
//
// All fields are optional. An empty Config{} will use ~/.fyctl/fyctl.db for
// storage and the HTTP backend on its default local address.
type Config struct {
	// Backend selects the backend implementation.
	// Default: [BackendHTTP].
	Backend BackendType

	// BackendURL is the base URL of the HTTP backend.
	// Default: http://127.0.0.1:34115.
	BackendURL string

	// DBPath is the SQLite database path of the task history and search cache.
	// Default: ~/.fyctl/fyctl.db.
	DBPath string

	// PollInterval is the progress polling interval of every task kind.
	// Default: the per kind intervals of the CLI (1s, 2s and 1s).
	PollInterval time.Duration

	// ConfirmModelChange is asked before a model change starts, returning false cancels
	// the change with [ErrRejected]. Default: every change is accepted.
	ConfirmModelChange func(ctx context.Context, current, target string) (bool, error)

	// FakeStepDelay is the duration of every simulated step.
	// Only used with [BackendFake]. Default: 300ms.
	FakeStepDelay time.Duration

	// Logger receives structured log output from the SDK.
	// Default: noop (silent). See the log sub-package for the interface.
	Logger log.Logger
}

func (c *Config) defaults() error {
	switch c.Backend {
	case "":
		c.Backend = BackendHTTP
	case BackendHTTP, BackendFake:
	default:
		return fmt.Errorf("unsupported backend type %q: %w", c.Backend, ErrNotValid)
	}

	if c.BackendURL == "" {
		c.BackendURL = model.DefaultAppConfig().Backend.URL
	}

	if c.DBPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("could not get user home dir: %w", err)
		}
		c.DBPath = conventions.DBPath(conventions.DataDir(home))
	}

	if c.PollInterval < 0 {
		return fmt.Errorf("poll interval can't be negative: %w", ErrNotValid)
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}

	return nil
}

// Client is the main SDK entry point.
//
// Create a Client with [New] and release its resources with [Client.Close].
// Closing the client stops the tasks in flight.
type Client struct {
	session *session.Session
	logger  log.Logger
	closeFn func() error
}

// New creates a new SDK client and syncs with the operations the backend already
// has in flight.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.defaults(); err != nil {
		return nil, mapError(fmt.Errorf("invalid config: %w", err))
	}

	b, closeBackend, err := newBackend(cfg)
	if err != nil {
		return nil, err
	}

	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: cfg.DBPath,
		Logger: cfg.Logger,
	})
	if err != nil {
		closeBackend()
		return nil, fmt.Errorf("could not create repository: %w", err)
	}

	var confirmer modelchange.Confirmer
	if cfg.ConfirmModelChange != nil {
		confirmer = modelchange.ConfirmerFunc(cfg.ConfirmModelChange)
	}

	defaults := model.DefaultAppConfig()
	s, err := session.New(session.Config{
		Backend:           b,
		Repository:        repo,
		Confirmer:         confirmer,
		InitTuning:        tuning(defaults.Initialize, cfg.PollInterval),
		ModelChangeTuning: tuning(defaults.ModelChange, cfg.PollInterval),
		DownloadTuning:    tuning(defaults.Download, cfg.PollInterval),
		Logger:            cfg.Logger,
	})
	if err != nil {
		_ = repo.Close()
		closeBackend()
		return nil, fmt.Errorf("could not create session: %w", err)
	}

	return &Client{
		session: s,
		logger:  cfg.Logger,
		closeFn: func() error {
			s.Close()
			closeBackend()
			return repo.Close()
		},
	}, nil
}

func newBackend(cfg Config) (backend.Backend, func(), error) {
	if cfg.Backend == BackendFake {
		b, err := fake.New(fake.Config{StepDelay: cfg.FakeStepDelay, Logger: cfg.Logger})
		if err != nil {
			return nil, nil, fmt.Errorf("could not create fake backend: %w", err)
		}
		return b, func() { _ = b.Close() }, nil
	}

	b, err := backendhttp.NewClient(backendhttp.ClientConfig{
		BaseURL: cfg.BackendURL,
		Logger:  cfg.Logger,
	})
	if err != nil {
		return nil, nil, mapError(fmt.Errorf("could not create backend client: %w", err))
	}
	return b, func() {}, nil
}

func tuning(t model.TaskTuning, interval time.Duration) task.Tuning {
	if interval > 0 {
		t.Interval = interval
	}
	return task.Tuning{Interval: t.Interval, MaxTicks: t.MaxTicks, Deadline: t.Deadline}
}

// Close releases the resources of the client and stops the tasks in flight.
// After Close returns, the client must not be used.
func (c *Client) Close() error {
	if c.closeFn != nil {
		return c.closeFn()
	}
	return nil
}

// RuntimeStatus returns the model runtime status and follows the initialization or
// model change the backend already has in flight.
func (c *Client) RuntimeStatus(ctx context.Context) (RuntimeStatus, error) {
	st, err := c.session.Sync(ctx)
	if err != nil {
		return RuntimeStatus{}, mapError(err)
	}

	return RuntimeStatus{
		ContainerPresent: st.ContainerPresent,
		Initializing:     st.IsInitializing,
		ChangingModel:    st.IsChangingModel,
		CurrentModel:     c.session.ModelChange.Current(),
	}, nil
}

// Initialize starts the model runtime initialization.
func (c *Client) Initialize(ctx context.Context) error {
	return mapError(c.session.StartInit(ctx))
}

// Models returns the selectable chat models.
func (c *Client) Models(ctx context.Context) ([]string, error) {
	models, err := c.session.ModelChange.Models(ctx)
	return models, mapError(err)
}

// ChangeModel starts changing the chat model of the runtime.
func (c *Client) ChangeModel(ctx context.Context, name string) error {
	return mapError(c.session.RequestModelChange(ctx, name))
}

// Search searches novels by name, the results are kept for [Client.SearchResult].
func (c *Client) Search(ctx context.Context, name string) ([]Novel, error) {
	rs, err := c.session.Download.Search(ctx, name)
	if err != nil {
		return nil, mapError(err)
	}
	return fromInternalNovels(rs), nil
}

// SearchResult returns a result of the last search by its position, starting at 1.
func (c *Client) SearchResult(ctx context.Context, position int) (Novel, error) {
	r, err := c.session.Download.CachedResult(ctx, position)
	if err != nil {
		return Novel{}, mapError(err)
	}
	return Novel(r), nil
}

// Download starts downloading a novel.
func (c *Client) Download(ctx context.Context, novel Novel) error {
	return mapError(c.session.StartDownload(ctx, toInternalNovel(novel)))
}

// DownloadResult returns the result of the last completed download.
func (c *Client) DownloadResult() (DownloadResult, bool) {
	r, ok := c.session.Download.Result()
	if !ok {
		return DownloadResult{}, false
	}
	return DownloadResult{
		OutputPath: r.OutputPath,
		Elapsed:    time.Duration(r.ElapsedSeconds * float64(time.Second)),
	}, true
}

// Task returns the latest progress of a task kind.
func (c *Client) Task(kind TaskKind) (Task, error) {
	o, err := c.observer(kind)
	if err != nil {
		return Task{}, err
	}
	return fromInternalTask(o.Snapshot()), nil
}

// WaitTask blocks until the current operation of the kind ends. A failed
// operation returns its error.
func (c *Client) WaitTask(ctx context.Context, kind TaskKind) (Task, error) {
	o, err := c.observer(kind)
	if err != nil {
		return Task{}, err
	}

	s, err := o.Wait(ctx)
	if err != nil {
		return fromInternalTask(s), err
	}

	t := fromInternalTask(s)
	if t.State == TaskStateFailed {
		return t, t.Err
	}
	return t, nil
}

// StopTask stops following the current operation of the kind.
func (c *Client) StopTask(kind TaskKind) error {
	o, err := c.observer(kind)
	if err != nil {
		return err
	}
	o.Stop()
	return nil
}

// History returns the finished task operations, the most recent first.
func (c *Client) History(ctx context.Context, opts *HistoryOpts) ([]TaskRun, error) {
	var filter storage.TaskRunFilter
	if opts != nil {
		filter = storage.TaskRunFilter{Kind: model.TaskKind(opts.Kind), Limit: opts.Limit}
	}

	runs, err := c.session.History(ctx, filter)
	if err != nil {
		return nil, mapError(err)
	}
	return fromInternalTaskRuns(runs), nil
}

func (c *Client) observer(kind TaskKind) (task.Observer, error) {
	for _, o := range c.session.Observers() {
		if o.Kind() == model.TaskKind(kind) {
			return o, nil
		}
	}
	return nil, fmt.Errorf("unknown task kind %q: %w", kind, ErrNotValid)
}
