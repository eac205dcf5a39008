package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/alecthomas/kingpin/v2"
	"k8s.io/client-go/util/homedir"

	"github.com/fynovel/fyctl/internal/app/modelchange"
	"github.com/fynovel/fyctl/internal/app/session"
	"github.com/fynovel/fyctl/internal/backend"
	"github.com/fynovel/fyctl/internal/backend/fake"
	backendhttp "github.com/fynovel/fyctl/internal/backend/http"
	"github.com/fynovel/fyctl/internal/conventions"
	"github.com/fynovel/fyctl/internal/log"
	"github.com/fynovel/fyctl/internal/model"
	"github.com/fynovel/fyctl/internal/printer"
	storageio "github.com/fynovel/fyctl/internal/storage/io"
	"github.com/fynovel/fyctl/internal/storage/sqlite"
	"github.com/fynovel/fyctl/internal/task"
)

const (
	// LoggerTypeDefault is the logger default type.
	LoggerTypeDefault = "default"
	// LoggerTypeJSON is the logger json type.
	LoggerTypeJSON = "json"
)

const (
	formatTable = "table"
	formatJSON  = "json"
)

// Command represents an application command, all commands that want to be executed
// should implement and setup on main.
type Command interface {
	Name() string
	Run(ctx context.Context) error
}

// RootCommand represents the root command configuration and global configuration
// for all the commands.
type RootCommand struct {
	// Global flags.
	Debug      bool
	NoLog      bool
	NoColor    bool
	LoggerType string
	ConfigPath string
	DBPath     string
	Backend    string
	BackendURL string

	configSetByUser bool

	// Global instances.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger log.Logger
}

// NewRootCommand initializes the main root configuration.
func NewRootCommand(app *kingpin.Application) *RootCommand {
	c := &RootCommand{}

	app.Flag("debug", "Enable debug mode.").BoolVar(&c.Debug)
	app.Flag("no-log", "Disable logger.").BoolVar(&c.NoLog)
	app.Flag("no-color", "Disable logger and dashboard color.").BoolVar(&c.NoColor)
	app.Flag("logger", "Selects the logger type.").Default(LoggerTypeDefault).EnumVar(&c.LoggerType, LoggerTypeDefault, LoggerTypeJSON)

	defaultConfigPath := conventions.ConfigPath(conventions.DataDir(homedir.HomeDir()))
	app.Flag("config", "Path to the YAML configuration file.").Default(defaultConfigPath).IsSetByUser(&c.configSetByUser).StringVar(&c.ConfigPath)
	app.Flag("db-path", "Path to the SQLite database file, overrides the config file.").StringVar(&c.DBPath)
	app.Flag("backend", "Backend kind, overrides the config file.").EnumVar(&c.Backend, model.BackendKindHTTP, model.BackendKindFake)
	app.Flag("backend-url", "Base URL of the novel backend, overrides the config file.").StringVar(&c.BackendURL)

	return c
}

// loadConfig loads the config file and applies the flag overrides. A missing file
// is only an error when it's not the default path.
func (r *RootCommand) loadConfig(ctx context.Context, explicit bool) (model.AppConfig, error) {
	cfg := model.DefaultAppConfig()

	if r.ConfigPath != "" {
		dir, file := filepath.Split(r.ConfigPath)
		if dir == "" {
			dir = "."
		}
		repo := storageio.NewConfigYAMLRepository(os.DirFS(dir))
		c, err := repo.GetConfig(ctx, file)
		switch {
		case err == nil:
			cfg = c
		case errors.Is(err, fs.ErrNotExist) && !explicit:
			r.Logger.Debugf("Config file %s not found, using defaults", r.ConfigPath)
		default:
			return model.AppConfig{}, fmt.Errorf("could not load config: %w", err)
		}
	}

	if cfg.DBPath == "" {
		cfg.DBPath = conventions.DBPath(conventions.DataDir(homedir.HomeDir()))
	}
	if r.DBPath != "" {
		cfg.DBPath = r.DBPath
	}
	if r.Backend != "" {
		cfg.Backend.Kind = r.Backend
	}
	if r.BackendURL != "" {
		cfg.Backend.URL = r.BackendURL
	}

	return cfg, nil
}

// newBackend returns the configured backend and a function to release it.
func (r *RootCommand) newBackend(cfg model.AppConfig) (backend.Backend, func(), error) {
	switch cfg.Backend.Kind {
	case model.BackendKindFake:
		b, err := fake.New(fake.Config{
			StepDelay: cfg.Fake.StepDelay,
			Chapters:  cfg.Fake.Chapters,
			Logger:    r.Logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("could not create fake backend: %w", err)
		}
		return b, func() { _ = b.Close() }, nil
	default:
		b, err := backendhttp.NewClient(backendhttp.ClientConfig{
			BaseURL:        cfg.Backend.URL,
			RequestTimeout: cfg.Backend.RequestTimeout,
			Logger:         r.Logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("could not create backend client: %w", err)
		}
		return b, func() {}, nil
	}
}

// app is the wired application used by the task commands.
type app struct {
	cfg     model.AppConfig
	backend backend.Backend
	repo    *sqlite.Repository
	session *session.Session
	close   func()
}

func (r *RootCommand) newApp(ctx context.Context, confirmer modelchange.Confirmer) (*app, error) {
	cfg, err := r.loadConfig(ctx, r.configSetByUser)
	if err != nil {
		return nil, err
	}

	b, closeBackend, err := r.newBackend(cfg)
	if err != nil {
		return nil, err
	}

	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: cfg.DBPath,
		Logger: r.Logger,
	})
	if err != nil {
		closeBackend()
		return nil, fmt.Errorf("could not create repository: %w", err)
	}

	s, err := session.New(session.Config{
		Backend:           b,
		Repository:        repo,
		Confirmer:         confirmer,
		InitTuning:        tuning(cfg.Initialize, cfg.PlateauCeiling),
		ModelChangeTuning: tuning(cfg.ModelChange, cfg.PlateauCeiling),
		DownloadTuning:    tuning(cfg.Download, cfg.PlateauCeiling),
		Logger:            r.Logger,
	})
	if err != nil {
		_ = repo.Close()
		closeBackend()
		return nil, fmt.Errorf("could not create session: %w", err)
	}

	return &app{
		cfg:     cfg,
		backend: b,
		repo:    repo,
		session: s,
		close: func() {
			s.Close()
			closeBackend()
			if err := repo.Close(); err != nil {
				r.Logger.Warningf("Could not close repository: %s", err)
			}
		},
	}, nil
}

func tuning(t model.TaskTuning, ceiling int) task.Tuning {
	return task.Tuning{
		Interval:       t.Interval,
		MaxTicks:       t.MaxTicks,
		Deadline:       t.Deadline,
		PlateauCeiling: ceiling,
	}
}

func (r *RootCommand) printer(format string) printer.Printer {
	if format == formatJSON {
		return printer.NewJSONPrinter(r.Stdout)
	}
	return printer.NewTablePrinter(r.Stdout)
}

// follow renders the progress of the observer until its current session ends.
func follow(ctx context.Context, obs task.Observer, out io.Writer) (task.Snapshot, error) {
	done := obs.Done()
	c, unsubscribe := obs.Subscribe()
	defer unsubscribe()

	bar := printer.NewProgressBar(out)
	defer bar.Finish()

	for {
		select {
		case <-ctx.Done():
			return obs.Snapshot(), ctx.Err()
		case s := <-c:
			bar.Render(s)
		case <-done:
			s := obs.Snapshot()
			bar.Render(s)
			if s.State == model.TaskStateFailed {
				if s.Err == nil {
					return s, fmt.Errorf("%s failed", s.Kind)
				}
				return s, s.Err
			}
			return s, nil
		}
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
