package io

import (
	"context"
	"fmt"
	"io/fs"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fynovel/fyctl/internal/model"
)

// ConfigYAMLRepository loads the application configuration from YAML files.
type ConfigYAMLRepository struct {
	fs fs.FS
}

// NewConfigYAMLRepository creates a new YAML config repository.
func NewConfigYAMLRepository(filesystem fs.FS) *ConfigYAMLRepository {
	return &ConfigYAMLRepository{fs: filesystem}
}

// GetConfig loads the configuration from a YAML file and returns a validated domain model.
// Missing settings get their default value.
func (r *ConfigYAMLRepository) GetConfig(ctx context.Context, path string) (model.AppConfig, error) {
	data, err := fs.ReadFile(r.fs, path)
	if err != nil {
		return model.AppConfig{}, fmt.Errorf("reading config file: %w", err)
	}

	if ctx.Err() != nil {
		return model.AppConfig{}, ctx.Err()
	}

	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return model.AppConfig{}, fmt.Errorf("parsing YAML: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return model.AppConfig{}, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg.toModel(), nil
}

// AppConfig represents the YAML structure of the application configuration.
type AppConfig struct {
	Backend        BackendConfig `yaml:"backend"`
	DBPath         string        `yaml:"db_path"`
	PlateauCeiling int           `yaml:"plateau_ceiling"`
	Tasks          TasksConfig   `yaml:"tasks"`
	Fake           FakeConfig    `yaml:"fake"`
}

// BackendConfig represents the YAML structure for the backend configuration.
type BackendConfig struct {
	Kind           string        `yaml:"kind"`
	URL            string        `yaml:"url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// TasksConfig represents the YAML structure for the per task kind settings.
type TasksConfig struct {
	Initialize  TaskConfig `yaml:"initialize"`
	ModelChange TaskConfig `yaml:"model_change"`
	Download    TaskConfig `yaml:"download"`
}

// TaskConfig represents the YAML structure for the polling settings of a task kind.
type TaskConfig struct {
	Interval time.Duration `yaml:"interval"`
	MaxTicks int           `yaml:"max_ticks"`
	Deadline time.Duration `yaml:"deadline"`
}

// FakeConfig represents the YAML structure for the simulated backend.
type FakeConfig struct {
	StepDelay time.Duration `yaml:"step_delay"`
	Chapters  int           `yaml:"chapters"`
}

func (c AppConfig) validate() error {
	switch c.Backend.Kind {
	case "", model.BackendKindHTTP, model.BackendKindFake:
	default:
		return fmt.Errorf("unknown backend kind %q", c.Backend.Kind)
	}

	if c.Backend.RequestTimeout < 0 {
		return fmt.Errorf("backend request_timeout can't be negative")
	}

	if c.PlateauCeiling < 0 || c.PlateauCeiling > 100 {
		return fmt.Errorf("plateau_ceiling must be between 1 and 100, got: %d", c.PlateauCeiling)
	}

	tasks := map[string]TaskConfig{
		"initialize":   c.Tasks.Initialize,
		"model_change": c.Tasks.ModelChange,
		"download":     c.Tasks.Download,
	}
	for name, t := range tasks {
		if err := t.validate(); err != nil {
			return fmt.Errorf("tasks.%s: %w", name, err)
		}
	}

	if c.Fake.Chapters < 0 {
		return fmt.Errorf("fake chapters can't be negative")
	}

	return nil
}

func (t TaskConfig) validate() error {
	if t.Interval < 0 {
		return fmt.Errorf("interval can't be negative")
	}
	if t.MaxTicks < 0 {
		return fmt.Errorf("max_ticks can't be negative")
	}
	if t.Deadline < 0 {
		return fmt.Errorf("deadline can't be negative")
	}
	return nil
}

func (c AppConfig) toModel() model.AppConfig {
	cfg := model.DefaultAppConfig()

	if c.Backend.Kind != "" {
		cfg.Backend.Kind = c.Backend.Kind
	}
	if c.Backend.URL != "" {
		cfg.Backend.URL = c.Backend.URL
	}
	if c.Backend.RequestTimeout != 0 {
		cfg.Backend.RequestTimeout = c.Backend.RequestTimeout
	}
	if c.DBPath != "" {
		cfg.DBPath = c.DBPath
	}
	if c.PlateauCeiling != 0 {
		cfg.PlateauCeiling = c.PlateauCeiling
	}

	cfg.Initialize = c.Tasks.Initialize.merge(cfg.Initialize)
	cfg.ModelChange = c.Tasks.ModelChange.merge(cfg.ModelChange)
	cfg.Download = c.Tasks.Download.merge(cfg.Download)

	if c.Fake.StepDelay != 0 {
		cfg.Fake.StepDelay = c.Fake.StepDelay
	}
	if c.Fake.Chapters != 0 {
		cfg.Fake.Chapters = c.Fake.Chapters
	}

	return cfg
}

func (t TaskConfig) merge(def model.TaskTuning) model.TaskTuning {
	if t.Interval != 0 {
		def.Interval = t.Interval
	}
	if t.MaxTicks != 0 {
		def.MaxTicks = t.MaxTicks
	}
	if t.Deadline != 0 {
		def.Deadline = t.Deadline
	}
	return def
}
