package doctor

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"

	"github.com/fynovel/fyctl/internal/backend"
	"github.com/fynovel/fyctl/internal/log"
	"github.com/fynovel/fyctl/internal/model"
)

// RuntimeContainerName is the name of the model runtime container created by the backend.
const RuntimeContainerName = "ollama"

// DockerClient is the subset of the Docker API used by the checks.
type DockerClient interface {
	Ping(ctx context.Context) (types.Ping, error)
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
}

// SchemaVersioner reports the applied storage schema version.
type SchemaVersioner interface {
	SchemaVersion(ctx context.Context) (uint, error)
}

// CheckerConfig is the configuration of the preflight checker.
type CheckerConfig struct {
	Docker  DockerClient
	Backend backend.Backend
	Schema  SchemaVersioner
	Logger  log.Logger
}

func (c *CheckerConfig) defaults() error {
	if c.Docker == nil {
		cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			return fmt.Errorf("could not create Docker client: %w", err)
		}
		c.Docker = cli
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "doctor.Checker"})
	return nil
}

// Checker runs the preflight checks of the runtime initialization.
type Checker struct {
	docker  DockerClient
	backend backend.Backend
	schema  SchemaVersioner
	logger  log.Logger
}

// NewChecker returns a new preflight checker.
func NewChecker(cfg CheckerConfig) (*Checker, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Checker{
		docker:  cfg.Docker,
		backend: cfg.Backend,
		schema:  cfg.Schema,
		logger:  cfg.Logger,
	}, nil
}

// Check runs all the checks, the optional ones are skipped when not configured.
func (c *Checker) Check(ctx context.Context) []model.CheckResult {
	results := []model.CheckResult{c.checkDaemon(ctx)}
	if results[0].Status == model.CheckStatusOK {
		results = append(results, c.checkContainer(ctx))
	}
	if c.backend != nil {
		results = append(results, c.checkBackend(ctx))
	}
	if c.schema != nil {
		results = append(results, c.checkSchema(ctx))
	}

	c.logger.Debugf("Preflight finished with %d errors", model.CountByStatus(results, model.CheckStatusError))
	return results
}

func (c *Checker) checkDaemon(ctx context.Context) model.CheckResult {
	ping, err := c.docker.Ping(ctx)
	if err != nil {
		return model.CheckResult{
			ID:      "docker_daemon",
			Message: fmt.Sprintf("Docker daemon is not reachable: %v", err),
			Status:  model.CheckStatusError,
		}
	}

	return model.CheckResult{
		ID:      "docker_daemon",
		Message: fmt.Sprintf("Docker daemon is reachable (API %s)", ping.APIVersion),
		Status:  model.CheckStatusOK,
	}
}

func (c *Checker) checkContainer(ctx context.Context) model.CheckResult {
	containers, err := c.docker.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("name", RuntimeContainerName)),
	})
	if err != nil {
		return model.CheckResult{
			ID:      "runtime_container",
			Message: fmt.Sprintf("Could not list containers: %v", err),
			Status:  model.CheckStatusError,
		}
	}

	if len(containers) == 0 {
		return model.CheckResult{
			ID:      "runtime_container",
			Message: "Runtime container does not exist, run the init command",
			Status:  model.CheckStatusWarning,
		}
	}

	con := containers[0]
	if con.State != "running" {
		return model.CheckResult{
			ID:      "runtime_container",
			Message: fmt.Sprintf("Runtime container exists but is %s", con.State),
			Status:  model.CheckStatusWarning,
		}
	}

	return model.CheckResult{
		ID:      "runtime_container",
		Message: fmt.Sprintf("Runtime container is running (%s)", con.Image),
		Status:  model.CheckStatusOK,
	}
}

func (c *Checker) checkBackend(ctx context.Context) model.CheckResult {
	status, err := c.backend.HasInit(ctx)
	if err != nil {
		return model.CheckResult{
			ID:      "backend",
			Message: fmt.Sprintf("Backend is not reachable: %v", err),
			Status:  model.CheckStatusError,
		}
	}

	switch {
	case status.IsInitializing:
		return model.CheckResult{ID: "backend", Message: "Backend is initializing the runtime", Status: model.CheckStatusWarning}
	case status.IsChangingModel:
		return model.CheckResult{ID: "backend", Message: "Backend is changing the model", Status: model.CheckStatusWarning}
	case !status.ContainerPresent:
		return model.CheckResult{ID: "backend", Message: "Backend is reachable, runtime not initialized", Status: model.CheckStatusWarning}
	}

	return model.CheckResult{ID: "backend", Message: "Backend is reachable and ready", Status: model.CheckStatusOK}
}

func (c *Checker) checkSchema(ctx context.Context) model.CheckResult {
	v, err := c.schema.SchemaVersion(ctx)
	if err != nil {
		return model.CheckResult{
			ID:      "storage_schema",
			Message: fmt.Sprintf("Storage schema is not usable: %v", err),
			Status:  model.CheckStatusError,
		}
	}

	return model.CheckResult{
		ID:      "storage_schema",
		Message: fmt.Sprintf("Storage schema at version %d", v),
		Status:  model.CheckStatusOK,
	}
}
