package doctor_test

import (
	"context"
	"errors"
	"testing"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fynovel/fyctl/internal/backend/backendmock"
	"github.com/fynovel/fyctl/internal/doctor"
	"github.com/fynovel/fyctl/internal/model"
)

type mockDocker struct{ mock.Mock }

func (m *mockDocker) Ping(ctx context.Context) (types.Ping, error) {
	args := m.Called(ctx)
	return args.Get(0).(types.Ping), args.Error(1)
}

func (m *mockDocker) ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error) {
	args := m.Called(ctx, options)
	cs, _ := args.Get(0).([]container.Summary)
	return cs, args.Error(1)
}

type schemaFunc func(ctx context.Context) (uint, error)

func (f schemaFunc) SchemaVersion(ctx context.Context) (uint, error) { return f(ctx) }

func TestCheckerCheck(t *testing.T) {
	tests := map[string]struct {
		mock      func(d *mockDocker, b *backendmock.MockBackend)
		schema    schemaFunc
		expStatus map[string]model.CheckStatus
	}{
		"Everything ready should pass all the checks.": {
			mock: func(d *mockDocker, b *backendmock.MockBackend) {
				d.On("Ping", mock.Anything).Once().Return(types.Ping{APIVersion: "1.47"}, nil)
				d.On("ContainerList", mock.Anything, mock.MatchedBy(func(o container.ListOptions) bool {
					return o.All && o.Filters.ExactMatch("name", doctor.RuntimeContainerName)
				})).Once().Return([]container.Summary{{State: "running", Image: "ollama/ollama"}}, nil)
				b.On("HasInit", mock.Anything).Once().Return(model.ContainerStatus{ContainerPresent: true}, nil)
			},
			schema: func(context.Context) (uint, error) { return 2, nil },
			expStatus: map[string]model.CheckStatus{
				"docker_daemon":     model.CheckStatusOK,
				"runtime_container": model.CheckStatusOK,
				"backend":           model.CheckStatusOK,
				"storage_schema":    model.CheckStatusOK,
			},
		},
		"Unreachable daemon should skip the container check.": {
			mock: func(d *mockDocker, b *backendmock.MockBackend) {
				d.On("Ping", mock.Anything).Once().Return(types.Ping{}, errors.New("connection refused"))
				b.On("HasInit", mock.Anything).Once().Return(model.ContainerStatus{}, errors.New("connection refused"))
			},
			expStatus: map[string]model.CheckStatus{
				"docker_daemon": model.CheckStatusError,
				"backend":       model.CheckStatusError,
			},
		},
		"Missing or stopped container should warn.": {
			mock: func(d *mockDocker, b *backendmock.MockBackend) {
				d.On("Ping", mock.Anything).Once().Return(types.Ping{}, nil)
				d.On("ContainerList", mock.Anything, mock.Anything).Once().Return([]container.Summary{{State: "exited"}}, nil)
				b.On("HasInit", mock.Anything).Once().Return(model.ContainerStatus{ContainerPresent: true, IsChangingModel: true}, nil)
			},
			schema: func(context.Context) (uint, error) { return 1, errors.New("schema version 1 is dirty") },
			expStatus: map[string]model.CheckStatus{
				"docker_daemon":     model.CheckStatusOK,
				"runtime_container": model.CheckStatusWarning,
				"backend":           model.CheckStatusWarning,
				"storage_schema":    model.CheckStatusError,
			},
		},
		"No container should warn.": {
			mock: func(d *mockDocker, b *backendmock.MockBackend) {
				d.On("Ping", mock.Anything).Once().Return(types.Ping{}, nil)
				d.On("ContainerList", mock.Anything, mock.Anything).Once().Return(nil, nil)
				b.On("HasInit", mock.Anything).Once().Return(model.ContainerStatus{}, nil)
			},
			expStatus: map[string]model.CheckStatus{
				"docker_daemon":     model.CheckStatusOK,
				"runtime_container": model.CheckStatusWarning,
				"backend":           model.CheckStatusWarning,
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			d := &mockDocker{}
			b := &backendmock.MockBackend{}
			test.mock(d, b)

			cfg := doctor.CheckerConfig{Docker: d, Backend: b}
			if test.schema != nil {
				cfg.Schema = test.schema
			}
			c, err := doctor.NewChecker(cfg)
			require.NoError(err)

			results := c.Check(context.Background())

			got := map[string]model.CheckStatus{}
			for _, r := range results {
				got[r.ID] = r.Status
			}
			assert.Equal(test.expStatus, got)
			d.AssertExpectations(t)
			b.AssertExpectations(t)
		})
	}
}
