// Package backendmock has a testify mock of backend.Backend.
package backendmock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/fynovel/fyctl/internal/backend"
	"github.com/fynovel/fyctl/internal/model"
)

// MockBackend is a mock of backend.Backend.
type MockBackend struct {
	mock.Mock
}

var _ backend.Backend = &MockBackend{}

func (m *MockBackend) TriggerInit(ctx context.Context) (model.TriggerResult, error) {
	args := m.Called(ctx)
	return args.Get(0).(model.TriggerResult), args.Error(1)
}

func (m *MockBackend) PollInitProgress(ctx context.Context) (model.ProgressSample, error) {
	args := m.Called(ctx)
	return args.Get(0).(model.ProgressSample), args.Error(1)
}

func (m *MockBackend) HasInit(ctx context.Context) (model.ContainerStatus, error) {
	args := m.Called(ctx)
	return args.Get(0).(model.ContainerStatus), args.Error(1)
}

func (m *MockBackend) GetCurrentModel(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockBackend) GetModelList(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	models, _ := args.Get(0).([]string)
	return models, args.Error(1)
}

func (m *MockBackend) ResetModelChangeTask(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockBackend) TriggerModelChange(ctx context.Context, target string) (model.TriggerResult, error) {
	args := m.Called(ctx, target)
	return args.Get(0).(model.TriggerResult), args.Error(1)
}

func (m *MockBackend) PollModelChangeProgress(ctx context.Context) (model.ProgressSample, error) {
	args := m.Called(ctx)
	return args.Get(0).(model.ProgressSample), args.Error(1)
}

func (m *MockBackend) Search(ctx context.Context, name string) ([]model.SearchResult, error) {
	args := m.Called(ctx, name)
	results, _ := args.Get(0).([]model.SearchResult)
	return results, args.Error(1)
}

func (m *MockBackend) TriggerDownload(ctx context.Context, item model.SearchResult) (model.CrawlResult, error) {
	args := m.Called(ctx, item)
	return args.Get(0).(model.CrawlResult), args.Error(1)
}

func (m *MockBackend) PollDownloadProgress(ctx context.Context, item model.SearchResult) (model.ProgressSample, error) {
	args := m.Called(ctx, item)
	return args.Get(0).(model.ProgressSample), args.Error(1)
}
