package modelchange_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fynovel/fyctl/internal/app/modelchange"
	"github.com/fynovel/fyctl/internal/backend/backendmock"
	"github.com/fynovel/fyctl/internal/busy"
	"github.com/fynovel/fyctl/internal/model"
	"github.com/fynovel/fyctl/internal/task"
)

var models = []string{"llama3.2", "gemma2", "qwen2.5:7b"}

func newService(t *testing.T, b *backendmock.MockBackend, c modelchange.Confirmer) *modelchange.Service {
	t.Helper()

	state := busy.NewState()
	w, err := state.Claim(model.TaskKindModelChange)
	require.NoError(t, err)

	svc, err := modelchange.NewService(modelchange.ServiceConfig{
		Backend:   b,
		Busy:      w,
		Confirmer: c,
		Tuning:    task.Tuning{Interval: 5 * time.Millisecond, MaxTicks: 50},
	})
	require.NoError(t, err)
	t.Cleanup(svc.Stop)

	return svc
}

func waitEnd(t *testing.T, svc *modelchange.Service) task.Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	snap, err := svc.Wait(ctx)
	require.NoError(t, err)
	return snap
}

func TestNewService(t *testing.T) {
	state := busy.NewState()
	w, err := state.Claim(model.TaskKindModelChange)
	require.NoError(t, err)

	tests := map[string]struct {
		cfg    modelchange.ServiceConfig
		expErr bool
		errMsg string
	}{
		"Valid config": {
			cfg: modelchange.ServiceConfig{Backend: &backendmock.MockBackend{}, Busy: w, Confirmer: modelchange.AlwaysConfirm},
		},
		"Missing confirmer returns error": {
			cfg:    modelchange.ServiceConfig{Backend: &backendmock.MockBackend{}, Busy: w},
			expErr: true,
			errMsg: "confirmer is required",
		},
		"Missing backend returns error": {
			cfg:    modelchange.ServiceConfig{Busy: w, Confirmer: modelchange.AlwaysConfirm},
			expErr: true,
			errMsg: "backend is required",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			svc, err := modelchange.NewService(tt.cfg)

			if tt.expErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
				assert.NotNil(t, svc)
			}
		})
	}
}

func TestServiceRequest(t *testing.T) {
	tests := map[string]struct {
		target     string
		confirm    func() (bool, error)
		setupMocks func(b *backendmock.MockBackend)
		expErr     error
		expState   model.TaskState
		expCurrent string
	}{
		"A confirmed change updates the model in use after it finishes": {
			target:  "gemma2",
			confirm: func() (bool, error) { return true, nil },
			setupMocks: func(b *backendmock.MockBackend) {
				b.On("ResetModelChangeTask", mock.Anything).Once().Return(nil)
				b.On("TriggerModelChange", mock.Anything, "gemma2").Once().Return(model.TriggerResult{}, nil)
				b.On("PollModelChangeProgress", mock.Anything).Once().Return(model.ProgressSample{Exists: true, Completed: 3, Total: 6}, nil)
				b.On("PollModelChangeProgress", mock.Anything).Return(model.ProgressSample{Exists: true, Completed: 6, Total: 6}, nil)
				b.On("GetCurrentModel", mock.Anything).Once().Return("gemma2", nil)
			},
			expState:   model.TaskStateCompleted,
			expCurrent: "gemma2",
		},
		"Reinstalling the current model still asks and triggers": {
			target:  "llama3.2",
			confirm: func() (bool, error) { return true, nil },
			setupMocks: func(b *backendmock.MockBackend) {
				b.On("ResetModelChangeTask", mock.Anything).Once().Return(nil)
				b.On("TriggerModelChange", mock.Anything, "llama3.2").Once().Return(model.TriggerResult{}, nil)
				b.On("PollModelChangeProgress", mock.Anything).Return(model.ProgressSample{Exists: true, Completed: 6, Total: 6}, nil)
				b.On("GetCurrentModel", mock.Anything).Once().Return("llama3.2", nil)
			},
			expState:   model.TaskStateCompleted,
			expCurrent: "llama3.2",
		},
		"A declined change doesn't trigger": {
			target:     "gemma2",
			confirm:    func() (bool, error) { return false, nil },
			setupMocks: func(b *backendmock.MockBackend) {},
			expErr:     model.ErrDeclined,
			expState:   model.TaskStateIdle,
			expCurrent: "llama3.2",
		},
		"A failed confirmation doesn't trigger": {
			target:     "gemma2",
			confirm:    func() (bool, error) { return false, errors.New("no tty") },
			setupMocks: func(b *backendmock.MockBackend) {},
			expState:   model.TaskStateIdle,
			expCurrent: "llama3.2",
		},
		"An unknown model is not valid": {
			target:     "gpt-99",
			setupMocks: func(b *backendmock.MockBackend) {},
			expErr:     model.ErrNotValid,
			expState:   model.TaskStateIdle,
			expCurrent: "llama3.2",
		},
		"A rejected change keeps the model in use": {
			target:  "gemma2",
			confirm: func() (bool, error) { return true, nil },
			setupMocks: func(b *backendmock.MockBackend) {
				b.On("ResetModelChangeTask", mock.Anything).Once().Return(nil)
				b.On("TriggerModelChange", mock.Anything, "gemma2").Once().Return(model.TriggerResult{ErrorMessage: "runtime not ready"}, nil)
			},
			expState:   model.TaskStateFailed,
			expCurrent: "llama3.2",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)
			ctx := context.Background()

			b := &backendmock.MockBackend{}
			b.On("GetCurrentModel", mock.Anything).Once().Return("llama3.2", nil)
			b.On("GetModelList", mock.Anything).Return(models, nil)
			tt.setupMocks(b)

			var asked atomic.Int32
			svc := newService(t, b, modelchange.ConfirmerFunc(func(_ context.Context, current, target string) (bool, error) {
				asked.Add(1)
				assert.Equal("llama3.2", current)
				assert.Equal(tt.target, target)
				return tt.confirm()
			}))

			_, err := svc.Refresh(ctx)
			require.NoError(err)

			err = svc.Request(ctx, tt.target)
			if tt.expErr != nil {
				assert.ErrorIs(err, tt.expErr)
			}

			snap := waitEnd(t, svc)
			assert.Equal(tt.expState, snap.State)
			assert.Equal(tt.expCurrent, svc.Current())
			assert.Equal(tt.expCurrent, svc.Pending(), "selection and model in use should agree at rest")

			if err != nil {
				b.AssertNotCalled(t, "TriggerModelChange", mock.Anything, mock.Anything)
			} else {
				b.AssertNumberOfCalls(t, "TriggerModelChange", 1)
				assert.Equal(int32(1), asked.Load())
			}
		})
	}
}

func TestServicePendingWhileRunning(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	b := &backendmock.MockBackend{}
	b.On("GetCurrentModel", mock.Anything).Once().Return("llama3.2", nil)
	b.On("GetModelList", mock.Anything).Return(models, nil)
	b.On("ResetModelChangeTask", mock.Anything).Return(nil)
	b.On("TriggerModelChange", mock.Anything, "gemma2").Once().Return(model.TriggerResult{}, nil)
	b.On("PollModelChangeProgress", mock.Anything).Return(model.ProgressSample{Exists: true, Completed: 1, Total: 6}, nil)

	svc := newService(t, b, modelchange.AlwaysConfirm)
	_, err := svc.Refresh(ctx)
	require.NoError(err)

	require.NoError(svc.Request(ctx, "gemma2"))
	assert.Equal("gemma2", svc.Pending())
	assert.Equal("llama3.2", svc.Current())

	// A second request while the first is in flight is a no-op.
	err = svc.Request(ctx, "qwen2.5:7b")
	assert.ErrorIs(err, model.ErrBusy)
	assert.Equal("gemma2", svc.Pending())

	assert.Eventually(func() bool { return svc.Snapshot().State == model.TaskStateRunning }, 2*time.Second, time.Millisecond)
	b.AssertNumberOfCalls(t, "TriggerModelChange", 1)

	svc.Stop()
	assert.Equal(model.TaskStateIdle, svc.Snapshot().State)
	assert.Equal("llama3.2", svc.Pending())
}

func TestServiceOverlappingRequests(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	b := &backendmock.MockBackend{}
	b.On("GetCurrentModel", mock.Anything).Once().Return("llama3.2", nil)
	b.On("GetModelList", mock.Anything).Return(models, nil)
	b.On("ResetModelChangeTask", mock.Anything).Return(nil)
	b.On("TriggerModelChange", mock.Anything, "gemma2").Once().Return(model.TriggerResult{}, nil)
	b.On("PollModelChangeProgress", mock.Anything).Return(model.ProgressSample{Exists: true, Completed: 1, Total: 6}, nil)

	asking := make(chan struct{})
	answer := make(chan bool)
	svc := newService(t, b, modelchange.ConfirmerFunc(func(context.Context, string, string) (bool, error) {
		close(asking)
		return <-answer, nil
	}))
	_, err := svc.Refresh(ctx)
	require.NoError(err)

	first := make(chan error, 1)
	go func() { first <- svc.Request(ctx, "gemma2") }()
	<-asking

	// The first request holds the slot while the user is asked.
	err = svc.Request(ctx, "qwen2.5:7b")
	assert.ErrorIs(err, model.ErrBusy)
	assert.False(svc.Attach(ctx))
	assert.Equal("gemma2", svc.Pending())
	b.AssertNotCalled(t, "ResetModelChangeTask", mock.Anything)

	answer <- true
	require.NoError(<-first)
	assert.Eventually(func() bool { return svc.Snapshot().State == model.TaskStateRunning }, 2*time.Second, time.Millisecond)

	err = svc.Request(ctx, "qwen2.5:7b")
	assert.ErrorIs(err, model.ErrBusy)
	assert.Equal("gemma2", svc.Pending())
	b.AssertNumberOfCalls(t, "ResetModelChangeTask", 1)
	b.AssertNumberOfCalls(t, "TriggerModelChange", 1)
}
