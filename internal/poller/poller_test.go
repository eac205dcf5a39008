package poller_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fynovel/fyctl/internal/model"
	"github.com/fynovel/fyctl/internal/poller"
)

const interval = 5 * time.Millisecond

func newPoller(t *testing.T) *poller.Poller {
	p, err := poller.New(poller.Config{})
	require.NoError(t, err)
	return p
}

func TestPollerDeliversSamples(t *testing.T) {
	p := newPoller(t)

	var calls atomic.Int32
	samples := make(chan model.ProgressSample, 10)
	fetch := func(ctx context.Context) (model.ProgressSample, error) {
		n := int(calls.Add(1))
		return model.ProgressSample{Exists: true, Completed: n, Total: 10}, nil
	}

	err := p.Arm(context.Background(), interval, fetch, func(s model.ProgressSample) {
		select {
		case samples <- s:
		default:
		}
	}, nil)
	require.NoError(t, err)
	defer p.Disarm()

	first := <-samples
	second := <-samples
	assert.Equal(t, 1, first.Completed)
	assert.Equal(t, 2, second.Completed)
	assert.True(t, p.Armed())
}

func TestPollerArmTwiceShouldFail(t *testing.T) {
	p := newPoller(t)
	fetch := func(ctx context.Context) (model.ProgressSample, error) { return model.ProgressSample{}, nil }
	noop := func(model.ProgressSample) {}

	require.NoError(t, p.Arm(context.Background(), interval, fetch, noop, nil))
	defer p.Disarm()

	err := p.Arm(context.Background(), interval, fetch, noop, nil)
	assert.ErrorIs(t, err, poller.ErrAlreadyArmed)
}

func TestPollerArmInvalid(t *testing.T) {
	tests := map[string]struct {
		interval time.Duration
		fetch    poller.FetchFunc
		onSample poller.SampleFunc
	}{
		"Zero interval should fail": {
			interval: 0,
			fetch:    func(ctx context.Context) (model.ProgressSample, error) { return model.ProgressSample{}, nil },
			onSample: func(model.ProgressSample) {},
		},
		"Missing fetch should fail": {
			interval: interval,
			onSample: func(model.ProgressSample) {},
		},
		"Missing sample callback should fail": {
			interval: interval,
			fetch:    func(ctx context.Context) (model.ProgressSample, error) { return model.ProgressSample{}, nil },
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			p := newPoller(t)
			err := p.Arm(context.Background(), test.interval, test.fetch, test.onSample, nil)
			assert.ErrorIs(t, err, model.ErrNotValid)
			assert.False(t, p.Armed())
		})
	}
}

func TestPollerErrorsShouldNotStopPolling(t *testing.T) {
	p := newPoller(t)

	var calls atomic.Int32
	errs := make(chan error, 10)
	samples := make(chan model.ProgressSample, 10)
	fetch := func(ctx context.Context) (model.ProgressSample, error) {
		if calls.Add(1) == 1 {
			return model.ProgressSample{}, errors.New("connection reset")
		}
		return model.ProgressSample{Exists: true}, nil
	}

	err := p.Arm(context.Background(), interval, fetch,
		func(s model.ProgressSample) {
			select {
			case samples <- s:
			default:
			}
		},
		func(err error) { errs <- err },
	)
	require.NoError(t, err)
	defer p.Disarm()

	assert.EqualError(t, <-errs, "connection reset")
	s := <-samples
	assert.True(t, s.Exists)
}

func TestPollerTicksAreSerialized(t *testing.T) {
	p := newPoller(t)

	var inFlight, maxInFlight, calls atomic.Int32
	enough := make(chan struct{})
	var once sync.Once
	fetch := func(ctx context.Context) (model.ProgressSample, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		if n > maxInFlight.Load() {
			maxInFlight.Store(n)
		}
		// Slower than the interval.
		time.Sleep(3 * interval)
		if calls.Add(1) >= 3 {
			once.Do(func() { close(enough) })
		}
		return model.ProgressSample{}, nil
	}

	require.NoError(t, p.Arm(context.Background(), interval, fetch, func(model.ProgressSample) {}, nil))
	<-enough
	p.Disarm()
	<-p.Done()

	assert.Equal(t, int32(1), maxInFlight.Load())
}

func TestPollerDisarm(t *testing.T) {
	p := newPoller(t)

	started := make(chan struct{})
	var delivered atomic.Int32
	fetch := func(ctx context.Context) (model.ProgressSample, error) {
		close(started)
		<-ctx.Done()
		return model.ProgressSample{Exists: true}, nil
	}

	require.NoError(t, p.Arm(context.Background(), interval, fetch, func(model.ProgressSample) { delivered.Add(1) }, nil))
	<-started

	p.Disarm()
	p.Disarm() // Idempotent.
	<-p.Done()

	assert.False(t, p.Armed())
	assert.Equal(t, int32(0), delivered.Load(), "in flight result after disarm should be dropped")
}

func TestPollerDisarmFromCallback(t *testing.T) {
	p := newPoller(t)

	var delivered atomic.Int32
	fetch := func(ctx context.Context) (model.ProgressSample, error) {
		return model.ProgressSample{Exists: true}, nil
	}

	require.NoError(t, p.Arm(context.Background(), interval, fetch, func(model.ProgressSample) {
		delivered.Add(1)
		p.Disarm()
	}, nil))
	<-p.Done()

	assert.Equal(t, int32(1), delivered.Load())
	assert.False(t, p.Armed())

	// Can be armed again after being disarmed.
	require.NoError(t, p.Arm(context.Background(), interval, fetch, func(model.ProgressSample) { p.Disarm() }, nil))
	<-p.Done()
}

func TestPollerParentContextCancel(t *testing.T) {
	p := newPoller(t)
	ctx, cancel := context.WithCancel(context.Background())

	fetch := func(ctx context.Context) (model.ProgressSample, error) { return model.ProgressSample{}, nil }
	require.NoError(t, p.Arm(ctx, interval, fetch, func(model.ProgressSample) {}, nil))

	cancel()
	<-p.Done()
	assert.False(t, p.Armed())
}

func TestPollerDoneWhenNeverArmed(t *testing.T) {
	p := newPoller(t)
	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("done channel should be closed")
	}
}
