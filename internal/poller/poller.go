// Package poller drives a status fetch function on a fixed period.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fynovel/fyctl/internal/log"
	"github.com/fynovel/fyctl/internal/model"
)

// ErrAlreadyArmed is returned when arming a poller that is already running.
var ErrAlreadyArmed = errors.New("poller already armed")

// FetchFunc knows how to get the current progress of a task.
type FetchFunc func(ctx context.Context) (model.ProgressSample, error)

// SampleFunc receives the successful fetches.
type SampleFunc func(sample model.ProgressSample)

// ErrorFunc receives the failed fetches.
type ErrorFunc func(err error)

// Config is the configuration for the poller.
type Config struct {
	Logger log.Logger
}

func (c *Config) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "poller.Poller"})
	return nil
}

// Poller calls a fetch function every interval until disarmed.
//
// Ticks are serialized: a fetch that takes longer than the interval defers the
// next tick, so there is never more than one fetch in flight.
type Poller struct {
	logger log.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	last   chan struct{}
}

// New returns a new disarmed poller.
func New(cfg Config) (*Poller, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Poller{logger: cfg.Logger}, nil
}

// Arm starts the repeating schedule. The first fetch happens after one interval.
// Fetch errors are delivered to onError and polling continues.
func (p *Poller) Arm(ctx context.Context, interval time.Duration, fetch FetchFunc, onSample SampleFunc, onError ErrorFunc) error {
	if interval <= 0 {
		return fmt.Errorf("interval must be positive: %w", model.ErrNotValid)
	}
	if fetch == nil || onSample == nil {
		return fmt.Errorf("fetch and sample functions are required: %w", model.ErrNotValid)
	}
	if onError == nil {
		onError = func(error) {}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return ErrAlreadyArmed
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done
	p.last = done

	go p.run(ctx, interval, fetch, onSample, onError, done)
	p.logger.Debugf("Poller armed every %s", interval)

	return nil
}

// Disarm cancels the schedule, an in-flight fetch is canceled and its result dropped.
// It's safe to call it multiple times and from inside the poller callbacks.
func (p *Poller) Disarm() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel == nil {
		return
	}
	p.cancel()
	p.cancel = nil
	p.done = nil
	p.logger.Debugf("Poller disarmed")
}

// Armed returns true if the poller has a running schedule.
func (p *Poller) Armed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// Done returns a channel that is closed when the goroutine of the latest schedule exits.
// If the poller was never armed the returned channel is already closed.
func (p *Poller) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		c := make(chan struct{})
		close(c)
		return c
	}
	return p.last
}

func (p *Poller) run(ctx context.Context, interval time.Duration, fetch FetchFunc, onSample SampleFunc, onError ErrorFunc, done chan struct{}) {
	defer close(done)
	defer p.release(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		sample, err := fetch(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			onError(err)
			continue
		}
		onSample(sample)
	}
}

// release forgets the schedule if it ended without Disarm (e.g. parent context canceled).
func (p *Poller) release(done chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done == done {
		p.cancel()
		p.cancel = nil
		p.done = nil
	}
}
