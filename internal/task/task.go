// Package task implements the lifecycle of a background operation that is started
// with a trigger request and observed by polling its progress.
//
// A Handle runs at most one session at a time. Every session gets a generation
// number, responses that belong to an older generation are dropped.
package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/fynovel/fyctl/internal/busy"
	"github.com/fynovel/fyctl/internal/log"
	"github.com/fynovel/fyctl/internal/model"
	"github.com/fynovel/fyctl/internal/poller"
	"github.com/fynovel/fyctl/internal/progress"
	"github.com/fynovel/fyctl/internal/storage"
)

// Mode is how the trigger request relates to the end of the operation.
type Mode int

const (
	// ModeAcknowledged triggers return as soon as the backend accepted the work,
	// the end of the operation is discovered by polling.
	ModeAcknowledged Mode = iota
	// ModeBlocking triggers resolve when the work ends, polling only reports progress.
	ModeBlocking
)

// TriggerFunc starts the remote operation.
type TriggerFunc[P, R any] func(ctx context.Context, params P) (R, error)

// FetchFunc gets the progress of the remote operation.
type FetchFunc[P any] func(ctx context.Context, params P) (model.ProgressSample, error)

// SuccessFunc is called when the operation ends successfully, before the
// completed state is published.
type SuccessFunc[P, R any] func(ctx context.Context, params P, result R)

// FailureFunc is called after the operation failed. Stopped sessions don't fail.
type FailureFunc[P any] func(params P, err error)

// Tuning are the polling settings of a task kind.
type Tuning struct {
	Interval time.Duration
	// MaxTicks is the max number of polls (successful or not) of a session, 0 means unbounded.
	MaxTicks int
	// Deadline is the max duration of a session, 0 means unbounded.
	Deadline       time.Duration
	PlateauCeiling int
}

// Observer is the params independent side of a handle, used by views and owners.
type Observer interface {
	Kind() model.TaskKind
	Snapshot() Snapshot
	Subscribe() (<-chan Snapshot, func())
	Done() <-chan struct{}
	Wait(ctx context.Context) (Snapshot, error)
	Stop()
}

// Config is the configuration of a task handle.
type Config[P, R any] struct {
	Kind    model.TaskKind
	Mode    Mode
	Trigger TriggerFunc[P, R]
	Fetch   FetchFunc[P]
	// Rejection returns the application level error of a trigger response, if any.
	Rejection func(R) string
	// Terminal decides if a sample means the operation finished (acknowledged mode only).
	// By default a sample with all the work completed is terminal.
	Terminal  func(model.ProgressSample) bool
	OnSuccess SuccessFunc[P, R]
	OnFailure FailureFunc[P]
	// Subject returns a human name of the params for logs and history.
	Subject func(P) string

	Busy *busy.Writer
	Tuning

	Poller *poller.Poller
	Runs   storage.TaskRunRepository
	Logger log.Logger
}

func (c *Config[P, R]) defaults() error {
	if err := c.Kind.Validate(); err != nil {
		return fmt.Errorf("invalid kind %q: %w", c.Kind, err)
	}

	if c.Trigger == nil {
		return fmt.Errorf("trigger is required")
	}

	if c.Fetch == nil {
		return fmt.Errorf("fetch is required")
	}

	if c.Busy == nil {
		return fmt.Errorf("busy flag writer is required")
	}

	if c.Busy.Kind() != c.Kind {
		return fmt.Errorf("busy flag kind %q doesn't match task kind %q", c.Busy.Kind(), c.Kind)
	}

	if c.Rejection == nil {
		c.Rejection = func(R) string { return "" }
	}

	if c.Terminal == nil {
		c.Terminal = model.ProgressSample.Done
	}

	if c.Subject == nil {
		c.Subject = func(P) string { return "" }
	}

	if c.Interval <= 0 {
		c.Interval = time.Second
	}

	if c.MaxTicks < 0 {
		return fmt.Errorf("max ticks can't be negative")
	}

	if c.Deadline < 0 {
		return fmt.Errorf("deadline can't be negative")
	}

	if c.PlateauCeiling == 0 {
		c.PlateauCeiling = progress.DefaultCeiling
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "task.Handle", "kind": c.Kind})

	if c.Poller == nil {
		p, err := poller.New(poller.Config{Logger: c.Logger})
		if err != nil {
			return fmt.Errorf("could not create poller: %w", err)
		}
		c.Poller = p
	}

	return nil
}

// Snapshot is the observable state of a handle.
type Snapshot struct {
	Kind      model.TaskKind
	SessionID string
	Subject   string
	State     model.TaskState
	Percent   int
	Plateaued bool
	Busy      bool
	Ticks     int
	Err       error
	StartedAt time.Time
}

var _ Observer = &Handle[any, any]{}

// Handle coordinates the trigger, the polling and the busy flag of one task kind.
type Handle[P, R any] struct {
	cfg    Config[P, R]
	logger log.Logger

	mu       sync.Mutex
	gen      uint64
	snap     Snapshot
	acked    bool
	params   P
	result   R
	cancel   context.CancelFunc
	deadline *time.Timer
	done     chan struct{}
	subs     map[int]chan Snapshot
	nextSub  int
}

// New returns a new idle handle.
func New[P, R any](cfg Config[P, R]) (*Handle[P, R], error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	done := make(chan struct{})
	close(done)

	return &Handle[P, R]{
		cfg:    cfg,
		logger: cfg.Logger,
		snap:   Snapshot{Kind: cfg.Kind, State: model.TaskStateIdle},
		done:   done,
		subs:   map[int]chan Snapshot{},
	}, nil
}

// Kind returns the task kind of the handle.
func (h *Handle[P, R]) Kind() model.TaskKind { return h.cfg.Kind }

// Start starts a new session. If a session is already in flight it does nothing and
// returns false.
func (h *Handle[P, R]) Start(ctx context.Context, params P) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.snap.State.Resting() {
		h.logger.Debugf("Start ignored, task already %s", h.snap.State)
		return false
	}

	sctx, gen := h.beginLocked(ctx, params, model.TaskStateTriggering)
	if h.cfg.Mode == ModeBlocking {
		if err := h.armLocked(sctx, gen); err != nil {
			run := h.finishLocked(model.TaskStateFailed, err)
			h.persistAndClose(&run, h.done)
			return true
		}
	}

	go h.trigger(sctx, gen, params)

	return true
}

// Attach starts a session for an operation the backend already has in flight, without
// triggering it. Only acknowledged handles can attach.
func (h *Handle[P, R]) Attach(ctx context.Context, params P) bool {
	if h.cfg.Mode != ModeAcknowledged {
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.snap.State.Resting() {
		return false
	}

	sctx, gen := h.beginLocked(ctx, params, model.TaskStateRunning)
	h.acked = true
	if err := h.armLocked(sctx, gen); err != nil {
		run := h.finishLocked(model.TaskStateFailed, err)
		h.persistAndClose(&run, h.done)
		return true
	}
	h.logger.Infof("Attached to %s task in flight", h.cfg.Kind)

	return true
}

// Stop ends the current session, if any, and leaves the handle idle. In-flight
// requests are canceled and their responses ignored.
func (h *Handle[P, R]) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.snap.State == model.TaskStateIdle && h.cancel == nil {
		return
	}

	wasActive := !h.snap.State.Resting()
	h.gen++
	h.teardownLocked()

	var run model.TaskRun
	if wasActive {
		run = h.runLocked(model.TaskStateIdle, errors.New("stopped before completion"))
		h.logger.Infof("Task stopped")
	}

	h.snap = Snapshot{Kind: h.cfg.Kind, State: model.TaskStateIdle}
	h.cfg.Busy.Set(false)
	h.publishLocked()

	// Resting sessions already closed their done channel.
	if wasActive {
		h.persistAndClose(&run, h.done)
	}
}

// Snapshot returns the current observable state.
func (h *Handle[P, R]) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snap
}

// Result returns the trigger result of the last completed session.
func (h *Handle[P, R]) Result() (R, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result, h.snap.State == model.TaskStateCompleted
}

// Done returns a channel that is closed when the current session is over.
func (h *Handle[P, R]) Done() <-chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.done
}

// Wait blocks until the current session is over and returns its final snapshot.
func (h *Handle[P, R]) Wait(ctx context.Context) (Snapshot, error) {
	select {
	case <-h.Done():
		return h.Snapshot(), nil
	case <-ctx.Done():
		return h.Snapshot(), ctx.Err()
	}
}

// Subscribe returns a channel that always holds the latest snapshot and a function
// to unsubscribe. The current snapshot is delivered right away.
func (h *Handle[P, R]) Subscribe() (<-chan Snapshot, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextSub
	h.nextSub++
	c := make(chan Snapshot, 1)
	c <- h.snap
	h.subs[id] = c

	return c, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs, id)
	}
}

func (h *Handle[P, R]) beginLocked(ctx context.Context, params P, state model.TaskState) (context.Context, uint64) {
	h.gen++
	gen := h.gen

	// The session outlives the caller, only Stop and the session end cancel it.
	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	h.cancel = cancel
	h.done = make(chan struct{})
	h.acked = false
	h.params = params
	var zero R
	h.result = zero

	h.snap = Snapshot{
		Kind:      h.cfg.Kind,
		SessionID: ulid.Make().String(),
		Subject:   h.cfg.Subject(params),
		State:     state,
		Busy:      true,
		StartedAt: time.Now().UTC(),
	}
	h.logger = h.cfg.Logger.WithValues(log.Kv{"session": h.snap.SessionID})
	h.cfg.Busy.Set(true)

	if h.cfg.Deadline > 0 {
		h.deadline = time.AfterFunc(h.cfg.Deadline, func() { h.expire(gen) })
	}

	h.logger.Infof("Task %s started %s", h.cfg.Kind, h.snap.Subject)
	h.publishLocked()

	return sctx, gen
}

func (h *Handle[P, R]) armLocked(ctx context.Context, gen uint64) error {
	params := h.params
	err := h.cfg.Poller.Arm(ctx, h.cfg.Interval,
		func(ctx context.Context) (model.ProgressSample, error) { return h.cfg.Fetch(ctx, params) },
		func(s model.ProgressSample) { h.onSample(ctx, gen, s) },
		func(err error) { h.onPollError(gen, err) },
	)
	if err != nil {
		return fmt.Errorf("could not arm poller: %w", err)
	}
	return nil
}

func (h *Handle[P, R]) trigger(ctx context.Context, gen uint64, params P) {
	res, err := h.cfg.Trigger(ctx, params)

	h.mu.Lock()
	if gen != h.gen || h.snap.State.Resting() {
		h.mu.Unlock()
		return
	}

	if err != nil {
		h.failAndUnlock(fmt.Errorf("could not trigger %s: %w", h.cfg.Kind, err))
		return
	}

	if msg := h.cfg.Rejection(res); msg != "" {
		h.failAndUnlock(fmt.Errorf("%s: %w", msg, model.ErrTriggerRejected))
		return
	}

	h.result = res
	h.acked = true

	if h.cfg.Mode == ModeBlocking {
		h.cfg.Poller.Disarm()
		h.mu.Unlock()
		h.succeed(ctx, gen, params, res)
		return
	}

	h.logger.Debugf("Trigger acknowledged")
	if err := h.armLocked(ctx, gen); err != nil {
		h.failAndUnlock(err)
		return
	}
	h.mu.Unlock()
}

func (h *Handle[P, R]) onSample(ctx context.Context, gen uint64, s model.ProgressSample) {
	h.mu.Lock()
	if gen != h.gen || h.snap.State.Resting() {
		h.mu.Unlock()
		return
	}
	h.snap.Ticks++

	if h.cfg.Mode == ModeAcknowledged && h.cfg.Terminal(s) {
		h.cfg.Poller.Disarm()
		params, res := h.params, h.result
		h.mu.Unlock()
		h.succeed(ctx, gen, params, res)
		return
	}

	if !s.Exists && h.acked {
		h.failAndUnlock(fmt.Errorf("backend has no %s task: %w", h.cfg.Kind, model.ErrTaskNotFound))
		return
	}

	res := progress.Compute(s, h.snap.Percent, progress.Options{Ceiling: h.cfg.PlateauCeiling})
	h.snap.Percent = res.Percent
	h.snap.Plateaued = res.Plateaued
	if res.Plateaued {
		h.snap.State = model.TaskStateFinalizing
	} else if res.Known || h.acked || h.snap.State != model.TaskStateTriggering {
		h.snap.State = model.TaskStateRunning
	}

	if h.ceilingReachedLocked() {
		h.failAndUnlock(fmt.Errorf("no result after %d polls: %w", h.snap.Ticks, model.ErrTimeout))
		return
	}

	h.publishLocked()
	h.mu.Unlock()
}

func (h *Handle[P, R]) onPollError(gen uint64, err error) {
	h.mu.Lock()
	if gen != h.gen || h.snap.State.Resting() {
		h.mu.Unlock()
		return
	}
	h.snap.Ticks++
	h.logger.Warningf("Could not poll progress: %s", err)

	if h.ceilingReachedLocked() {
		h.failAndUnlock(fmt.Errorf("no result after %d polls: %w", h.snap.Ticks, model.ErrTimeout))
		return
	}
	h.mu.Unlock()
}

func (h *Handle[P, R]) expire(gen uint64) {
	h.mu.Lock()
	if gen != h.gen || h.snap.State.Resting() {
		h.mu.Unlock()
		return
	}
	h.failAndUnlock(fmt.Errorf("no result after %s: %w", h.cfg.Deadline, model.ErrTimeout))
}

// succeed must be called without the lock, after the poller has been disarmed.
func (h *Handle[P, R]) succeed(ctx context.Context, gen uint64, params P, res R) {
	if h.cfg.OnSuccess != nil {
		h.cfg.OnSuccess(ctx, params, res)
	}

	h.mu.Lock()
	if gen != h.gen || h.snap.State.Resting() {
		h.mu.Unlock()
		return
	}
	h.snap.Percent = 100
	h.snap.Plateaued = false
	run := h.finishLocked(model.TaskStateCompleted, nil)
	done := h.done
	h.mu.Unlock()

	h.persistAndClose(&run, done)
}

// failAndUnlock must be called with the lock held, it releases it.
func (h *Handle[P, R]) failAndUnlock(err error) {
	run := h.finishLocked(model.TaskStateFailed, err)
	done := h.done
	params := h.params
	h.mu.Unlock()

	if h.cfg.OnFailure != nil {
		h.cfg.OnFailure(params, err)
	}
	h.persistAndClose(&run, done)
}

func (h *Handle[P, R]) finishLocked(state model.TaskState, err error) model.TaskRun {
	h.teardownLocked()

	h.snap.State = state
	h.snap.Err = err
	h.snap.Busy = false
	if state == model.TaskStateFailed {
		h.snap.Plateaued = false
	}
	h.cfg.Busy.Set(false)

	if err != nil {
		h.logger.Errorf("Task %s failed: %s", h.cfg.Kind, err)
	} else {
		h.logger.Infof("Task %s %s", h.cfg.Kind, state)
	}
	h.publishLocked()

	return h.runLocked(state, err)
}

func (h *Handle[P, R]) teardownLocked() {
	h.cfg.Poller.Disarm()
	if h.deadline != nil {
		h.deadline.Stop()
		h.deadline = nil
	}
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

func (h *Handle[P, R]) ceilingReachedLocked() bool {
	return h.cfg.MaxTicks > 0 && h.snap.Ticks >= h.cfg.MaxTicks
}

func (h *Handle[P, R]) runLocked(state model.TaskState, err error) model.TaskRun {
	run := model.TaskRun{
		ID:         h.snap.SessionID,
		Kind:       h.cfg.Kind,
		Subject:    h.snap.Subject,
		State:      state,
		Percent:    h.snap.Percent,
		StartedAt:  h.snap.StartedAt,
		FinishedAt: time.Now().UTC(),
	}
	if err != nil {
		run.Error = err.Error()
	}
	return run
}

func (h *Handle[P, R]) persistAndClose(run *model.TaskRun, done chan struct{}) {
	defer close(done)

	if run == nil || h.cfg.Runs == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.cfg.Runs.CreateTaskRun(ctx, *run); err != nil {
		h.cfg.Logger.Warningf("Could not store task run %s: %s", run.ID, err)
	}
}

func (h *Handle[P, R]) publishLocked() {
	for _, c := range h.subs {
		// Keep only the latest snapshot.
		select {
		case <-c:
		default:
		}
		c <- h.snap
	}
}
