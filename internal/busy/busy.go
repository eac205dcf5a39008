// Package busy holds the process wide "task kind in flight" flags shared by
// independently rendered views.
//
// Each flag has exactly one writer (the coordinator that claimed it) and any
// number of readers.
package busy

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/fynovel/fyctl/internal/model"
)

// ErrAlreadyClaimed is returned when a second writer tries to claim a flag.
var ErrAlreadyClaimed = errors.New("busy flag already claimed")

// Reader is the read only view of the shared busy state.
type Reader interface {
	Busy(kind model.TaskKind) bool
	AnyBusy(kinds ...model.TaskKind) bool
}

// State is the set of busy flags.
type State struct {
	flags map[model.TaskKind]*flag

	mu       sync.Mutex
	claimed  map[model.TaskKind]bool
	watchers map[int]chan struct{}
	nextID   int
}

type flag struct {
	v atomic.Bool
}

// NewState returns a state with one flag per kind.
func NewState(kinds ...model.TaskKind) *State {
	if len(kinds) == 0 {
		kinds = model.TaskKinds()
	}

	s := &State{
		flags:    make(map[model.TaskKind]*flag, len(kinds)),
		claimed:  map[model.TaskKind]bool{},
		watchers: map[int]chan struct{}{},
	}
	for _, k := range kinds {
		s.flags[k] = &flag{}
	}
	return s
}

// Claim returns the single writer of a kind flag.
func (s *State) Claim(kind model.TaskKind) (*Writer, error) {
	if _, ok := s.flags[kind]; !ok {
		return nil, fmt.Errorf("unknown busy flag %q: %w", kind, model.ErrNotFound)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimed[kind] {
		return nil, fmt.Errorf("%q: %w", kind, ErrAlreadyClaimed)
	}
	s.claimed[kind] = true

	return &Writer{kind: kind, state: s}, nil
}

// Busy returns the flag value of a kind, unknown kinds are never busy.
func (s *State) Busy(kind model.TaskKind) bool {
	f, ok := s.flags[kind]
	if !ok {
		return false
	}
	return f.v.Load()
}

// AnyBusy returns true if any of the kinds is busy, with no kinds it checks all of them.
func (s *State) AnyBusy(kinds ...model.TaskKind) bool {
	if len(kinds) == 0 {
		for _, f := range s.flags {
			if f.v.Load() {
				return true
			}
		}
		return false
	}

	for _, k := range kinds {
		if s.Busy(k) {
			return true
		}
	}
	return false
}

// Watch returns a channel that receives a signal every time a flag changes, and a
// function to stop watching. Signals are coalesced, readers should reload the values.
func (s *State) Watch() (<-chan struct{}, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	c := make(chan struct{}, 1)
	s.watchers[id] = c

	return c, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.watchers, id)
	}
}

func (s *State) notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.watchers {
		select {
		case c <- struct{}{}:
		default:
		}
	}
}

// Writer is the single writer of a busy flag.
type Writer struct {
	kind  model.TaskKind
	state *State
}

// Kind returns the kind of the flag.
func (w *Writer) Kind() model.TaskKind { return w.kind }

// Set sets the flag value.
func (w *Writer) Set(busy bool) {
	if w.state.flags[w.kind].v.Swap(busy) != busy {
		w.state.notify()
	}
}
