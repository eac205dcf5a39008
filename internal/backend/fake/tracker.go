package fake

import "sync"

// tracker keeps the step progress of the simulated operations by task key.
type tracker struct {
	mu    sync.RWMutex
	tasks map[string]*step
}

type step struct {
	completed int
	total     int
}

func newTracker() *tracker {
	return &tracker{tasks: map[string]*step{}}
}

// init starts (or restarts) the tracking of a task.
func (t *tracker) init(key string, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tasks[key] = &step{total: total}
}

// add marks n more steps of a task as completed, unknown tasks are ignored.
func (t *tracker) add(key string, n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.tasks[key]; ok {
		s.completed += n
	}
}

func (t *tracker) get(key string) (completed, total int, exists bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.tasks[key]
	if !ok {
		return 0, 0, false
	}
	return s.completed, s.total, true
}

// running returns true when the task exists and has pending steps.
func (t *tracker) running(key string) bool {
	c, total, ok := t.get(key)
	return ok && c < total
}

func (t *tracker) remove(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.tasks, key)
}
