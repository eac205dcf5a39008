package tui_test

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fynovel/fyctl/internal/busy"
	"github.com/fynovel/fyctl/internal/model"
	"github.com/fynovel/fyctl/internal/task"
	"github.com/fynovel/fyctl/internal/view/tui"
)

type stubObserver struct {
	kind    model.TaskKind
	snap    task.Snapshot
	c       chan task.Snapshot
	stopped int
}

func newStub(kind model.TaskKind) *stubObserver {
	return &stubObserver{
		kind: kind,
		snap: task.Snapshot{Kind: kind, State: model.TaskStateIdle},
		c:    make(chan task.Snapshot, 1),
	}
}

func (s *stubObserver) Kind() model.TaskKind { return s.kind }
func (s *stubObserver) Snapshot() task.Snapshot { return s.snap }
func (s *stubObserver) Subscribe() (<-chan task.Snapshot, func()) { return s.c, func() {} }
func (s *stubObserver) Done() <-chan struct{} { return nil }
func (s *stubObserver) Wait(context.Context) (task.Snapshot, error) { return s.snap, nil }
func (s *stubObserver) Stop() { s.stopped++ }

type stubSource struct {
	obs   []task.Observer
	state *busy.State
}

func (s stubSource) Observers() []task.Observer { return s.obs }
func (s stubSource) Busy() busy.Reader { return s.state }
func (s stubSource) WatchBusy() (<-chan struct{}, func()) { return s.state.Watch() }

func newSource() (stubSource, []*stubObserver) {
	stubs := []*stubObserver{
		newStub(model.TaskKindInitialize),
		newStub(model.TaskKindModelChange),
		newStub(model.TaskKindDownload),
	}
	obs := make([]task.Observer, 0, len(stubs))
	for _, s := range stubs {
		obs = append(obs, s)
	}
	return stubSource{obs: obs, state: busy.NewState(model.TaskKinds()...)}, stubs
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestModelView(t *testing.T) {
	src, _ := newSource()
	m := tui.NewModel(src, true)

	out := m.View()
	assert.Contains(t, out, "initialize")
	assert.Contains(t, out, "model-change")
	assert.Contains(t, out, "download")
	assert.Contains(t, out, "Busy: none")
}

func TestModelUpdateSnapshot(t *testing.T) {
	src, stubs := newSource()
	m := tui.NewModel(src, true)

	// Subscriptions deliver the latest snapshot.
	stubs[2].c <- task.Snapshot{Kind: model.TaskKindDownload, State: model.TaskStateFinalizing, Percent: 100, Plateaued: true, Subject: "Journey"}
	stubs[1].c <- task.Snapshot{Kind: model.TaskKindModelChange, State: model.TaskStateFailed, Percent: 30, Err: errors.New("task timeout")}

	cmd := m.Init()
	require.NotNil(t, cmd)
	batch, ok := cmd().(tea.BatchMsg)
	require.True(t, ok)

	// Busy watch first, then a listener per row.
	for _, c := range batch[2:] {
		_, next := m.Update(c())
		assert.NotNil(t, next)
	}

	out := m.View()
	assert.Contains(t, out, "finalizing (merging)  Journey")
	assert.Contains(t, out, "failed: task timeout")
	assert.Contains(t, out, "100%")
}

func TestModelBusy(t *testing.T) {
	src, _ := newSource()
	m := tui.NewModel(src, true)

	w, err := src.state.Claim(model.TaskKindDownload)
	require.NoError(t, err)
	w.Set(true)

	batch := m.Init()().(tea.BatchMsg)
	_, next := m.Update(batch[0]())
	assert.NotNil(t, next)
	assert.Contains(t, m.View(), "Busy: download")
}

func TestModelKeys(t *testing.T) {
	src, stubs := newSource()
	m := tui.NewModel(src, true)

	m.Update(key("j"))
	m.Update(key("j"))
	m.Update(key("j"))
	m.Update(key("s"))
	assert.Equal(t, 1, stubs[2].stopped)

	m.Update(key("k"))
	m.Update(key("s"))
	assert.Equal(t, 1, stubs[1].stopped)

	_, cmd := m.Update(key("q"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestRunInvalidConfig(t *testing.T) {
	err := tui.Run(context.Background(), tui.Config{})
	assert.Error(t, err)
}
