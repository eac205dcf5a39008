// Package tui is a terminal dashboard that follows the background tasks of a session.
package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fynovel/fyctl/internal/busy"
	"github.com/fynovel/fyctl/internal/model"
	"github.com/fynovel/fyctl/internal/task"
)

// Source is what the dashboard follows.
type Source interface {
	Observers() []task.Observer
	Busy() busy.Reader
	WatchBusy() (<-chan struct{}, func())
}

// Config is the dashboard configuration.
type Config struct {
	Source  Source
	In      io.Reader
	Out     io.Writer
	NoColor bool
}

func (c *Config) defaults() error {
	if c.Source == nil {
		return fmt.Errorf("source is required")
	}
	return nil
}

// Run shows the dashboard until the user quits or the context ends.
func Run(ctx context.Context, cfg Config) error {
	if err := cfg.defaults(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	m := NewModel(cfg.Source, cfg.NoColor)
	defer m.close()

	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if cfg.In != nil {
		opts = append(opts, tea.WithInput(cfg.In))
	}
	if cfg.Out != nil {
		opts = append(opts, tea.WithOutput(cfg.Out))
	}

	_, err := tea.NewProgram(m, opts...).Run()
	if err != nil && !(errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil) {
		return fmt.Errorf("dashboard failed: %w", err)
	}
	return nil
}

type snapshotMsg struct {
	row  int
	snap task.Snapshot
}

type busyMsg struct{}

type row struct {
	obs  task.Observer
	snap task.Snapshot
	bar  progress.Model
	subs <-chan task.Snapshot
	stop func()
}

// Model is the dashboard bubbletea model.
type Model struct {
	src      Source
	rows     []*row
	cursor   int
	busyText string
	styles   styles
	quit     chan struct{}
	unwatch  func()
	busyC    <-chan struct{}
}

type styles struct {
	title    lipgloss.Style
	selected lipgloss.Style
	failed   lipgloss.Style
	done     lipgloss.Style
	help     lipgloss.Style
}

func newStyles(noColor bool) styles {
	if noColor {
		plain := lipgloss.NewStyle()
		return styles{title: plain.Bold(true), selected: plain.Bold(true), failed: plain, done: plain, help: plain}
	}
	return styles{
		title:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		selected: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14")),
		failed:   lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		done:     lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		help:     lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	}
}

// NewModel subscribes to every observer of the source.
func NewModel(src Source, noColor bool) *Model {
	m := &Model{
		src:    src,
		styles: newStyles(noColor),
		quit:   make(chan struct{}),
	}

	for _, obs := range src.Observers() {
		barOpts := []progress.Option{progress.WithWidth(30), progress.WithoutPercentage()}
		if noColor {
			barOpts = append(barOpts, progress.WithSolidFill("7"))
		} else {
			barOpts = append(barOpts, progress.WithDefaultGradient())
		}
		c, stop := obs.Subscribe()
		m.rows = append(m.rows, &row{
			obs:  obs,
			snap: obs.Snapshot(),
			bar:  progress.New(barOpts...),
			subs: c,
			stop: stop,
		})
	}
	m.busyC, m.unwatch = src.WatchBusy()
	m.refreshBusy()

	return m
}

func (m *Model) close() {
	select {
	case <-m.quit:
		return
	default:
	}
	close(m.quit)
	for _, r := range m.rows {
		r.stop()
	}
	m.unwatch()
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.waitBusy()}
	for i := range m.rows {
		cmds = append(cmds, m.waitSnapshot(i))
	}
	return tea.Batch(cmds...)
}

func (m *Model) waitSnapshot(i int) tea.Cmd {
	c := m.rows[i].subs
	return func() tea.Msg {
		select {
		case s := <-c:
			return snapshotMsg{row: i, snap: s}
		case <-m.quit:
			return nil
		}
	}
}

func (m *Model) waitBusy() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-m.busyC:
			return busyMsg{}
		case <-m.quit:
			return nil
		}
	}
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.rows)-1 {
				m.cursor++
			}
		case "s":
			if len(m.rows) > 0 {
				m.rows[m.cursor].obs.Stop()
			}
		}
	case tea.WindowSizeMsg:
		w := msg.Width - 60
		if w < 10 {
			w = 10
		}
		if w > 50 {
			w = 50
		}
		for _, r := range m.rows {
			r.bar.Width = w
		}
	case snapshotMsg:
		if msg.row < 0 || msg.row >= len(m.rows) {
			return m, nil
		}
		m.rows[msg.row].snap = msg.snap
		return m, m.waitSnapshot(msg.row)
	case busyMsg:
		m.refreshBusy()
		return m, m.waitBusy()
	}

	return m, nil
}

func (m *Model) refreshBusy() {
	reader := m.src.Busy()
	var kinds []string
	for _, k := range model.TaskKinds() {
		if reader.Busy(k) {
			kinds = append(kinds, string(k))
		}
	}
	if len(kinds) == 0 {
		m.busyText = "none"
		return
	}
	m.busyText = strings.Join(kinds, ", ")
}

// View implements tea.Model.
func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(m.styles.title.Render("fyctl tasks"))
	b.WriteString("\n\n")

	for i, r := range m.rows {
		cursor := "  "
		kind := fmt.Sprintf("%-13s", r.obs.Kind())
		if i == m.cursor {
			cursor = "> "
			kind = m.styles.selected.Render(kind)
		}

		b.WriteString(cursor)
		b.WriteString(kind)
		b.WriteString(" ")
		b.WriteString(r.bar.ViewAs(float64(r.snap.Percent) / 100))
		b.WriteString(fmt.Sprintf(" %3d%% ", r.snap.Percent))
		b.WriteString(m.stateView(r.snap))
		if r.snap.Subject != "" {
			b.WriteString("  " + r.snap.Subject)
		}
		b.WriteString("\n")
	}

	b.WriteString("\nBusy: " + m.busyText + "\n")
	b.WriteString(m.styles.help.Render("↑/↓ select • s stop • q quit"))
	b.WriteString("\n")

	return b.String()
}

func (m *Model) stateView(s task.Snapshot) string {
	switch {
	case s.State == model.TaskStateFailed:
		text := string(s.State)
		if s.Err != nil {
			text += ": " + s.Err.Error()
		}
		return m.styles.failed.Render(text)
	case s.State == model.TaskStateCompleted:
		return m.styles.done.Render(string(s.State))
	case s.Plateaued:
		return string(s.State) + " (merging)"
	}
	return string(s.State)
}
