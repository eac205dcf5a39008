package printer

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fynovel/fyctl/internal/task"
)

const progressBarWidth = 40

// ProgressBar renders task snapshots as a single updating terminal line.
type ProgressBar struct {
	w    io.Writer
	mu   sync.Mutex
	last string
}

// NewProgressBar creates a new progress bar that writes on w.
func NewProgressBar(w io.Writer) *ProgressBar {
	return &ProgressBar{w: w}
}

// Render prints the snapshot, repeated snapshots are not printed again.
func (p *ProgressBar) Render(s task.Snapshot) {
	line := ProgressLine(s)

	p.mu.Lock()
	defer p.mu.Unlock()
	if line == p.last {
		return
	}
	// Pad to clear leftovers from a longer previous line.
	pad := len(p.last) - len(line)
	if pad < 0 {
		pad = 0
	}
	fmt.Fprintf(p.w, "\r%s%s", line, strings.Repeat(" ", pad))
	p.last = line
}

// Finish ends the progress line.
func (p *ProgressBar) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last != "" {
		fmt.Fprintln(p.w)
	}
	p.last = ""
}

// ProgressLine formats a snapshot as a progress bar line.
func ProgressLine(s task.Snapshot) string {
	pct := s.Percent
	if pct < 0 {
		pct = 0
	}
	filled := pct * progressBarWidth / 100
	if filled > progressBarWidth {
		filled = progressBarWidth
	}
	bar := strings.Repeat("=", filled) + strings.Repeat(" ", progressBarWidth-filled)

	line := fmt.Sprintf("  [%s] %3d%% %s", bar, pct, stateText(s))
	if s.Subject != "" {
		line += " " + s.Subject
	}
	return line
}
