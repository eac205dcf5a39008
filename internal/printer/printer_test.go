package printer_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fynovel/fyctl/internal/model"
	"github.com/fynovel/fyctl/internal/printer"
	"github.com/fynovel/fyctl/internal/task"
)

func snapshotsFixture() []task.Snapshot {
	return []task.Snapshot{
		{Kind: model.TaskKindInitialize, State: model.TaskStateCompleted, Percent: 100},
		{Kind: model.TaskKindModelChange, State: model.TaskStateFailed, Subject: "qwen2.5:7b", Percent: 40, Err: errors.New("task timeout")},
		{Kind: model.TaskKindDownload, SessionID: "01JD", State: model.TaskStateFinalizing, Subject: "Journey", Percent: 100, Plateaued: true, Busy: true, StartedAt: time.Now().UTC()},
	}
}

func runsFixture() []model.TaskRun {
	start := time.Date(2026, 1, 30, 10, 0, 0, 0, time.UTC)
	return []model.TaskRun{
		{ID: "run-1", Kind: model.TaskKindDownload, Subject: "Journey", State: model.TaskStateCompleted, Percent: 100, StartedAt: start, FinishedAt: start.Add(125 * time.Second)},
		{ID: "run-2", Kind: model.TaskKindInitialize, State: model.TaskStateFailed, Percent: 20, Error: "trigger rejected", StartedAt: start, FinishedAt: start.Add(time.Second)},
	}
}

func TestTablePrinterPrintStatus(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	err := p.PrintStatus(model.ContainerStatus{ContainerPresent: true}, "qwen2.5:3b", snapshotsFixture())
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Container:  yes")
	assert.Contains(t, out, "Ready:      yes")
	assert.Contains(t, out, "Model:      qwen2.5:3b")
	assert.Contains(t, out, "failed (task timeout)")
	assert.Contains(t, out, "finalizing (merging)")
	assert.Contains(t, out, "Journey")
}

func TestJSONPrinterPrintStatus(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewJSONPrinter(&buf)

	err := p.PrintStatus(model.ContainerStatus{ContainerPresent: true, IsChangingModel: true}, "", snapshotsFixture())
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"ready": false`)
	assert.Contains(t, out, `"changing_model": true`)
	assert.Contains(t, out, `"error": "task timeout"`)
	assert.Contains(t, out, `"merging": true`)
	assert.NotContains(t, out, `"current_model"`)
}

func TestTablePrinterPrintHistory(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	require.NoError(t, p.PrintHistory(runsFixture()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "DURATION")
	assert.Contains(t, lines[1], "2m5s")
	assert.Contains(t, lines[2], "trigger rejected")
}

func TestTablePrinterPrintHistoryEmpty(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	require.NoError(t, p.PrintHistory(nil))
	assert.Empty(t, buf.String())
}

func TestJSONPrinterPrintHistory(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewJSONPrinter(&buf)

	require.NoError(t, p.PrintHistory(runsFixture()))

	out := buf.String()
	assert.Contains(t, out, `"duration_seconds": 125`)
	assert.Contains(t, out, `"kind": "initialize"`)
}

func TestPrintSearchResults(t *testing.T) {
	results := []model.SearchResult{
		{URL: "https://books.example/1", BookName: "Journey", Author: "Wu"},
		{URL: "https://books.example/2"},
	}

	var table bytes.Buffer
	require.NoError(t, printer.NewTablePrinter(&table).PrintSearchResults("journey", results))
	lines := strings.Split(strings.TrimSpace(table.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[1], "1"))
	assert.Contains(t, lines[2], "https://books.example/2")

	var js bytes.Buffer
	require.NoError(t, printer.NewJSONPrinter(&js).PrintSearchResults("journey", results))
	assert.Contains(t, js.String(), `"index": 2`)
	assert.Contains(t, js.String(), `"query": "journey"`)

	table.Reset()
	require.NoError(t, printer.NewTablePrinter(&table).PrintSearchResults("nothing", nil))
	assert.Contains(t, table.String(), `No results for "nothing"`)
}

func TestPrintModels(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printer.NewTablePrinter(&buf).PrintModels([]string{"a", "b"}, "b"))
	assert.Equal(t, "  a\n* b\n", buf.String())

	buf.Reset()
	require.NoError(t, printer.NewJSONPrinter(&buf).PrintModels(nil, ""))
	assert.Contains(t, buf.String(), `"models": []`)
}

func TestTablePrinterPrintChecks(t *testing.T) {
	var buf bytes.Buffer
	checks := []model.CheckResult{
		{ID: "backend", Status: model.CheckStatusOK, Message: "reachable"},
		{ID: "docker_daemon", Status: model.CheckStatusError, Message: "not running"},
	}

	require.NoError(t, printer.NewTablePrinter(&buf).PrintChecks(checks))
	assert.Contains(t, buf.String(), "1 ok, 0 warnings, 1 errors")
}

func TestTablePrinterPrintMessage(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	err := p.PrintMessage("ok")
	require.NoError(t, err)
	assert.Equal(t, "ok", strings.TrimSpace(buf.String()))
}

func TestProgressLine(t *testing.T) {
	tests := map[string]struct {
		snap     task.Snapshot
		expected string
	}{
		"Half progress should fill half the bar.": {
			snap:     task.Snapshot{State: model.TaskStateRunning, Percent: 50, Subject: "Journey"},
			expected: "  [" + strings.Repeat("=", 20) + strings.Repeat(" ", 20) + "]  50% running Journey",
		},
		"Plateaued progress should show merging.": {
			snap:     task.Snapshot{State: model.TaskStateFinalizing, Percent: 100, Plateaued: true},
			expected: "  [" + strings.Repeat("=", 40) + "] 100% finalizing (merging)",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.expected, printer.ProgressLine(test.snap))
		})
	}
}

func TestProgressBar(t *testing.T) {
	var buf bytes.Buffer
	pb := printer.NewProgressBar(&buf)

	pb.Render(task.Snapshot{State: model.TaskStateRunning, Percent: 10})
	pb.Render(task.Snapshot{State: model.TaskStateRunning, Percent: 10})
	pb.Render(task.Snapshot{State: model.TaskStateCompleted, Percent: 100})
	pb.Finish()

	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, "\r"))
	assert.True(t, strings.HasSuffix(out, "\n"))
	assert.Contains(t, out, "100% completed")
}
