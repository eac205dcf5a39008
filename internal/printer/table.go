package printer

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fynovel/fyctl/internal/model"
	"github.com/fynovel/fyctl/internal/task"
)

// TablePrinter prints information in a table format.
type TablePrinter struct {
	writer io.Writer
}

var _ Printer = &TablePrinter{}

// NewTablePrinter creates a new table printer.
func NewTablePrinter(w io.Writer) *TablePrinter {
	return &TablePrinter{writer: w}
}

// PrintStatus prints the runtime status and the state of every task kind.
func (t *TablePrinter) PrintStatus(runtime model.ContainerStatus, currentModel string, tasks []task.Snapshot) error {
	fmt.Fprintf(t.writer, "Container:  %s\n", yesNo(runtime.ContainerPresent))
	fmt.Fprintf(t.writer, "Ready:      %s\n", yesNo(runtime.Ready()))
	if currentModel != "" {
		fmt.Fprintf(t.writer, "Model:      %s\n", currentModel)
	}
	fmt.Fprintln(t.writer)

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "TASK\tSTATE\tPROGRESS\tSUBJECT\tSTARTED")
	for _, s := range tasks {
		started := "-"
		if !s.StartedAt.IsZero() {
			started = TimeAgo(s.StartedAt)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.Kind, stateText(s), percentText(s), dash(s.Subject), started)
	}

	return nil
}

// PrintHistory prints the finished task sessions.
func (t *TablePrinter) PrintHistory(runs []model.TaskRun) error {
	if len(runs) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "ID\tKIND\tSUBJECT\tSTATE\tPROGRESS\tDURATION\tFINISHED\tERROR")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d%%\t%s\t%s\t%s\n",
			r.ID,
			r.Kind,
			dash(r.Subject),
			r.State,
			r.Percent,
			FormatDuration(r.Duration()),
			TimeAgo(r.FinishedAt),
			dash(r.Error),
		)
	}

	return nil
}

// PrintSearchResults prints the search results numbered from 1, the number is the download index.
func (t *TablePrinter) PrintSearchResults(query string, results []model.SearchResult) error {
	if len(results) == 0 {
		fmt.Fprintf(t.writer, "No results for %q\n", query)
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "#\tNAME\tAUTHOR\tLATEST CHAPTER\tUPDATED\tURL")
	for i, r := range results {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", i+1, r.Title(), dash(r.Author), dash(r.LatestChapter), dash(r.LatestUpdate), r.URL)
	}

	return nil
}

// PrintModels prints the selectable models marking the current one.
func (t *TablePrinter) PrintModels(models []string, current string) error {
	for _, m := range models {
		mark := " "
		if m == current {
			mark = "*"
		}
		fmt.Fprintf(t.writer, "%s %s\n", mark, m)
	}
	return nil
}

// PrintChecks prints the preflight check results.
func (t *TablePrinter) PrintChecks(results []model.CheckResult) error {
	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CHECK\tSTATUS\tMESSAGE")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.ID, r.Status, r.Message)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(t.writer, "\n%d ok, %d warnings, %d errors\n",
		model.CountByStatus(results, model.CheckStatusOK),
		model.CountByStatus(results, model.CheckStatusWarning),
		model.CountByStatus(results, model.CheckStatusError),
	)
	return nil
}

// PrintMessage prints a simple text message.
func (t *TablePrinter) PrintMessage(msg string) error {
	fmt.Fprintln(t.writer, msg)
	return nil
}

func stateText(s task.Snapshot) string {
	if s.Err != nil && s.State == model.TaskStateFailed {
		return fmt.Sprintf("%s (%s)", s.State, s.Err)
	}
	if s.Plateaued {
		return string(s.State) + " (merging)"
	}
	return string(s.State)
}

func percentText(s task.Snapshot) string {
	if s.State == model.TaskStateIdle {
		return "-"
	}
	return fmt.Sprintf("%d%%", s.Percent)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
