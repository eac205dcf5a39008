package printer

import (
	"github.com/fynovel/fyctl/internal/model"
	"github.com/fynovel/fyctl/internal/task"
)

// Printer knows how to print the task and novel information in different formats.
type Printer interface {
	PrintStatus(runtime model.ContainerStatus, currentModel string, tasks []task.Snapshot) error
	PrintHistory(runs []model.TaskRun) error
	PrintSearchResults(query string, results []model.SearchResult) error
	PrintModels(models []string, current string) error
	PrintChecks(results []model.CheckResult) error
	PrintMessage(msg string) error
}
