package printer

import (
	"io"
	"time"

	"github.com/goccy/go-json"

	"github.com/fynovel/fyctl/internal/model"
	"github.com/fynovel/fyctl/internal/task"
)

// JSONPrinter prints information in JSON format.
type JSONPrinter struct {
	writer io.Writer
}

var _ Printer = &JSONPrinter{}

// NewJSONPrinter creates a new JSON printer.
func NewJSONPrinter(w io.Writer) *JSONPrinter {
	return &JSONPrinter{writer: w}
}

type statusOutput struct {
	ContainerPresent bool         `json:"container_present"`
	Initializing     bool         `json:"initializing"`
	ChangingModel    bool         `json:"changing_model"`
	Ready            bool         `json:"ready"`
	CurrentModel     string       `json:"current_model,omitempty"`
	Tasks            []taskOutput `json:"tasks"`
}

type taskOutput struct {
	Kind      string     `json:"kind"`
	SessionID string     `json:"session_id,omitempty"`
	Subject   string     `json:"subject,omitempty"`
	State     string     `json:"state"`
	Percent   int        `json:"percent"`
	Merging   bool       `json:"merging"`
	Busy      bool       `json:"busy"`
	Error     string     `json:"error,omitempty"`
	StartedAt *time.Time `json:"started_at"`
}

type runOutput struct {
	ID              string    `json:"id"`
	Kind            string    `json:"kind"`
	Subject         string    `json:"subject,omitempty"`
	State           string    `json:"state"`
	Percent         int       `json:"percent"`
	Error           string    `json:"error,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	DurationSeconds float64   `json:"duration_seconds"`
}

type searchOutput struct {
	Query   string       `json:"query"`
	Results []itemOutput `json:"results"`
}

type itemOutput struct {
	Index         int    `json:"index"`
	URL           string `json:"url"`
	BookName      string `json:"book_name"`
	Author        string `json:"author,omitempty"`
	Intro         string `json:"intro,omitempty"`
	LatestChapter string `json:"latest_chapter,omitempty"`
	LatestUpdate  string `json:"latest_update,omitempty"`
}

type modelsOutput struct {
	Current string   `json:"current"`
	Models  []string `json:"models"`
}

type checkOutput struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type messageOutput struct {
	Message string `json:"message"`
}

// PrintStatus prints the runtime status and the state of every task kind in JSON format.
func (j *JSONPrinter) PrintStatus(runtime model.ContainerStatus, currentModel string, tasks []task.Snapshot) error {
	out := statusOutput{
		ContainerPresent: runtime.ContainerPresent,
		Initializing:     runtime.IsInitializing,
		ChangingModel:    runtime.IsChangingModel,
		Ready:            runtime.Ready(),
		CurrentModel:     currentModel,
		Tasks:            make([]taskOutput, 0, len(tasks)),
	}
	for _, s := range tasks {
		t := taskOutput{
			Kind:      string(s.Kind),
			SessionID: s.SessionID,
			Subject:   s.Subject,
			State:     string(s.State),
			Percent:   s.Percent,
			Merging:   s.Plateaued,
			Busy:      s.Busy,
		}
		if s.Err != nil {
			t.Error = s.Err.Error()
		}
		if !s.StartedAt.IsZero() {
			started := s.StartedAt.UTC()
			t.StartedAt = &started
		}
		out.Tasks = append(out.Tasks, t)
	}

	return j.encode(out)
}

// PrintHistory prints the finished task sessions in JSON format.
func (j *JSONPrinter) PrintHistory(runs []model.TaskRun) error {
	items := make([]runOutput, len(runs))
	for i, r := range runs {
		items[i] = runOutput{
			ID:              r.ID,
			Kind:            string(r.Kind),
			Subject:         r.Subject,
			State:           string(r.State),
			Percent:         r.Percent,
			Error:           r.Error,
			StartedAt:       r.StartedAt.UTC(),
			FinishedAt:      r.FinishedAt.UTC(),
			DurationSeconds: r.Duration().Seconds(),
		}
	}

	return j.encode(items)
}

// PrintSearchResults prints the search results in JSON format.
func (j *JSONPrinter) PrintSearchResults(query string, results []model.SearchResult) error {
	out := searchOutput{Query: query, Results: make([]itemOutput, len(results))}
	for i, r := range results {
		out.Results[i] = itemOutput{
			Index:         i + 1,
			URL:           r.URL,
			BookName:      r.BookName,
			Author:        r.Author,
			Intro:         r.Intro,
			LatestChapter: r.LatestChapter,
			LatestUpdate:  r.LatestUpdate,
		}
	}

	return j.encode(out)
}

// PrintModels prints the selectable models in JSON format.
func (j *JSONPrinter) PrintModels(models []string, current string) error {
	if models == nil {
		models = []string{}
	}
	return j.encode(modelsOutput{Current: current, Models: models})
}

// PrintChecks prints the preflight check results in JSON format.
func (j *JSONPrinter) PrintChecks(results []model.CheckResult) error {
	items := make([]checkOutput, len(results))
	for i, r := range results {
		items[i] = checkOutput{ID: r.ID, Status: string(r.Status), Message: r.Message}
	}
	return j.encode(items)
}

// PrintMessage prints a simple message in JSON format.
func (j *JSONPrinter) PrintMessage(msg string) error {
	return j.encode(messageOutput{Message: msg})
}

func (j *JSONPrinter) encode(v any) error {
	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
