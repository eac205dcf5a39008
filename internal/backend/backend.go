// Package backend is the remote surface of the fy-novel application: the model
// runtime lifecycle, the model selection and the novel downloads.
package backend

import (
	"context"

	"github.com/fynovel/fyctl/internal/model"
)

// Backend is the set of remote operations the task coordinators use.
//
// Trigger methods return a Go error for transport failures. Application level
// rejections of the init and model change triggers come in the returned TriggerResult.
type Backend interface {
	// TriggerInit starts the model runtime initialization.
	TriggerInit(ctx context.Context) (model.TriggerResult, error)
	PollInitProgress(ctx context.Context) (model.ProgressSample, error)
	// HasInit reports the runtime environment and the operations it has in flight.
	HasInit(ctx context.Context) (model.ContainerStatus, error)

	GetCurrentModel(ctx context.Context) (string, error)
	GetModelList(ctx context.Context) ([]string, error)
	// ResetModelChangeTask clears the record of the previous model change.
	ResetModelChangeTask(ctx context.Context) error
	TriggerModelChange(ctx context.Context, target string) (model.TriggerResult, error)
	PollModelChangeProgress(ctx context.Context) (model.ProgressSample, error)

	Search(ctx context.Context, name string) ([]model.SearchResult, error)
	// TriggerDownload blocks until the download ends.
	TriggerDownload(ctx context.Context, item model.SearchResult) (model.CrawlResult, error)
	PollDownloadProgress(ctx context.Context, item model.SearchResult) (model.ProgressSample, error)
}
