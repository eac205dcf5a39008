package lib_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fynovel/fyctl/pkg/lib"
)

// newTestClient creates a client with a temp SQLite DB and a fast fake backend.
func newTestClient(t *testing.T, confirm func(ctx context.Context, current, target string) (bool, error)) *lib.Client {
	t.Helper()

	client, err := lib.New(context.Background(), lib.Config{
		DBPath:             filepath.Join(t.TempDir(), "test.db"),
		Backend:            lib.BackendFake,
		PollInterval:       2 * time.Millisecond,
		FakeStepDelay:      time.Millisecond,
		ConfirmModelChange: confirm,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = client.Close()
	})

	return client
}

func waitTask(t *testing.T, c *lib.Client, kind lib.TaskKind) (lib.Task, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return c.WaitTask(ctx, kind)
}

func TestClientFlow(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)
	ctx := context.Background()
	c := newTestClient(t, nil)

	st, err := c.RuntimeStatus(ctx)
	require.NoError(err)
	assert.False(st.ContainerPresent)

	// Initialize.
	require.NoError(c.Initialize(ctx))
	task, err := waitTask(t, c, lib.TaskKindInitialize)
	require.NoError(err)
	assert.Equal(lib.TaskStateCompleted, task.State)
	assert.Equal(100, task.Percent)

	st, err = c.RuntimeStatus(ctx)
	require.NoError(err)
	assert.True(st.ContainerPresent)
	require.NotEmpty(st.CurrentModel)

	// Change the model.
	models, err := c.Models(ctx)
	require.NoError(err)
	require.True(len(models) > 1)
	require.NoError(c.ChangeModel(ctx, models[1]))
	task, err = waitTask(t, c, lib.TaskKindModelChange)
	require.NoError(err)
	assert.Equal(models[1], task.Subject)

	st, err = c.RuntimeStatus(ctx)
	require.NoError(err)
	assert.Equal(models[1], st.CurrentModel)

	// Search and download.
	novels, err := c.Search(ctx, "journey")
	require.NoError(err)
	require.Len(novels, 3)

	novel, err := c.SearchResult(ctx, 1)
	require.NoError(err)
	assert.Equal(novels[0], novel)

	require.NoError(c.Download(ctx, novel))
	task, err = waitTask(t, c, lib.TaskKindDownload)
	require.NoError(err)
	assert.Equal(lib.TaskStateCompleted, task.State)

	res, ok := c.DownloadResult()
	require.True(ok)
	assert.NotEmpty(res.OutputPath)

	// History.
	runs, err := c.History(ctx, nil)
	require.NoError(err)
	assert.Len(runs, 3)
	assert.Equal(lib.TaskKindDownload, runs[0].Kind)

	runs, err = c.History(ctx, &lib.HistoryOpts{Kind: lib.TaskKindInitialize})
	require.NoError(err)
	require.Len(runs, 1)
	assert.Equal(lib.TaskStateCompleted, runs[0].State)
}

func TestClientErrors(t *testing.T) {
	tests := map[string]struct {
		run   func(ctx context.Context, c *lib.Client) error
		expIs error
	}{
		"Changing the model before initializing should be rejected.": {
			run: func(ctx context.Context, c *lib.Client) error {
				if err := c.ChangeModel(ctx, "llama3.2"); err != nil {
					return err
				}
				_, err := waitTask(t, c, lib.TaskKindModelChange)
				return err
			},
			expIs: lib.ErrRejected,
		},
		"An unknown model should not be valid.": {
			run: func(ctx context.Context, c *lib.Client) error {
				return c.ChangeModel(ctx, "does-not-exist")
			},
			expIs: lib.ErrNotValid,
		},
		"A novel without URL should not be valid.": {
			run: func(ctx context.Context, c *lib.Client) error {
				return c.Download(ctx, lib.Novel{BookName: "Journey"})
			},
			expIs: lib.ErrNotValid,
		},
		"A missing search result should not be found.": {
			run: func(ctx context.Context, c *lib.Client) error {
				_, err := c.SearchResult(ctx, 1)
				return err
			},
			expIs: lib.ErrNotFound,
		},
		"An unknown task kind should not be valid.": {
			run: func(ctx context.Context, c *lib.Client) error {
				_, err := c.Task("upload")
				return err
			},
			expIs: lib.ErrNotValid,
		},
		"A download while initializing should be busy.": {
			run: func(ctx context.Context, c *lib.Client) error {
				if err := c.Initialize(ctx); err != nil {
					return err
				}
				return c.Download(ctx, lib.Novel{URL: "https://books.fake/journey/1"})
			},
			expIs: lib.ErrBusy,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, nil)
			err := test.run(context.Background(), c)
			require.Error(t, err)
			assert.True(t, errors.Is(err, test.expIs), err)
		})
	}
}

func TestClientDeclinedModelChange(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, func(context.Context, string, string) (bool, error) { return false, nil })

	require.NoError(t, c.Initialize(ctx))
	_, err := waitTask(t, c, lib.TaskKindInitialize)
	require.NoError(t, err)
	_, err = c.RuntimeStatus(ctx)
	require.NoError(t, err)

	err = c.ChangeModel(ctx, "llama3.2")
	assert.True(t, errors.Is(err, lib.ErrRejected))

	task, err := c.Task(lib.TaskKindModelChange)
	require.NoError(t, err)
	assert.Equal(t, lib.TaskStateIdle, task.State)
}

func TestNewInvalidConfig(t *testing.T) {
	_, err := lib.New(context.Background(), lib.Config{Backend: "grpc", DBPath: filepath.Join(t.TempDir(), "x.db")})
	assert.True(t, errors.Is(err, lib.ErrNotValid))
}
