// Package lib provides a Go SDK to drive the background tasks of a fy-novel backend
// without shelling out to the fyctl CLI binary.
//
// # Quick Start
//
//	client, err := lib.New(ctx, lib.Config{BackendURL: "http://127.0.0.1:34115"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Initialize the model runtime and wait for it.
//	if err := client.Initialize(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	task, err := client.WaitTask(ctx, lib.TaskKindInitialize)
//
// # Tasks
//
// There are three task kinds, each one runs at most one operation at a time:
//
//   - [TaskKindInitialize]: creates the model runtime container.
//   - [TaskKindModelChange]: pulls and selects a chat model.
//   - [TaskKindDownload]: crawls a novel and merges it into a book.
//
// Starting a task while another one that blocks it is running returns [ErrBusy].
// [Client.Task] returns the latest progress of a kind and [Client.WaitTask] blocks
// until its current operation ends.
//
// # Error Handling
//
// All methods return errors that can be inspected with [errors.Is]:
//
//   - [ErrNotFound]: the resource does not exist.
//   - [ErrNotValid]: invalid input.
//   - [ErrBusy]: another task is in flight.
//   - [ErrTimeout]: a task exceeded its polling limits.
//   - [ErrRejected]: the backend refused to start the task.
//
// # Testing
//
// Use [BackendFake] and a temporary database path to write tests without a backend:
//
//	client, _ := lib.New(ctx, lib.Config{
//	    DBPath:  filepath.Join(t.TempDir(), "test.db"),
//	    Backend: lib.BackendFake,
//	})
//	defer client.Close()
//
// # Thread Safety
//
// A [Client] is safe for concurrent use from multiple goroutines.
package lib
