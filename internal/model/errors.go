package model

import "errors"

var (
	// ErrNotFound is returned when a resource is not found.
	ErrNotFound = errors.New("not found")
	// ErrNotValid is returned when a resource is not valid.
	ErrNotValid = errors.New("not valid")
	// ErrAlreadyExists is returned when a resource already exists.
	ErrAlreadyExists = errors.New("already exists")
	// ErrBusy is returned when an operation is blocked by another task in flight.
	ErrBusy = errors.New("busy")
	// ErrDeclined is returned when the user declines a confirmation.
	ErrDeclined = errors.New("declined")
	// ErrTriggerRejected is returned when the backend rejects a trigger request.
	ErrTriggerRejected = errors.New("trigger rejected")
	// ErrTaskNotFound is returned when the backend has no record of a task that was started.
	ErrTaskNotFound = errors.New("task not found")
	// ErrTimeout is returned when a task exceeds its polling ceiling.
	ErrTimeout = errors.New("task timeout")
)
