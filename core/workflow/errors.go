package workflow

import (
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is.
var (
	ErrInput      = errors.New("input error")
	ErrStorage    = errors.New("storage error")
	ErrMix        = errors.New("mix error")
	ErrChainWrite = errors.New("chain write error")
	// ErrInternal marks programming errors, such as a metadata document
	// missing a required field.
	ErrInternal = errors.New("internal error")

	// ErrBusy is returned when Run is called while the same workflow is
	// already running.
	ErrBusy = errors.New("publish already in progress")
)

// Error is a workflow failure: its kind, the stage that failed and the
// underlying cause.
type Error struct {
	Kind  error
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v while %s: %v", e.Kind, e.Stage, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func fail(kind error, stage Stage, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Err: err}
}
