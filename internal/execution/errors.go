package execution

import (
	"errors"
	"fmt"
)

var (
	// ErrSuperseded is the outcome of a run replaced by a newer one.
	ErrSuperseded = errors.New("run superseded by a newer run")
	// ErrClosed is returned once the coordinator has been closed.
	ErrClosed = errors.New("coordinator closed")
	// ErrNoRun is returned by Wait before the first run.
	ErrNoRun = errors.New("no run started")

	errEmptyExecution = errors.New("empty execution response")
)

// LaunchError reports that a run could not be started because the save or
// the launch request failed.
type LaunchError struct {
	Stage string // "save" or "launch"
	Err   error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("start execution: %s: %v", e.Stage, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// PollError reports that a run was abandoned after too many consecutive
// failed status fetches.
type PollError struct {
	ExecutionID int64
	Failures    int
	Err         error
}

func (e *PollError) Error() string {
	return fmt.Sprintf("execution %d: lost contact after %d failed polls: %v", e.ExecutionID, e.Failures, e.Err)
}

func (e *PollError) Unwrap() error { return e.Err }
