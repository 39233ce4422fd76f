package editor

import (
	"errors"
	"fmt"
)

var (
	// ErrNotOpen is returned by editing operations before a workflow is open.
	ErrNotOpen = errors.New("no workflow open")
	// ErrReadOnly is returned by editing operations after a failed load.
	ErrReadOnly = errors.New("editing disabled: workflow failed to load")
	// ErrNoSelection is returned by Edit when no node is selected.
	ErrNoSelection = errors.New("no node selected")
	// ErrUnknownNode is returned when an operation names a missing node.
	ErrUnknownNode = errors.New("unknown node")
	// ErrDropIgnored is returned when a drop carries no node type.
	ErrDropIgnored = errors.New("drop ignored")
)

// LoadFailure means the workflow could not be fetched. The session stays
// read-only until a later Open succeeds.
type LoadFailure struct {
	WorkflowID int64
	Err        error
}

func (e *LoadFailure) Error() string {
	return fmt.Sprintf("load workflow %d: %v", e.WorkflowID, e.Err)
}

func (e *LoadFailure) Unwrap() error { return e.Err }

// SaveFailure means the replace request failed. Local edits are kept.
type SaveFailure struct {
	WorkflowID int64
	Err        error
}

func (e *SaveFailure) Error() string {
	return fmt.Sprintf("save workflow %d: %v", e.WorkflowID, e.Err)
}

func (e *SaveFailure) Unwrap() error { return e.Err }

// LaunchFailure means a run could not be started. Nodes were reset to
// pending with an inline error.
type LaunchFailure struct {
	WorkflowID int64
	Stage      string
	Err        error
}

func (e *LaunchFailure) Error() string {
	return fmt.Sprintf("run workflow %d: %s failed: %v", e.WorkflowID, e.Stage, e.Err)
}

func (e *LaunchFailure) Unwrap() error { return e.Err }

// PollFailure means a run was abandoned because its status could no longer
// be fetched.
type PollFailure struct {
	ExecutionID int64
	Err         error
}

func (e *PollFailure) Error() string {
	return fmt.Sprintf("execution %d: %v", e.ExecutionID, e.Err)
}

func (e *PollFailure) Unwrap() error { return e.Err }
