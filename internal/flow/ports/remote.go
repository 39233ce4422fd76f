// Package ports defines the remote collaborators the editing core
// depends on. The HTTP API client implements all of them.
package ports

import (
	"context"

	"github.com/soochol/flowboard/internal/flow"
)

// WorkflowStore is the remote workflow storage.
type WorkflowStore interface {
	ListWorkflows(ctx context.Context) ([]flow.WorkflowRecord, error)
	GetWorkflow(ctx context.Context, id int64) (*flow.WorkflowRecord, error)
	CreateWorkflow(ctx context.Context, w flow.WorkflowWrite) (*flow.WorkflowRecord, error)
	ReplaceWorkflow(ctx context.Context, id int64, w flow.WorkflowWrite) (*flow.WorkflowRecord, error)
}

// ExecutionRemote starts executions and reports their progress.
type ExecutionRemote interface {
	StartExecution(ctx context.Context, workflowID int64) (*flow.LaunchResponse, error)
	GetExecution(ctx context.Context, executionID int64) (*flow.ExecutionRecord, error)
}

// Authenticator exchanges credentials for a bearer token.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (string, error)
	Register(ctx context.Context, email, password string) (string, error)
}
