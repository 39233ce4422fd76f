package flow

import "encoding/json"

// WorkflowRecord is a workflow as stored by the remote side.
type WorkflowRecord struct {
	ID      int64        `json:"id"`
	Name    string       `json:"name"`
	Nodes   []NodeRecord `json:"nodes"`
	Edges   []EdgeRecord `json:"edges"`
	OwnerID int64        `json:"owner_id"`
}

// WorkflowWrite is the body of a create or full-replace request.
type WorkflowWrite struct {
	Name  string       `json:"name"`
	Nodes []NodeRecord `json:"nodes"`
	Edges []EdgeRecord `json:"edges"`
}

// NodeRecord is the persisted node shape. Position is kept raw because
// older records store it as a JSON-encoded string.
type NodeRecord struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Data     json.RawMessage `json:"data"`
	Position json.RawMessage `json:"position"`
}

// EdgeRecord is the persisted edge shape.
type EdgeRecord struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty"`
}

// LaunchResponse is returned when an execution is started.
type LaunchResponse struct {
	Message     string `json:"message"`
	ExecutionID int64  `json:"execution_id"`
}
