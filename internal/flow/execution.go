package flow

import (
	"encoding/json"
	"strings"
	"time"
)

// ExecutionStatus is the lifecycle state reported by the remote executor.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "PENDING"
	ExecutionRunning   ExecutionStatus = "RUNNING"
	ExecutionCompleted ExecutionStatus = "COMPLETED"
	ExecutionFailed    ExecutionStatus = "FAILED"
)

// Terminal reports whether the execution has finished.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionCompleted || s == ExecutionFailed
}

// ResultErrorKey is the results key carrying a failure message.
const ResultErrorKey = "error"

// ExecutionRecord is one remote run of a workflow. It is owned by the
// remote side and only observed here.
type ExecutionRecord struct {
	ID         int64           `json:"id"`
	WorkflowID int64           `json:"workflow_id"`
	Status     ExecutionStatus `json:"status"`
	Results    map[string]any  `json:"results"`
	CreatedAt  Timestamp       `json:"created_at"`
	UpdatedAt  Timestamp       `json:"updated_at,omitzero"`
}

// Result returns the non-null result recorded for nodeID.
func (r *ExecutionRecord) Result(nodeID string) (any, bool) {
	v, ok := r.Results[nodeID]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// ErrorMessage returns results.error when it is a string.
func (r *ExecutionRecord) ErrorMessage() (string, bool) {
	msg, ok := r.Results[ResultErrorKey].(string)
	return msg, ok
}

// Timestamp accepts RFC 3339 as well as the zone-less ISO form some
// backends emit.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	var err error
	for _, layout := range timestampLayouts {
		var parsed time.Time
		if parsed, err = time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return err
}
