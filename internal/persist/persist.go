// Package persist converts between the editing model and the remote
// workflow store.
package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/soochol/flowboard/internal/flow"
	"github.com/soochol/flowboard/internal/flow/ports"
)

// Client loads and saves whole workflow documents. Saves are full
// replacements; the last writer wins.
type Client struct {
	store ports.WorkflowStore
}

func NewClient(store ports.WorkflowStore) *Client {
	return &Client{store: store}
}

// Load fetches workflow id and decodes it into a Document.
func (c *Client) Load(ctx context.Context, id int64) (*flow.Document, error) {
	rec, err := c.store.GetWorkflow(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load workflow %d: %w", id, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("load workflow %d: empty response", id)
	}
	doc, err := FromRecord(rec)
	if err != nil {
		return nil, fmt.Errorf("load workflow %d: %w", id, err)
	}
	slog.Debug("workflow loaded", "id", id, "nodes", len(doc.Nodes), "edges", len(doc.Edges))
	return doc, nil
}

// Save writes doc back as a full replacement.
func (c *Client) Save(ctx context.Context, doc flow.Document) error {
	w, err := ToWrite(doc)
	if err != nil {
		return fmt.Errorf("save workflow %d: %w", doc.ID, err)
	}
	if _, err := c.store.ReplaceWorkflow(ctx, doc.ID, w); err != nil {
		return fmt.Errorf("save workflow %d: %w", doc.ID, err)
	}
	slog.Debug("workflow saved", "id", doc.ID, "nodes", len(w.Nodes), "edges", len(w.Edges))
	return nil
}

// Create stores a new, empty workflow.
func (c *Client) Create(ctx context.Context, name string) (*flow.Document, error) {
	rec, err := c.store.CreateWorkflow(ctx, flow.WorkflowWrite{
		Name:  name,
		Nodes: []flow.NodeRecord{},
		Edges: []flow.EdgeRecord{},
	})
	if err != nil {
		return nil, fmt.Errorf("create workflow %q: %w", name, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("create workflow %q: empty response", name)
	}
	return FromRecord(rec)
}

// List returns the caller's workflows.
func (c *Client) List(ctx context.Context) ([]flow.WorkflowRecord, error) {
	recs, err := c.store.ListWorkflows(ctx)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	return recs, nil
}

// FromRecord decodes a stored workflow.
func FromRecord(rec *flow.WorkflowRecord) (*flow.Document, error) {
	doc := &flow.Document{
		ID:      rec.ID,
		Name:    rec.Name,
		OwnerID: rec.OwnerID,
		Nodes:   make([]flow.Node, 0, len(rec.Nodes)),
		Edges:   make([]flow.Edge, 0, len(rec.Edges)),
	}
	for _, nr := range rec.Nodes {
		pos, err := decodePosition(nr.Position)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", nr.ID, err)
		}
		t := flow.NodeType(nr.Type)
		data, err := flow.DecodeNodeData(t, nr.Data)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", nr.ID, err)
		}
		doc.Nodes = append(doc.Nodes, flow.Node{ID: nr.ID, Type: t, Position: pos, Data: data})
	}
	for _, er := range rec.Edges {
		doc.Edges = append(doc.Edges, flow.Edge{
			ID:           er.ID,
			Source:       er.Source,
			Target:       er.Target,
			SourceHandle: er.SourceHandle,
			TargetHandle: er.TargetHandle,
		})
	}
	return doc, nil
}

// ToWrite encodes doc for a create or replace request. Transient UI flags
// are dropped.
func ToWrite(doc flow.Document) (flow.WorkflowWrite, error) {
	w := flow.WorkflowWrite{
		Name:  doc.Name,
		Nodes: make([]flow.NodeRecord, 0, len(doc.Nodes)),
		Edges: make([]flow.EdgeRecord, 0, len(doc.Edges)),
	}
	for _, n := range doc.Nodes {
		data, err := json.Marshal(n.Data)
		if err != nil {
			return w, fmt.Errorf("node %s: %w", n.ID, err)
		}
		pos, err := json.Marshal(n.Position)
		if err != nil {
			return w, fmt.Errorf("node %s: %w", n.ID, err)
		}
		t := n.Type
		if t == "" {
			t = flow.NodeTypeDefault
		}
		w.Nodes = append(w.Nodes, flow.NodeRecord{ID: n.ID, Type: string(t), Data: data, Position: pos})
	}
	for _, e := range doc.Edges {
		w.Edges = append(w.Edges, flow.EdgeRecord{
			ID:           e.ID,
			Source:       e.Source,
			Target:       e.Target,
			SourceHandle: e.SourceHandle,
			TargetHandle: e.TargetHandle,
		})
	}
	return w, nil
}

// decodePosition accepts {"x":..,"y":..} or the same object encoded as a
// JSON string. A missing position is the origin.
func decodePosition(raw json.RawMessage) (flow.Position, error) {
	var pos flow.Position
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return pos, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return pos, fmt.Errorf("decode position: %w", err)
		}
		if s == "" {
			return pos, nil
		}
		raw = []byte(s)
	}
	if err := json.Unmarshal(raw, &pos); err != nil {
		return pos, fmt.Errorf("decode position: %w", err)
	}
	return pos, nil
}
