package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/soochol/flowboard/internal/flow"
)

// CreateWorkflow stores a new workflow for ownerID.
func (d *DB) CreateWorkflow(ctx context.Context, ownerID int64, w flow.WorkflowWrite) (*flow.WorkflowRecord, error) {
	nodesJSON, edgesJSON, err := marshalGraph(w)
	if err != nil {
		return nil, err
	}

	rec := &flow.WorkflowRecord{Name: w.Name, Nodes: w.Nodes, Edges: w.Edges, OwnerID: ownerID}
	err = d.Pool.QueryRowContext(ctx,
		`INSERT INTO workflows (name, nodes, edges, owner_id) VALUES ($1, $2, $3, $4) RETURNING id`,
		w.Name, nodesJSON, edgesJSON, ownerID,
	).Scan(&rec.ID)
	if err != nil {
		return nil, fmt.Errorf("insert workflow: %w", err)
	}
	return rec, nil
}

// GetWorkflow retrieves a workflow by id.
func (d *DB) GetWorkflow(ctx context.Context, id int64) (*flow.WorkflowRecord, error) {
	row := d.Pool.QueryRowContext(ctx,
		`SELECT id, name, nodes, edges, owner_id FROM workflows WHERE id = $1`, id,
	)
	rec, err := scanWorkflow(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: workflow %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow: %w", err)
	}
	return rec, nil
}

// ListWorkflows returns the workflows of ownerID, most recently updated
// first.
func (d *DB) ListWorkflows(ctx context.Context, ownerID int64) ([]flow.WorkflowRecord, error) {
	rows, err := d.Pool.QueryContext(ctx,
		`SELECT id, name, nodes, edges, owner_id FROM workflows
		 WHERE owner_id = $1 ORDER BY updated_at DESC`, ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	var result []flow.WorkflowRecord
	for rows.Next() {
		rec, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		result = append(result, *rec)
	}
	return result, rows.Err()
}

// ReplaceWorkflow overwrites name, nodes and edges of a workflow.
func (d *DB) ReplaceWorkflow(ctx context.Context, id int64, w flow.WorkflowWrite) (*flow.WorkflowRecord, error) {
	nodesJSON, edgesJSON, err := marshalGraph(w)
	if err != nil {
		return nil, err
	}

	res, err := d.Pool.ExecContext(ctx,
		`UPDATE workflows SET name = $1, nodes = $2, edges = $3, updated_at = NOW() WHERE id = $4`,
		w.Name, nodesJSON, edgesJSON, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update workflow: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return nil, fmt.Errorf("%w: workflow %d", ErrNotFound, id)
	}
	return d.GetWorkflow(ctx, id)
}

// DeleteWorkflow removes a workflow and its executions.
func (d *DB) DeleteWorkflow(ctx context.Context, id int64) error {
	res, err := d.Pool.ExecContext(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete workflow: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: workflow %d", ErrNotFound, id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(s scanner) (*flow.WorkflowRecord, error) {
	var rec flow.WorkflowRecord
	var nodesJSON, edgesJSON []byte
	if err := s.Scan(&rec.ID, &rec.Name, &nodesJSON, &edgesJSON, &rec.OwnerID); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(nodesJSON, &rec.Nodes); err != nil {
		return nil, fmt.Errorf("unmarshal nodes: %w", err)
	}
	if err := json.Unmarshal(edgesJSON, &rec.Edges); err != nil {
		return nil, fmt.Errorf("unmarshal edges: %w", err)
	}
	return &rec, nil
}

func marshalGraph(w flow.WorkflowWrite) ([]byte, []byte, error) {
	nodes := w.Nodes
	if nodes == nil {
		nodes = []flow.NodeRecord{}
	}
	edges := w.Edges
	if edges == nil {
		edges = []flow.EdgeRecord{}
	}
	nodesJSON, err := json.Marshal(nodes)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal nodes: %w", err)
	}
	edgesJSON, err := json.Marshal(edges)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal edges: %w", err)
	}
	return nodesJSON, edgesJSON, nil
}
