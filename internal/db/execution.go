package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/soochol/flowboard/internal/flow"
)

// CreateExecution stores a PENDING execution for workflowID.
func (d *DB) CreateExecution(ctx context.Context, workflowID int64) (*flow.ExecutionRecord, error) {
	rec := &flow.ExecutionRecord{WorkflowID: workflowID, Status: flow.ExecutionPending}
	err := d.Pool.QueryRowContext(ctx,
		`INSERT INTO executions (workflow_id, status) VALUES ($1, $2)
		 RETURNING id, created_at, updated_at`,
		workflowID, string(flow.ExecutionPending),
	).Scan(&rec.ID, &rec.CreatedAt.Time, &rec.UpdatedAt.Time)
	if err != nil {
		return nil, fmt.Errorf("insert execution: %w", err)
	}
	return rec, nil
}

// GetExecution retrieves an execution by id.
func (d *DB) GetExecution(ctx context.Context, id int64) (*flow.ExecutionRecord, error) {
	row := d.Pool.QueryRowContext(ctx,
		`SELECT id, workflow_id, status, results, created_at, updated_at
		 FROM executions WHERE id = $1`, id,
	)
	rec, err := scanExecution(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: execution %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get execution: %w", err)
	}
	return rec, nil
}

// ListExecutions returns the executions of a workflow, newest first.
func (d *DB) ListExecutions(ctx context.Context, workflowID int64) ([]flow.ExecutionRecord, error) {
	rows, err := d.Pool.QueryContext(ctx,
		`SELECT id, workflow_id, status, results, created_at, updated_at
		 FROM executions WHERE workflow_id = $1 ORDER BY created_at DESC`, workflowID,
	)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var result []flow.ExecutionRecord
	for rows.Next() {
		rec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		result = append(result, *rec)
	}
	return result, rows.Err()
}

// UpdateExecution writes status and results of an execution.
func (d *DB) UpdateExecution(ctx context.Context, id int64, status flow.ExecutionStatus, results map[string]any) error {
	var resultsJSON []byte
	if results != nil {
		var err error
		if resultsJSON, err = json.Marshal(results); err != nil {
			return fmt.Errorf("marshal results: %w", err)
		}
	}
	_, err := d.Pool.ExecContext(ctx,
		`UPDATE executions SET status = $1, results = $2, updated_at = NOW() WHERE id = $3`,
		string(status), resultsJSON, id,
	)
	if err != nil {
		return fmt.Errorf("update execution: %w", err)
	}
	return nil
}

func scanExecution(s scanner) (*flow.ExecutionRecord, error) {
	var rec flow.ExecutionRecord
	var status string
	var resultsJSON []byte
	if err := s.Scan(&rec.ID, &rec.WorkflowID, &status, &resultsJSON, &rec.CreatedAt.Time, &rec.UpdatedAt.Time); err != nil {
		return nil, err
	}
	rec.Status = flow.ExecutionStatus(status)
	if len(resultsJSON) > 0 {
		if err := json.Unmarshal(resultsJSON, &rec.Results); err != nil {
			return nil, fmt.Errorf("unmarshal results: %w", err)
		}
	}
	return &rec, nil
}
