package devserver

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/soochol/flowboard/internal/db"
	"github.com/soochol/flowboard/internal/flow"
	"github.com/soochol/flowboard/internal/store"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrEmailTaken is returned when signing up with a registered email.
var ErrEmailTaken = errors.New("email already registered")

// User is an account of the dev server.
type User struct {
	ID           int64  `json:"id"`
	Email        string `json:"email"`
	PasswordHash []byte `json:"-"`
	IsActive     bool   `json:"is_active"`
}

// Repository abstracts dev server storage so handlers don't need to know
// whether it is in-memory or PostgreSQL.
type Repository interface {
	CreateUser(ctx context.Context, email string, passwordHash []byte) (*User, error)
	UserByEmail(ctx context.Context, email string) (*User, error)

	CreateWorkflow(ctx context.Context, ownerID int64, w flow.WorkflowWrite) (*flow.WorkflowRecord, error)
	GetWorkflow(ctx context.Context, id int64) (*flow.WorkflowRecord, error)
	ListWorkflows(ctx context.Context, ownerID int64) ([]flow.WorkflowRecord, error)
	ReplaceWorkflow(ctx context.Context, id int64, w flow.WorkflowWrite) (*flow.WorkflowRecord, error)
	DeleteWorkflow(ctx context.Context, id int64) error

	CreateExecution(ctx context.Context, workflowID int64) (*flow.ExecutionRecord, error)
	GetExecution(ctx context.Context, id int64) (*flow.ExecutionRecord, error)
	ListExecutions(ctx context.Context, workflowID int64) ([]flow.ExecutionRecord, error)
	UpdateExecution(ctx context.Context, id int64, status flow.ExecutionStatus, results map[string]any) error
}

// MemoryRepository is a thread-safe in-memory Repository. Stored values
// are never mutated in place; updates replace them.
type MemoryRepository struct {
	users      *store.Store[string, *User]
	workflows  *store.Store[int64, *flow.WorkflowRecord]
	executions *store.Store[int64, *flow.ExecutionRecord]

	userSeq, workflowSeq, executionSeq store.Sequence
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *MemoryRepository {
	return &MemoryRepository{
		users:      store.New(func(u *User) string { return u.Email }),
		workflows:  store.New(func(w *flow.WorkflowRecord) int64 { return w.ID }),
		executions: store.New(func(e *flow.ExecutionRecord) int64 { return e.ID }),
	}
}

func (r *MemoryRepository) CreateUser(ctx context.Context, email string, passwordHash []byte) (*User, error) {
	if _, err := r.users.Get(ctx, email); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrEmailTaken, email)
	}
	u := &User{ID: r.userSeq.Next(), Email: email, PasswordHash: passwordHash, IsActive: true}
	if err := r.users.Set(ctx, u); err != nil {
		return nil, err
	}
	cp := *u
	return &cp, nil
}

func (r *MemoryRepository) UserByEmail(ctx context.Context, email string) (*User, error) {
	u, err := r.users.Get(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, email)
	}
	if err != nil {
		return nil, err
	}
	cp := *u
	return &cp, nil
}

func (r *MemoryRepository) CreateWorkflow(ctx context.Context, ownerID int64, w flow.WorkflowWrite) (*flow.WorkflowRecord, error) {
	rec := &flow.WorkflowRecord{
		ID:      r.workflowSeq.Next(),
		Name:    w.Name,
		Nodes:   nonNil(w.Nodes),
		Edges:   nonNil(w.Edges),
		OwnerID: ownerID,
	}
	if err := r.workflows.Set(ctx, rec); err != nil {
		return nil, err
	}
	return copyWorkflow(rec), nil
}

func (r *MemoryRepository) GetWorkflow(ctx context.Context, id int64) (*flow.WorkflowRecord, error) {
	rec, err := r.workflows.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: workflow %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return copyWorkflow(rec), nil
}

func (r *MemoryRepository) ListWorkflows(ctx context.Context, ownerID int64) ([]flow.WorkflowRecord, error) {
	recs, err := r.workflows.Filter(ctx, func(w *flow.WorkflowRecord) bool { return w.OwnerID == ownerID })
	if err != nil {
		return nil, err
	}
	slices.SortFunc(recs, func(a, b *flow.WorkflowRecord) int { return cmp.Compare(a.ID, b.ID) })
	out := make([]flow.WorkflowRecord, 0, len(recs))
	for _, rec := range recs {
		out = append(out, *copyWorkflow(rec))
	}
	return out, nil
}

func (r *MemoryRepository) ReplaceWorkflow(ctx context.Context, id int64, w flow.WorkflowWrite) (*flow.WorkflowRecord, error) {
	rec, err := r.workflows.Update(ctx, id, func(old *flow.WorkflowRecord) *flow.WorkflowRecord {
		return &flow.WorkflowRecord{
			ID:      old.ID,
			Name:    w.Name,
			Nodes:   nonNil(w.Nodes),
			Edges:   nonNil(w.Edges),
			OwnerID: old.OwnerID,
		}
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: workflow %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return copyWorkflow(rec), nil
}

func (r *MemoryRepository) DeleteWorkflow(ctx context.Context, id int64) error {
	if err := r.workflows.Delete(ctx, id); err != nil {
		return fmt.Errorf("%w: workflow %d", ErrNotFound, id)
	}
	execs, _ := r.executions.Filter(ctx, func(e *flow.ExecutionRecord) bool { return e.WorkflowID == id })
	for _, e := range execs {
		_ = r.executions.Delete(ctx, e.ID)
	}
	return nil
}

func (r *MemoryRepository) CreateExecution(ctx context.Context, workflowID int64) (*flow.ExecutionRecord, error) {
	now := flow.Timestamp{Time: time.Now().UTC()}
	rec := &flow.ExecutionRecord{
		ID:         r.executionSeq.Next(),
		WorkflowID: workflowID,
		Status:     flow.ExecutionPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := r.executions.Set(ctx, rec); err != nil {
		return nil, err
	}
	cp := *rec
	return &cp, nil
}

func (r *MemoryRepository) GetExecution(ctx context.Context, id int64) (*flow.ExecutionRecord, error) {
	rec, err := r.executions.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: execution %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	cp := *rec
	return &cp, nil
}

func (r *MemoryRepository) ListExecutions(ctx context.Context, workflowID int64) ([]flow.ExecutionRecord, error) {
	recs, err := r.executions.Filter(ctx, func(e *flow.ExecutionRecord) bool { return e.WorkflowID == workflowID })
	if err != nil {
		return nil, err
	}
	slices.SortFunc(recs, func(a, b *flow.ExecutionRecord) int { return cmp.Compare(b.ID, a.ID) })
	out := make([]flow.ExecutionRecord, 0, len(recs))
	for _, rec := range recs {
		out = append(out, *rec)
	}
	return out, nil
}

func (r *MemoryRepository) UpdateExecution(ctx context.Context, id int64, status flow.ExecutionStatus, results map[string]any) error {
	_, err := r.executions.Update(ctx, id, func(old *flow.ExecutionRecord) *flow.ExecutionRecord {
		next := *old
		next.Status = status
		next.Results = maps.Clone(results)
		next.UpdatedAt = flow.Timestamp{Time: time.Now().UTC()}
		return &next
	})
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: execution %d", ErrNotFound, id)
	}
	return err
}

func copyWorkflow(w *flow.WorkflowRecord) *flow.WorkflowRecord {
	cp := *w
	cp.Nodes = slices.Clone(w.Nodes)
	cp.Edges = slices.Clone(w.Edges)
	return &cp
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return slices.Clone(s)
}

// StorageDB defines the DB-layer methods needed by PostgresRepository.
// *db.DB satisfies this interface.
type StorageDB interface {
	CreateUser(ctx context.Context, email string, passwordHash []byte) (*db.UserRow, error)
	GetUserByEmail(ctx context.Context, email string) (*db.UserRow, error)
	CreateWorkflow(ctx context.Context, ownerID int64, w flow.WorkflowWrite) (*flow.WorkflowRecord, error)
	GetWorkflow(ctx context.Context, id int64) (*flow.WorkflowRecord, error)
	ListWorkflows(ctx context.Context, ownerID int64) ([]flow.WorkflowRecord, error)
	ReplaceWorkflow(ctx context.Context, id int64, w flow.WorkflowWrite) (*flow.WorkflowRecord, error)
	DeleteWorkflow(ctx context.Context, id int64) error
	CreateExecution(ctx context.Context, workflowID int64) (*flow.ExecutionRecord, error)
	GetExecution(ctx context.Context, id int64) (*flow.ExecutionRecord, error)
	ListExecutions(ctx context.Context, workflowID int64) ([]flow.ExecutionRecord, error)
	UpdateExecution(ctx context.Context, id int64, status flow.ExecutionStatus, results map[string]any) error
}

var _ StorageDB = (*db.DB)(nil)

// PostgresRepository stores everything in PostgreSQL.
type PostgresRepository struct {
	db StorageDB
}

// NewPostgres creates a repository backed by database.
func NewPostgres(database StorageDB) *PostgresRepository {
	return &PostgresRepository{db: database}
}

// translate maps storage errors onto the repository's sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, db.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, db.ErrDuplicate):
		return fmt.Errorf("%w: %v", ErrEmailTaken, err)
	default:
		return err
	}
}

func (r *PostgresRepository) CreateUser(ctx context.Context, email string, passwordHash []byte) (*User, error) {
	row, err := r.db.CreateUser(ctx, email, passwordHash)
	if err != nil {
		return nil, translate(err)
	}
	return userFromRow(row), nil
}

func (r *PostgresRepository) UserByEmail(ctx context.Context, email string) (*User, error) {
	row, err := r.db.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, translate(err)
	}
	return userFromRow(row), nil
}

func userFromRow(row *db.UserRow) *User {
	return &User{ID: row.ID, Email: row.Email, PasswordHash: row.PasswordHash, IsActive: row.IsActive}
}

func (r *PostgresRepository) CreateWorkflow(ctx context.Context, ownerID int64, w flow.WorkflowWrite) (*flow.WorkflowRecord, error) {
	rec, err := r.db.CreateWorkflow(ctx, ownerID, w)
	return rec, translate(err)
}

func (r *PostgresRepository) GetWorkflow(ctx context.Context, id int64) (*flow.WorkflowRecord, error) {
	rec, err := r.db.GetWorkflow(ctx, id)
	return rec, translate(err)
}

func (r *PostgresRepository) ListWorkflows(ctx context.Context, ownerID int64) ([]flow.WorkflowRecord, error) {
	recs, err := r.db.ListWorkflows(ctx, ownerID)
	return recs, translate(err)
}

func (r *PostgresRepository) ReplaceWorkflow(ctx context.Context, id int64, w flow.WorkflowWrite) (*flow.WorkflowRecord, error) {
	rec, err := r.db.ReplaceWorkflow(ctx, id, w)
	return rec, translate(err)
}

func (r *PostgresRepository) DeleteWorkflow(ctx context.Context, id int64) error {
	return translate(r.db.DeleteWorkflow(ctx, id))
}

func (r *PostgresRepository) CreateExecution(ctx context.Context, workflowID int64) (*flow.ExecutionRecord, error) {
	rec, err := r.db.CreateExecution(ctx, workflowID)
	return rec, translate(err)
}

func (r *PostgresRepository) GetExecution(ctx context.Context, id int64) (*flow.ExecutionRecord, error) {
	rec, err := r.db.GetExecution(ctx, id)
	return rec, translate(err)
}

func (r *PostgresRepository) ListExecutions(ctx context.Context, workflowID int64) ([]flow.ExecutionRecord, error) {
	recs, err := r.db.ListExecutions(ctx, workflowID)
	return recs, translate(err)
}

func (r *PostgresRepository) UpdateExecution(ctx context.Context, id int64, status flow.ExecutionStatus, results map[string]any) error {
	return translate(r.db.UpdateExecution(ctx, id, status, results))
}
