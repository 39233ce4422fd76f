package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a unique constraint rejects an insert.
var ErrDuplicate = errors.New("already exists")

// UserRow is an account of the dev server.
type UserRow struct {
	ID           int64
	Email        string
	PasswordHash []byte
	IsActive     bool
}

// CreateUser inserts a user and returns its id.
func (d *DB) CreateUser(ctx context.Context, email string, passwordHash []byte) (*UserRow, error) {
	row := &UserRow{Email: email, PasswordHash: passwordHash, IsActive: true}
	err := d.Pool.QueryRowContext(ctx,
		`INSERT INTO users (email, password_hash) VALUES ($1, $2) RETURNING id`,
		email, passwordHash,
	).Scan(&row.ID)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return nil, fmt.Errorf("%w: %s", ErrDuplicate, email)
	}
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return row, nil
}

// GetUserByEmail looks a user up by email.
func (d *DB) GetUserByEmail(ctx context.Context, email string) (*UserRow, error) {
	var row UserRow
	err := d.Pool.QueryRowContext(ctx,
		`SELECT id, email, password_hash, is_active FROM users WHERE email = $1`, email,
	).Scan(&row.ID, &row.Email, &row.PasswordHash, &row.IsActive)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, email)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &row, nil
}
