package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Session runs statements against the database, optionally inside a
// transaction.
type Session struct {
	q  querier
	tx *sql.Tx
}

// InTx reports whether the session is transactional.
func (s *Session) InTx() bool { return s.tx != nil }

// Commit commits the session's transaction. It is a no-op outside one.
func (s *Session) Commit() error {
	if s.tx == nil {
		return nil
	}
	if err := s.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Rollback aborts the session's transaction. Rolling back a finished
// transaction is not an error.
func (s *Session) Rollback() error {
	if s.tx == nil {
		return nil
	}
	if err := s.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}
