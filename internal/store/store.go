// Package store persists users, collections, bookmarks and audit events.
//
// Every method returns either nil, an apperr application error (NotFound,
// DuplicateIdentity) or an apperr Internal error wrapping the driver failure;
// raw driver errors never escape the package.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/isdelr/bookmarks-be/internal/apperr"
	"github.com/isdelr/bookmarks-be/internal/database"
)

// Store is the credential store. A Store obtained from WithTx is bound to a
// single transaction.
type Store struct {
	db   *database.DB
	q    database.DBTX
	inTx bool
}

// New creates a Store over a connection pool.
func New(db *database.DB) *Store {
	return &Store{db: db, q: db.DB}
}

// WithTx runs fn inside a transaction. Calls nested inside an existing
// transaction reuse it.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx *Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}
	return database.WithTx(ctx, s.db.DB, nil, func(ctx context.Context, q database.DBTX) error {
		return fn(ctx, &Store{db: s.db, q: q, inTx: true})
	})
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.q.ExecContext(ctx, s.db.Dialect.Rebind(query), args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.q.QueryContext(ctx, s.db.Dialect.Rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.q.QueryRowContext(ctx, s.db.Dialect.Rebind(query), args...)
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface{ Scan(...any) error }

// dbError maps a driver error onto the taxonomy. what names the resource in
// NotFound messages.
func dbError(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return apperr.NotFound(what)
	case database.IsUniqueViolation(err):
		return apperr.DuplicateIdentity(apperr.ErrDuplicateIdentity.Msg)
	default:
		return apperr.Internal(fmt.Errorf("db error: %w", err))
	}
}

// affected returns NotFound when a write touched no rows.
func affected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Internal(fmt.Errorf("db error: %w", err))
	}
	if n == 0 {
		return apperr.NotFound(what)
	}
	return nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
