// Package storage provides the Postgres store backing ingest runs, staged
// events, and the published alert/log tables.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Storage error types for categorizing storage failures.
var (
	// ErrConnectionFailed indicates a failure to reach the database.
	ErrConnectionFailed = errors.New("storage: connection failed")

	// ErrQueryFailed indicates a query execution failure.
	ErrQueryFailed = errors.New("storage: query failed")

	// ErrNotFound indicates the requested record was not found.
	ErrNotFound = errors.New("storage: not found")

	// ErrTimeout indicates an operation timeout.
	ErrTimeout = errors.New("storage: operation timeout")

	// ErrFunctionMissing indicates a server-side publish function does not
	// exist in this deployment. The orchestrator matches on this sentinel to
	// select the monolithic finalize fallback; it must never be produced for
	// a data error.
	ErrFunctionMissing = errors.New("storage: server function missing")
)

// Error wraps storage errors with operation context.
type Error struct {
	Op    string // operation that failed, e.g. "UpsertStaging"
	Table string // table or function involved, if applicable
	Err   error
}

func (e *Error) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("storage.%s(%s): %v", e.Op, e.Table, e.Err)
	}
	return fmt.Sprintf("storage.%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// SQLSTATE classes that signal a transient infrastructure problem rather
// than bad data: connection exceptions (08), insufficient resources (53),
// and operator intervention (57).
func isTransientCode(code string) bool {
	if len(code) < 2 {
		return false
	}
	switch code[:2] {
	case "08", "53", "57":
		return true
	}
	return false
}

// undefinedFunction is the SQLSTATE raised when a called function does not
// exist. This is the only signal allowed to select the publish fallback.
const undefinedFunction = "42883"

// classify wraps a raw pgx error with the matching sentinel.
func classify(op, table string, err error) error {
	if err == nil {
		return nil
	}

	wrapped := err
	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &pgErr) && pgErr.Code == undefinedFunction:
		wrapped = fmt.Errorf("%w: %v", ErrFunctionMissing, err)
	case errors.As(err, &pgErr) && isTransientCode(pgErr.Code):
		wrapped = fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	case errors.Is(err, context.DeadlineExceeded):
		wrapped = fmt.Errorf("%w: %v", ErrTimeout, err)
	default:
		wrapped = fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}

	return &Error{Op: op, Table: table, Err: wrapped}
}

// IsFunctionMissing checks for the missing-server-function sentinel.
func IsFunctionMissing(err error) bool {
	return errors.Is(err, ErrFunctionMissing)
}

// IsNotFound checks for the not-found sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRetryable reports whether the operation may succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConnectionFailed) || errors.Is(err, ErrTimeout)
}
