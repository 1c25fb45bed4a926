package types

import (
	"context"
	"errors"
	"fmt"
)

// UserStore is the record contract every backend family implements.
type UserStore interface {
	// FindByField returns the user whose unique field equals value exactly
	// (case-sensitive). A miss returns (nil, nil).
	FindByField(ctx context.Context, field UserField, value string) (*User, error)

	// FindByEither returns a user whose email equals email or whose username
	// equals username. Used as the uniqueness pre-check at registration.
	// A miss returns (nil, nil).
	FindByEither(ctx context.Context, email, username string) (*User, error)

	// Insert stores u, assigns its ID and timestamps, and returns the ID.
	// Returns ErrDuplicateUser when the engine rejects a duplicate email or
	// username.
	Insert(ctx context.Context, u *User) (UserID, error)

	// List returns at most limit users after skipping skip, in insertion order.
	List(ctx context.Context, skip, limit int) ([]User, error)

	// Count returns how many users have the given unique field value.
	Count(ctx context.Context, field UserField, value string) (int64, error)
}

// RelationalOps is available on units backed by a SQL engine.
type RelationalOps interface {
	// SelectUsers runs a SELECT over the users table restricted by the given
	// predicate. Placeholders are written as '?' and rebound for the dialect.
	SelectUsers(ctx context.Context, where string, args ...any) ([]User, error)
}

// DocumentOps is available on units backed by the document store.
type DocumentOps interface {
	// FindUsers runs a native filter document (a bson document) against the
	// users collection. limit <= 0 means no limit.
	FindUsers(ctx context.Context, filter any, skip, limit int64) ([]User, error)
}

// UnitOfWork is the request-scoped data-access handle. Exactly one is live
// per request and none outlives its request: callers must Close it on every
// exit path. Commit makes relational writes durable; on the document backend
// every operation is already durable and Commit is a no-op.
type UnitOfWork interface {
	UserStore

	// Kind reports the backend that serves this unit.
	Kind() BackendKind

	// Relational returns the SQL capability set when the unit is relational.
	Relational() (RelationalOps, bool)

	// Document returns the document capability set when the unit is backed by
	// the document store.
	Document() (DocumentOps, bool)

	// Commit commits pending writes. Calling Commit twice is an error.
	Commit() error

	// Close releases the unit. Uncommitted relational writes are rolled back
	// and the borrowed connection returns to the pool. Idempotent.
	Close() error
}

// Storage errors.
var (
	// ErrDuplicateUser reports that the email or username is already taken.
	ErrDuplicateUser = errors.New("email or username already registered")

	// ErrUnavailable reports a transient per-request storage failure.
	ErrUnavailable = errors.New("storage temporarily unavailable")

	// ErrPoolExhausted reports that no pooled connection became idle within
	// the pool timeout.
	ErrPoolExhausted = fmt.Errorf("%w: connection pool exhausted", ErrUnavailable)

	// ErrConnect reports that the engine could not be reached at startup.
	ErrConnect = errors.New("database connection failed")

	// ErrUnitClosed is returned by operations on a closed unit of work.
	ErrUnitClosed = errors.New("unit of work is closed")

	// ErrUnitCommitted is returned by writes after Commit.
	ErrUnitCommitted = errors.New("unit of work already committed")
)
