package application

import (
	"context"

	"trackstore/internal/domain"
	"trackstore/internal/tracking"
)

// Session is a connected change-tracking persistence context.
type Session interface {
	Tracker() *tracking.Tracker
	// Find loads one row by key without tracking it. Returns ErrNotFound.
	Find(ctx context.Context, m tracking.Mapping, key any) (domain.Entity, error)
	// Flush writes all pending entries in one store transaction. It returns
	// *ConcurrencyConflictError when a guarded write matched no row.
	Flush(ctx context.Context) error
	// DatabaseValues reads the values currently persisted for entry. Returns ErrNotFound.
	DatabaseValues(ctx context.Context, entry *tracking.Entry) (tracking.Snapshot, error)
	Exec(ctx context.Context, statement string, args ...any) (int64, error)
	Close() error
}

type SessionFactory interface {
	NewSession(ctx context.Context) (Session, error)
}

type SessionFactoryFunc func(ctx context.Context) (Session, error)

func (f SessionFactoryFunc) NewSession(ctx context.Context) (Session, error) { return f(ctx) }

type CommitOutcome string

const (
	CommitSucceeded CommitOutcome = "success"
	CommitConflict  CommitOutcome = "conflict"
	CommitFailed    CommitOutcome = "failure"
	CommitExhausted CommitOutcome = "exhausted"
)

// CommitObserver is notified of every flush attempt.
type CommitObserver interface {
	ObserveCommit(outcome CommitOutcome)
}

type noopObserver struct{}

func (noopObserver) ObserveCommit(CommitOutcome) {}
