package application

import (
	"errors"
	"fmt"

	"trackstore/internal/tracking"
)

var ErrNotFound = errors.New("not found")
var ErrConflict = errors.New("conflict")
var ErrBadRequest = errors.New("bad request")
var ErrDuplicateRequest = errors.New("duplicate request")

var (
	ErrUnsupportedTarget = errors.New("unsupported persistence target")
	ErrUnknownEntityKind = errors.New("entity kind not registered in model")
	ErrSessionNotReady   = errors.New("session not ready")
	ErrDisposed          = errors.New("unit of work disposed")
)

// PersistenceError is a store failure other than a concurrency conflict.
type PersistenceError struct {
	Message string
	Err     error
}

func (e *PersistenceError) Error() string { return "persistence: " + e.Message }
func (e *PersistenceError) Unwrap() error { return e.Err }

// ConcurrencyConflictError reports entries whose stored version diverged from
// the session's baseline. Nothing from the attempt was persisted.
type ConcurrencyConflictError struct {
	Entries []*tracking.Entry
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("concurrency conflict on %d entries", len(e.Entries))
}

// RetriesExhaustedError is returned when conflicts persist past the attempt limit.
type RetriesExhaustedError struct {
	Attempts int
	Last     *ConcurrencyConflictError
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("commit retries exhausted after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RetriesExhaustedError) Unwrap() error { return e.Last }
