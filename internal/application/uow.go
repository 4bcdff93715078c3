package application

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"trackstore/internal/domain"
	"trackstore/internal/tracking"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// UnitOfWork mediates all writes to one session within one business transaction.
type UnitOfWork interface {
	MarkModified(entity domain.Entity) error
	CommitOnce(ctx context.Context) error
	CommitWithConflictRetry(ctx context.Context) error
	RollbackPendingChanges() int
	ExecuteRaw(ctx context.Context, statement string, target domain.Target, args ...any) (int64, error)
	Dispose() error
}

var _ UnitOfWork = (*TransactionalUnitOfWork)(nil)

// sessionState is one of uninitialized, ready or disposed.
type sessionState interface{ isSessionState() }

type uninitialized struct{}
type ready struct{ session Session }
type disposed struct{}

func (uninitialized) isSessionState() {}
func (ready) isSessionState()         {}
func (disposed) isSessionState()      {}

// TransactionalUnitOfWork owns at most one Session, created lazily by the first
// Open against a recognized target and reused by later ones.
//
// Before a session exists, MarkModified, CommitOnce, CommitWithConflictRetry and
// RollbackPendingChanges are no-ops. A TransactionalUnitOfWork is driven by one
// caller at a time; it does no locking of its own.
type TransactionalUnitOfWork struct {
	sessions SessionFactory
	model    *tracking.Model
	state    sessionState

	log           *zap.Logger
	observer      CommitObserver
	maxAttempts   int
	retryInterval time.Duration
}

type Option func(*TransactionalUnitOfWork)

func WithLogger(l *zap.Logger) Option { return func(u *TransactionalUnitOfWork) { u.log = l } }

func WithObserver(o CommitObserver) Option {
	return func(u *TransactionalUnitOfWork) { u.observer = o }
}

// WithMaxCommitAttempts bounds CommitWithConflictRetry. Zero means no bound.
func WithMaxCommitAttempts(n int) Option {
	return func(u *TransactionalUnitOfWork) { u.maxAttempts = n }
}

// WithRetryInterval waits d between conflict retries. Zero retries immediately.
func WithRetryInterval(d time.Duration) Option {
	return func(u *TransactionalUnitOfWork) { u.retryInterval = d }
}

const DefaultMaxCommitAttempts = 10

func NewUnitOfWork(sessions SessionFactory, model *tracking.Model, opts ...Option) *TransactionalUnitOfWork {
	u := &TransactionalUnitOfWork{
		sessions:    sessions,
		model:       model,
		state:       uninitialized{},
		maxAttempts: DefaultMaxCommitAttempts,
	}
	for _, opt := range opts {
		opt(u)
	}
	if u.log == nil {
		u.log = zap.NewNop()
	}
	if u.observer == nil {
		u.observer = noopObserver{}
	}
	return u
}

// UnitOfWorkFactory creates one unit of work per business transaction.
type UnitOfWorkFactory func() *TransactionalUnitOfWork

func NewUnitOfWorkFactory(sessions SessionFactory, model *tracking.Model, opts ...Option) UnitOfWorkFactory {
	return func() *TransactionalUnitOfWork { return NewUnitOfWork(sessions, model, opts...) }
}

func supported(target domain.Target) bool {
	return target == domain.TargetDefault
}

// open ensures a session for target and resolves the mapping of kind.
func (u *TransactionalUnitOfWork) open(ctx context.Context, kind reflect.Type, target domain.Target) (Session, tracking.Mapping, error) {
	if !supported(target) {
		u.log.Warn("uow.unsupported_target", zap.String("target", string(target)), zap.Stringer("kind", kind))
		return nil, nil, fmt.Errorf("%w: %q", ErrUnsupportedTarget, target)
	}
	m, ok := u.model.MappingFor(kind)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownEntityKind, kind)
	}
	s, err := u.ensureSession(ctx, target)
	if err != nil {
		return nil, nil, err
	}
	return s, m, nil
}

// Connect creates the session for target without opening an entity set, for
// callers that only issue raw statements.
func (u *TransactionalUnitOfWork) Connect(ctx context.Context, target domain.Target) error {
	if !supported(target) {
		u.log.Warn("uow.unsupported_target", zap.String("target", string(target)))
		return fmt.Errorf("%w: %q", ErrUnsupportedTarget, target)
	}
	_, err := u.ensureSession(ctx, target)
	return err
}

func (u *TransactionalUnitOfWork) ensureSession(ctx context.Context, target domain.Target) (Session, error) {
	switch st := u.state.(type) {
	case ready:
		return st.session, nil
	case disposed:
		return nil, ErrDisposed
	}
	s, err := u.sessions.NewSession(ctx)
	if err != nil {
		u.log.Error("uow.session_open_failed", zap.Error(err))
		return nil, fmt.Errorf("open session: %w", err)
	}
	u.state = ready{session: s}
	u.log.Debug("uow.session_opened", zap.String("target", string(target)))
	return s, nil
}

// MarkModified moves entity to Modified, attaching it if it was not tracked.
// Entities still pending insertion stay Added.
func (u *TransactionalUnitOfWork) MarkModified(entity domain.Entity) error {
	st, ok := u.state.(ready)
	if !ok {
		return nil
	}
	m, ok := u.model.MappingOf(entity)
	if !ok {
		return fmt.Errorf("%w: %T", ErrUnknownEntityKind, entity)
	}
	tr := st.session.Tracker()
	if e, ok := tr.Entry(entity); ok && e.State() == domain.StateAdded {
		return nil
	}
	_, err := tr.Track(entity, m, domain.StateModified)
	return err
}

// CommitOnce flushes pending changes in a single attempt. Concurrency conflicts
// are returned as *ConcurrencyConflictError, other store failures as *PersistenceError.
func (u *TransactionalUnitOfWork) CommitOnce(ctx context.Context) error {
	switch st := u.state.(type) {
	case ready:
		return u.flush(ctx, st.session)
	case disposed:
		return ErrDisposed
	default:
		return nil
	}
}

// CommitWithConflictRetry flushes until success. On each conflict the baseline
// of every conflicting entry is replaced with the values currently persisted and
// the flush is repeated, so this session's changes win over the intervening write.
func (u *TransactionalUnitOfWork) CommitWithConflictRetry(ctx context.Context) error {
	var s Session
	switch st := u.state.(type) {
	case ready:
		s = st.session
	case disposed:
		return ErrDisposed
	default:
		return nil
	}

	attempts := 0
	op := func() error {
		attempts++
		err := u.flush(ctx, s)
		if err == nil {
			return nil
		}
		var conflict *ConcurrencyConflictError
		if !errors.As(err, &conflict) {
			return backoff.Permanent(err)
		}
		if rerr := u.refreshOriginalValues(ctx, s, conflict); rerr != nil {
			return backoff.Permanent(rerr)
		}
		return err
	}

	err := backoff.Retry(op, backoff.WithContext(u.retryBackOff(), ctx))
	if err == nil {
		return nil
	}
	var conflict *ConcurrencyConflictError
	if errors.As(err, &conflict) {
		u.observer.ObserveCommit(CommitExhausted)
		u.log.Warn("uow.commit_retries_exhausted", zap.Int("attempts", attempts))
		return &RetriesExhaustedError{Attempts: attempts, Last: conflict}
	}
	return err
}

func (u *TransactionalUnitOfWork) retryBackOff() backoff.BackOff {
	var b backoff.BackOff = &backoff.ZeroBackOff{}
	if u.retryInterval > 0 {
		b = backoff.NewConstantBackOff(u.retryInterval)
	}
	if u.maxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(u.maxAttempts-1))
	}
	return b
}

func (u *TransactionalUnitOfWork) flush(ctx context.Context, s Session) error {
	tr := s.Tracker()
	pending := len(tr.Pending())
	if pending == 0 {
		return nil
	}
	err := s.Flush(ctx)
	if err == nil {
		tr.AcceptChanges()
		u.observer.ObserveCommit(CommitSucceeded)
		u.log.Debug("uow.commit_success", zap.Int("entries", pending))
		return nil
	}
	var conflict *ConcurrencyConflictError
	if errors.As(err, &conflict) {
		u.observer.ObserveCommit(CommitConflict)
		u.log.Info("uow.commit_conflict", zap.Int("entries", len(conflict.Entries)))
		return conflict
	}
	u.observer.ObserveCommit(CommitFailed)
	u.log.Debug("uow.commit_failed", zap.Error(err))
	return &PersistenceError{Message: err.Error(), Err: err}
}

func (u *TransactionalUnitOfWork) refreshOriginalValues(ctx context.Context, s Session, conflict *ConcurrencyConflictError) error {
	for _, e := range conflict.Entries {
		values, err := s.DatabaseValues(ctx, e)
		switch {
		case errors.Is(err, ErrNotFound) && e.State() == domain.StateDeleted:
			// already gone; nothing left to delete
			s.Tracker().Detach(e.Entity())
		case errors.Is(err, ErrNotFound):
			return &PersistenceError{Message: fmt.Sprintf("%s %v no longer exists", e.Mapping().Table(), e.Key()), Err: err}
		case err != nil:
			return &PersistenceError{Message: err.Error(), Err: err}
		default:
			e.SetOriginalValues(values)
		}
	}
	return nil
}

// RollbackPendingChanges detaches every entry that is not Unchanged and
// returns how many were detached. Field values are not reverted.
func (u *TransactionalUnitOfWork) RollbackPendingChanges() int {
	st, ok := u.state.(ready)
	if !ok {
		return 0
	}
	n := len(st.session.Tracker().DetachPending())
	u.log.Debug("uow.rollback", zap.Int("detached", n))
	return n
}

// ExecuteRaw runs statement directly against the store, bypassing the tracker,
// and returns the affected row count.
func (u *TransactionalUnitOfWork) ExecuteRaw(ctx context.Context, statement string, target domain.Target, args ...any) (int64, error) {
	if !supported(target) {
		u.log.Warn("uow.unsupported_target", zap.String("target", string(target)))
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedTarget, target)
	}
	var s Session
	switch st := u.state.(type) {
	case ready:
		s = st.session
	case disposed:
		return 0, ErrDisposed
	default:
		u.log.Warn("uow.session_not_ready", zap.String("statement", statement))
		return 0, ErrSessionNotReady
	}
	n, err := s.Exec(ctx, statement, args...)
	if err != nil {
		u.log.Debug("uow.exec_failed", zap.String("statement", statement), zap.Error(err))
		return 0, &PersistenceError{Message: err.Error(), Err: err}
	}
	return n, nil
}

// Dispose releases the session, if any. Later calls are no-ops.
func (u *TransactionalUnitOfWork) Dispose() error {
	st, ok := u.state.(ready)
	u.state = disposed{}
	if !ok {
		return nil
	}
	if err := st.session.Close(); err != nil {
		u.log.Warn("uow.session_close_failed", zap.Error(err))
		return fmt.Errorf("close session: %w", err)
	}
	return nil
}
