package application

import (
	"context"
	"errors"

	"trackstore/internal/domain"
	"trackstore/internal/tracking"
)

var ErrRepo = errors.New("repo error")

type execCall struct {
	statement string
	args      []any
}

type fakeSession struct {
	tracker *tracking.Tracker
	rows    map[any]domain.Entity

	flushCalls int
	flushFn    func(call int, pending []*tracking.Entry) error

	dbValues map[any]tracking.Snapshot
	dbErr    error

	execRows  int64
	execErr   error
	execCalls []execCall

	closed int
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		tracker:  tracking.NewTracker(),
		rows:     map[any]domain.Entity{},
		dbValues: map[any]tracking.Snapshot{},
	}
}

func (f *fakeSession) Tracker() *tracking.Tracker { return f.tracker }

func (f *fakeSession) Find(_ context.Context, _ tracking.Mapping, key any) (domain.Entity, error) {
	e, ok := f.rows[key]
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

func (f *fakeSession) Flush(_ context.Context) error {
	f.flushCalls++
	if f.flushFn == nil {
		return nil
	}
	return f.flushFn(f.flushCalls, f.tracker.Pending())
}

func (f *fakeSession) DatabaseValues(_ context.Context, e *tracking.Entry) (tracking.Snapshot, error) {
	if f.dbErr != nil {
		return nil, f.dbErr
	}
	v, ok := f.dbValues[e.Key()]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func (f *fakeSession) Exec(_ context.Context, statement string, args ...any) (int64, error) {
	f.execCalls = append(f.execCalls, execCall{statement: statement, args: args})
	return f.execRows, f.execErr
}

func (f *fakeSession) Close() error {
	f.closed++
	return nil
}

type countingFactory struct {
	session *fakeSession
	calls   int
	err     error
}

func (c *countingFactory) NewSession(context.Context) (Session, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.session, nil
}

type recordingObserver struct{ outcomes []CommitOutcome }

func (r *recordingObserver) ObserveCommit(o CommitOutcome) { r.outcomes = append(r.outcomes, o) }

type fakeIdem struct{ seen map[string]bool }

func (f *fakeIdem) TryReserve(_ context.Context, k string) (bool, error) {
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	if f.seen[k] {
		return false, nil
	}
	f.seen[k] = true
	return true, nil
}

func conflictOn(pending []*tracking.Entry) error {
	return &ConcurrencyConflictError{Entries: pending}
}
