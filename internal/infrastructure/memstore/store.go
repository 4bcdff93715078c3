// Package memstore is an in-process backend with versioned tables. Sessions
// opened on the same Store see each other's commits, so optimistic conflicts
// behave as they would against a database.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"trackstore/internal/application"
	"trackstore/internal/domain"
	"trackstore/internal/tracking"

	"go.uber.org/zap"
)

var (
	ErrUnsupportedStatement = errors.New("memstore: statement not registered")
	ErrSessionClosed        = errors.New("memstore: session closed")
)

// Tables is the raw row storage: table name -> key -> row.
type Tables map[string]map[any]tracking.Snapshot

func (t Tables) table(name string) map[any]tracking.Snapshot {
	rows, ok := t[name]
	if !ok {
		rows = map[any]tracking.Snapshot{}
		t[name] = rows
	}
	return rows
}

// StatementFunc executes a registered raw statement while the store is locked.
type StatementFunc func(tables Tables, args []any) (int64, error)

type Store struct {
	mu         sync.Mutex
	tables     Tables
	statements map[string]StatementFunc
	log        *zap.Logger
}

func New(log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{tables: Tables{}, statements: map[string]StatementFunc{}, log: log}
}

// HandleStatement registers fn as the implementation of statement for Exec.
func (s *Store) HandleStatement(statement string, fn StatementFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statements[statement] = fn
}

// Row returns a copy of the stored row, for inspection.
func (s *Store) Row(table string, key any) (tracking.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.tables.table(table)[key]
	if !ok {
		return nil, false
	}
	return clone(row), true
}

// Put writes e directly, bypassing any session, as another writer would.
func (s *Store) Put(m tracking.Mapping, e domain.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables.table(m.Table())[e.EntityKey()] = tracking.SnapshotOf(m, e)
}

func (s *Store) NewSession(context.Context) (application.Session, error) {
	return &Session{store: s, tracker: tracking.NewTracker()}, nil
}

type Session struct {
	store   *Store
	tracker *tracking.Tracker
	closed  bool
}

var _ application.Session = (*Session)(nil)

func (s *Session) Tracker() *tracking.Tracker { return s.tracker }

func (s *Session) Find(ctx context.Context, m tracking.Mapping, key any) (domain.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	row, ok := s.store.Row(m.Table(), key)
	if !ok {
		return nil, application.ErrNotFound
	}
	e := m.New()
	if err := load(m, e, row); err != nil {
		return nil, err
	}
	return e, nil
}

// Flush validates every pending entry before applying any of them.
func (s *Session) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed {
		return ErrSessionClosed
	}
	st := s.store
	st.mu.Lock()
	defer st.mu.Unlock()

	pending := s.tracker.Pending()
	var conflicts []*tracking.Entry
	for _, e := range pending {
		rows := st.tables.table(e.Mapping().Table())
		row, exists := rows[e.Key()]
		switch e.State() {
		case domain.StateAdded:
			if exists {
				return fmt.Errorf("%s: duplicate key %v", e.Mapping().Table(), e.Key())
			}
		case domain.StateModified, domain.StateDeleted:
			if !exists {
				conflicts = append(conflicts, e)
				continue
			}
			if e.Versioned() {
				stored, err := tracking.ToInt64(row[e.Mapping().VersionColumn()])
				if err != nil {
					return err
				}
				if stored != e.OriginalVersion() {
					conflicts = append(conflicts, e)
				}
			}
		}
	}
	if len(conflicts) > 0 {
		st.log.Debug("memstore.flush_conflict", zap.Int("conflicts", len(conflicts)))
		return &application.ConcurrencyConflictError{Entries: conflicts}
	}

	for _, e := range pending {
		rows := st.tables.table(e.Mapping().Table())
		switch e.State() {
		case domain.StateAdded:
			rows[e.Key()] = e.CurrentValues()
		case domain.StateModified:
			row := e.CurrentValues()
			if e.Versioned() {
				row[e.Mapping().VersionColumn()] = e.NextVersion()
			}
			rows[e.Key()] = row
		case domain.StateDeleted:
			delete(rows, e.Key())
		}
	}
	st.log.Debug("memstore.flush_success", zap.Int("entries", len(pending)))
	return nil
}

func (s *Session) DatabaseValues(ctx context.Context, e *tracking.Entry) (tracking.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	row, ok := s.store.Row(e.Mapping().Table(), e.Key())
	if !ok {
		return nil, application.ErrNotFound
	}
	return row, nil
}

func (s *Session) Exec(ctx context.Context, statement string, args ...any) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s.closed {
		return 0, ErrSessionClosed
	}
	st := s.store
	st.mu.Lock()
	defer st.mu.Unlock()
	fn, ok := st.statements[statement]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedStatement, statement)
	}
	return fn(st.tables, args)
}

func (s *Session) Close() error {
	s.closed = true
	return nil
}

func clone(row tracking.Snapshot) tracking.Snapshot {
	out := make(tracking.Snapshot, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

// load copies row values into the scan targets of e.
func load(m tracking.Mapping, e domain.Entity, row tracking.Snapshot) error {
	targets := m.ScanTargets(e)
	for i, col := range m.Columns() {
		v, ok := row[col]
		if !ok || v == nil {
			continue
		}
		dst := reflect.ValueOf(targets[i]).Elem()
		src := reflect.ValueOf(v)
		if !src.Type().AssignableTo(dst.Type()) {
			if !src.Type().ConvertibleTo(dst.Type()) {
				return fmt.Errorf("memstore: column %s: cannot load %T", col, v)
			}
			src = src.Convert(dst.Type())
		}
		dst.Set(src)
	}
	return nil
}
