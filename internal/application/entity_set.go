package application

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"trackstore/internal/domain"
	"trackstore/internal/tracking"
)

// EntitySet issues inserts, deletes and lookups for one entity kind within a
// unit of work's session.
type EntitySet[T domain.Entity] struct {
	session Session
	mapping tracking.Mapping
	kind    reflect.Type
}

// Open returns the entity set of kind T on target, creating the unit of work's
// session on first use.
func Open[T domain.Entity](ctx context.Context, u *TransactionalUnitOfWork, target domain.Target) (*EntitySet[T], error) {
	kind := tracking.KindOf[T]()
	s, m, err := u.open(ctx, kind, target)
	if err != nil {
		return nil, err
	}
	return &EntitySet[T]{session: s, mapping: m, kind: kind}, nil
}

func (s *EntitySet[T]) Kind() reflect.Type { return s.kind }

// Add tracks e for insertion on the next commit.
func (s *EntitySet[T]) Add(e T) error {
	_, err := s.session.Tracker().Track(e, s.mapping, domain.StateAdded)
	return err
}

// Attach tracks e as Unchanged, as if it had just been read.
func (s *EntitySet[T]) Attach(e T) error {
	_, err := s.session.Tracker().Track(e, s.mapping, domain.StateUnchanged)
	return err
}

// Remove marks e for deletion. An entity that was only added is simply detached.
func (s *EntitySet[T]) Remove(e T) error {
	tr := s.session.Tracker()
	if entry, ok := tr.Entry(e); ok && entry.State() == domain.StateAdded {
		tr.Detach(e)
		return nil
	}
	_, err := tr.Track(e, s.mapping, domain.StateDeleted)
	return err
}

// Find returns the tracked instance with key, loading and attaching it as
// Unchanged when it is not tracked yet.
func (s *EntitySet[T]) Find(ctx context.Context, key any) (T, error) {
	var zero T
	tr := s.session.Tracker()
	if entry, ok := tr.Lookup(s.kind, key); ok {
		return entry.Entity().(T), nil
	}
	loaded, err := s.session.Find(ctx, s.mapping, key)
	if errors.Is(err, ErrNotFound) {
		return zero, err
	}
	if err != nil {
		return zero, &PersistenceError{Message: err.Error(), Err: err}
	}
	e, ok := loaded.(T)
	if !ok {
		return zero, fmt.Errorf("%s: loaded %T", s.kind, loaded)
	}
	if _, err := tr.Track(e, s.mapping, domain.StateUnchanged); err != nil {
		return zero, err
	}
	return e, nil
}

// Local returns the tracked instances of this kind.
func (s *EntitySet[T]) Local() []T {
	var out []T
	for _, entry := range s.session.Tracker().Entries() {
		if e, ok := entry.Entity().(T); ok {
			out = append(out, e)
		}
	}
	return out
}
