package tracking

import (
	"errors"
	"reflect"

	"trackstore/internal/domain"
)

var (
	ErrNilEntity        = errors.New("nil entity")
	ErrIdentityConflict = errors.New("another instance with the same key is already tracked")
)

type identity struct {
	kind reflect.Type
	key  any
}

// Tracker records entity states for one session. Entity keys must be comparable.
// A Tracker is not safe for concurrent use.
type Tracker struct {
	entries  []*Entry
	byEntity map[domain.Entity]*Entry
	byKey    map[identity]*Entry
}

func NewTracker() *Tracker {
	return &Tracker{
		byEntity: map[domain.Entity]*Entry{},
		byKey:    map[identity]*Entry{},
	}
}

// Track starts tracking e in the given state, or moves an already tracked entity
// to that state. Tracking as StateDetached stops tracking and returns nil.
func (t *Tracker) Track(e domain.Entity, m Mapping, state domain.EntityState) (*Entry, error) {
	if isNil(e) {
		return nil, ErrNilEntity
	}
	if state == domain.StateDetached {
		t.Detach(e)
		return nil, nil
	}
	if entry, ok := t.byEntity[e]; ok {
		entry.state = state
		return entry, nil
	}
	id := identity{kind: reflect.TypeOf(e), key: e.EntityKey()}
	if _, ok := t.byKey[id]; ok {
		return nil, ErrIdentityConflict
	}
	entry := &Entry{entity: e, mapping: m, state: state}
	if state != domain.StateAdded {
		entry.original = SnapshotOf(m, e)
	}
	t.entries = append(t.entries, entry)
	t.byEntity[e] = entry
	t.byKey[id] = entry
	return entry, nil
}

func (t *Tracker) Entry(e domain.Entity) (*Entry, bool) {
	entry, ok := t.byEntity[e]
	return entry, ok
}

// Lookup finds the tracked instance of kind with the given key.
func (t *Tracker) Lookup(kind reflect.Type, key any) (*Entry, bool) {
	entry, ok := t.byKey[identity{kind: kind, key: key}]
	return entry, ok
}

// Entries returns all tracked entries in the order they were first tracked.
func (t *Tracker) Entries() []*Entry {
	out := make([]*Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Pending returns the entries that have changes to flush.
func (t *Tracker) Pending() []*Entry {
	var out []*Entry
	for _, e := range t.entries {
		if e.state.Pending() {
			out = append(out, e)
		}
	}
	return out
}

func (t *Tracker) Len() int { return len(t.entries) }

// Detach stops tracking e. In-memory field values are not reverted.
func (t *Tracker) Detach(e domain.Entity) {
	entry, ok := t.byEntity[e]
	if !ok {
		return
	}
	entry.state = domain.StateDetached
	delete(t.byEntity, e)
	delete(t.byKey, identity{kind: reflect.TypeOf(e), key: e.EntityKey()})
	for i, x := range t.entries {
		if x == entry {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			break
		}
	}
}

// DetachPending detaches every entry whose state is not Unchanged and returns them.
func (t *Tracker) DetachPending() []*Entry {
	var detached []*Entry
	for _, e := range t.Entries() {
		if e.state != domain.StateUnchanged {
			t.Detach(e.entity)
			detached = append(detached, e)
		}
	}
	return detached
}

// AcceptChanges records a successful flush: added and modified entries become
// Unchanged with a fresh baseline, deleted entries are detached.
func (t *Tracker) AcceptChanges() {
	for _, e := range t.Entries() {
		switch e.state {
		case domain.StateDeleted:
			t.Detach(e.entity)
		case domain.StateModified:
			if e.Versioned() {
				e.entity.(domain.Versioned).SetVersion(e.NextVersion())
			}
			e.state = domain.StateUnchanged
			e.original = e.CurrentValues()
		case domain.StateAdded:
			e.state = domain.StateUnchanged
			e.original = e.CurrentValues()
		}
	}
}

func isNil(e domain.Entity) bool {
	if e == nil {
		return true
	}
	v := reflect.ValueOf(e)
	return v.Kind() == reflect.Pointer && v.IsNil()
}
