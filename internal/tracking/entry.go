package tracking

import (
	"reflect"

	"trackstore/internal/domain"
)

// Entry is the tracker's record of one entity.
type Entry struct {
	entity   domain.Entity
	mapping  Mapping
	state    domain.EntityState
	original Snapshot
}

func (e *Entry) Entity() domain.Entity     { return e.entity }
func (e *Entry) Mapping() Mapping          { return e.mapping }
func (e *Entry) State() domain.EntityState { return e.state }
func (e *Entry) Key() any                  { return e.entity.EntityKey() }
func (e *Entry) Kind() reflect.Type        { return reflect.TypeOf(e.entity) }

// Original returns the baseline values last read from (or written to) the store.
// It is nil for entries that were never persisted.
func (e *Entry) Original() Snapshot { return e.original.clone() }

func (e *Entry) CurrentValues() Snapshot { return SnapshotOf(e.mapping, e.entity) }

// SetOriginalValues replaces the baseline, typically with the values currently
// persisted after a concurrency conflict. The entity's own fields are untouched.
func (e *Entry) SetOriginalValues(values Snapshot) {
	e.original = values.clone()
}

// Versioned reports whether updates of this entry are guarded by a version column.
func (e *Entry) Versioned() bool {
	if e.mapping.VersionColumn() == "" {
		return false
	}
	_, ok := e.entity.(domain.Versioned)
	return ok
}

// OriginalVersion is the concurrency token the store is expected to hold.
func (e *Entry) OriginalVersion() int64 {
	if v, ok := e.original[e.mapping.VersionColumn()]; ok && v != nil {
		if n, err := ToInt64(v); err == nil {
			return n
		}
	}
	if ver, ok := e.entity.(domain.Versioned); ok {
		return ver.GetVersion()
	}
	return 0
}

// NextVersion is the token written by an update of this entry.
func (e *Entry) NextVersion() int64 { return e.OriginalVersion() + 1 }
