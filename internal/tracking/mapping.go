package tracking

import (
	"fmt"
	"reflect"
	"strconv"

	"trackstore/internal/domain"
)

// Snapshot holds column values of one row, keyed by column name.
type Snapshot map[string]any

func (s Snapshot) clone() Snapshot {
	if s == nil {
		return nil
	}
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Mapping describes how an entity kind is laid out in the store.
//
// Columns must include the key column and, when set, the version column.
// Values and ScanTargets return slices aligned with Columns.
type Mapping interface {
	Table() string
	KeyColumn() string
	// VersionColumn is the optimistic concurrency token, or "" for none.
	VersionColumn() string
	Columns() []string
	Values(e domain.Entity) []any
	ScanTargets(e domain.Entity) []any
	New() domain.Entity
}

// SnapshotOf captures the current column values of e.
func SnapshotOf(m Mapping, e domain.Entity) Snapshot {
	cols := m.Columns()
	vals := m.Values(e)
	out := make(Snapshot, len(cols))
	for i, c := range cols {
		out[c] = vals[i]
	}
	return out
}

// Model is the registry of entity kinds known to a unit of work.
type Model struct {
	mappings map[reflect.Type]Mapping
}

func NewModel(mappings ...Mapping) *Model {
	m := &Model{mappings: make(map[reflect.Type]Mapping, len(mappings))}
	for _, mp := range mappings {
		m.Register(mp)
	}
	return m
}

func (m *Model) Register(mp Mapping) {
	m.mappings[reflect.TypeOf(mp.New())] = mp
}

func (m *Model) MappingFor(kind reflect.Type) (Mapping, bool) {
	mp, ok := m.mappings[kind]
	return mp, ok
}

func (m *Model) MappingOf(e domain.Entity) (Mapping, bool) {
	return m.MappingFor(reflect.TypeOf(e))
}

// KindOf returns the runtime descriptor of the entity kind T.
func KindOf[T domain.Entity]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// ToInt64 converts a version value as returned by a driver.
func ToInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case []byte:
		return strconv.ParseInt(string(n), 10, 64)
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("unsupported version value %T", v)
	}
}
