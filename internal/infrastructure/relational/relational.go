// Package relational turns tracked entries into SQL statements. Backends adapt
// their transaction handle to DB and call Apply inside one transaction.
package relational

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"trackstore/internal/domain"
	"trackstore/internal/tracking"
)

var ErrNoRows = errors.New("no rows")

type Dialect int

const (
	Postgres Dialect = iota
	MySQL
)

func (d Dialect) String() string {
	if d == MySQL {
		return "mysql"
	}
	return "postgres"
}

// Placeholder returns the bind marker for the n-th argument (1-based).
func (d Dialect) Placeholder(n int) string {
	if d == MySQL {
		return "?"
	}
	return "$" + strconv.Itoa(n)
}

type Row interface {
	Scan(dest ...any) error
}

// DB is the subset of a connection or transaction the flush needs. QueryRow
// must report a missing row as ErrNoRows.
type DB interface {
	Exec(ctx context.Context, query string, args ...any) (int64, error)
	QueryRow(ctx context.Context, query string, args ...any) Row
}

func InsertSQL(d Dialect, m tracking.Mapping) string {
	cols := m.Columns()
	ph := make([]string, len(cols))
	for i := range cols {
		ph[i] = d.Placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", m.Table(), strings.Join(cols, ", "), strings.Join(ph, ", "))
}

// UpdateSQL sets every non-key column. Versioned updates add a guard on the
// original version as the last argument.
func UpdateSQL(d Dialect, m tracking.Mapping, versioned bool) string {
	var sets []string
	n := 1
	for _, c := range m.Columns() {
		if c == m.KeyColumn() {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = %s", c, d.Placeholder(n)))
		n++
	}
	q := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s", m.Table(), strings.Join(sets, ", "), m.KeyColumn(), d.Placeholder(n))
	if versioned {
		q += fmt.Sprintf(" AND %s = %s", m.VersionColumn(), d.Placeholder(n+1))
	}
	return q
}

func DeleteSQL(d Dialect, m tracking.Mapping, versioned bool) string {
	q := fmt.Sprintf("DELETE FROM %s WHERE %s = %s", m.Table(), m.KeyColumn(), d.Placeholder(1))
	if versioned {
		q += fmt.Sprintf(" AND %s = %s", m.VersionColumn(), d.Placeholder(2))
	}
	return q
}

func SelectByKeySQL(d Dialect, m tracking.Mapping) string {
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s", strings.Join(m.Columns(), ", "), m.Table(), m.KeyColumn(), d.Placeholder(1))
}

// Apply writes entries in order and returns the ones whose guarded UPDATE or
// DELETE matched no row. The caller rolls back when conflicts are returned.
func Apply(ctx context.Context, db DB, d Dialect, entries []*tracking.Entry) ([]*tracking.Entry, error) {
	var conflicts []*tracking.Entry
	for _, e := range entries {
		m := e.Mapping()
		switch e.State() {
		case domain.StateAdded:
			if _, err := db.Exec(ctx, InsertSQL(d, m), m.Values(e.Entity())...); err != nil {
				return nil, fmt.Errorf("insert %s %v: %w", m.Table(), e.Key(), err)
			}
		case domain.StateModified:
			n, err := db.Exec(ctx, UpdateSQL(d, m, e.Versioned()), updateArgs(e)...)
			if err != nil {
				return nil, fmt.Errorf("update %s %v: %w", m.Table(), e.Key(), err)
			}
			if n == 0 {
				conflicts = append(conflicts, e)
			}
		case domain.StateDeleted:
			args := []any{e.Key()}
			if e.Versioned() {
				args = append(args, e.OriginalVersion())
			}
			n, err := db.Exec(ctx, DeleteSQL(d, m, e.Versioned()), args...)
			if err != nil {
				return nil, fmt.Errorf("delete %s %v: %w", m.Table(), e.Key(), err)
			}
			if n == 0 {
				conflicts = append(conflicts, e)
			}
		}
	}
	return conflicts, nil
}

func updateArgs(e *tracking.Entry) []any {
	m := e.Mapping()
	vals := m.Values(e.Entity())
	args := make([]any, 0, len(vals)+1)
	for i, c := range m.Columns() {
		switch {
		case c == m.KeyColumn():
			continue
		case e.Versioned() && c == m.VersionColumn():
			args = append(args, e.NextVersion())
		default:
			args = append(args, vals[i])
		}
	}
	args = append(args, e.Key())
	if e.Versioned() {
		args = append(args, e.OriginalVersion())
	}
	return args
}

// Find loads the row with key into a new entity of m.
func Find(ctx context.Context, db DB, d Dialect, m tracking.Mapping, key any) (domain.Entity, error) {
	e := m.New()
	if err := db.QueryRow(ctx, SelectByKeySQL(d, m), key).Scan(m.ScanTargets(e)...); err != nil {
		return nil, err
	}
	return e, nil
}

// DatabaseValues reads the row currently stored for entry.
func DatabaseValues(ctx context.Context, db DB, d Dialect, entry *tracking.Entry) (tracking.Snapshot, error) {
	e, err := Find(ctx, db, d, entry.Mapping(), entry.Key())
	if err != nil {
		return nil, err
	}
	return tracking.SnapshotOf(entry.Mapping(), e), nil
}
