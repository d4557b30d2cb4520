package schema

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrCompositeKey is returned when a row identity or a primary key does not
// consist of exactly one column.
var ErrCompositeKey = errors.New("composite primary keys are not supported")

// ForeignKey represents a foreign key relation between two tables
type ForeignKey struct {
	Name             string `json:"name"`
	Table            string `json:"table"`
	Column           string `json:"column"`
	ReferencedTable  string `json:"referenced_table"`
	ReferencedColumn string `json:"referenced_column"`
}

func (fk ForeignKey) String() string {
	return fmt.Sprintf("%s (%s.%s -> %s.%s)", fk.Name, fk.Table, fk.Column, fk.ReferencedTable, fk.ReferencedColumn)
}

// PrimaryKeyRow is one row of the primary key introspection feed.
// Column is nil when the feed could not resolve the key column.
type PrimaryKeyRow struct {
	Table      string
	Constraint string
	Column     *string
	Position   int
}

// ForeignKeyRow is one row of the foreign key introspection feed
type ForeignKeyRow struct {
	Name             string
	Table            string
	Column           string
	ReferencedTable  string
	ReferencedColumn string
}

// PrimaryKeyIndex maps table names to their ordered primary key columns
type PrimaryKeyIndex map[string][]string

// Columns returns the known primary key columns of a table. A table with no
// known primary key yields an empty slice.
func (idx PrimaryKeyIndex) Columns(table string) []string {
	return idx[table]
}

// Known reports whether at least one primary key column is known for table
func (idx PrimaryKeyIndex) Known(table string) bool {
	return len(idx[table]) > 0
}

// SingleColumn returns the primary key column of a table whose key has
// exactly one column.
func (idx PrimaryKeyIndex) SingleColumn(table string) (string, error) {
	cols := idx[table]
	if len(cols) != 1 {
		return "", fmt.Errorf("table %s has %d known primary key columns: %w", table, len(cols), ErrCompositeKey)
	}
	return cols[0], nil
}

// LoadPrimaryKeys builds the primary key index from the introspection feed.
// Rows without a column are skipped, so such tables end up with no known key.
// The result does not depend on the order of rows.
func LoadPrimaryKeys(rows []PrimaryKeyRow) PrimaryKeyIndex {
	sorted := make([]PrimaryKeyRow, 0, len(rows))
	for _, r := range rows {
		if r.Column == nil || *r.Column == "" {
			continue
		}
		sorted = append(sorted, r)
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Table != b.Table {
			return a.Table < b.Table
		}
		if a.Constraint != b.Constraint {
			return a.Constraint < b.Constraint
		}
		if a.Position != b.Position {
			return a.Position < b.Position
		}
		return *a.Column < *b.Column
	})

	idx := make(PrimaryKeyIndex)
	seen := make(map[string]bool)
	for _, r := range sorted {
		key := r.Table + "\x00" + *r.Column
		if seen[key] {
			continue
		}
		seen[key] = true
		idx[r.Table] = append(idx[r.Table], *r.Column)
	}

	return idx
}

// LoadForeignKeys converts the foreign key feed into relations, keeping the
// feed order.
func LoadForeignKeys(rows []ForeignKeyRow) ([]ForeignKey, error) {
	relations := make([]ForeignKey, 0, len(rows))
	for i, r := range rows {
		if r.Name == "" || r.Table == "" || r.Column == "" || r.ReferencedTable == "" {
			return nil, fmt.Errorf("malformed foreign key row %d: %+v", i, r)
		}
		relations = append(relations, ForeignKey(r))
	}
	return relations, nil
}

// RowIdentity identifies one row of one table by its primary key value.
// Only single column keys are supported.
type RowIdentity struct {
	column string
	value  interface{}
}

// NewRowIdentity builds an identity from parallel column/value slices
func NewRowIdentity(columns []string, values []interface{}) (RowIdentity, error) {
	if len(columns) != len(values) {
		return RowIdentity{}, fmt.Errorf("row identity has %d columns but %d values", len(columns), len(values))
	}
	if len(columns) != 1 {
		return RowIdentity{}, fmt.Errorf("row identity over (%s): %w", strings.Join(columns, ", "), ErrCompositeKey)
	}
	return RowIdentity{column: columns[0], value: values[0]}, nil
}

// Column returns the primary key column
func (r RowIdentity) Column() string {
	return r.column
}

// Value returns the primary key value
func (r RowIdentity) Value() interface{} {
	return r.value
}

func (r RowIdentity) String() string {
	return fmt.Sprintf("%s=%v", r.column, r.value)
}
