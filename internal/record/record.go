// Package record implements the ordered-column row that underlies a
// vault entry: a fixed set of canonical columns plus tolerated,
// order-preserved extra columns.
package record

import (
	"fmt"
	"strings"
)

// CanonicalColumns are the columns every new record starts with, in
// display order.
var CanonicalColumns = []string{"site", "user", "url", "tags", "mtime", "note", "password"}

// Record is an ordered mapping of column name to value. Every canonical
// column is always present (defaulting to the empty string); unknown
// columns may be appended and are preserved verbatim on round-trip.
type Record struct {
	columns []string
	values  map[string]string
}

// New builds a record with the given column order (CanonicalColumns if
// nil) and initial field values. Any field not already in columns is
// appended to the column list.
func New(columns []string, fields map[string]string) (*Record, error) {
	if columns == nil {
		columns = append([]string(nil), CanonicalColumns...)
	} else {
		columns = append([]string(nil), columns...)
	}
	r := &Record{columns: columns, values: make(map[string]string, len(columns))}
	for _, c := range r.columns {
		r.values[c] = ""
	}
	for c, v := range fields {
		if err := r.Set(c, v); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Get returns the value of column, or "" if it does not exist.
func (r *Record) Get(column string) string {
	return r.values[column]
}

// Has reports whether column is present (even if its value is empty).
func (r *Record) Has(column string) bool {
	_, ok := r.values[column]
	return ok
}

// Set stores value under column, appending column to the ordered list if
// it is new. A nil/empty value is stored as "". Literal tab or newline in
// value is rejected: the persisted plain-text layer trusts that field
// values never contain the record/column delimiters.
func (r *Record) Set(column, value string) error {
	if strings.ContainsAny(value, "\t\n") {
		return fmt.Errorf("record: value for column %q contains a literal tab or newline", column)
	}
	if r.values == nil {
		r.values = make(map[string]string)
	}
	if _, ok := r.values[column]; !ok {
		r.columns = append(r.columns, column)
	}
	r.values[column] = value
	return nil
}

// Columns returns the column names in display order.
func (r *Record) Columns() []string {
	return append([]string(nil), r.columns...)
}

// Equal compares two records' column values elementwise, ignoring column
// order.
func Equal(a, b *Record) bool {
	if len(a.values) != len(b.values) {
		return false
	}
	for c, v := range a.values {
		if bv, ok := b.values[c]; !ok || bv != v {
			return false
		}
	}
	return true
}

// Clone returns an independent copy of r.
func (r *Record) Clone() *Record {
	values := make(map[string]string, len(r.values))
	for c, v := range r.values {
		values[c] = v
	}
	return &Record{columns: append([]string(nil), r.columns...), values: values}
}
