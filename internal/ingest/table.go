// Package ingest reads tabular data rows from CSV, Google Sheets, JSON,
// SQLite and XLSX sources.
package ingest

import (
	"strings"

	"github.com/rafaguilar/DynBanner-RenderGrid/api"
)

// Row is one data record. An absent key means the value is null.
type Row map[string]string

// Get returns the value of field, trimmed of surrounding whitespace.
func (r Row) Get(field string) string {
	return strings.TrimSpace(r[field])
}

// Table is an ordered set of rows with the distinct field names seen, in
// first-seen order.
type Table struct {
	Fields []string
	Rows   []Row
}

// NewTable returns an empty table with the given fields, de-duplicated.
func NewTable(fields ...string) *Table {
	t := &Table{}
	for _, f := range fields {
		t.addField(f)
	}
	return t
}

func (t *Table) addField(f string) {
	for _, have := range t.Fields {
		if have == f {
			return
		}
	}
	t.Fields = append(t.Fields, f)
}

// Append adds row, registering any field not seen before. Fields of a single
// row are registered in sorted order since maps carry none.
func (t *Table) Append(row Row, order ...string) {
	for _, f := range order {
		if _, ok := row[f]; ok {
			t.addField(f)
		}
	}
	for _, f := range sortedKeys(row) {
		t.addField(f)
	}
	t.Rows = append(t.Rows, row)
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

// HasField reports whether field is one of the table's columns.
func (t *Table) HasField(field string) bool {
	for _, f := range t.Fields {
		if f == field {
			return true
		}
	}
	return false
}

// InTier reports whether the row belongs to tier: its tier column
// (custom_offer for T1, offerType for T2) is non-empty after trimming. An
// unset tier admits every row.
func (r Row) InTier(tier api.Tier) bool {
	return !tier.Valid() || r.Get(tier.Column()) != ""
}
