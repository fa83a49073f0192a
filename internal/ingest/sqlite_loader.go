package ingest

import (
	"database/sql"
	"fmt"

	"github.com/ohler55/ojg/oj"
	_ "modernc.org/sqlite"
)

// IDField is the field that carries the results table's id column when the
// record itself has none.
const IDField = "id"

// StreamSQLite iterates over the results(id, record) table of a SQLite
// database, calling fn with each record flattened into a row. Only one
// parsed record is alive at a time.
func StreamSQLite(dbPath string, fn func(recordID string, row Row) error) error {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	defer func() { _ = db.Close() }() // safe to ignore

	rows, err := db.Query("SELECT id, record FROM results ORDER BY rowid")
	if err != nil {
		return fmt.Errorf("query results: %w", err)
	}
	defer func() { _ = rows.Close() }() // safe to ignore

	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return fmt.Errorf("scan row: %w", err)
		}
		parsed, err := oj.ParseString(raw)
		if err != nil {
			return fmt.Errorf("parse record %s: %w", id, err)
		}
		row := RecordRow(parsed)
		if _, ok := row[IDField]; !ok {
			row[IDField] = id
		}
		if err := fn(id, row); err != nil {
			return err
		}
	}
	return rows.Err()
}

// LoadSQLite reads the whole results table into a table. The id field comes
// first, the remaining fields in sorted order.
func LoadSQLite(dbPath string) (*Table, error) {
	t := NewTable(IDField)
	err := StreamSQLite(dbPath, func(_ string, row Row) error {
		t.Append(row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}
