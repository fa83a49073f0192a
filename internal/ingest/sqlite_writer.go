package ingest

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/ohler55/ojg/oj"
	_ "modernc.org/sqlite"
)

// ErrWriterClosed is returned by writes after Close.
var ErrWriterClosed = errors.New("sqlite writer is closed")

const defaultBatchSize = 10000

// SQLiteWriter stores rows in the results(id, record) table read by
// StreamSQLite. Inserts are batched into transactions.
type SQLiteWriter struct {
	db        *sql.DB
	tx        *sql.Tx
	stmt      *sql.Stmt
	batchSize int
	count     int
	written   int
	mu        sync.Mutex
}

// NewSQLiteWriter opens or creates dbPath and ensures the results table.
func NewSQLiteWriter(dbPath string) (*SQLiteWriter, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}

	// Bulk insert tuning.
	if _, err := db.Exec("PRAGMA synchronous = OFF"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode = MEMORY"); err != nil {
		_ = db.Close()
		return nil, err
	}

	const schema = `CREATE TABLE IF NOT EXISTS results (
		id TEXT PRIMARY KEY,
		record JSON NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	w := &SQLiteWriter{db: db, batchSize: defaultBatchSize}
	if err := w.beginTx(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

func (w *SQLiteWriter) beginTx() error {
	var err error
	w.tx, err = w.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	// A replaced id keeps neither its old rowid nor its old position.
	w.stmt, err = w.tx.Prepare(`INSERT OR REPLACE INTO results (id, record) VALUES (?, ?)`)
	if err != nil {
		_ = w.tx.Rollback()
		w.tx = nil
		return fmt.Errorf("prepare insert: %w", err)
	}
	return nil
}

func (w *SQLiteWriter) commitTx() error {
	if w.stmt != nil {
		_ = w.stmt.Close()
		w.stmt = nil
	}
	tx := w.tx
	w.tx = nil
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Write stores row under id. The record is the row as a JSON object with
// sorted keys.
func (w *SQLiteWriter) Write(id string, row Row) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.tx == nil {
		return ErrWriterClosed
	}
	obj := make(map[string]any, len(row))
	for k, v := range row {
		obj[k] = v
	}
	if _, err := w.stmt.Exec(id, oj.JSON(obj, &oj.Options{Sort: true})); err != nil {
		return fmt.Errorf("insert %s: %w", id, err)
	}
	w.written++

	w.count++
	if w.count >= w.batchSize {
		if err := w.commitTx(); err != nil {
			return err
		}
		if err := w.beginTx(); err != nil {
			return err
		}
		w.count = 0
	}
	return nil
}

// Written returns the number of rows written so far.
func (w *SQLiteWriter) Written() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

// Close commits pending rows and closes the database.
func (w *SQLiteWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.tx == nil {
		return w.db.Close()
	}
	if err := w.commitTx(); err != nil {
		_ = w.db.Close()
		return err
	}
	return w.db.Close()
}

// WriteSQLite stores every row of t in the results table of dbPath. A row's
// id is its idField value; rows without one are numbered by position.
func WriteSQLite(dbPath string, t *Table, idField string) (err error) {
	if idField == "" {
		idField = IDField
	}
	w, err := NewSQLiteWriter(dbPath)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := w.Close(); err == nil {
			err = cerr
		}
	}()

	for i, row := range t.Rows {
		id := row.Get(idField)
		if id == "" {
			id = strconv.Itoa(i + 1)
		}
		if err := w.Write(id, row); err != nil {
			return err
		}
	}
	return nil
}
