package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNoHeader is returned for input without a header row.
var ErrNoHeader = errors.New("csv has no header row")

// ReadCSV parses CSV with a header row. Blank lines are skipped, rows may be
// shorter or longer than the header (missing cells are absent, extra cells
// are dropped) and a UTF-8 byte order mark is ignored.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	for i, h := range header {
		header[i] = strings.TrimSpace(h)
	}

	t := NewTable()
	for _, h := range header {
		if h != "" {
			t.addField(h)
		}
	}

	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}
		if blank(record) {
			continue
		}
		row := make(Row, len(header))
		for i, cell := range record {
			if i >= len(header) {
				break
			}
			if header[i] == "" {
				continue
			}
			if _, dup := row[header[i]]; dup {
				continue // first column wins for repeated headers
			}
			row[header[i]] = cell
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func blank(record []string) bool {
	for _, c := range record {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// WriteCSV writes the table with a header row. Absent values are written
// as empty cells.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Fields); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	record := make([]string, len(t.Fields))
	for _, r := range t.Rows {
		for i, f := range t.Fields {
			record[i] = r[f]
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
