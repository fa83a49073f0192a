package ingest

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ReadXLSX reads one worksheet of a workbook; the first sheet when sheet is
// empty. The first row is the header. Cell values are read raw, without
// number formatting.
func ReadXLSX(r io.Reader, sheet string) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open excel: %w", err)
	}
	defer func() { _ = f.Close() }()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook has no sheets")
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, ErrNoHeader
	}

	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.TrimSpace(h)
	}
	t := NewTable()
	for _, h := range header {
		if h != "" {
			t.addField(h)
		}
	}
	for _, cells := range rows[1:] {
		if blank(cells) {
			continue
		}
		row := make(Row, len(header))
		for i, cell := range cells {
			if i >= len(header) {
				break
			}
			if header[i] == "" {
				continue
			}
			if _, dup := row[header[i]]; !dup {
				row[header[i]] = cell
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}
