// Package dataset loads the raw sales extract into an in-memory table.
package dataset

import (
	"strconv"
	"strings"
)

// nullSentinels are cell values treated as missing data, matching what the
// upstream extract emits for absent fields.
var nullSentinels = map[string]bool{
	"":    true,
	"NaN": true,
	"Nan": true,
	"nan": true,
	"NA":  true,
}

// Table is a row-major view of a delimited extract. Cells are kept as raw
// strings until normalization; missing cells are empty strings.
type Table struct {
	Header []string
	Rows   [][]string

	colIdx map[string]int
}

// NewTable builds a Table and indexes its header.
func NewTable(header []string, rows [][]string) *Table {
	t := &Table{Header: header, Rows: rows}
	t.reindex()
	return t
}

func (t *Table) reindex() {
	t.colIdx = make(map[string]int, len(t.Header))
	for i, name := range t.Header {
		t.colIdx[name] = i
	}
}

// NumRows returns the number of data rows.
func (t *Table) NumRows() int { return len(t.Rows) }

// NumCols returns the number of columns.
func (t *Table) NumCols() int { return len(t.Header) }

// ColumnIndex returns the index of a named column, or -1 if absent.
func (t *Table) ColumnIndex(name string) int {
	idx, ok := t.colIdx[name]
	if !ok {
		return -1
	}
	return idx
}

// Cell returns the raw value at (row, column name). Returns "" for unknown
// columns or short rows.
func (t *Table) Cell(row int, name string) string {
	idx, ok := t.colIdx[name]
	if !ok || idx >= len(t.Rows[row]) {
		return ""
	}
	return t.Rows[row][idx]
}

// Filter returns a new Table containing only the rows for which keep returns
// true. The header is shared; row slices are shared with the source table.
func (t *Table) Filter(keep func(row int) bool) *Table {
	kept := make([][]string, 0, len(t.Rows))
	for i := range t.Rows {
		if keep(i) {
			kept = append(kept, t.Rows[i])
		}
	}
	return NewTable(t.Header, kept)
}

// IsNull reports whether a cell holds a missing-data sentinel.
func (t *Table) IsNull(row int, name string) bool {
	return nullSentinels[strings.TrimSpace(t.Cell(row, name))]
}

// Float parses a cell as float64. The second return is false when the cell
// is null or unparsable.
func (t *Table) Float(row int, name string) (float64, bool) {
	raw := strings.TrimSpace(t.Cell(row, name))
	if nullSentinels[raw] {
		return 0, false
	}
	// The extract formats some amounts with thousands separators.
	raw = strings.ReplaceAll(raw, ",", "")
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Int parses a cell as int64, accepting float-formatted integers
// (pandas writes "2020.0" for nullable integer columns).
func (t *Table) Int(row int, name string) (int64, bool) {
	v, ok := t.Float(row, name)
	if !ok || v != float64(int64(v)) {
		return 0, false
	}
	return int64(v), true
}
