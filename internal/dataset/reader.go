package dataset

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/urbanytics/urbanytics/internal/model"
)

// Options configures the extract reader.
type Options struct {
	// Encoding is the IANA charset name of the source file.
	// Empty or "utf-8" reads the file as-is.
	Encoding string
	// Delimiter for CSV input; 0 means ','.
	Delimiter rune
	// SheetIndex selects the worksheet for XLSX input.
	SheetIndex int
}

// ReadFile loads a raw sales extract into a Table, dispatching on the file
// extension (.csv or .xlsx). The header row is required and must contain
// every raw column of the extract schema.
func ReadFile(path string, opts Options) (*Table, error) {
	var (
		t   *Table
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		t, err = readXLSX(path, opts)
	default:
		t, err = readCSV(path, opts)
	}
	if err != nil {
		return nil, err
	}

	if err := validateHeader(t); err != nil {
		return nil, err
	}

	zap.L().Info("extract loaded",
		zap.String("path", path),
		zap.Int("rows", t.NumRows()),
		zap.Int("columns", t.NumCols()),
	)
	return t, nil
}

func readCSV(path string, opts Options) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: open %s", path)
	}
	defer f.Close()

	r, err := decodeReader(f, opts.Encoding)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(r)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1 // allow ragged rows; short rows read as nulls

	header, err := reader.Read()
	if err == io.EOF {
		return nil, eris.Errorf("dataset: %s is empty", path)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: read header of %s", path)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "dataset: read row %d of %s", len(rows)+2, path)
		}
		rows = append(rows, record)
	}

	return NewTable(header, rows), nil
}

func readXLSX(path string, opts Options) (*Table, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: open %s", path)
	}

	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("dataset: %s has no sheet %d", path, opts.SheetIndex)
	}
	sheet := f.Sheets[opts.SheetIndex]
	if len(sheet.Rows) == 0 {
		return nil, eris.Errorf("dataset: %s is empty", path)
	}

	toStrings := func(row *xlsx.Row) []string {
		cells := make([]string, len(row.Cells))
		for i, c := range row.Cells {
			cells[i] = strings.TrimSpace(c.String())
		}
		return cells
	}

	header := toStrings(sheet.Rows[0])
	rows := make([][]string, 0, len(sheet.Rows)-1)
	for _, row := range sheet.Rows[1:] {
		rows = append(rows, toStrings(row))
	}

	return NewTable(header, rows), nil
}

// decodeReader wraps r with a charset decoder when the extract is not UTF-8.
func decodeReader(r io.Reader, encoding string) (io.Reader, error) {
	name := strings.ToLower(strings.TrimSpace(encoding))
	if name == "" || name == "utf-8" || name == "utf8" {
		return r, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: unknown encoding %q", encoding)
	}
	return enc.NewDecoder().Reader(r), nil
}

// validateHeader confirms every raw extract column is present.
func validateHeader(t *Table) error {
	var missing []string
	for _, col := range model.RawColumns {
		if t.ColumnIndex(col) < 0 {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return eris.Errorf("dataset: extract is missing columns: %s", strings.Join(missing, ", "))
	}
	return nil
}
