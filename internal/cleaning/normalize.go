package cleaning

import (
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/urbanytics/urbanytics/internal/dataset"
	"github.com/urbanytics/urbanytics/internal/model"
)

// ErrTypeMismatch reports a value that survived filtering but cannot be
// coerced to its target type. Normalization treats this as fatal for the
// whole run rather than a per-row drop.
var ErrTypeMismatch = eris.New("cleaning: type mismatch")

// Normalize converts a cleaned table into typed property records: renames
// columns to the canonical snake-case schema, coerces numeric types,
// reformats the recorded date as ISO, deduplicates by serial number
// (keep-first in current order), and sorts by (list_year, town, sale_amount).
func Normalize(t *dataset.Table) ([]model.Property, error) {
	records := make([]model.Property, 0, t.NumRows())

	for i := 0; i < t.NumRows(); i++ {
		p, err := normalizeRow(t, i)
		if err != nil {
			return nil, err
		}
		records = append(records, p)
	}

	before := len(records)
	records = dedupBySerial(records)
	if removed := before - len(records); removed > 0 {
		zap.L().Info("duplicates removed", zap.Int("removed", removed))
	}

	sort.SliceStable(records, func(a, b int) bool {
		if records[a].ListYear != records[b].ListYear {
			return records[a].ListYear < records[b].ListYear
		}
		if records[a].Town != records[b].Town {
			return records[a].Town < records[b].Town
		}
		return records[a].SaleAmount < records[b].SaleAmount
	})

	return records, nil
}

func normalizeRow(t *dataset.Table, i int) (model.Property, error) {
	var p model.Property
	var ok bool

	if p.SerialNumber, ok = t.Int(i, colSerial); !ok {
		return p, typeMismatch(i, "serial_number", t.Cell(i, colSerial))
	}
	if p.ListYear, ok = t.Int(i, colListYear); !ok {
		return p, typeMismatch(i, "list_year", t.Cell(i, colListYear))
	}
	if p.AssessedValue, ok = t.Float(i, colAssessed); !ok {
		return p, typeMismatch(i, "assessed_value", t.Cell(i, colAssessed))
	}
	if p.SaleAmount, ok = t.Float(i, colSaleAmount); !ok {
		return p, typeMismatch(i, "sale_amount", t.Cell(i, colSaleAmount))
	}
	if p.SalesRatio, ok = t.Float(i, colSalesRatio); !ok {
		return p, typeMismatch(i, "sales_ratio", t.Cell(i, colSalesRatio))
	}
	if p.YearsUntilSold, ok = t.Int(i, colYearsToSell); !ok {
		return p, typeMismatch(i, "years_until_sold", t.Cell(i, colYearsToSell))
	}

	ts, ok := ParseDate(t.Cell(i, colDate))
	if !ok {
		return p, typeMismatch(i, "date_recorded", t.Cell(i, colDate))
	}
	p.DateRecorded = ts.Format("2006-01-02")

	p.Town = t.Cell(i, colTown)
	p.Address = t.Cell(i, colAddress)
	p.PropertyType = t.Cell(i, colPropType)
	p.ResidentialType = t.Cell(i, colResType)

	return p, nil
}

func typeMismatch(row int, field, value string) error {
	return eris.Wrapf(ErrTypeMismatch, "row %d: %s=%q", row, field, value)
}

// dedupBySerial keeps the first occurrence of each serial number, preserving
// the current row order.
func dedupBySerial(records []model.Property) []model.Property {
	seen := make(map[int64]bool, len(records))
	out := records[:0]
	for _, p := range records {
		if seen[p.SerialNumber] {
			continue
		}
		seen[p.SerialNumber] = true
		out = append(out, p)
	}
	return out
}
