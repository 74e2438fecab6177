package cleaning

import (
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/urbanytics/urbanytics/internal/dataset"
)

// Raw extract column names used by the stages.
const (
	colSerial      = "Serial Number"
	colListYear    = "List Year"
	colDate        = "Date Recorded"
	colTown        = "Town"
	colAddress     = "Address"
	colAssessed    = "Assessed Value"
	colSaleAmount  = "Sale Amount"
	colSalesRatio  = "Sales Ratio"
	colPropType    = "Property Type"
	colResType     = "Residential Type"
	colYearsToSell = "Years Until Sold"
)

// dateLayouts accepted for Date Recorded. The extract publishes M/D/YYYY;
// re-cleaned exports carry ISO dates.
var dateLayouts = []string{"1/2/2006", "01/02/2006", "2006-01-02"}

// ParseDate parses a Date Recorded cell against the accepted layouts.
func ParseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// Stages returns the cleaning stages in their required execution order.
// Stages 3 and 5 recompute mean/σ thresholds over the table as narrowed by
// all earlier stages, not the original raw set.
func Stages(rules Rules) []Stage {
	rejectedTowns := rules.rejectedTownSet()
	sentinels := rules.sentinelSet()

	return []Stage{
		{
			Name: "drop_critical_nulls",
			Apply: func(t *dataset.Table) *dataset.Table {
				return t.Filter(func(i int) bool {
					if _, ok := t.Float(i, colSerial); !ok {
						return false
					}
					if _, ok := t.Float(i, colSaleAmount); !ok {
						return false
					}
					return !t.IsNull(i, colTown)
				})
			},
		},
		{
			Name: "drop_nonpositive_price",
			Apply: func(t *dataset.Table) *dataset.Table {
				return t.Filter(func(i int) bool {
					v, ok := t.Float(i, colSaleAmount)
					return ok && v > 0
				})
			},
		},
		{
			Name:  "drop_price_outliers",
			Apply: sigmaWindowStage(colSaleAmount, 0, false),
		},
		{
			Name: "drop_nonpositive_ratio",
			Apply: func(t *dataset.Table) *dataset.Table {
				return t.Filter(func(i int) bool {
					v, ok := t.Float(i, colSalesRatio)
					return ok && v > 0
				})
			},
		},
		{
			Name:  "drop_ratio_outliers",
			Apply: sigmaWindowStage(colSalesRatio, rules.RatioFloor, true),
		},
		{
			Name: "drop_negative_years_until_sold",
			Apply: func(t *dataset.Table) *dataset.Table {
				return t.Filter(func(i int) bool {
					v, ok := t.Float(i, colYearsToSell)
					return ok && v >= 0
				})
			},
		},
		{
			Name: "drop_excessive_years_until_sold",
			Apply: func(t *dataset.Table) *dataset.Table {
				limit := float64(rules.MaxYearsUntilSold)
				return t.Filter(func(i int) bool {
					v, ok := t.Float(i, colYearsToSell)
					return ok && v <= limit
				})
			},
		},
		{
			Name: "drop_invalid_dates",
			Apply: func(t *dataset.Table) *dataset.Table {
				return t.Filter(func(i int) bool {
					_, ok := ParseDate(t.Cell(i, colDate))
					return ok
				})
			},
		},
		{
			Name:  "drop_invalid_property_type",
			Apply: sentinelStage(colPropType, sentinels),
		},
		{
			Name:  "drop_invalid_residential_type",
			Apply: sentinelStage(colResType, sentinels),
		},
		{
			Name: "drop_rejected_towns",
			Apply: func(t *dataset.Table) *dataset.Table {
				return t.Filter(func(i int) bool {
					town := strings.TrimSpace(t.Cell(i, colTown))
					if town == "" || t.IsNull(i, colTown) {
						return false
					}
					return !rejectedTowns[town]
				})
			},
		},
		{
			Name: "drop_invalid_list_year",
			Apply: func(t *dataset.Table) *dataset.Table {
				lo, hi := int64(rules.MinListYear), int64(rules.MaxListYear)
				return t.Filter(func(i int) bool {
					y, ok := t.Int(i, colListYear)
					return ok && y >= lo && y <= hi
				})
			},
		},
		{
			Name: "drop_empty_address",
			Apply: func(t *dataset.Table) *dataset.Table {
				return t.Filter(func(i int) bool {
					return strings.TrimSpace(t.Cell(i, colAddress)) != "" && !t.IsNull(i, colAddress)
				})
			},
		},
		{
			Name: "drop_nonpositive_assessed_value",
			Apply: func(t *dataset.Table) *dataset.Table {
				return t.Filter(func(i int) bool {
					v, ok := t.Float(i, colAssessed)
					return ok && v > 0
				})
			},
		},
	}
}

// sigmaWindowStage drops rows whose column value falls outside
// [mean-3σ, mean+3σ] computed over the current table. With floored=true the
// lower bound is clamped to at least floor.
func sigmaWindowStage(column string, floor float64, floored bool) func(*dataset.Table) *dataset.Table {
	return func(t *dataset.Table) *dataset.Table {
		values := make([]float64, 0, t.NumRows())
		for i := 0; i < t.NumRows(); i++ {
			if v, ok := t.Float(i, column); ok {
				values = append(values, v)
			}
		}
		if len(values) < 2 {
			return t
		}

		// Sample standard deviation, matching how the thresholds were
		// originally derived.
		mean, std := stat.MeanStdDev(values, nil)
		lower := mean - 3*std
		upper := mean + 3*std
		if floored && lower < floor {
			lower = floor
		}

		return t.Filter(func(i int) bool {
			v, ok := t.Float(i, column)
			return ok && v >= lower && v <= upper
		})
	}
}

// sentinelStage drops rows whose column is null or holds a known-invalid
// placeholder value.
func sentinelStage(column string, sentinels map[string]bool) func(*dataset.Table) *dataset.Table {
	return func(t *dataset.Table) *dataset.Table {
		return t.Filter(func(i int) bool {
			if t.IsNull(i, column) {
				return false
			}
			return !sentinels[strings.TrimSpace(t.Cell(i, column))]
		})
	}
}
