// Package model holds the shared domain types for the property data platform.
package model

import "time"

// RawColumns is the fixed column set of the source sales extract, in the
// order the state publishes it. The loader validates these are all present.
var RawColumns = []string{
	"Serial Number",
	"List Year",
	"Date Recorded",
	"Town",
	"Address",
	"Assessed Value",
	"Sale Amount",
	"Sales Ratio",
	"Property Type",
	"Residential Type",
	"Years Until Sold",
}

// Property is one cleaned, normalized sale record as persisted in the
// properties relation. Every field satisfies the cleaning-pipeline
// predicates simultaneously; SerialNumber is unique across the relation.
type Property struct {
	SerialNumber    int64   `json:"serial_number"`
	ListYear        int64   `json:"list_year"`
	DateRecorded    string  `json:"date_recorded"` // ISO YYYY-MM-DD
	Town            string  `json:"town"`
	Address         string  `json:"address"`
	AssessedValue   float64 `json:"assessed_value"`
	SaleAmount      float64 `json:"sale_amount"`
	SalesRatio      float64 `json:"sales_ratio"`
	PropertyType    string  `json:"property_type"`
	ResidentialType string  `json:"residential_type"`
	YearsUntilSold  int64   `json:"years_until_sold"`
}

// TrainingRow is the projection of a Property used for model fitting:
// the three numeric features, the three categorical features, and the target.
type TrainingRow struct {
	ListYear        float64
	AssessedValue   float64
	YearsUntilSold  float64
	PropertyType    string
	ResidentialType string
	Town            string
	SaleAmount      float64 // target
}

// TrainingRunStatus tracks the lifecycle of a training run.
type TrainingRunStatus string

const (
	TrainingRunRunning  TrainingRunStatus = "running"
	TrainingRunComplete TrainingRunStatus = "complete"
	TrainingRunFailed   TrainingRunStatus = "failed"
)

// TrainingRun is one audit-log entry for a model training run.
type TrainingRun struct {
	ID         string            `json:"id"`
	Status     TrainingRunStatus `json:"status"`
	RowCount   int               `json:"row_count"`
	MAE        float64           `json:"mae"`
	RMSE       float64           `json:"rmse"`
	R2         float64           `json:"r2"`
	Error      string            `json:"error,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
}

// FieldStats summarizes one numeric column of the backing data.
type FieldStats struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Std    float64 `json:"std"`
}

// DataStats is the summary-statistics view served by /data/stats.
type DataStats struct {
	TotalRecords  int        `json:"total_records"`
	Price         FieldStats `json:"price_stats"`
	AssessedValue FieldStats `json:"assessed_value_stats"`
	YearMin       int        `json:"year_min"`
	YearMax       int        `json:"year_max"`
	// Distinct counts of the categorical dimensions.
	PropertyTypes    int `json:"property_types"`
	ResidentialTypes int `json:"residential_types"`
	Towns            int `json:"towns"`
}

// YearTrend is one row of the average-price-by-year analytics view.
type YearTrend struct {
	ListYear  int     `json:"list_year"`
	Sales     int     `json:"sales"`
	AvgPrice  float64 `json:"avg_price"`
	AvgRatio  float64 `json:"avg_ratio"`
	MaxPrice  float64 `json:"max_price"`
	MinPrice  float64 `json:"min_price"`
}

// KPISummary is the headline analytics view over the cleaned relation.
type KPISummary struct {
	TotalSales     int     `json:"total_sales"`
	TotalVolume    float64 `json:"total_volume"`
	AvgSalePrice   float64 `json:"avg_sale_price"`
	AvgSalesRatio  float64 `json:"avg_sales_ratio"`
	AvgYearsToSell float64 `json:"avg_years_to_sell"`
	Towns          int     `json:"towns"`
}
