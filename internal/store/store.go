// Package store persists cleaned property records and training-run
// history, and serves the read models behind the HTTP API.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/urbanytics/urbanytics/internal/model"
)

// ErrVerificationFailure is returned when the row count persisted by a
// replace-load does not match the number of records handed in.
var ErrVerificationFailure = eris.New("store: persisted row count does not match input")

// ListFilter specifies criteria for listing properties.
type ListFilter struct {
	Town         string  `json:"town,omitempty"`
	PropertyType string  `json:"property_type,omitempty"`
	ListYear     int     `json:"list_year,omitempty"`
	MinPrice     float64 `json:"min_price,omitempty"`
	MaxPrice     float64 `json:"max_price,omitempty"`
	Limit        int     `json:"limit,omitempty"`
	Offset       int     `json:"offset,omitempty"`
}

// Store defines the persistence interface for the property data platform.
type Store interface {
	// Properties
	ReplaceProperties(ctx context.Context, records []model.Property) (int64, error)
	ListProperties(ctx context.Context, filter ListFilter) ([]model.Property, error)
	GetProperty(ctx context.Context, serialNumber int64) (*model.Property, error)
	CountProperties(ctx context.Context) (int64, error)

	// Model training
	TrainingRows(ctx context.Context) ([]model.TrainingRow, error)
	CreateTrainingRun(ctx context.Context, run *model.TrainingRun) error
	CompleteTrainingRun(ctx context.Context, run *model.TrainingRun) error
	ListTrainingRuns(ctx context.Context, limit int) ([]model.TrainingRun, error)

	// Read models
	DataStats(ctx context.Context) (*model.DataStats, error)
	KPISummary(ctx context.Context) (*model.KPISummary, error)
	YearTrends(ctx context.Context) ([]model.YearTrend, error)

	// Catalogs
	Towns(ctx context.Context) ([]string, error)
	PropertyTypes(ctx context.Context) ([]string, error)
	ResidentialTypes(ctx context.Context) ([]string, error)
	ListYears(ctx context.Context) ([]int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// propertyColumns is the column order used for bulk loads and scans.
var propertyColumns = []string{
	"serial_number",
	"list_year",
	"date_recorded",
	"town",
	"address",
	"assessed_value",
	"sale_amount",
	"sales_ratio",
	"property_type",
	"residential_type",
	"years_until_sold",
}

func propertyRowValues(p model.Property) []any {
	return []any{
		p.SerialNumber,
		p.ListYear,
		p.DateRecorded,
		p.Town,
		p.Address,
		p.AssessedValue,
		p.SaleAmount,
		p.SalesRatio,
		p.PropertyType,
		p.ResidentialType,
		p.YearsUntilSold,
	}
}
