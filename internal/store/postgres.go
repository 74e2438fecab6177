package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/urbanytics/urbanytics/internal/db"
	"github.com/urbanytics/urbanytics/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying database pool for subsystems that need
// direct query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

// createPropertiesTable is run both at migration time and on every
// replace-load, which drops and recreates the relation from scratch.
const createPropertiesTable = `
CREATE TABLE IF NOT EXISTS properties (
	serial_number    BIGINT PRIMARY KEY,
	list_year        BIGINT NOT NULL,
	date_recorded    TEXT NOT NULL,
	town             TEXT NOT NULL,
	address          TEXT NOT NULL,
	assessed_value   DOUBLE PRECISION NOT NULL,
	sale_amount      DOUBLE PRECISION NOT NULL,
	sales_ratio      DOUBLE PRECISION NOT NULL,
	property_type    TEXT NOT NULL,
	residential_type TEXT NOT NULL,
	years_until_sold BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_properties_town ON properties(town);
CREATE INDEX IF NOT EXISTS idx_properties_list_year ON properties(list_year);
CREATE INDEX IF NOT EXISTS idx_properties_property_type ON properties(property_type);
`

const postgresMigration = createPropertiesTable + `
CREATE TABLE IF NOT EXISTS training_runs (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL DEFAULT 'running',
	row_count   BIGINT NOT NULL DEFAULT 0,
	mae         DOUBLE PRECISION NOT NULL DEFAULT 0,
	rmse        DOUBLE PRECISION NOT NULL DEFAULT 0,
	r2          DOUBLE PRECISION NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT '',
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_training_runs_started_at ON training_runs(started_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// ReplaceProperties drops the properties relation, recreates it, and bulk
// loads the given records over the COPY protocol. The persisted row count
// is read back and compared against len(records); a mismatch returns
// ErrVerificationFailure.
func (s *PostgresStore) ReplaceProperties(ctx context.Context, records []model.Property) (int64, error) {
	if _, err := s.pool.Exec(ctx, `DROP TABLE IF EXISTS properties`); err != nil {
		return 0, eris.Wrap(err, "postgres: drop properties")
	}
	if _, err := s.pool.Exec(ctx, createPropertiesTable); err != nil {
		return 0, eris.Wrap(err, "postgres: create properties")
	}

	rows := make([][]any, len(records))
	for i, p := range records {
		rows[i] = propertyRowValues(p)
	}

	copied, err := db.CopyFrom(ctx, s.pool, "properties", propertyColumns, rows)
	if err != nil {
		return 0, err
	}

	persisted, err := s.CountProperties(ctx)
	if err != nil {
		return 0, err
	}
	if persisted != int64(len(records)) || copied != persisted {
		return persisted, eris.Wrapf(ErrVerificationFailure,
			"postgres: expected %d rows, copied %d, counted %d", len(records), copied, persisted)
	}
	return persisted, nil
}

func (s *PostgresStore) CountProperties(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM properties`).Scan(&count)
	return count, eris.Wrap(err, "postgres: count properties")
}

func (s *PostgresStore) GetProperty(ctx context.Context, serialNumber int64) (*model.Property, error) {
	var p model.Property
	err := s.pool.QueryRow(ctx,
		`SELECT serial_number, list_year, date_recorded, town, address, assessed_value,
		        sale_amount, sales_ratio, property_type, residential_type, years_until_sold
		 FROM properties WHERE serial_number = $1`,
		serialNumber,
	).Scan(&p.SerialNumber, &p.ListYear, &p.DateRecorded, &p.Town, &p.Address,
		&p.AssessedValue, &p.SaleAmount, &p.SalesRatio, &p.PropertyType,
		&p.ResidentialType, &p.YearsUntilSold)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get property %d", serialNumber)
	}
	return &p, nil
}

func (s *PostgresStore) ListProperties(ctx context.Context, filter ListFilter) ([]model.Property, error) {
	query := `SELECT serial_number, list_year, date_recorded, town, address, assessed_value,
	                 sale_amount, sales_ratio, property_type, residential_type, years_until_sold
	          FROM properties WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Town != "" {
		query += fmt.Sprintf(` AND town = $%d`, argIdx)
		args = append(args, filter.Town)
		argIdx++
	}
	if filter.PropertyType != "" {
		query += fmt.Sprintf(` AND property_type = $%d`, argIdx)
		args = append(args, filter.PropertyType)
		argIdx++
	}
	if filter.ListYear > 0 {
		query += fmt.Sprintf(` AND list_year = $%d`, argIdx)
		args = append(args, filter.ListYear)
		argIdx++
	}
	if filter.MinPrice > 0 {
		query += fmt.Sprintf(` AND sale_amount >= $%d`, argIdx)
		args = append(args, filter.MinPrice)
		argIdx++
	}
	if filter.MaxPrice > 0 {
		query += fmt.Sprintf(` AND sale_amount <= $%d`, argIdx)
		args = append(args, filter.MaxPrice)
		argIdx++
	}
	query += ` ORDER BY list_year, town, sale_amount`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list properties")
	}
	defer rows.Close()

	var out []model.Property
	for rows.Next() {
		var p model.Property
		if err := rows.Scan(&p.SerialNumber, &p.ListYear, &p.DateRecorded, &p.Town, &p.Address,
			&p.AssessedValue, &p.SaleAmount, &p.SalesRatio, &p.PropertyType,
			&p.ResidentialType, &p.YearsUntilSold); err != nil {
			return nil, eris.Wrap(err, "postgres: scan property")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list properties iterate")
}

func (s *PostgresStore) TrainingRows(ctx context.Context) ([]model.TrainingRow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT list_year, assessed_value, years_until_sold, property_type, residential_type, town, sale_amount
		 FROM properties
		 WHERE sale_amount > 0 AND assessed_value > 0
		   AND property_type IS NOT NULL AND town IS NOT NULL AND list_year IS NOT NULL`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: training rows")
	}
	defer rows.Close()

	var out []model.TrainingRow
	for rows.Next() {
		var r model.TrainingRow
		var listYear, yearsUntilSold int64
		if err := rows.Scan(&listYear, &r.AssessedValue, &yearsUntilSold,
			&r.PropertyType, &r.ResidentialType, &r.Town, &r.SaleAmount); err != nil {
			return nil, eris.Wrap(err, "postgres: scan training row")
		}
		r.ListYear = float64(listYear)
		r.YearsUntilSold = float64(yearsUntilSold)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: training rows iterate")
}

func (s *PostgresStore) CreateTrainingRun(ctx context.Context, run *model.TrainingRun) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO training_runs (id, status, started_at) VALUES ($1, $2, $3)`,
		run.ID, string(run.Status), run.StartedAt,
	)
	return eris.Wrapf(err, "postgres: insert training run %s", run.ID)
}

func (s *PostgresStore) CompleteTrainingRun(ctx context.Context, run *model.TrainingRun) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE training_runs
		 SET status = $1, row_count = $2, mae = $3, rmse = $4, r2 = $5, error = $6, finished_at = $7
		 WHERE id = $8`,
		string(run.Status), run.RowCount, run.MAE, run.RMSE, run.R2, run.Error, run.FinishedAt, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete training run %s", run.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("training run not found: %s", run.ID)
	}
	return nil
}

func (s *PostgresStore) ListTrainingRuns(ctx context.Context, limit int) ([]model.TrainingRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, status, row_count, mae, rmse, r2, error, started_at, finished_at
		 FROM training_runs ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list training runs")
	}
	defer rows.Close()

	var runs []model.TrainingRun
	for rows.Next() {
		var r model.TrainingRun
		var status string
		if err := rows.Scan(&r.ID, &status, &r.RowCount, &r.MAE, &r.RMSE, &r.R2,
			&r.Error, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan training run")
		}
		r.Status = model.TrainingRunStatus(status)
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list training runs iterate")
}

func (s *PostgresStore) DataStats(ctx context.Context) (*model.DataStats, error) {
	var st model.DataStats
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COALESCE(AVG(sale_amount), 0),
		        COALESCE(PERCENTILE_CONT(0.5) WITHIN GROUP (ORDER BY sale_amount), 0),
		        COALESCE(MIN(sale_amount), 0),
		        COALESCE(MAX(sale_amount), 0),
		        COALESCE(STDDEV_SAMP(sale_amount), 0),
		        COALESCE(AVG(assessed_value), 0),
		        COALESCE(PERCENTILE_CONT(0.5) WITHIN GROUP (ORDER BY assessed_value), 0),
		        COALESCE(MIN(assessed_value), 0),
		        COALESCE(MAX(assessed_value), 0),
		        COALESCE(STDDEV_SAMP(assessed_value), 0),
		        COALESCE(MIN(list_year), 0),
		        COALESCE(MAX(list_year), 0),
		        COUNT(DISTINCT property_type),
		        COUNT(DISTINCT residential_type),
		        COUNT(DISTINCT town)
		 FROM properties`,
	).Scan(&st.TotalRecords,
		&st.Price.Mean, &st.Price.Median, &st.Price.Min, &st.Price.Max, &st.Price.Std,
		&st.AssessedValue.Mean, &st.AssessedValue.Median, &st.AssessedValue.Min,
		&st.AssessedValue.Max, &st.AssessedValue.Std,
		&st.YearMin, &st.YearMax,
		&st.PropertyTypes, &st.ResidentialTypes, &st.Towns)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: data stats")
	}
	return &st, nil
}

func (s *PostgresStore) KPISummary(ctx context.Context) (*model.KPISummary, error) {
	var k model.KPISummary
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(sale_amount), 0),
		        COALESCE(AVG(sale_amount), 0),
		        COALESCE(AVG(sales_ratio), 0),
		        COALESCE(AVG(years_until_sold), 0),
		        COUNT(DISTINCT town)
		 FROM properties`,
	).Scan(&k.TotalSales, &k.TotalVolume, &k.AvgSalePrice, &k.AvgSalesRatio, &k.AvgYearsToSell, &k.Towns)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: kpi summary")
	}
	return &k, nil
}

func (s *PostgresStore) YearTrends(ctx context.Context) ([]model.YearTrend, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT list_year, COUNT(*), AVG(sale_amount), AVG(sales_ratio), MAX(sale_amount), MIN(sale_amount)
		 FROM properties GROUP BY list_year ORDER BY list_year`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: year trends")
	}
	defer rows.Close()

	var trends []model.YearTrend
	for rows.Next() {
		var t model.YearTrend
		if err := rows.Scan(&t.ListYear, &t.Sales, &t.AvgPrice, &t.AvgRatio, &t.MaxPrice, &t.MinPrice); err != nil {
			return nil, eris.Wrap(err, "postgres: scan year trend")
		}
		trends = append(trends, t)
	}
	return trends, eris.Wrap(rows.Err(), "postgres: year trends iterate")
}

func (s *PostgresStore) Towns(ctx context.Context) ([]string, error) {
	return s.distinctStrings(ctx, `SELECT DISTINCT town FROM properties ORDER BY town`)
}

func (s *PostgresStore) PropertyTypes(ctx context.Context) ([]string, error) {
	return s.distinctStrings(ctx, `SELECT DISTINCT property_type FROM properties ORDER BY property_type`)
}

func (s *PostgresStore) ResidentialTypes(ctx context.Context) ([]string, error) {
	return s.distinctStrings(ctx, `SELECT DISTINCT residential_type FROM properties ORDER BY residential_type`)
}

func (s *PostgresStore) ListYears(ctx context.Context) ([]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT list_year FROM properties ORDER BY list_year`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list years")
	}
	defer rows.Close()

	var years []int
	for rows.Next() {
		var y int
		if err := rows.Scan(&y); err != nil {
			return nil, eris.Wrap(err, "postgres: scan list year")
		}
		years = append(years, y)
	}
	return years, eris.Wrap(rows.Err(), "postgres: list years iterate")
}

func (s *PostgresStore) distinctStrings(ctx context.Context, query string) ([]string, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: distinct values")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, eris.Wrap(err, "postgres: scan distinct value")
		}
		out = append(out, v)
	}
	return out, eris.Wrap(rows.Err(), "postgres: distinct values iterate")
}
