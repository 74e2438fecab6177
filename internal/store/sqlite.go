package store

import (
	"context"
	"database/sql"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/stat"
	_ "modernc.org/sqlite"

	"github.com/urbanytics/urbanytics/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It backs local
// development and offline analysis where no Postgres server is available.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteCreateProperties = `
CREATE TABLE IF NOT EXISTS properties (
	serial_number    INTEGER PRIMARY KEY,
	list_year        INTEGER NOT NULL,
	date_recorded    TEXT NOT NULL,
	town             TEXT NOT NULL,
	address          TEXT NOT NULL,
	assessed_value   REAL NOT NULL,
	sale_amount      REAL NOT NULL,
	sales_ratio      REAL NOT NULL,
	property_type    TEXT NOT NULL,
	residential_type TEXT NOT NULL,
	years_until_sold INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_properties_town ON properties(town);
CREATE INDEX IF NOT EXISTS idx_properties_list_year ON properties(list_year);
CREATE INDEX IF NOT EXISTS idx_properties_property_type ON properties(property_type);
`

const sqliteMigration = sqliteCreateProperties + `
CREATE TABLE IF NOT EXISTS training_runs (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL DEFAULT 'running',
	row_count   INTEGER NOT NULL DEFAULT 0,
	mae         REAL NOT NULL DEFAULT 0,
	rmse        REAL NOT NULL DEFAULT 0,
	r2          REAL NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT '',
	started_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	finished_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_training_runs_started_at ON training_runs(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// insertBatchSize keeps each multi-row INSERT under SQLite's bound
// parameter limit.
const insertBatchSize = 500

// ReplaceProperties drops and recreates the properties table, then inserts
// the records in batches inside a single transaction. The persisted count
// is verified against len(records).
func (s *SQLiteStore) ReplaceProperties(ctx context.Context, records []model.Property) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS properties`); err != nil {
		return 0, eris.Wrap(err, "sqlite: drop properties")
	}
	if _, err := tx.ExecContext(ctx, sqliteCreateProperties); err != nil {
		return 0, eris.Wrap(err, "sqlite: create properties")
	}

	placeholders := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(propertyColumns)), ", ") + ")"
	insertPrefix := `INSERT INTO properties (` + strings.Join(propertyColumns, ", ") + `) VALUES `

	for start := 0; start < len(records); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		var args []any
		for _, p := range batch {
			args = append(args, propertyRowValues(p)...)
		}
		rowsSQL := strings.TrimSuffix(strings.Repeat(placeholders+", ", len(batch)), ", ")
		if _, err := tx.ExecContext(ctx, insertPrefix+rowsSQL, args...); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert batch at %d", start)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit tx")
	}

	persisted, err := s.CountProperties(ctx)
	if err != nil {
		return 0, err
	}
	if persisted != int64(len(records)) {
		return persisted, eris.Wrapf(ErrVerificationFailure,
			"sqlite: expected %d rows, counted %d", len(records), persisted)
	}
	return persisted, nil
}

func (s *SQLiteStore) CountProperties(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM properties`).Scan(&count)
	return count, eris.Wrap(err, "sqlite: count properties")
}

func (s *SQLiteStore) GetProperty(ctx context.Context, serialNumber int64) (*model.Property, error) {
	var p model.Property
	err := s.db.QueryRowContext(ctx,
		`SELECT serial_number, list_year, date_recorded, town, address, assessed_value,
		        sale_amount, sales_ratio, property_type, residential_type, years_until_sold
		 FROM properties WHERE serial_number = ?`,
		serialNumber,
	).Scan(&p.SerialNumber, &p.ListYear, &p.DateRecorded, &p.Town, &p.Address,
		&p.AssessedValue, &p.SaleAmount, &p.SalesRatio, &p.PropertyType,
		&p.ResidentialType, &p.YearsUntilSold)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get property %d", serialNumber)
	}
	return &p, nil
}

func (s *SQLiteStore) ListProperties(ctx context.Context, filter ListFilter) ([]model.Property, error) {
	query := `SELECT serial_number, list_year, date_recorded, town, address, assessed_value,
	                 sale_amount, sales_ratio, property_type, residential_type, years_until_sold
	          FROM properties WHERE 1=1`
	var args []any

	if filter.Town != "" {
		query += ` AND town = ?`
		args = append(args, filter.Town)
	}
	if filter.PropertyType != "" {
		query += ` AND property_type = ?`
		args = append(args, filter.PropertyType)
	}
	if filter.ListYear > 0 {
		query += ` AND list_year = ?`
		args = append(args, filter.ListYear)
	}
	if filter.MinPrice > 0 {
		query += ` AND sale_amount >= ?`
		args = append(args, filter.MinPrice)
	}
	if filter.MaxPrice > 0 {
		query += ` AND sale_amount <= ?`
		args = append(args, filter.MaxPrice)
	}
	query += ` ORDER BY list_year, town, sale_amount`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list properties")
	}
	defer rows.Close()

	var out []model.Property
	for rows.Next() {
		var p model.Property
		if err := rows.Scan(&p.SerialNumber, &p.ListYear, &p.DateRecorded, &p.Town, &p.Address,
			&p.AssessedValue, &p.SaleAmount, &p.SalesRatio, &p.PropertyType,
			&p.ResidentialType, &p.YearsUntilSold); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan property")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list properties iterate")
}

func (s *SQLiteStore) TrainingRows(ctx context.Context) ([]model.TrainingRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT list_year, assessed_value, years_until_sold, property_type, residential_type, town, sale_amount
		 FROM properties
		 WHERE sale_amount > 0 AND assessed_value > 0
		   AND property_type IS NOT NULL AND town IS NOT NULL AND list_year IS NOT NULL`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: training rows")
	}
	defer rows.Close()

	var out []model.TrainingRow
	for rows.Next() {
		var r model.TrainingRow
		if err := rows.Scan(&r.ListYear, &r.AssessedValue, &r.YearsUntilSold,
			&r.PropertyType, &r.ResidentialType, &r.Town, &r.SaleAmount); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan training row")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: training rows iterate")
}

func (s *SQLiteStore) CreateTrainingRun(ctx context.Context, run *model.TrainingRun) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO training_runs (id, status, started_at) VALUES (?, ?, ?)`,
		run.ID, string(run.Status), run.StartedAt,
	)
	return eris.Wrapf(err, "sqlite: insert training run %s", run.ID)
}

func (s *SQLiteStore) CompleteTrainingRun(ctx context.Context, run *model.TrainingRun) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE training_runs
		 SET status = ?, row_count = ?, mae = ?, rmse = ?, r2 = ?, error = ?, finished_at = ?
		 WHERE id = ?`,
		string(run.Status), run.RowCount, run.MAE, run.RMSE, run.R2, run.Error, run.FinishedAt, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete training run %s", run.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("training run not found: %s", run.ID)
	}
	return nil
}

func (s *SQLiteStore) ListTrainingRuns(ctx context.Context, limit int) ([]model.TrainingRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, status, row_count, mae, rmse, r2, error, started_at, finished_at
		 FROM training_runs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list training runs")
	}
	defer rows.Close()

	var runs []model.TrainingRun
	for rows.Next() {
		var r model.TrainingRun
		var status string
		if err := rows.Scan(&r.ID, &status, &r.RowCount, &r.MAE, &r.RMSE, &r.R2,
			&r.Error, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan training run")
		}
		r.Status = model.TrainingRunStatus(status)
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list training runs iterate")
}

// DataStats computes the summary statistics in process. SQLite has no
// built-in stddev or percentile aggregates.
func (s *SQLiteStore) DataStats(ctx context.Context) (*model.DataStats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT sale_amount, assessed_value FROM properties`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: data stats")
	}
	defer rows.Close()

	var prices, assessed []float64
	for rows.Next() {
		var p, a float64
		if err := rows.Scan(&p, &a); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan data stats")
		}
		prices = append(prices, p)
		assessed = append(assessed, a)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: data stats iterate")
	}

	st := &model.DataStats{
		TotalRecords:  len(prices),
		Price:         fieldStats(prices),
		AssessedValue: fieldStats(assessed),
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MIN(list_year), 0), COALESCE(MAX(list_year), 0),
		        COUNT(DISTINCT property_type), COUNT(DISTINCT residential_type), COUNT(DISTINCT town)
		 FROM properties`,
	).Scan(&st.YearMin, &st.YearMax, &st.PropertyTypes, &st.ResidentialTypes, &st.Towns)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: data stats dimensions")
	}
	return st, nil
}

func fieldStats(values []float64) model.FieldStats {
	if len(values) == 0 {
		return model.FieldStats{}
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	fs := model.FieldStats{
		Mean:   stat.Mean(sorted, nil),
		Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
	}
	if len(sorted) > 1 {
		fs.Std = stat.StdDev(sorted, nil)
	}
	return fs
}

func (s *SQLiteStore) KPISummary(ctx context.Context) (*model.KPISummary, error) {
	var k model.KPISummary
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(sale_amount), 0),
		        COALESCE(AVG(sale_amount), 0),
		        COALESCE(AVG(sales_ratio), 0),
		        COALESCE(AVG(years_until_sold), 0),
		        COUNT(DISTINCT town)
		 FROM properties`,
	).Scan(&k.TotalSales, &k.TotalVolume, &k.AvgSalePrice, &k.AvgSalesRatio, &k.AvgYearsToSell, &k.Towns)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: kpi summary")
	}
	return &k, nil
}

func (s *SQLiteStore) YearTrends(ctx context.Context) ([]model.YearTrend, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT list_year, COUNT(*), AVG(sale_amount), AVG(sales_ratio), MAX(sale_amount), MIN(sale_amount)
		 FROM properties GROUP BY list_year ORDER BY list_year`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: year trends")
	}
	defer rows.Close()

	var trends []model.YearTrend
	for rows.Next() {
		var t model.YearTrend
		if err := rows.Scan(&t.ListYear, &t.Sales, &t.AvgPrice, &t.AvgRatio, &t.MaxPrice, &t.MinPrice); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan year trend")
		}
		trends = append(trends, t)
	}
	return trends, eris.Wrap(rows.Err(), "sqlite: year trends iterate")
}

func (s *SQLiteStore) Towns(ctx context.Context) ([]string, error) {
	return s.distinctStrings(ctx, `SELECT DISTINCT town FROM properties ORDER BY town`)
}

func (s *SQLiteStore) PropertyTypes(ctx context.Context) ([]string, error) {
	return s.distinctStrings(ctx, `SELECT DISTINCT property_type FROM properties ORDER BY property_type`)
}

func (s *SQLiteStore) ResidentialTypes(ctx context.Context) ([]string, error) {
	return s.distinctStrings(ctx, `SELECT DISTINCT residential_type FROM properties ORDER BY residential_type`)
}

func (s *SQLiteStore) ListYears(ctx context.Context) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT list_year FROM properties ORDER BY list_year`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list years")
	}
	defer rows.Close()

	var years []int
	for rows.Next() {
		var y int
		if err := rows.Scan(&y); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan list year")
		}
		years = append(years, y)
	}
	return years, eris.Wrap(rows.Err(), "sqlite: list years iterate")
}

func (s *SQLiteStore) distinctStrings(ctx context.Context, query string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: distinct values")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan distinct value")
		}
		out = append(out, v)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: distinct values iterate")
}
