package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbanytics/urbanytics/internal/model"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func seedProperties(t *testing.T, s *SQLiteStore) []model.Property {
	t.Helper()
	records := []model.Property{
		{SerialNumber: 1, ListYear: 2019, DateRecorded: "2020-06-01", Town: "Bristol", Address: "9 Oak Ave",
			AssessedValue: 90000, SaleAmount: 120000, SalesRatio: 0.75, PropertyType: "Residential",
			ResidentialType: "Condo", YearsUntilSold: 1},
		{SerialNumber: 2, ListYear: 2020, DateRecorded: "2021-04-14", Town: "Hartford", Address: "123 Main St",
			AssessedValue: 150000, SaleAmount: 200000, SalesRatio: 0.75, PropertyType: "Residential",
			ResidentialType: "Single Family", YearsUntilSold: 1},
		{SerialNumber: 3, ListYear: 2020, DateRecorded: "2021-08-30", Town: "Avon", Address: "5 Elm St",
			AssessedValue: 300000, SaleAmount: 400000, SalesRatio: 0.75, PropertyType: "Commercial",
			ResidentialType: "Single Family", YearsUntilSold: 2},
	}
	n, err := s.ReplaceProperties(context.Background(), records)
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
	return records
}

func TestSQLite_ReplaceAndList(t *testing.T) {
	s := newTestSQLite(t)
	seedProperties(t, s)

	// A second replace wipes the first load entirely.
	n, err := s.ReplaceProperties(context.Background(), []model.Property{
		{SerialNumber: 7, ListYear: 2018, DateRecorded: "2019-01-02", Town: "Danbury", Address: "1 Pine St",
			AssessedValue: 50000, SaleAmount: 80000, SalesRatio: 0.62, PropertyType: "Residential",
			ResidentialType: "Condo", YearsUntilSold: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := s.ListProperties(context.Background(), ListFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(7), got[0].SerialNumber)
}

func TestSQLite_ListFilters(t *testing.T) {
	s := newTestSQLite(t)
	seedProperties(t, s)

	got, err := s.ListProperties(context.Background(), ListFilter{Town: "Hartford"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(2), got[0].SerialNumber)

	got, err = s.ListProperties(context.Background(), ListFilter{ListYear: 2020, MinPrice: 300000})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Avon", got[0].Town)

	got, err = s.ListProperties(context.Background(), ListFilter{MaxPrice: 150000})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Bristol", got[0].Town)

	// Sorted by (list_year, town, sale_amount).
	got, err = s.ListProperties(context.Background(), ListFilter{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, int64(1), got[0].SerialNumber)
	assert.Equal(t, "Avon", got[1].Town)
	assert.Equal(t, "Hartford", got[2].Town)
}

func TestSQLite_GetProperty(t *testing.T) {
	s := newTestSQLite(t)
	seedProperties(t, s)

	p, err := s.GetProperty(context.Background(), 2)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "123 Main St", p.Address)

	missing, err := s.GetProperty(context.Background(), 999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLite_TrainingRows(t *testing.T) {
	s := newTestSQLite(t)
	seedProperties(t, s)

	rows, err := s.TrainingRows(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for _, r := range rows {
		assert.Greater(t, r.SaleAmount, 0.0)
		assert.NotEmpty(t, r.Town)
	}
}

func TestSQLite_TrainingRows_ExcludesNonPositiveAmounts(t *testing.T) {
	s := newTestSQLite(t)

	records := []model.Property{
		{SerialNumber: 1, ListYear: 2019, DateRecorded: "2020-06-01", Town: "Bristol", Address: "9 Oak Ave",
			AssessedValue: 90000, SaleAmount: 120000, SalesRatio: 0.75, PropertyType: "Residential",
			ResidentialType: "Condo", YearsUntilSold: 1},
		{SerialNumber: 2, ListYear: 2020, DateRecorded: "2021-04-14", Town: "Hartford", Address: "123 Main St",
			AssessedValue: 150000, SaleAmount: 0, SalesRatio: 0, PropertyType: "Residential",
			ResidentialType: "Single Family", YearsUntilSold: 1},
		{SerialNumber: 3, ListYear: 2020, DateRecorded: "2021-08-30", Town: "Avon", Address: "5 Elm St",
			AssessedValue: 0, SaleAmount: 400000, SalesRatio: 0, PropertyType: "Commercial",
			ResidentialType: "Single Family", YearsUntilSold: 2},
	}
	_, err := s.ReplaceProperties(context.Background(), records)
	require.NoError(t, err)

	rows, err := s.TrainingRows(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Bristol", rows[0].Town)
}

func TestSQLite_DataStats(t *testing.T) {
	s := newTestSQLite(t)
	seedProperties(t, s)

	st, err := s.DataStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, st.TotalRecords)
	assert.InDelta(t, 240000.0, st.Price.Mean, 1e-9)
	assert.Equal(t, 120000.0, st.Price.Min)
	assert.Equal(t, 400000.0, st.Price.Max)
	assert.Equal(t, 200000.0, st.Price.Median)
	assert.Equal(t, 2019, st.YearMin)
	assert.Equal(t, 2020, st.YearMax)
	assert.Equal(t, 2, st.PropertyTypes)
	assert.Equal(t, 2, st.ResidentialTypes)
	assert.Equal(t, 3, st.Towns)
}

func TestSQLite_DataStats_Empty(t *testing.T) {
	s := newTestSQLite(t)

	st, err := s.DataStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, st.TotalRecords)
	assert.Equal(t, 0.0, st.Price.Mean)
}

func TestSQLite_KPIsAndTrends(t *testing.T) {
	s := newTestSQLite(t)
	seedProperties(t, s)

	k, err := s.KPISummary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, k.TotalSales)
	assert.InDelta(t, 720000.0, k.TotalVolume, 1e-9)
	assert.Equal(t, 3, k.Towns)

	trends, err := s.YearTrends(context.Background())
	require.NoError(t, err)
	require.Len(t, trends, 2)
	assert.Equal(t, 2019, trends[0].ListYear)
	assert.Equal(t, 2, trends[1].Sales)
	assert.InDelta(t, 300000.0, trends[1].AvgPrice, 1e-9)
}

func TestSQLite_Catalogs(t *testing.T) {
	s := newTestSQLite(t)
	seedProperties(t, s)

	towns, err := s.Towns(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Avon", "Bristol", "Hartford"}, towns)

	ptypes, err := s.PropertyTypes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Commercial", "Residential"}, ptypes)

	rtypes, err := s.ResidentialTypes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Condo", "Single Family"}, rtypes)

	years, err := s.ListYears(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{2019, 2020}, years)
}

func TestSQLite_TrainingRuns(t *testing.T) {
	s := newTestSQLite(t)

	started := time.Now().UTC().Truncate(time.Second)
	run := &model.TrainingRun{ID: "run-1", Status: model.TrainingRunRunning, StartedAt: started}
	require.NoError(t, s.CreateTrainingRun(context.Background(), run))

	finished := started.Add(30 * time.Second)
	run.Status = model.TrainingRunComplete
	run.RowCount = 3
	run.MAE = 100
	run.RMSE = 150
	run.R2 = 0.9
	run.FinishedAt = &finished
	require.NoError(t, s.CompleteTrainingRun(context.Background(), run))

	runs, err := s.ListTrainingRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.TrainingRunComplete, runs[0].Status)
	assert.Equal(t, 3, runs[0].RowCount)
	assert.InDelta(t, 0.9, runs[0].R2, 1e-9)
	require.NotNil(t, runs[0].FinishedAt)
}

func TestSQLite_CompleteTrainingRun_NotFound(t *testing.T) {
	s := newTestSQLite(t)

	err := s.CompleteTrainingRun(context.Background(), &model.TrainingRun{ID: "ghost"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLite_ReplaceProperties_Empty(t *testing.T) {
	s := newTestSQLite(t)
	seedProperties(t, s)

	n, err := s.ReplaceProperties(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.False(t, eris.Is(err, ErrVerificationFailure))
}
