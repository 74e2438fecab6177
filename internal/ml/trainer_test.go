package ml

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbanytics/urbanytics/internal/model"
	"github.com/urbanytics/urbanytics/internal/store"
)

func trainerFixture(t *testing.T, nRows int) (*Trainer, store.Store, string) {
	t.Helper()

	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "train.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))

	if nRows > 0 {
		towns := []string{"Avon", "Bristol", "Hartford"}
		records := make([]model.Property, nRows)
		for i := range records {
			assessed := float64(100000 + i*2500)
			records[i] = model.Property{
				SerialNumber:    int64(i + 1),
				ListYear:        int64(2006 + i%15),
				DateRecorded:    "2021-04-14",
				Town:            towns[i%len(towns)],
				Address:         fmt.Sprintf("%d Main St", i+1),
				AssessedValue:   assessed,
				SaleAmount:      assessed*1.3 + float64(i%7)*1000,
				SalesRatio:      0.77,
				PropertyType:    "Residential",
				ResidentialType: []string{"Condo", "Single Family"}[i%2],
				YearsUntilSold:  int64(i % 5),
			}
		}
		_, err = s.ReplaceProperties(context.Background(), records)
		require.NoError(t, err)
	}

	dir := filepath.Join(t.TempDir(), "models")
	trainer := NewTrainer(s, TrainerConfig{
		ArtifactsDir: dir,
		Estimators:   10,
		MaxDepth:     6,
		Seed:         42,
		TestFraction: 0.2,
	})
	return trainer, s, dir
}

func TestTrainer_Train(t *testing.T) {
	trainer, s, dir := trainerFixture(t, 80)

	bundle, run, err := trainer.Train(context.Background())
	require.NoError(t, err)
	require.NotNil(t, bundle)
	require.NotNil(t, run)

	assert.Equal(t, model.TrainingRunComplete, run.Status)
	assert.Equal(t, 80, run.RowCount)
	assert.Greater(t, run.MAE, 0.0)
	assert.Greater(t, run.RMSE, 0.0)
	require.NotNil(t, run.FinishedAt)

	// Artifact is on disk and loadable.
	loaded, err := LoadBundle(dir)
	require.NoError(t, err)
	assert.Equal(t, 80, loaded.RowCount)
	assert.Equal(t, FeatureNames, loaded.FeatureNames)

	// The audit log recorded the run.
	runs, err := s.ListTrainingRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
	assert.Equal(t, model.TrainingRunComplete, runs[0].Status)
}

func TestTrainer_Reproducible(t *testing.T) {
	trainer, _, _ := trainerFixture(t, 60)

	first, _, err := trainer.Train(context.Background())
	require.NoError(t, err)
	second, _, err := trainer.Train(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.Metrics, second.Metrics)

	f1, err := first.Features(2020, 150000, 1, "Residential", "Condo", "Avon")
	require.NoError(t, err)
	f2, err := second.Features(2020, 150000, 1, "Residential", "Condo", "Avon")
	require.NoError(t, err)
	p1, err := first.Predict(f1)
	require.NoError(t, err)
	p2, err := second.Predict(f2)
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
}

func TestTrainer_NoData(t *testing.T) {
	trainer, s, _ := trainerFixture(t, 0)

	_, _, err := trainer.Train(context.Background())
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNoTrainingData))

	// No run is recorded when there is nothing to fit.
	runs, err := s.ListTrainingRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestTrainer_FailureRecorded(t *testing.T) {
	trainer, s, _ := trainerFixture(t, 40)
	trainer.cfg.Estimators = 0 // forces the forest fit to fail

	_, _, err := trainer.Train(context.Background())
	require.Error(t, err)

	runs, err := s.ListTrainingRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.TrainingRunFailed, runs[0].Status)
	assert.NotEmpty(t, runs[0].Error)
}
