package ml

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/urbanytics/urbanytics/internal/model"
	"github.com/urbanytics/urbanytics/internal/store"
)

// ErrNoTrainingData is returned when the store holds no rows to fit on.
var ErrNoTrainingData = eris.New("ml: no training data available")

// TrainerConfig carries the model hyperparameters.
type TrainerConfig struct {
	ArtifactsDir string
	Estimators   int
	MaxDepth     int
	Seed         int64
	TestFraction float64
}

// Trainer fits a forest from the persisted property data and publishes
// the resulting artifact bundle. Every run is recorded in the store's
// training_runs audit log.
type Trainer struct {
	store store.Store
	cfg   TrainerConfig
}

// NewTrainer wires a Trainer to its backing store.
func NewTrainer(s store.Store, cfg TrainerConfig) *Trainer {
	return &Trainer{store: s, cfg: cfg}
}

// Train loads all training rows, fits and evaluates the model on an
// 80/20-style split, persists the artifact, and returns the bundle.
func (t *Trainer) Train(ctx context.Context) (*Bundle, *model.TrainingRun, error) {
	rows, err := t.store.TrainingRows(ctx)
	if err != nil {
		return nil, nil, err
	}
	if len(rows) == 0 {
		return nil, nil, ErrNoTrainingData
	}

	run := &model.TrainingRun{
		ID:        uuid.New().String(),
		Status:    model.TrainingRunRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := t.store.CreateTrainingRun(ctx, run); err != nil {
		return nil, nil, err
	}

	bundle, err := t.fit(rows)
	if err != nil {
		t.failRun(ctx, run, err)
		return nil, nil, err
	}

	if err := bundle.Save(t.cfg.ArtifactsDir); err != nil {
		t.failRun(ctx, run, err)
		return nil, nil, err
	}

	finished := time.Now().UTC()
	run.Status = model.TrainingRunComplete
	run.RowCount = len(rows)
	run.MAE = bundle.Metrics.MAE
	run.RMSE = bundle.Metrics.RMSE
	run.R2 = bundle.Metrics.R2
	run.FinishedAt = &finished
	if err := t.store.CompleteTrainingRun(ctx, run); err != nil {
		return nil, nil, err
	}

	zap.L().Info("model trained",
		zap.String("run_id", run.ID),
		zap.Int("rows", run.RowCount),
		zap.Float64("mae", run.MAE),
		zap.Float64("rmse", run.RMSE),
		zap.Float64("r2", run.R2),
		zap.Duration("elapsed", finished.Sub(run.StartedAt)),
	)
	return bundle, run, nil
}

func (t *Trainer) fit(rows []model.TrainingRow) (*Bundle, error) {
	encoders := fitEncoders(rows)

	X := mat.NewDense(len(rows), len(FeatureNames), nil)
	y := make([]float64, len(rows))
	for i, r := range rows {
		X.SetRow(i, []float64{
			r.ListYear,
			r.AssessedValue,
			r.YearsUntilSold,
			encoders[EncoderPropertyType].Encode(r.PropertyType),
			encoders[EncoderResidentialType].Encode(r.ResidentialType),
			encoders[EncoderTown].Encode(r.Town),
		})
		y[i] = r.SaleAmount
	}

	XTrain, XTest, yTrain, yTest, err := TrainTestSplit(X, y, t.cfg.TestFraction, t.cfg.Seed)
	if err != nil {
		return nil, err
	}

	scaler := &StandardScaler{}
	XTrainScaled, err := scaler.FitTransform(XTrain)
	if err != nil {
		return nil, err
	}
	XTestScaled, err := scaler.Transform(XTest)
	if err != nil {
		return nil, err
	}

	forest := NewForestRegressor(t.cfg.Estimators, t.cfg.MaxDepth, t.cfg.Seed)
	if err := forest.Fit(XTrainScaled, yTrain); err != nil {
		return nil, err
	}

	preds, err := forest.PredictBatch(XTestScaled)
	if err != nil {
		return nil, err
	}

	return &Bundle{
		Forest:       forest,
		Scaler:       scaler,
		Encoders:     encoders,
		FeatureNames: FeatureNames,
		Metrics:      Evaluate(yTest, preds),
		RowCount:     len(rows),
		Version:      ModelVersion,
		TrainedAt:    time.Now().UTC(),
	}, nil
}

func (t *Trainer) failRun(ctx context.Context, run *model.TrainingRun, cause error) {
	finished := time.Now().UTC()
	run.Status = model.TrainingRunFailed
	run.Error = cause.Error()
	run.FinishedAt = &finished
	if err := t.store.CompleteTrainingRun(ctx, run); err != nil {
		zap.L().Warn("failed to record training run failure",
			zap.String("run_id", run.ID), zap.Error(err))
	}
}

func fitEncoders(rows []model.TrainingRow) map[string]*CategoryEncoder {
	ptypes := make([]string, len(rows))
	rtypes := make([]string, len(rows))
	towns := make([]string, len(rows))
	for i, r := range rows {
		ptypes[i] = r.PropertyType
		rtypes[i] = r.ResidentialType
		towns[i] = r.Town
	}
	return map[string]*CategoryEncoder{
		EncoderPropertyType:    FitCategoryEncoder(ptypes),
		EncoderResidentialType: FitCategoryEncoder(rtypes),
		EncoderTown:            FitCategoryEncoder(towns),
	}
}
