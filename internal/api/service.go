package api

import (
	"context"
	"os"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/urbanytics/urbanytics/internal/ml"
	"github.com/urbanytics/urbanytics/internal/model"
)

// ModelService owns the currently served model bundle. Training swaps
// the bundle atomically under a write lock, so in-flight predictions
// always see a complete model.
type ModelService struct {
	trainer      *ml.Trainer
	artifactsDir string

	mu     sync.RWMutex
	bundle *ml.Bundle
}

// NewModelService wires the service to its trainer and artifact location.
func NewModelService(trainer *ml.Trainer, artifactsDir string) *ModelService {
	return &ModelService{trainer: trainer, artifactsDir: artifactsDir}
}

// Bundle returns the current model, or nil before the first load.
func (m *ModelService) Bundle() *ml.Bundle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bundle
}

// Ready reports whether a model is loaded and serving.
func (m *ModelService) Ready() bool {
	return m.Bundle() != nil
}

// LoadArtifact reads the persisted bundle from disk and starts serving it.
func (m *ModelService) LoadArtifact() error {
	bundle, err := ml.LoadBundle(m.artifactsDir)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.bundle = bundle
	m.mu.Unlock()

	zap.L().Info("model artifact loaded",
		zap.String("dir", m.artifactsDir),
		zap.String("version", bundle.Version),
		zap.Int("rows", bundle.RowCount),
	)
	return nil
}

// Train fits a fresh model from the store and swaps it in on success.
func (m *ModelService) Train(ctx context.Context) (*model.TrainingRun, error) {
	bundle, run, err := m.trainer.Train(ctx)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.bundle = bundle
	m.mu.Unlock()
	return run, nil
}

// EnsureReady loads the persisted artifact if one exists, otherwise
// trains from scratch. Called once at service startup; an empty database
// leaves the service up with no model rather than failing.
func (m *ModelService) EnsureReady(ctx context.Context) error {
	err := m.LoadArtifact()
	if err == nil {
		return nil
	}
	if !eris.Is(err, os.ErrNotExist) && !eris.Is(err, ml.ErrIncompleteArtifact) {
		return err
	}

	zap.L().Info("no usable model artifact, training from store", zap.Error(err))
	if _, err := m.Train(ctx); err != nil {
		if eris.Is(err, ml.ErrNoTrainingData) {
			zap.L().Warn("no training data loaded yet, serving without a model")
			return nil
		}
		return err
	}
	return nil
}
