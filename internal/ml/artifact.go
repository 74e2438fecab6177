package ml

import (
	"encoding/gob"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
)

// ErrIncompleteArtifact is returned when an artifact directory exists but
// is missing one or more of its files. A bundle is only usable whole.
var ErrIncompleteArtifact = eris.New("ml: artifact bundle is incomplete")

// FeatureNames is the fixed input order of the model.
var FeatureNames = []string{
	"list_year",
	"assessed_value",
	"years_until_sold",
	"property_type_encoded",
	"residential_type_encoded",
	"town_encoded",
}

// Encoder map keys.
const (
	EncoderPropertyType    = "property_type"
	EncoderResidentialType = "residential_type"
	EncoderTown            = "town"
)

const (
	forestFile   = "forest.gob"
	scalerFile   = "scaler.gob"
	encodersFile = "encoders.gob"
	metadataFile = "metadata.json"
)

// ModelVersion identifies the artifact layout and feature contract.
const ModelVersion = "1.0.0"

// Bundle is everything the serving layer needs to answer predictions:
// the fitted forest, the scaler, the categorical encoders, and metadata
// about the training run that produced them.
type Bundle struct {
	Forest   *ForestRegressor
	Scaler   *StandardScaler
	Encoders map[string]*CategoryEncoder

	FeatureNames []string    `json:"feature_names"`
	Metrics      EvalMetrics `json:"metrics"`
	RowCount     int         `json:"row_count"`
	Version      string      `json:"model_version"`
	TrainedAt    time.Time   `json:"trained_at"`
}

// Features assembles the scaled model input vector for one prediction.
// Categories unseen at training time encode to 0.
func (b *Bundle) Features(listYear, assessedValue, yearsUntilSold float64, propertyType, residentialType, town string) ([]float64, error) {
	features := []float64{
		listYear,
		assessedValue,
		yearsUntilSold,
		b.Encoders[EncoderPropertyType].Encode(propertyType),
		b.Encoders[EncoderResidentialType].Encode(residentialType),
		b.Encoders[EncoderTown].Encode(town),
	}
	if err := b.Scaler.TransformRow(features); err != nil {
		return nil, err
	}
	return features, nil
}

// Predict scores one scaled feature vector. Estimates are clamped at
// zero; a sale price cannot be negative.
func (b *Bundle) Predict(features []float64) (float64, error) {
	p, err := b.Forest.Predict(features)
	if err != nil {
		return 0, err
	}
	if p < 0 {
		p = 0
	}
	return p, nil
}

// bundleMetadata is the JSON sidecar persisted next to the gob files.
type bundleMetadata struct {
	FeatureNames []string    `json:"feature_names"`
	Metrics      EvalMetrics `json:"metrics"`
	RowCount     int         `json:"row_count"`
	Version      string      `json:"model_version"`
	TrainedAt    time.Time   `json:"trained_at"`
}

// Save writes the bundle to dir atomically: all files land in a staging
// directory first, which then replaces dir in a single rename. Readers
// never observe a half-written artifact.
func (b *Bundle) Save(dir string) error {
	parent := filepath.Dir(dir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return eris.Wrapf(err, "ml: create artifact parent %s", parent)
	}

	staging, err := os.MkdirTemp(parent, ".artifact-*")
	if err != nil {
		return eris.Wrap(err, "ml: create staging dir")
	}
	defer os.RemoveAll(staging)

	if err := writeGob(filepath.Join(staging, forestFile), b.Forest); err != nil {
		return err
	}
	if err := writeGob(filepath.Join(staging, scalerFile), b.Scaler); err != nil {
		return err
	}
	if err := writeGob(filepath.Join(staging, encodersFile), b.Encoders); err != nil {
		return err
	}

	meta := bundleMetadata{
		FeatureNames: b.FeatureNames,
		Metrics:      b.Metrics,
		RowCount:     b.RowCount,
		Version:      b.Version,
		TrainedAt:    b.TrainedAt,
	}
	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return eris.Wrap(err, "ml: marshal metadata")
	}
	if err := os.WriteFile(filepath.Join(staging, metadataFile), metaJSON, 0o644); err != nil {
		return eris.Wrap(err, "ml: write metadata")
	}

	if err := os.RemoveAll(dir); err != nil {
		return eris.Wrapf(err, "ml: remove stale artifact %s", dir)
	}
	if err := os.Rename(staging, dir); err != nil {
		return eris.Wrapf(err, "ml: publish artifact %s", dir)
	}
	return nil
}

// LoadBundle reads an artifact directory written by Save. A directory
// with some but not all files returns ErrIncompleteArtifact.
func LoadBundle(dir string) (*Bundle, error) {
	files := []string{forestFile, scalerFile, encodersFile, metadataFile}
	var present int
	for _, f := range files {
		if _, err := os.Stat(filepath.Join(dir, f)); err == nil {
			present++
		}
	}
	if present == 0 {
		return nil, eris.Wrapf(os.ErrNotExist, "ml: no artifact at %s", dir)
	}
	if present < len(files) {
		return nil, eris.Wrapf(ErrIncompleteArtifact, "ml: %s has %d of %d files", dir, present, len(files))
	}

	b := &Bundle{}
	if err := readGob(filepath.Join(dir, forestFile), &b.Forest); err != nil {
		return nil, err
	}
	if err := readGob(filepath.Join(dir, scalerFile), &b.Scaler); err != nil {
		return nil, err
	}
	if err := readGob(filepath.Join(dir, encodersFile), &b.Encoders); err != nil {
		return nil, err
	}

	metaJSON, err := os.ReadFile(filepath.Join(dir, metadataFile))
	if err != nil {
		return nil, eris.Wrap(err, "ml: read metadata")
	}
	var meta bundleMetadata
	if err := json.Unmarshal(metaJSON, &meta); err != nil {
		return nil, eris.Wrap(err, "ml: unmarshal metadata")
	}
	b.FeatureNames = meta.FeatureNames
	b.Metrics = meta.Metrics
	b.RowCount = meta.RowCount
	b.Version = meta.Version
	b.TrainedAt = meta.TrainedAt
	return b, nil
}

func writeGob(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "ml: create %s", path)
	}
	defer f.Close()

	if err := gob.NewEncoder(f).Encode(v); err != nil {
		return eris.Wrapf(err, "ml: encode %s", path)
	}
	return eris.Wrapf(f.Close(), "ml: close %s", path)
}

func readGob(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return eris.Wrapf(err, "ml: open %s", path)
	}
	defer f.Close()

	return eris.Wrapf(gob.NewDecoder(f).Decode(v), "ml: decode %s", path)
}
