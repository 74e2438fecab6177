package ml

import (
	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// minScale guards against division by a vanishing standard deviation on
// near-constant features.
const minScale = 1e-8

// StandardScaler standardizes features to zero mean and unit variance.
// Exported fields keep the fitted state gob-serializable.
type StandardScaler struct {
	Mean  []float64
	Scale []float64
}

// Fit computes per-column mean and standard deviation from the training
// matrix. Columns with a standard deviation below minScale get a scale
// of 1 so Transform leaves them centered but unscaled.
func (s *StandardScaler) Fit(X *mat.Dense) error {
	rows, cols := X.Dims()
	if rows == 0 || cols == 0 {
		return eris.New("ml: scaler fit on empty matrix")
	}

	s.Mean = make([]float64, cols)
	s.Scale = make([]float64, cols)

	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(col, j, X)
		mean, std := stat.MeanStdDev(col, nil)
		if rows < 2 || std < minScale {
			std = 1
		}
		s.Mean[j] = mean
		s.Scale[j] = std
	}
	return nil
}

// Transform returns a standardized copy of X using the fitted statistics.
func (s *StandardScaler) Transform(X *mat.Dense) (*mat.Dense, error) {
	rows, cols := X.Dims()
	if cols != len(s.Mean) {
		return nil, eris.Errorf("ml: scaler expects %d features, got %d", len(s.Mean), cols)
	}

	out := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			out.Set(i, j, (X.At(i, j)-s.Mean[j])/s.Scale[j])
		}
	}
	return out, nil
}

// FitTransform fits the scaler and returns the standardized matrix.
func (s *StandardScaler) FitTransform(X *mat.Dense) (*mat.Dense, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

// TransformRow standardizes a single feature vector in place.
func (s *StandardScaler) TransformRow(features []float64) error {
	if len(features) != len(s.Mean) {
		return eris.Errorf("ml: scaler expects %d features, got %d", len(s.Mean), len(features))
	}
	for j := range features {
		features[j] = (features[j] - s.Mean[j]) / s.Scale[j]
	}
	return nil
}
