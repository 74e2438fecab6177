package ml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestStandardScaler_FitTransform(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{
		1, 100,
		2, 200,
		3, 300,
		4, 400,
	})

	s := &StandardScaler{}
	scaled, err := s.FitTransform(X)
	require.NoError(t, err)

	assert.InDelta(t, 2.5, s.Mean[0], 1e-9)
	assert.InDelta(t, 250, s.Mean[1], 1e-9)

	// Columns center on zero after the transform.
	for j := 0; j < 2; j++ {
		var sum float64
		for i := 0; i < 4; i++ {
			sum += scaled.At(i, j)
		}
		assert.InDelta(t, 0, sum, 1e-9)
	}
}

func TestStandardScaler_ConstantColumn(t *testing.T) {
	X := mat.NewDense(3, 1, []float64{5, 5, 5})

	s := &StandardScaler{}
	scaled, err := s.FitTransform(X)
	require.NoError(t, err)

	// Scale falls back to 1, so the column is centered but not blown up.
	assert.Equal(t, 1.0, s.Scale[0])
	assert.Equal(t, 0.0, scaled.At(0, 0))
}

func TestStandardScaler_TransformRow(t *testing.T) {
	X := mat.NewDense(2, 2, []float64{0, 10, 2, 30})
	s := &StandardScaler{}
	require.NoError(t, s.Fit(X))

	row := []float64{1, 20}
	require.NoError(t, s.TransformRow(row))
	assert.InDelta(t, 0, row[0], 1e-9)
	assert.InDelta(t, 0, row[1], 1e-9)

	assert.Error(t, s.TransformRow([]float64{1}))
}

func TestStandardScaler_DimensionMismatch(t *testing.T) {
	s := &StandardScaler{Mean: []float64{0, 0}, Scale: []float64{1, 1}}
	_, err := s.Transform(mat.NewDense(1, 3, []float64{1, 2, 3}))
	assert.Error(t, err)
}
