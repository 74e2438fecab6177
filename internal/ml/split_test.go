package ml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func splitFixture(n int) (*mat.Dense, []float64) {
	X := mat.NewDense(n, 1, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		X.Set(i, 0, float64(i))
		y[i] = float64(i)
	}
	return X, y
}

func TestTrainTestSplit_Sizes(t *testing.T) {
	X, y := splitFixture(10)

	XTrain, XTest, yTrain, yTest, err := TrainTestSplit(X, y, 0.2, 42)
	require.NoError(t, err)

	trainRows, _ := XTrain.Dims()
	testRows, _ := XTest.Dims()
	assert.Equal(t, 8, trainRows)
	assert.Equal(t, 2, testRows)
	assert.Len(t, yTrain, 8)
	assert.Len(t, yTest, 2)

	// Feature and target stay paired, and the partitions are disjoint.
	seen := map[float64]bool{}
	for i := 0; i < trainRows; i++ {
		assert.Equal(t, yTrain[i], XTrain.At(i, 0))
		seen[yTrain[i]] = true
	}
	for i := 0; i < testRows; i++ {
		assert.Equal(t, yTest[i], XTest.At(i, 0))
		assert.False(t, seen[yTest[i]])
	}
}

func TestTrainTestSplit_Deterministic(t *testing.T) {
	X, y := splitFixture(20)

	_, _, _, first, err := TrainTestSplit(X, y, 0.2, 42)
	require.NoError(t, err)
	_, _, _, second, err := TrainTestSplit(X, y, 0.2, 42)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	_, _, _, other, err := TrainTestSplit(X, y, 0.2, 7)
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}

func TestTrainTestSplit_TinyDataset(t *testing.T) {
	X, y := splitFixture(2)

	XTrain, XTest, _, _, err := TrainTestSplit(X, y, 0.2, 42)
	require.NoError(t, err)

	// Rounding down would leave no test rows; at least one is held out.
	trainRows, _ := XTrain.Dims()
	testRows, _ := XTest.Dims()
	assert.Equal(t, 1, trainRows)
	assert.Equal(t, 1, testRows)
}

func TestTrainTestSplit_InvalidInputs(t *testing.T) {
	X, y := splitFixture(4)

	_, _, _, _, err := TrainTestSplit(X, y, 0, 42)
	assert.Error(t, err)
	_, _, _, _, err = TrainTestSplit(X, y, 1, 42)
	assert.Error(t, err)
	_, _, _, _, err = TrainTestSplit(X, y[:3], 0.5, 42)
	assert.Error(t, err)
}
