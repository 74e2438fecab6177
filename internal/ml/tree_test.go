package ml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestRegressionTree_StepFunction(t *testing.T) {
	// Target jumps at x=5; a depth-1 tree recovers it exactly.
	X := mat.NewDense(8, 1, []float64{1, 2, 3, 4, 6, 7, 8, 9})
	y := []float64{10, 10, 10, 10, 50, 50, 50, 50}

	tree := &RegressionTree{MaxDepth: 1}
	tree.Fit(X, y, nil)

	require.NotNil(t, tree.Root)
	assert.False(t, tree.Root.IsLeaf)
	assert.Equal(t, 0, tree.Root.Feature)
	assert.InDelta(t, 5.0, tree.Root.Threshold, 1e-9)

	assert.Equal(t, 10.0, tree.Predict([]float64{0}))
	assert.Equal(t, 10.0, tree.Predict([]float64{4.9}))
	assert.Equal(t, 50.0, tree.Predict([]float64{5.1}))
	assert.Equal(t, 50.0, tree.Predict([]float64{100}))
}

func TestRegressionTree_ConstantTarget(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{1, 2, 3, 4, 5, 6, 7, 8})
	y := []float64{7, 7, 7, 7}

	tree := &RegressionTree{MaxDepth: 5}
	tree.Fit(X, y, nil)

	// Zero impurity at the root means no split at all.
	assert.True(t, tree.Root.IsLeaf)
	assert.Equal(t, 7.0, tree.Predict([]float64{0, 0}))
}

func TestRegressionTree_MaxDepthRespected(t *testing.T) {
	n := 32
	X := mat.NewDense(n, 1, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		X.Set(i, 0, float64(i))
		y[i] = float64(i * i)
	}

	tree := &RegressionTree{MaxDepth: 2}
	tree.Fit(X, y, nil)

	var maxDepth func(node *TreeNode) int
	maxDepth = func(node *TreeNode) int {
		if node == nil || node.IsLeaf {
			return 0
		}
		left, right := maxDepth(node.Left), maxDepth(node.Right)
		if right > left {
			left = right
		}
		return 1 + left
	}
	assert.LessOrEqual(t, maxDepth(tree.Root), 2)
}

func TestRegressionTree_ImportancesTrackSplitFeature(t *testing.T) {
	// Feature 1 carries all the signal; feature 0 is constant.
	X := mat.NewDense(6, 2, []float64{
		1, 1,
		1, 2,
		1, 3,
		1, 10,
		1, 11,
		1, 12,
	})
	y := []float64{5, 5, 5, 90, 90, 90}

	tree := &RegressionTree{MaxDepth: 3}
	tree.Fit(X, y, nil)

	imp := tree.featureImportances()
	assert.Equal(t, 0.0, imp[0])
	assert.Greater(t, imp[1], 0.0)
}

func TestRegressionTree_BootstrapIndices(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{1, 2, 3, 4})
	y := []float64{10, 20, 30, 40}

	// Fit only on the duplicated low half.
	tree := &RegressionTree{MaxDepth: 3}
	tree.Fit(X, y, []int{0, 0, 1, 1})

	assert.Equal(t, 10.0, tree.Predict([]float64{1}))
	assert.Equal(t, 20.0, tree.Predict([]float64{4}))
}
