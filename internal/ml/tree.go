package ml

import (
	"sort"

	"gonum.org/v1/gonum/mat"
)

// TreeNode is one node of a fitted regression tree. Internal nodes route
// samples on Feature <= Threshold; leaves carry the mean target value.
// Fields are exported so trees gob-encode inside the artifact bundle.
type TreeNode struct {
	IsLeaf    bool
	Feature   int
	Threshold float64
	Left      *TreeNode
	Right     *TreeNode
	Value     float64
	NSamples  int
}

// RegressionTree is a CART regressor splitting on variance reduction.
type RegressionTree struct {
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	Root            *TreeNode

	// importance accumulation, only populated during Fit
	importances []float64
}

// Fit builds the tree over the samples selected by indices. Passing nil
// indices fits on every row of X.
func (t *RegressionTree) Fit(X *mat.Dense, y []float64, indices []int) {
	rows, cols := X.Dims()
	if indices == nil {
		indices = make([]int, rows)
		for i := range indices {
			indices[i] = i
		}
	}
	if t.MinSamplesSplit < 2 {
		t.MinSamplesSplit = 2
	}
	if t.MinSamplesLeaf < 1 {
		t.MinSamplesLeaf = 1
	}

	t.importances = make([]float64, cols)
	t.Root = t.buildNode(X, y, indices, 0)
}

// Predict returns the tree's estimate for a single feature vector.
func (t *RegressionTree) Predict(features []float64) float64 {
	node := t.Root
	for node != nil && !node.IsLeaf {
		if features[node.Feature] <= node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	if node == nil {
		return 0
	}
	return node.Value
}

// featureImportances returns the unnormalized impurity-decrease totals
// accumulated during Fit.
func (t *RegressionTree) featureImportances() []float64 {
	return t.importances
}

func (t *RegressionTree) buildNode(X *mat.Dense, y []float64, indices []int, depth int) *TreeNode {
	n := len(indices)
	mean, impurity := meanVariance(y, indices)

	node := &TreeNode{Value: mean, NSamples: n}

	if depth >= t.MaxDepth || n < t.MinSamplesSplit || impurity == 0 {
		node.IsLeaf = true
		return node
	}

	feature, threshold, decrease := t.findBestSplit(X, y, indices, impurity)
	if feature < 0 {
		node.IsLeaf = true
		return node
	}

	var left, right []int
	for _, idx := range indices {
		if X.At(idx, feature) <= threshold {
			left = append(left, idx)
		} else {
			right = append(right, idx)
		}
	}
	if len(left) < t.MinSamplesLeaf || len(right) < t.MinSamplesLeaf {
		node.IsLeaf = true
		return node
	}

	t.importances[feature] += decrease * float64(n)

	node.Feature = feature
	node.Threshold = threshold
	node.Left = t.buildNode(X, y, left, depth+1)
	node.Right = t.buildNode(X, y, right, depth+1)
	return node
}

// findBestSplit scans every feature for the threshold with the largest
// variance reduction, using prefix sums over the sorted column.
func (t *RegressionTree) findBestSplit(X *mat.Dense, y []float64, indices []int, parentImpurity float64) (int, float64, float64) {
	_, cols := X.Dims()
	n := len(indices)

	bestFeature := -1
	bestThreshold := 0.0
	bestDecrease := 0.0

	type sample struct {
		value  float64
		target float64
	}
	samples := make([]sample, n)

	for j := 0; j < cols; j++ {
		for i, idx := range indices {
			samples[i] = sample{value: X.At(idx, j), target: y[idx]}
		}
		sort.Slice(samples, func(a, b int) bool { return samples[a].value < samples[b].value })

		var sumLeft, sumSqLeft float64
		var sumRight, sumSqRight float64
		for _, s := range samples {
			sumRight += s.target
			sumSqRight += s.target * s.target
		}

		for i := 0; i < n-1; i++ {
			tgt := samples[i].target
			sumLeft += tgt
			sumSqLeft += tgt * tgt
			sumRight -= tgt
			sumSqRight -= tgt * tgt

			if samples[i].value == samples[i+1].value {
				continue
			}
			nLeft := i + 1
			nRight := n - nLeft
			if nLeft < t.MinSamplesLeaf || nRight < t.MinSamplesLeaf {
				continue
			}

			impLeft := variance(sumLeft, sumSqLeft, nLeft)
			impRight := variance(sumRight, sumSqRight, nRight)
			weighted := (float64(nLeft)*impLeft + float64(nRight)*impRight) / float64(n)

			if decrease := parentImpurity - weighted; decrease > bestDecrease {
				bestFeature = j
				bestThreshold = (samples[i].value + samples[i+1].value) / 2
				bestDecrease = decrease
			}
		}
	}
	return bestFeature, bestThreshold, bestDecrease
}

func meanVariance(y []float64, indices []int) (float64, float64) {
	var sum, sumSq float64
	for _, idx := range indices {
		sum += y[idx]
		sumSq += y[idx] * y[idx]
	}
	n := len(indices)
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), variance(sum, sumSq, n)
}

func variance(sum, sumSq float64, n int) float64 {
	mean := sum / float64(n)
	v := sumSq/float64(n) - mean*mean
	if v < 0 {
		// floating point cancellation
		return 0
	}
	return v
}
