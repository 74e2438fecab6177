package ml

import (
	"math/rand"
	"runtime"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// ForestRegressor is a bagged ensemble of regression trees. Each tree is
// fitted on a bootstrap resample of the training data and predictions
// average over the ensemble. A fixed Seed makes training reproducible:
// tree i draws its bootstrap from a source seeded with Seed+i, so the
// ensemble is identical regardless of fit parallelism.
type ForestRegressor struct {
	Estimators int
	MaxDepth   int
	Seed       int64

	Trees       []*RegressionTree
	NFeatures   int
	Importances []float64
}

// NewForestRegressor returns an unfitted forest with the given shape.
func NewForestRegressor(estimators, maxDepth int, seed int64) *ForestRegressor {
	return &ForestRegressor{
		Estimators: estimators,
		MaxDepth:   maxDepth,
		Seed:       seed,
	}
}

// Fit trains the ensemble. Trees are fitted in parallel across the
// available CPUs.
func (f *ForestRegressor) Fit(X *mat.Dense, y []float64) error {
	rows, cols := X.Dims()
	if rows == 0 {
		return eris.New("ml: forest fit on empty matrix")
	}
	if rows != len(y) {
		return eris.Errorf("ml: forest fit needs matching lengths, got %d samples and %d targets", rows, len(y))
	}
	if f.Estimators <= 0 {
		return eris.Errorf("ml: forest needs at least one estimator, got %d", f.Estimators)
	}

	f.NFeatures = cols
	f.Trees = make([]*RegressionTree, f.Estimators)

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i := 0; i < f.Estimators; i++ {
		g.Go(func() error {
			rng := rand.New(rand.NewSource(f.Seed + int64(i)))
			indices := make([]int, rows)
			for j := range indices {
				indices[j] = rng.Intn(rows)
			}

			tree := &RegressionTree{MaxDepth: f.MaxDepth}
			tree.Fit(X, y, indices)
			f.Trees[i] = tree
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	f.Importances = f.averageImportances(cols)
	return nil
}

// Predict averages the per-tree estimates for one feature vector.
func (f *ForestRegressor) Predict(features []float64) (float64, error) {
	if len(f.Trees) == 0 {
		return 0, eris.New("ml: forest is not fitted")
	}
	if len(features) != f.NFeatures {
		return 0, eris.Errorf("ml: forest expects %d features, got %d", f.NFeatures, len(features))
	}

	var sum float64
	for _, tree := range f.Trees {
		sum += tree.Predict(features)
	}
	return sum / float64(len(f.Trees)), nil
}

// PredictBatch predicts every row of X.
func (f *ForestRegressor) PredictBatch(X *mat.Dense) ([]float64, error) {
	rows, _ := X.Dims()
	out := make([]float64, rows)
	for i := 0; i < rows; i++ {
		p, err := f.Predict(X.RawRowView(i))
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

// averageImportances sums the per-tree impurity decreases and normalizes
// them to a unit total.
func (f *ForestRegressor) averageImportances(cols int) []float64 {
	totals := make([]float64, cols)
	var sum float64
	for _, tree := range f.Trees {
		for j, imp := range tree.featureImportances() {
			totals[j] += imp
			sum += imp
		}
	}
	if sum > 0 {
		for j := range totals {
			totals[j] /= sum
		}
	}
	return totals
}
