package ml

import (
	"math/rand"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"
)

// TrainTestSplit shuffles the samples with the given seed and splits them
// into train and test partitions. testFraction is the share of samples
// held out, rounded down with at least one test sample when possible.
func TrainTestSplit(X *mat.Dense, y []float64, testFraction float64, seed int64) (XTrain, XTest *mat.Dense, yTrain, yTest []float64, err error) {
	rows, cols := X.Dims()
	if rows != len(y) {
		return nil, nil, nil, nil, eris.Errorf("ml: split needs matching lengths, got %d samples and %d targets", rows, len(y))
	}
	if testFraction <= 0 || testFraction >= 1 {
		return nil, nil, nil, nil, eris.Errorf("ml: test fraction must be in (0, 1), got %g", testFraction)
	}

	nTest := int(float64(rows) * testFraction)
	if nTest == 0 && rows > 1 {
		nTest = 1
	}
	if nTest >= rows {
		return nil, nil, nil, nil, eris.Errorf("ml: test fraction %g leaves no training samples", testFraction)
	}

	indices := rand.New(rand.NewSource(seed)).Perm(rows)
	testIdx, trainIdx := indices[:nTest], indices[nTest:]

	takeRows := func(idx []int) (*mat.Dense, []float64) {
		m := mat.NewDense(len(idx), cols, nil)
		targets := make([]float64, len(idx))
		for i, src := range idx {
			m.SetRow(i, X.RawRowView(src))
			targets[i] = y[src]
		}
		return m, targets
	}

	XTrain, yTrain = takeRows(trainIdx)
	XTest, yTest = takeRows(testIdx)
	return XTrain, XTest, yTrain, yTest, nil
}
