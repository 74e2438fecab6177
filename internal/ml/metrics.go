package ml

import "math"

// EvalMetrics holds the held-out evaluation scores of a trained model.
type EvalMetrics struct {
	MAE  float64 `json:"mae"`
	RMSE float64 `json:"rmse"`
	R2   float64 `json:"r2"`
}

// MAE returns the mean absolute error.
func MAE(yTrue, yPred []float64) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	var sum float64
	for i := range yTrue {
		sum += math.Abs(yTrue[i] - yPred[i])
	}
	return sum / float64(len(yTrue))
}

// RMSE returns the root mean squared error.
func RMSE(yTrue, yPred []float64) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	var sum float64
	for i := range yTrue {
		diff := yTrue[i] - yPred[i]
		sum += diff * diff
	}
	return math.Sqrt(sum / float64(len(yTrue)))
}

// R2 returns the coefficient of determination. When the target has zero
// variance the score is 1 for exact predictions and 0 otherwise.
func R2(yTrue, yPred []float64) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	var mean float64
	for _, v := range yTrue {
		mean += v
	}
	mean /= float64(len(yTrue))

	var ssRes, ssTot float64
	for i := range yTrue {
		res := yTrue[i] - yPred[i]
		tot := yTrue[i] - mean
		ssRes += res * res
		ssTot += tot * tot
	}
	if ssTot == 0 {
		if ssRes == 0 {
			return 1
		}
		return 0
	}
	return 1 - ssRes/ssTot
}

// Evaluate scores predictions against actuals with the full metric set.
func Evaluate(yTrue, yPred []float64) EvalMetrics {
	return EvalMetrics{
		MAE:  MAE(yTrue, yPred),
		RMSE: RMSE(yTrue, yPred),
		R2:   R2(yTrue, yPred),
	}
}
