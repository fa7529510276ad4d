package learning

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/Phillip-Gao/Flight-Forecast/internal/errs"
)

// DefaultAccuracyThreshold is the tolerance, in minutes, of CustomAccuracy.
const DefaultAccuracyThreshold = 5.0

// Metrics are the evaluation scores of one model on one test set.
type Metrics struct {
	RMSE      float64
	MSE       float64
	R2        float64
	Accuracy  float64
	Residuals Residuals
}

// Residuals summarises y - ŷ over a test set.
type Residuals struct {
	Mean float64
	Std  float64
	Min  float64
	Max  float64
}

// Evaluate computes RMSE, MSE, R², CustomAccuracy and the residual summary of
// yPred against yTrue.
func Evaluate(yTrue, yPred []float64, threshold float64) (Metrics, error) {
	mse, err := MSE(yTrue, yPred)
	if err != nil {
		return Metrics{}, err
	}
	r2, err := R2(yTrue, yPred)
	if err != nil {
		return Metrics{}, err
	}
	acc, err := CustomAccuracy(yTrue, yPred, threshold)
	if err != nil {
		return Metrics{}, err
	}
	res, err := SummarizeResiduals(yTrue, yPred)
	if err != nil {
		return Metrics{}, err
	}
	return Metrics{RMSE: math.Sqrt(mse), MSE: mse, R2: r2, Accuracy: acc, Residuals: res}, nil
}

// SummarizeResiduals returns the mean, sample standard deviation and range of
// yTrue - yPred. An empty input gives the zero value; a single pair has Std 0.
func SummarizeResiduals(yTrue, yPred []float64) (Residuals, error) {
	if len(yTrue) != len(yPred) {
		return Residuals{}, errs.DataIntegrityf("residuals", "%d targets but %d predictions", len(yTrue), len(yPred))
	}
	if len(yTrue) == 0 {
		return Residuals{}, nil
	}
	diff := make([]float64, len(yTrue))
	floats.SubTo(diff, yTrue, yPred)
	out := Residuals{Min: floats.Min(diff), Max: floats.Max(diff)}
	if len(diff) == 1 {
		out.Mean = diff[0]
		return out, nil
	}
	out.Mean, out.Std = stat.MeanStdDev(diff, nil)
	return out, nil
}

// MSE returns the mean squared error. An empty input gives 0.
func MSE(yTrue, yPred []float64) (float64, error) {
	if len(yTrue) != len(yPred) {
		return 0, errs.DataIntegrityf("mse", "%d targets but %d predictions", len(yTrue), len(yPred))
	}
	if len(yTrue) == 0 {
		return 0, nil
	}
	var sum float64
	for i := range yTrue {
		d := yTrue[i] - yPred[i]
		sum += d * d
	}
	return sum / float64(len(yTrue)), nil
}

// RMSE returns the root mean squared error.
func RMSE(yTrue, yPred []float64) (float64, error) {
	mse, err := MSE(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(mse), nil
}

// R2 returns the coefficient of determination. A constant yTrue gives 1 for a
// perfect fit and 0 otherwise.
func R2(yTrue, yPred []float64) (float64, error) {
	if len(yTrue) != len(yPred) {
		return 0, errs.DataIntegrityf("r2", "%d targets but %d predictions", len(yTrue), len(yPred))
	}
	if len(yTrue) == 0 {
		return 0, nil
	}
	var mean float64
	for _, v := range yTrue {
		mean += v
	}
	mean /= float64(len(yTrue))
	var ssRes, ssTot float64
	for i, v := range yTrue {
		ssRes += (v - yPred[i]) * (v - yPred[i])
		ssTot += (v - mean) * (v - mean)
	}
	if ssTot == 0 {
		if ssRes == 0 {
			return 1, nil
		}
		return 0, nil
	}
	return 1 - ssRes/ssTot, nil
}

// CustomAccuracy returns the fraction of predictions within threshold of the
// truth, inclusive. An empty input gives 0.
func CustomAccuracy(yTrue, yPred []float64, threshold float64) (float64, error) {
	if len(yTrue) != len(yPred) {
		return 0, errs.DataIntegrityf("custom accuracy", "%d targets but %d predictions", len(yTrue), len(yPred))
	}
	if len(yTrue) == 0 {
		return 0, nil
	}
	hits := 0
	for i := range yTrue {
		if math.Abs(yTrue[i]-yPred[i]) <= threshold {
			hits++
		}
	}
	return float64(hits) / float64(len(yTrue)), nil
}
