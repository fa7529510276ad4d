// Package benchmark provides the mean-predictor baseline the trained models
// are compared against.
package benchmark

import (
	"context"
	"encoding/gob"
	"math"

	"github.com/shopspring/decimal"

	"github.com/Phillip-Gao/Flight-Forecast/internal/errs"
	"github.com/Phillip-Gao/Flight-Forecast/internal/learning"
)

func init() {
	gob.Register(&MeanModel{})
}

// MeanModel predicts the training-set mean of the target for every row.
type MeanModel struct {
	Mean float64
	// Features is the expected row width; zero until fitted.
	Features int
}

// NewMeanModel creates an unfitted MeanModel.
func NewMeanModel() *MeanModel { return &MeanModel{} }

// Kind implements learning.Model.
func (m *MeanModel) Kind() learning.Kind { return learning.KindBaseline }

// Params implements learning.Model.
func (m *MeanModel) Params() map[string]any {
	return map[string]any{"mean": m.Mean}
}

// Fit implements learning.Model.
func (m *MeanModel) Fit(ctx context.Context, x [][]float64, y []float64) error {
	if len(y) == 0 || len(x) != len(y) {
		return errs.DataIntegrityf("fit baseline", "%d rows and %d targets", len(x), len(y))
	}
	var sum float64
	for _, v := range y {
		sum += v
	}
	mean := sum / float64(len(y))
	if math.IsNaN(mean) || math.IsInf(mean, 0) {
		return errs.ModelFitf("fit baseline", "target mean is %v", mean)
	}
	m.Mean, m.Features = mean, len(x[0])
	return nil
}

// Predict implements learning.Model.
func (m *MeanModel) Predict(x [][]float64) ([]float64, error) {
	if m.Features == 0 {
		return nil, errs.ModelFitf("predict baseline", "model is not fitted")
	}
	out := make([]float64, len(x))
	for i, row := range x {
		if len(row) != m.Features {
			return nil, errs.DataIntegrityf("predict baseline", "row %d has %d columns, model expects %d", i, len(row), m.Features)
		}
		out[i] = m.Mean
	}
	return out, nil
}

// Build returns a learning.BuildFunc fitting a MeanModel.
func Build() learning.BuildFunc {
	return func(ctx context.Context, p *learning.Prepared) (learning.Model, []learning.CandidateScore, error) {
		m := NewMeanModel()
		if err := m.Fit(ctx, p.XTrain, p.YTrain); err != nil {
			return nil, nil, err
		}
		return m, nil, nil
	}
}

// Improvement returns how much lower rmse is than the baseline's, in percent
// rounded to two places. ok is false when the baseline RMSE is zero or not finite.
func Improvement(baselineRMSE, rmse float64) (pct decimal.Decimal, ok bool) {
	if baselineRMSE == 0 || !finite(baselineRMSE) || !finite(rmse) {
		return decimal.Zero, false
	}
	base := decimal.NewFromFloat(baselineRMSE)
	diff := base.Sub(decimal.NewFromFloat(rmse))
	return diff.Div(base).Mul(decimal.NewFromInt(100)).Round(2), true
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
