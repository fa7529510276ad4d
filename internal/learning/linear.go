package learning

import (
	"context"
	"errors"

	"gonum.org/v1/gonum/mat"

	"github.com/Phillip-Gao/Flight-Forecast/internal/errs"
	"github.com/Phillip-Gao/Flight-Forecast/pkg/stats"
)

// LinearRegression is ordinary least squares with an intercept.
type LinearRegression struct {
	Coef      []float64
	Intercept float64
	// RankDeficient is set when the design matrix lacked full column rank
	// and the minimum-norm solution was used.
	RankDeficient bool
}

// NewLinearRegression returns an unfitted model.
func NewLinearRegression() *LinearRegression { return &LinearRegression{} }

// Kind implements Model.
func (m *LinearRegression) Kind() Kind { return KindLinear }

// Params implements Model.
func (m *LinearRegression) Params() map[string]any {
	return map[string]any{"features": len(m.Coef), "rank_deficient": m.RankDeficient}
}

// Fit solves min |y - [1 X]b|² by QR. A rank-deficient design falls back to
// the minimum-norm SVD solution.
func (m *LinearRegression) Fit(ctx context.Context, x [][]float64, y []float64) error {
	const op = "fit linear"
	d, err := checkXY(op, x, y)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	n := len(x)
	a := mat.NewDense(n, d+1, nil)
	for i, row := range x {
		a.Set(i, 0, 1)
		for j, v := range row {
			a.Set(i, j+1, v)
		}
	}
	b := mat.NewVecDense(n, append([]float64(nil), y...))

	var beta mat.VecDense
	rankDeficient := false
	if n <= d {
		rankDeficient = true
	} else if err := beta.SolveVec(a, b); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return errs.ModelFit(op, err)
		}
		rankDeficient = true
	}
	if rankDeficient {
		if err := minNormSolve(&beta, a, b); err != nil {
			return errs.ModelFit(op, err)
		}
	}

	coef := make([]float64, d+1)
	for i := range coef {
		coef[i] = beta.AtVec(i)
	}
	if !stats.AllFinite(coef) {
		return errs.ModelFitf(op, "solution is not finite")
	}
	m.Intercept = coef[0]
	m.Coef = coef[1:]
	m.RankDeficient = rankDeficient
	return nil
}

func minNormSolve(dst *mat.VecDense, a *mat.Dense, b *mat.VecDense) error {
	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return errors.New("svd factorization failed")
	}
	rank := svd.Rank(1e-12)
	if rank == 0 {
		return errors.New("design matrix has rank 0")
	}
	dst.Reset()
	svd.SolveVecTo(dst, b, rank)
	return nil
}

// Predict implements Model.
func (m *LinearRegression) Predict(x [][]float64) ([]float64, error) {
	if m.Coef == nil {
		return nil, errs.ModelFitf("predict linear", "model is not fitted")
	}
	if err := checkWidth("predict linear", x, len(m.Coef)); err != nil {
		return nil, err
	}
	out := make([]float64, len(x))
	for i, row := range x {
		v := m.Intercept
		for j, c := range m.Coef {
			v += c * row[j]
		}
		out[i] = v
	}
	return out, nil
}
