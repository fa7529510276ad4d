package learning

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Phillip-Gao/Flight-Forecast/internal/errs"
)

// Kind names a model family.
type Kind string

const (
	KindLinear   Kind = "linear"
	KindNetwork  Kind = "network"
	KindForest   Kind = "forest"
	KindBaseline Kind = "baseline"
)

// Model is a regressor over a dense feature matrix.
type Model interface {
	// Fit trains the model on x (row-major) and y.
	Fit(ctx context.Context, x [][]float64, y []float64) error
	// Predict returns one prediction per row of x.
	Predict(x [][]float64) ([]float64, error)
	// Kind returns the model family.
	Kind() Kind
	// Params describes the fitted hyperparameters for reports.
	Params() map[string]any
}

// NewVersion returns a fresh model version string.
func NewVersion(kind Kind) string {
	return fmt.Sprintf("%s-%s", kind, uuid.New().String())
}

func checkXY(op string, x [][]float64, y []float64) (int, error) {
	if len(x) == 0 {
		return 0, errs.DataIntegrityf(op, "no training rows")
	}
	if len(x) != len(y) {
		return 0, errs.DataIntegrityf(op, "%d rows but %d targets", len(x), len(y))
	}
	d := len(x[0])
	for i, row := range x {
		if len(row) != d {
			return 0, errs.DataIntegrityf(op, "row %d has %d columns, want %d", i, len(row), d)
		}
	}
	return d, nil
}

func checkWidth(op string, x [][]float64, d int) error {
	for i, row := range x {
		if len(row) != d {
			return errs.DataIntegrityf(op, "row %d has %d columns, model expects %d", i, len(row), d)
		}
	}
	return nil
}
