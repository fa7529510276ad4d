// Package preprocess holds the matrix transforms shared by every trainer:
// the train/test split, k-fold partitioning, standard scaling and PCA.
package preprocess

import (
	"github.com/Phillip-Gao/Flight-Forecast/internal/errs"
	"github.com/Phillip-Gao/Flight-Forecast/pkg/stats"
)

// StandardScaler centers each column on its training mean and divides by the
// population standard deviation. A zero deviation is treated as 1.
type StandardScaler struct {
	Mean  []float64
	Scale []float64
}

// FitScaler learns per-column mean and deviation from x.
func FitScaler(x [][]float64) (*StandardScaler, error) {
	if len(x) == 0 {
		return nil, errs.DataIntegrityf("fit scaler", "no rows")
	}
	d := len(x[0])
	s := &StandardScaler{Mean: make([]float64, d), Scale: make([]float64, d)}
	col := make([]float64, len(x))
	for j := 0; j < d; j++ {
		for i, row := range x {
			if len(row) != d {
				return nil, errs.DataIntegrityf("fit scaler", "row %d has %d columns, want %d", i, len(row), d)
			}
			col[i] = row[j]
		}
		if !stats.AllFinite(col) {
			return nil, errs.DataIntegrityf("fit scaler", "column %d holds NaN or Inf", j)
		}
		mean, std := stats.PopMeanStd(col)
		if std == 0 {
			std = 1
		}
		s.Mean[j], s.Scale[j] = mean, std
	}
	return s, nil
}

// Transform returns a scaled copy of x.
func (s *StandardScaler) Transform(x [][]float64) [][]float64 {
	out := make([][]float64, len(x))
	for i, row := range x {
		r := make([]float64, len(row))
		for j, v := range row {
			r[j] = (v - s.Mean[j]) / s.Scale[j]
		}
		out[i] = r
	}
	return out
}

// TransformRow scales a single row.
func (s *StandardScaler) TransformRow(row []float64) []float64 {
	return s.Transform([][]float64{row})[0]
}
