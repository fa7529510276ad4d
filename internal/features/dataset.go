package features

import (
	"math"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/Phillip-Gao/Flight-Forecast/internal/dataset"
	"github.com/Phillip-Gao/Flight-Forecast/internal/errs"
	"github.com/Phillip-Gao/Flight-Forecast/pkg/stats"
)

// Dataset is a row-major feature matrix with its target vector.
type Dataset struct {
	Features [][]float64
	Target   []float64
	Names    []string
}

// Len returns the number of rows.
func (d Dataset) Len() int { return len(d.Target) }

// Clone returns a deep copy of d.
func (d Dataset) Clone() Dataset {
	out := Dataset{
		Features: make([][]float64, len(d.Features)),
		Target:   append([]float64(nil), d.Target...),
		Names:    append([]string(nil), d.Names...),
	}
	for i, row := range d.Features {
		out.Features[i] = append([]float64(nil), row...)
	}
	return out
}

// Rows returns a new Dataset holding the rows at idx, in that order.
func (d Dataset) Rows(idx []int) Dataset {
	out := Dataset{
		Features: make([][]float64, len(idx)),
		Target:   make([]float64, len(idx)),
		Names:    append([]string(nil), d.Names...),
	}
	for i, j := range idx {
		out.Features[i] = append([]float64(nil), d.Features[j]...)
		out.Target[i] = d.Target[j]
	}
	return out
}

// Select extracts columns as the feature matrix and target as the target
// vector. Bool columns read as 0/1, nulls as NaN.
func Select(df dataframe.DataFrame, columns []string, target string) (Dataset, error) {
	if len(columns) == 0 {
		return Dataset{}, errs.Configurationf("select features", "no feature columns configured")
	}
	y, err := dataset.Column(df, target)
	if err != nil {
		return Dataset{}, errs.Configuration("select features", err)
	}
	x, err := Matrix(df, columns)
	if err != nil {
		return Dataset{}, err
	}
	return Dataset{Features: x, Target: y.Float(), Names: append([]string(nil), columns...)}, nil
}

// Matrix extracts columns as a row-major matrix. Bool columns read as 0/1,
// nulls as NaN.
func Matrix(df dataframe.DataFrame, columns []string) ([][]float64, error) {
	n := df.Nrow()
	x := make([][]float64, n)
	backing := make([]float64, n*len(columns))
	for i := range x {
		x[i] = backing[i*len(columns) : (i+1)*len(columns) : (i+1)*len(columns)]
	}
	for j, name := range columns {
		col, err := dataset.Column(df, name)
		if err != nil {
			return nil, errs.Configuration("select features", err)
		}
		if col.Type() == series.String {
			return nil, errs.Configurationf("select features", "column %q is not numeric", name)
		}
		for i, v := range col.Float() {
			x[i][j] = v
		}
	}
	return x, nil
}

// ImputeMean returns a copy of d with NaN entries replaced by their column
// mean. Features and target are imputed separately.
func ImputeMean(d Dataset) (Dataset, error) {
	out := d.Clone()
	if out.Len() == 0 {
		return out, nil
	}
	for j, name := range out.Names {
		mean, count := stats.Mean(out.Column(j))
		if count == 0 {
			return Dataset{}, errs.DataIntegrityf("impute", "feature %q has no values", name)
		}
		for _, row := range out.Features {
			if math.IsNaN(row[j]) {
				row[j] = mean
			}
		}
	}
	mean, count := stats.Mean(out.Target)
	if count == 0 {
		return Dataset{}, errs.DataIntegrityf("impute", "target has no values")
	}
	for i, v := range out.Target {
		if math.IsNaN(v) {
			out.Target[i] = mean
		}
	}
	return out, nil
}

// Column returns a copy of feature column j.
func (d Dataset) Column(j int) []float64 {
	col := make([]float64, len(d.Features))
	for i, row := range d.Features {
		col[i] = row[j]
	}
	return col
}
