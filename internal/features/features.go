// Package features ranks candidate columns against the target and builds the
// numeric matrices the trainers consume.
package features

import (
	"math"
	"sort"

	"github.com/go-gota/gota/dataframe"

	"github.com/Phillip-Gao/Flight-Forecast/internal/dataset"
	"github.com/Phillip-Gao/Flight-Forecast/internal/errs"
	"github.com/Phillip-Gao/Flight-Forecast/pkg/stats"
)

// Correlation is the Pearson coefficient of one column with the target.
type Correlation struct {
	Feature string
	R       float64
}

// Correlations returns the correlation of every numeric column with target,
// leaving out the target and the excluded names. The result is ordered by |r|
// descending with ties broken by name; NaN coefficients come last.
func Correlations(df dataframe.DataFrame, target string, exclude []string) ([]Correlation, error) {
	y, err := dataset.Column(df, target)
	if err != nil {
		return nil, errs.Configuration("correlations", err)
	}
	if !dataset.IsNumeric(y) {
		return nil, errs.Configurationf("correlations", "target %q is %s, not numeric", target, y.Type())
	}
	skip := map[string]bool{target: true}
	for _, e := range exclude {
		skip[e] = true
	}

	yv := y.Float()
	var out []Correlation
	for _, name := range df.Names() {
		if skip[name] {
			continue
		}
		col := df.Col(name)
		if !dataset.IsNumeric(col) {
			continue
		}
		out = append(out, Correlation{Feature: name, R: stats.Pearson(col.Float(), yv)})
	}
	SortByStrength(out)
	return out, nil
}

// SortByStrength orders cs by |R| descending, then by name. NaN sorts last.
func SortByStrength(cs []Correlation) {
	sort.SliceStable(cs, func(i, j int) bool {
		a, b := cs[i], cs[j]
		an, bn := math.IsNaN(a.R), math.IsNaN(b.R)
		if an != bn {
			return bn
		}
		if !an && math.Abs(a.R) != math.Abs(b.R) {
			return math.Abs(a.R) > math.Abs(b.R)
		}
		return a.Feature < b.Feature
	})
}

// Top returns the n strongest correlations, skipping NaN.
func Top(cs []Correlation, n int) []Correlation {
	var out []Correlation
	for _, c := range cs {
		if len(out) == n {
			break
		}
		if !math.IsNaN(c.R) {
			out = append(out, c)
		}
	}
	return out
}
