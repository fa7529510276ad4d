// Package stats provides the descriptive statistics used by the cleaning and
// feature stages. NaN entries are treated as missing throughout.
package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Bounds is a closed interval [Lower, Upper].
type Bounds struct {
	Lower float64
	Upper float64
}

// Contains reports whether v lies inside the interval.
func (b Bounds) Contains(v float64) bool {
	return v >= b.Lower && v <= b.Upper
}

// DropNaN returns the non-NaN values of x in a new slice.
func DropNaN(x []float64) []float64 {
	out := make([]float64, 0, len(x))
	for _, v := range x {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// Percentile returns the p-th percentile (0..100) of x using linear
// interpolation between closest ranks, rank = p/100*(n-1). This matches the
// default quantile of pandas and numpy. NaNs are ignored; an empty input gives NaN.
func Percentile(x []float64, p float64) float64 {
	cp := DropNaN(x)
	if len(cp) == 0 {
		return math.NaN()
	}
	sort.Float64s(cp)
	return percentileSorted(cp, p)
}

func percentileSorted(sorted []float64, p float64) float64 {
	n := len(sorted)
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[n-1]
	}
	rank := p / 100 * float64(n-1)
	lower := int(rank)
	upper := lower + 1
	weight := rank - float64(lower)
	if upper >= n {
		return sorted[lower]
	}
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

// IQRBounds returns [q1 - k*iqr, q3 + k*iqr] where q1 and q3 are the low and
// high percentiles of x. The percentiles are configurable so callers can widen
// the band beyond the usual 25/75.
func IQRBounds(x []float64, low, high, k float64) (Bounds, bool) {
	cp := DropNaN(x)
	if len(cp) == 0 {
		return Bounds{}, false
	}
	sort.Float64s(cp)
	q1 := percentileSorted(cp, low)
	q3 := percentileSorted(cp, high)
	iqr := q3 - q1
	return Bounds{Lower: q1 - k*iqr, Upper: q3 + k*iqr}, true
}

// Mean returns the mean of the non-NaN values and how many there were.
func Mean(x []float64) (float64, int) {
	cp := DropNaN(x)
	if len(cp) == 0 {
		return math.NaN(), 0
	}
	return stat.Mean(cp, nil), len(cp)
}

// PopMeanStd returns the mean and population standard deviation of x.
func PopMeanStd(x []float64) (mean, std float64) {
	return stat.PopMeanStdDev(x, nil)
}

// Pearson returns the correlation of x and y over the rows where both are
// present. It is NaN when either side has zero variance or fewer than two rows.
func Pearson(x, y []float64) float64 {
	if len(x) != len(y) {
		return math.NaN()
	}
	xs := make([]float64, 0, len(x))
	ys := make([]float64, 0, len(y))
	for i := range x {
		if math.IsNaN(x[i]) || math.IsNaN(y[i]) {
			continue
		}
		xs = append(xs, x[i])
		ys = append(ys, y[i])
	}
	if len(xs) < 2 {
		return math.NaN()
	}
	_, sx := stat.PopMeanStdDev(xs, nil)
	_, sy := stat.PopMeanStdDev(ys, nil)
	if sx == 0 || sy == 0 {
		return math.NaN()
	}
	return stat.Correlation(xs, ys, nil)
}

// CountDistinct returns the number of distinct non-NaN values in x.
func CountDistinct(x []float64) int {
	seen := make(map[float64]struct{})
	for _, v := range x {
		if !math.IsNaN(v) {
			seen[v] = struct{}{}
		}
	}
	return len(seen)
}

// AllFinite reports whether x holds no NaN or Inf.
func AllFinite(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
