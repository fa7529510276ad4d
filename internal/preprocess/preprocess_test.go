package preprocess

import (
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Phillip-Gao/Flight-Forecast/internal/config"
	"github.com/Phillip-Gao/Flight-Forecast/internal/errs"
	"github.com/Phillip-Gao/Flight-Forecast/pkg/stats"
)

func TestStandardScaler(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	x := make([][]float64, 200)
	for i := range x {
		x[i] = []float64{rng.NormFloat64()*30 + 12, rng.Float64() * 2400, 7}
	}

	s, err := FitScaler(x)
	require.NoError(t, err)
	scaled := s.Transform(x)

	for j := 0; j < 2; j++ {
		col := make([]float64, len(scaled))
		for i, row := range scaled {
			col[i] = row[j]
		}
		mean, std := stats.PopMeanStd(col)
		assert.InDelta(t, 0, mean, 1e-9, "column %d mean", j)
		assert.InDelta(t, 1, std, 1e-9, "column %d std", j)
	}
	// a constant column keeps scale 1 and centers to 0
	assert.Equal(t, 1.0, s.Scale[2])
	assert.Equal(t, 0.0, scaled[0][2])
	// the input is not modified
	assert.Equal(t, 7.0, x[0][2])
}

func TestStandardScaler_RejectsNaN(t *testing.T) {
	_, err := FitScaler([][]float64{{1}, {math.NaN()}})
	assert.ErrorIs(t, err, errs.ErrDataIntegrity)
}

func TestTrainTestSplit(t *testing.T) {
	train, test, err := TrainTestSplit(100, 0.2, 42)
	require.NoError(t, err)
	assert.Len(t, test, 20)
	assert.Len(t, train, 80)

	all := append(append([]int(nil), train...), test...)
	sort.Ints(all)
	for i, v := range all {
		assert.Equal(t, i, v)
	}

	train2, test2, err := TrainTestSplit(100, 0.2, 42)
	require.NoError(t, err)
	assert.Equal(t, train, train2)
	assert.Equal(t, test, test2)

	_, test3, err := TrainTestSplit(100, 0.2, 7)
	require.NoError(t, err)
	assert.NotEqual(t, test, test3)
}

func TestTrainTestSplit_RoundsTestUp(t *testing.T) {
	train, test, err := TrainTestSplit(11, 0.2, 1)
	require.NoError(t, err)
	assert.Len(t, test, 3)
	assert.Len(t, train, 8)
}

func TestTrainTestSplit_Errors(t *testing.T) {
	_, _, err := TrainTestSplit(100, 1.2, 42)
	assert.ErrorIs(t, err, errs.ErrConfiguration)
	_, _, err = TrainTestSplit(1, 0.2, 42)
	assert.ErrorIs(t, err, errs.ErrDataIntegrity)
}

func TestKFold(t *testing.T) {
	folds, err := KFold(10, 3)
	require.NoError(t, err)
	require.Len(t, folds, 3)

	assert.Equal(t, []int{0, 1, 2, 3}, folds[0].Test)
	assert.Equal(t, []int{4, 5, 6}, folds[1].Test)
	assert.Equal(t, []int{7, 8, 9}, folds[2].Test)
	assert.Equal(t, []int{0, 1, 2, 3, 7, 8, 9}, folds[1].Train)

	_, err = KFold(10, 1)
	assert.ErrorIs(t, err, errs.ErrConfiguration)
	_, err = KFold(2, 3)
	assert.ErrorIs(t, err, errs.ErrDataIntegrity)
}

func correlatedRows(n int) [][]float64 {
	rng := rand.New(rand.NewSource(3))
	x := make([][]float64, n)
	for i := range x {
		a := rng.NormFloat64()
		// the second column nearly duplicates the first, the third is small noise
		x[i] = []float64{a, 2*a + 0.01*rng.NormFloat64(), 0.1 * rng.NormFloat64()}
	}
	return x
}

func TestFitPCA_VarianceCutoff(t *testing.T) {
	p, err := FitPCA(correlatedRows(300), config.PCAConf{VarianceCutoff: 0.8})
	require.NoError(t, err)

	assert.Equal(t, 1, p.Kept())
	assert.Len(t, p.ExplainedRatio, 3)
	var sum float64
	for _, r := range p.ExplainedRatio {
		sum += r
	}
	assert.InDelta(t, 1, sum, 1e-9)
	assert.Greater(t, p.ExplainedRatio[0], 0.8)

	out := p.Transform(correlatedRows(300))
	assert.Len(t, out[0], 1)
}

func TestFitPCA_FixedComponents(t *testing.T) {
	x := correlatedRows(50)
	p, err := FitPCA(x, config.PCAConf{Components: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, p.Kept())

	// projected scores are centered
	out := p.Transform(x)
	for c := 0; c < 2; c++ {
		var sum float64
		for _, row := range out {
			sum += row[c]
		}
		assert.InDelta(t, 0, sum/float64(len(out)), 1e-9)
	}
	// components are unit length
	for _, dir := range p.Components {
		var norm float64
		for _, v := range dir {
			norm += v * v
		}
		assert.InDelta(t, 1, norm, 1e-9)
	}
}

func TestFitPCA_Errors(t *testing.T) {
	x := correlatedRows(20)
	tests := []struct {
		name string
		cfg  config.PCAConf
	}{
		{"too many components", config.PCAConf{Components: 4}},
		{"negative components", config.PCAConf{Components: -1}},
		{"cutoff above one", config.PCAConf{VarianceCutoff: 1.5}},
		{"zero cutoff", config.PCAConf{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FitPCA(x, tt.cfg)
			assert.ErrorIs(t, err, errs.ErrConfiguration)
		})
	}
}

func TestComponentsForVariance(t *testing.T) {
	ratios := []float64{0.5, 0.25, 0.15, 0.1}
	tests := []struct {
		cutoff float64
		want   int
	}{
		{0.5, 1},
		{0.6, 2},
		{0.8, 3},
		{0.9, 3},
		{1, 4},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ComponentsForVariance(ratios, tt.cutoff), "cutoff %v", tt.cutoff)
	}
}

func TestScalerThenPCA_RoundTripShapes(t *testing.T) {
	x := correlatedRows(40)
	s, err := FitScaler(x)
	require.NoError(t, err)
	scaled := s.Transform(x)
	p, err := FitPCA(scaled, config.PCAConf{Components: 3})
	require.NoError(t, err)

	// with every component kept the projection preserves squared distance from the mean
	proj := p.Transform(scaled)
	for i := range scaled {
		var a, b float64
		for j := range scaled[i] {
			a += (scaled[i][j] - p.Mean[j]) * (scaled[i][j] - p.Mean[j])
		}
		for _, v := range proj[i] {
			b += v * v
		}
		if diff := cmp.Diff(a, b, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
			t.Fatalf("row %d norm mismatch (-want +got):\n%s", i, diff)
		}
	}
}
