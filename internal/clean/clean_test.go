package clean

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Phillip-Gao/Flight-Forecast/internal/config"
	"github.com/Phillip-Gao/Flight-Forecast/internal/dataset"
	"github.com/Phillip-Gao/Flight-Forecast/internal/errs"
	"github.com/Phillip-Gao/Flight-Forecast/pkg/stats"
)

// syntheticFlights builds the 100-row table used by the end-to-end cleaner test:
// rows 20 and 21 hold nulls, rows 10-14 are outside PA, rows 30-32 are
// cancelled or diverted and row 50 carries an extreme Distance.
func syntheticFlights() dataframe.DataFrame {
	const n = 100
	origin := make([]string, n)
	dest := make([]string, n)
	cancelled := make([]bool, n)
	diverted := make([]bool, n)
	depDelay := make([]float64, n)
	arrDelay := make([]float64, n)
	distance := make([]int, n)
	arrDel15 := make([]float64, n)
	depDel15 := make([]float64, n)
	for i := 0; i < n; i++ {
		origin[i] = "PA"
		dest[i] = "NY"
		if i%2 == 0 {
			origin[i], dest[i] = "OH", "PA"
		}
		depDelay[i] = float64(i%30) - 5
		arrDelay[i] = float64(i%40) - 10
		distance[i] = 100 + i
		if arrDelay[i] > 15 {
			arrDel15[i] = 1
		}
		if depDelay[i] > 15 {
			depDel15[i] = 1
		}
	}
	for i := 10; i < 15; i++ {
		origin[i], dest[i] = "NY", "OH"
	}
	cancelled[30], cancelled[31] = true, true
	diverted[32] = true
	distance[50] = 1_000_000
	depDelay[20] = math.NaN()
	origin[21] = "NaN"

	return dataframe.New(
		series.New(origin, series.String, "OriginState"),
		series.New(dest, series.String, "DestState"),
		series.New(cancelled, series.Bool, "Cancelled"),
		series.New(diverted, series.Bool, "Diverted"),
		series.New(depDelay, series.Float, "DepDelay"),
		series.New(arrDelay, series.Float, "ArrDelay"),
		series.New(distance, series.Int, "Distance"),
		series.New(arrDel15, series.Float, "ArrDel15"),
		series.New(depDel15, series.Float, "DepDel15"),
	)
}

func testCleanConf() config.CleanConf {
	cfg := config.Default().Clean
	cfg.SampleSeed = 1
	return cfg
}

func TestCleaner_EndToEnd(t *testing.T) {
	df := syntheticFlights()
	require.NoError(t, df.Err)
	require.Equal(t, 100, df.Nrow())

	cleaner := NewCleaner(testCleanConf(), []string{"ArrDelay"}, zap.NewNop())
	out, sum, err := cleaner.Run(context.Background(), df)
	require.NoError(t, err)

	assert.Less(t, out.Nrow(), 100)
	assert.Equal(t, 89, out.Nrow())
	assert.Len(t, sum.Steps, 6)
	assert.Equal(t, "drop_constant_columns", sum.Steps[5].Name)
	// the filter leaves Cancelled and Diverted all false, so they go as single-valued
	assert.ElementsMatch(t, []string{"ArrDel15", "DepDel15", "Cancelled", "Diverted"}, sum.DroppedColumns)
	assert.Equal(t, 1, sum.OutlierCounts["Distance"])

	for _, na := range dataset.NullRows(out) {
		assert.False(t, na)
	}

	origin := out.Col("OriginState").Records()
	dest := out.Col("DestState").Records()
	for i := range origin {
		assert.True(t, origin[i] == "PA" || dest[i] == "PA", "row %d outside PA", i)
	}
	assert.False(t, dataset.HasColumn(out, "Cancelled"))
	assert.False(t, dataset.HasColumn(out, "Diverted"))

	distances := out.Col("Distance").Float()
	for _, d := range distances {
		assert.Less(t, d, 1_000_000.0)
	}
	assert.False(t, dataset.HasColumn(out, "ArrDel15"))
	assert.False(t, dataset.HasColumn(out, "DepDel15"))
}

func TestCleaner_UnresolvableFilterColumn(t *testing.T) {
	cfg := testCleanConf()
	cfg.Filter = "OriginState == 'PA' && !Grounded"

	out, _, err := NewCleaner(cfg, nil, zap.NewNop()).Run(context.Background(), syntheticFlights())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrQueryResolution)
	assert.ErrorIs(t, err, errs.ErrDataIntegrity)
	assert.Zero(t, out.Nrow())
}

func TestCleaner_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := NewCleaner(testCleanConf(), nil, zap.NewNop()).Run(ctx, syntheticFlights())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCleaner_DropsSingleValuedColumns(t *testing.T) {
	df := syntheticFlights().Mutate(series.New(make([]int, 100), series.Int, "Year"))

	out, sum, err := NewCleaner(testCleanConf(), []string{"ArrDelay"}, zap.NewNop()).Run(context.Background(), df)
	require.NoError(t, err)
	assert.Contains(t, sum.DroppedColumns, "Year")
	assert.False(t, dataset.HasColumn(out, "Year"))
}

func TestCleaner_DropsColumnsSingleValuedAfterFilter(t *testing.T) {
	// only the rows outside PA fly AA, so Carrier is constant once filtered
	carrier := make([]string, 100)
	for i := range carrier {
		carrier[i] = "DL"
	}
	for i := 10; i < 15; i++ {
		carrier[i] = "AA"
	}
	df := syntheticFlights().Mutate(series.New(carrier, series.String, "Carrier"))
	cfg := testCleanConf()
	cfg.Filter = "(OriginState == 'PA' || DestState == 'PA') && Carrier == 'DL' && !Cancelled && !Diverted"

	out, sum, err := NewCleaner(cfg, []string{"ArrDelay"}, zap.NewNop()).Run(context.Background(), df)
	require.NoError(t, err)
	assert.Equal(t, 89, out.Nrow())
	assert.Contains(t, sum.DroppedColumns, "Carrier")
	assert.False(t, dataset.HasColumn(out, "Carrier"))
	assert.True(t, dataset.HasColumn(out, "OriginState"))

	kept, _, err := NewCleaner(cfg, []string{"ArrDelay", "Carrier"}, zap.NewNop()).Run(context.Background(), df)
	require.NoError(t, err)
	assert.True(t, dataset.HasColumn(kept, "Carrier"), "kept columns are never dropped")
}

func TestCleaner_KeepsSingleValuedColumnsWhenDisabled(t *testing.T) {
	df := syntheticFlights().Mutate(series.New(make([]int, 100), series.Int, "Year"))
	cfg := testCleanConf()
	cfg.DropConstantColumns = false

	out, sum, err := NewCleaner(cfg, nil, zap.NewNop()).Run(context.Background(), df)
	require.NoError(t, err)
	assert.Len(t, sum.Steps, 5)
	assert.True(t, dataset.HasColumn(out, "Year"))

	cancelled, err := out.Col("Cancelled").Bool()
	require.NoError(t, err)
	diverted, err := out.Col("Diverted").Bool()
	require.NoError(t, err)
	for i := range cancelled {
		assert.False(t, cancelled[i])
		assert.False(t, diverted[i])
	}
}

func TestDropNulls(t *testing.T) {
	out, err := DropNulls(syntheticFlights())
	require.NoError(t, err)
	assert.Equal(t, 98, out.Nrow())
}

func TestSample(t *testing.T) {
	df := dataframe.New(series.New(seq(50), series.Int, "id"))

	t.Run("budget larger than table keeps every row", func(t *testing.T) {
		out, err := Sample(df, 1_500_000, rand.New(rand.NewSource(3)))
		require.NoError(t, err)
		ids, err := out.Col("id").Int()
		require.NoError(t, err)
		assert.ElementsMatch(t, seq(50), ids)
	})

	t.Run("budget smaller than table", func(t *testing.T) {
		out, err := Sample(df, 10, rand.New(rand.NewSource(3)))
		require.NoError(t, err)
		ids, err := out.Col("id").Int()
		require.NoError(t, err)
		assert.Len(t, ids, 10)
		seen := map[int]bool{}
		for _, id := range ids {
			assert.False(t, seen[id], "row %d sampled twice", id)
			seen[id] = true
		}
	})

	t.Run("same seed same rows", func(t *testing.T) {
		a, err := Sample(df, 10, rand.New(rand.NewSource(9)))
		require.NoError(t, err)
		b, err := Sample(df, 10, rand.New(rand.NewSource(9)))
		require.NoError(t, err)
		assert.Equal(t, a.Col("id").Records(), b.Col("id").Records())
	})

	t.Run("non-positive budget", func(t *testing.T) {
		_, err := Sample(df, 0, rand.New(rand.NewSource(1)))
		assert.ErrorIs(t, err, errs.ErrConfiguration)
	})
}

func TestDropColumns(t *testing.T) {
	out, dropped, missing := DropColumns(syntheticFlights(), []string{"ArrDel15", "DepDel15", "Nope", "ArrDel15"})
	require.NoError(t, out.Err)
	assert.Equal(t, []string{"ArrDel15", "DepDel15"}, dropped)
	assert.Equal(t, []string{"Nope"}, missing)
	assert.Equal(t, 7, out.Ncol())
}

func TestConstantColumns(t *testing.T) {
	df := dataframe.New(
		series.New([]int{1, 1, 1}, series.Int, "const"),
		series.New([]string{"a", "NaN", "a"}, series.String, "const_with_null"),
		series.New([]float64{1, 2, 3}, series.Float, "varies"),
		series.New([]int{7, 7, 7}, series.Int, "kept"),
	)
	assert.Equal(t, []string{"const", "const_with_null"}, ConstantColumns(df, []string{"kept"}))
}

func TestRemoveOutliers_RemainingValuesWithinBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	const n = 500
	a := make([]float64, n)
	b := make([]int, n)
	for i := range a {
		a[i] = rng.NormFloat64() * 10
		b[i] = rng.Intn(100)
	}
	a[7] = 10_000
	b[123] = -50_000
	df := dataframe.New(
		series.New(a, series.Float, "a"),
		series.New(b, series.Int, "b"),
		series.New(make([]bool, n), series.Bool, "flag"),
	)

	cfg := config.Default().Clean.Outliers
	boundsA, _ := stats.IQRBounds(a, cfg.LowPercentile, cfg.HighPercentile, cfg.Multiplier)
	boundsB, _ := stats.IQRBounds(df.Col("b").Float(), cfg.LowPercentile, cfg.HighPercentile, cfg.Multiplier)

	out, counts, err := RemoveOutliers(df, cfg)
	require.NoError(t, err)
	assert.Equal(t, n-2, out.Nrow())
	assert.Equal(t, map[string]int{"a": 1, "b": 1}, counts)

	for _, v := range out.Col("a").Float() {
		assert.True(t, boundsA.Contains(v), fmt.Sprintf("a=%v outside %+v", v, boundsA))
	}
	for _, v := range out.Col("b").Float() {
		assert.True(t, boundsB.Contains(v), fmt.Sprintf("b=%v outside %+v", v, boundsB))
	}
}

func TestRemoveOutliers_UnionDroppedOnce(t *testing.T) {
	x := make([]float64, 200)
	y := make([]float64, 200)
	for i := range x {
		x[i] = float64(i % 10)
		y[i] = float64(i % 7)
	}
	// row 5 is extreme in both columns, row 9 only in y
	x[5], y[5] = 1e9, 1e9
	y[9] = -1e9
	df := dataframe.New(series.New(x, series.Float, "x"), series.New(y, series.Float, "y"))

	out, counts, err := RemoveOutliers(df, config.Default().Clean.Outliers)
	require.NoError(t, err)
	assert.Equal(t, 198, out.Nrow())
	assert.Equal(t, 1, counts["x"])
	assert.Equal(t, 2, counts["y"])
}

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
