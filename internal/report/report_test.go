package report

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/Phillip-Gao/Flight-Forecast/internal/dbwriter"
	"github.com/Phillip-Gao/Flight-Forecast/internal/errs"
	"github.com/Phillip-Gao/Flight-Forecast/internal/features"
	"github.com/Phillip-Gao/Flight-Forecast/internal/learning"
)

func sampleResults() []dbwriter.ModelResult {
	return []dbwriter.ModelResult{
		{RunID: "r", Model: "linear", Version: "linear-1", RMSE: 8, MSE: 64, R2: 0.9, Accuracy: 0.5, TrainRows: 80, TestRows: 20, Duration: 250 * time.Millisecond},
		{RunID: "r", Model: "baseline", Version: "baseline-1", RMSE: 10, MSE: 100, R2: 0, Accuracy: 0.2, TrainRows: 80, TestRows: 20},
		{
			RunID: "r", Model: "forest", Version: "forest-1", RMSE: 5.123456, MSE: 26.25, R2: 0.97, Accuracy: 0.8,
			ResidMean: 0.5, ResidStd: 5.1, ResidMin: -12, ResidMax: 14.25,
			TrainRows: 80, TestRows: 20, Params: "max_depth=10",
		},
	}
}

func TestNewComparison(t *testing.T) {
	c, err := NewComparison("r", sampleResults())
	require.NoError(t, err)

	require.Len(t, c.Rows, 3)
	assert.Equal(t, []string{"forest", "linear", "baseline"}, []string{c.Rows[0].Model, c.Rows[1].Model, c.Rows[2].Model})
	assert.True(t, c.Rows[1].HasVsBaseline)
	assert.Equal(t, "20.00", c.Rows[1].VsBaseline.StringFixed(2))
	assert.False(t, c.Rows[2].HasVsBaseline)

	best, ok := c.Best()
	require.True(t, ok)
	assert.Equal(t, "forest", best.Model)
}

func TestNewComparison_Empty(t *testing.T) {
	_, err := NewComparison("r", nil)
	assert.ErrorIs(t, err, ErrNoResults)
}

func TestNewComparison_NaNSortsLast(t *testing.T) {
	c, err := NewComparison("r", []dbwriter.ModelResult{{Model: "network", RMSE: math.NaN()}, {Model: "linear", RMSE: 3}})
	require.NoError(t, err)
	assert.Equal(t, "linear", c.Rows[0].Model)
	assert.Equal(t, "", metric(c.Rows[1].RMSE))
}

func TestWriteCSV(t *testing.T) {
	c, err := NewComparison("r", sampleResults())
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "report.csv")
	require.NoError(t, Write(path, c, zap.NewNop()))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	want := "model,version,rmse,mse,r2,accuracy,vs_baseline_pct,train_rows,test_rows,components,params,duration_s\n" +
		"forest,forest-1,5.1235,26.25,0.97,0.8,48.77,80,20,0,max_depth=10,0\n" +
		"linear,linear-1,8,64,0.9,0.5,20,80,20,0,,0.25\n" +
		"baseline,baseline-1,10,100,0,0.2,,80,20,0,,0\n"
	assert.Equal(t, want, string(b))
}

func TestWriteXLSX(t *testing.T) {
	c, err := NewComparison("r", sampleResults())
	require.NoError(t, err)
	c.Importances = []learning.Importance{{Feature: "DepDelay", Value: 0.9}, {Feature: "TaxiOut", Value: 0.1}}
	c.Coefficients = []learning.Importance{{Feature: "DepDelay", Value: 1.2}, {Feature: "TaxiOut", Value: 0.4}, {Feature: "Distance", Value: -0.3}}
	c.History = []dbwriter.Epoch{{Model: "network", Epoch: 1, TrainLoss: 2}}
	c.Correlations = []features.Correlation{{Feature: "DepDelay", R: 0.95}}

	path := filepath.Join(t.TempDir(), "out", "report.xlsx")
	require.NoError(t, Write(path, c, zap.NewNop()))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Comparison", "Residuals", "Importances", "Coefficients", "History", "Correlations"}, f.GetSheetList())
	rows, err := f.GetRows("Comparison")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "model", rows[0][0])
	assert.Equal(t, "forest", rows[1][0])
	assert.Equal(t, "5.1235", rows[1][2])

	imp, err := f.GetRows("Importances")
	require.NoError(t, err)
	assert.Equal(t, []string{"DepDelay", "0.9"}, imp[1])

	resid, err := f.GetRows("Residuals")
	require.NoError(t, err)
	require.Len(t, resid, 4)
	assert.Equal(t, []string{"model", "mean", "std", "min", "max", "mse", "rmse", "r2"}, resid[0])
	assert.Equal(t, []string{"forest", "0.5", "5.1", "-12", "14.25", "26.25", "5.1235", "0.97"}, resid[1])

	coef, err := f.GetRows("Coefficients")
	require.NoError(t, err)
	require.Len(t, coef, 4)
	assert.Equal(t, []string{"Distance", "-0.3"}, coef[1])
	assert.Equal(t, []string{"DepDelay", "1.2"}, coef[3])
	assert.Equal(t, 1.2, c.Coefficients[0].Value, "sheet order must not reorder the comparison")
}

func TestWriteXLSX_ResidualsWithoutExtras(t *testing.T) {
	c, err := NewComparison("r", sampleResults())
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "report.xlsx")
	require.NoError(t, Write(path, c, zap.NewNop()))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"Comparison", "Residuals"}, f.GetSheetList())
}

func TestWrite_UnsupportedFormat(t *testing.T) {
	c, err := NewComparison("r", sampleResults())
	require.NoError(t, err)
	err = Write(filepath.Join(t.TempDir(), "report.pdf"), c, zap.NewNop())
	assert.ErrorIs(t, err, errs.ErrConfiguration)
}
