// Package report writes the model comparison table as CSV or XLSX.
package report

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/Phillip-Gao/Flight-Forecast/internal/benchmark"
	"github.com/Phillip-Gao/Flight-Forecast/internal/csvwriter"
	"github.com/Phillip-Gao/Flight-Forecast/internal/dbwriter"
	"github.com/Phillip-Gao/Flight-Forecast/internal/errs"
	"github.com/Phillip-Gao/Flight-Forecast/internal/features"
	"github.com/Phillip-Gao/Flight-Forecast/internal/learning"
)

// ErrNoResults is returned when a run has nothing to compare.
var ErrNoResults = errors.New("no model results to report")

// metricPlaces is the number of decimals metrics are reported with.
const metricPlaces = 4

// Row is one model in the comparison.
type Row struct {
	dbwriter.ModelResult
	// VsBaseline is the RMSE reduction against the baseline in percent.
	VsBaseline    decimal.Decimal
	HasVsBaseline bool
}

// Comparison is everything a report shows for one run.
type Comparison struct {
	RunID       string
	GeneratedAt time.Time
	// Rows are ordered by RMSE, best first.
	Rows        []Row
	Importances []learning.Importance
	// Coefficients are the linear model's weights on the scaled inputs.
	Coefficients []learning.Importance
	History      []dbwriter.Epoch
	Correlations []features.Correlation
}

// NewComparison builds a comparison of results. When a baseline result is
// present every other row gets its improvement over it.
func NewComparison(runID string, results []dbwriter.ModelResult) (*Comparison, error) {
	if len(results) == 0 {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNoResults)
	}
	c := &Comparison{RunID: runID, GeneratedAt: time.Now().UTC()}
	var baseline *dbwriter.ModelResult
	for i := range results {
		if results[i].Model == string(learning.KindBaseline) {
			baseline = &results[i]
		}
	}
	for _, r := range results {
		row := Row{ModelResult: r}
		if baseline != nil && r.Model != baseline.Model {
			row.VsBaseline, row.HasVsBaseline = benchmark.Improvement(baseline.RMSE, r.RMSE)
		}
		c.Rows = append(c.Rows, row)
	}
	sort.SliceStable(c.Rows, func(i, j int) bool {
		return lessNaNLast(c.Rows[i].RMSE, c.Rows[j].RMSE)
	})
	return c, nil
}

func lessNaNLast(a, b float64) bool {
	if math.IsNaN(b) {
		return !math.IsNaN(a)
	}
	return a < b
}

// Best returns the trained model with the lowest RMSE, ignoring the baseline.
func (c *Comparison) Best() (Row, bool) {
	for _, r := range c.Rows {
		if r.Model != string(learning.KindBaseline) && !math.IsNaN(r.RMSE) {
			return r, true
		}
	}
	return Row{}, false
}

// Write writes c to path. The extension selects the format: .csv or .xlsx.
func Write(path string, c *Comparison, logger *zap.Logger) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return WriteCSV(path, c, logger)
	case ".xlsx":
		return WriteXLSX(path, c)
	default:
		return errs.Configurationf("write report", "unsupported report format %q, want .csv or .xlsx", filepath.Ext(path))
	}
}

type sheet struct {
	name   string
	header []string
	rows   [][]any
}

func metric(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return decimal.NewFromFloat(v).Round(metricPlaces)
}

func (c *Comparison) sheets() []sheet {
	cmp := sheet{
		name: "Comparison",
		header: []string{"model", "version", "rmse", "mse", "r2", "accuracy", "vs_baseline_pct",
			"train_rows", "test_rows", "components", "params", "duration_s"},
	}
	for _, r := range c.Rows {
		var vs any = ""
		if r.HasVsBaseline {
			vs = r.VsBaseline
		}
		cmp.rows = append(cmp.rows, []any{
			r.Model, r.Version, metric(r.RMSE), metric(r.MSE), metric(r.R2), metric(r.Accuracy), vs,
			r.TrainRows, r.TestRows, r.Components, r.Params,
			decimal.NewFromFloat(r.Duration.Seconds()).Round(3),
		})
	}
	resid := sheet{name: "Residuals", header: []string{"model", "mean", "std", "min", "max", "mse", "rmse", "r2"}}
	for _, r := range c.Rows {
		resid.rows = append(resid.rows, []any{
			r.Model, metric(r.ResidMean), metric(r.ResidStd), metric(r.ResidMin), metric(r.ResidMax),
			metric(r.MSE), metric(r.RMSE), metric(r.R2),
		})
	}
	out := []sheet{cmp, resid}

	if len(c.Importances) > 0 {
		s := sheet{name: "Importances", header: []string{"feature", "importance"}}
		for _, imp := range c.Importances {
			s.rows = append(s.rows, []any{imp.Feature, metric(imp.Value)})
		}
		out = append(out, s)
	}
	if len(c.Coefficients) > 0 {
		coef := append([]learning.Importance(nil), c.Coefficients...)
		sort.SliceStable(coef, func(i, j int) bool { return coef[i].Value < coef[j].Value })
		s := sheet{name: "Coefficients", header: []string{"feature", "coefficient"}}
		for _, cf := range coef {
			s.rows = append(s.rows, []any{cf.Feature, metric(cf.Value)})
		}
		out = append(out, s)
	}
	if len(c.History) > 0 {
		s := sheet{name: "History", header: []string{"model", "epoch", "train_loss", "train_acc", "test_loss", "test_acc"}}
		for _, e := range c.History {
			s.rows = append(s.rows, []any{e.Model, e.Epoch, metric(e.TrainLoss), metric(e.TrainAcc), metric(e.TestLoss), metric(e.TestAcc)})
		}
		out = append(out, s)
	}
	if len(c.Correlations) > 0 {
		s := sheet{name: "Correlations", header: []string{"feature", "r"}}
		for _, cr := range c.Correlations {
			s.rows = append(s.rows, []any{cr.Feature, metric(cr.R)})
		}
		out = append(out, s)
	}
	return out
}

func cellString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case decimal.Decimal:
		return x.String()
	case float64:
		return csvwriter.Float(x)
	default:
		return fmt.Sprint(x)
	}
}

// WriteCSV writes the comparison sheet of c as CSV.
func WriteCSV(path string, c *Comparison, logger *zap.Logger) error {
	w, err := csvwriter.NewWriter(path, logger)
	if err != nil {
		return err
	}
	cmp := c.sheets()[0]
	records := [][]string{cmp.header}
	for _, row := range cmp.rows {
		rec := make([]string, len(row))
		for i, v := range row {
			rec[i] = cellString(v)
		}
		records = append(records, rec)
	}
	if err := w.WriteAll(records); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// WriteXLSX writes every non-empty sheet of c as one workbook.
func WriteXLSX(path string, c *Comparison) error {
	f := excelize.NewFile()
	defer f.Close()

	for i, s := range c.sheets() {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", s.name); err != nil {
				return fmt.Errorf("failed to rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(s.name); err != nil {
			return fmt.Errorf("failed to add sheet %s: %w", s.name, err)
		}
		for col, name := range s.header {
			cell, _ := excelize.CoordinatesToCellName(col+1, 1)
			if err := f.SetCellValue(s.name, cell, name); err != nil {
				return fmt.Errorf("failed to write %s header: %w", s.name, err)
			}
		}
		for r, row := range s.rows {
			for col, v := range row {
				if d, ok := v.(decimal.Decimal); ok {
					v = d.InexactFloat64()
				}
				cell, _ := excelize.CoordinatesToCellName(col+1, r+2)
				if err := f.SetCellValue(s.name, cell, v); err != nil {
					return fmt.Errorf("failed to write %s row %d: %w", s.name, r+1, err)
				}
			}
		}
	}
	if err := f.SetDocProps(&excelize.DocProperties{Title: "Flight delay model comparison", Subject: c.RunID}); err != nil {
		return fmt.Errorf("failed to set workbook properties: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save report %s: %w", path, err)
	}
	return nil
}
