// Package clean turns the joined flight table into the working subset used for
// training. Every stage takes a table and returns a new one.
package clean

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/go-gota/gota/dataframe"
	"go.uber.org/zap"

	"github.com/Phillip-Gao/Flight-Forecast/internal/config"
	"github.com/Phillip-Gao/Flight-Forecast/internal/dataset"
	"github.com/Phillip-Gao/Flight-Forecast/internal/errs"
	"github.com/Phillip-Gao/Flight-Forecast/pkg/stats"
)

// Step records the effect of one cleaning stage.
type Step struct {
	Name     string
	RowsIn   int
	RowsOut  int
	Duration time.Duration
}

// Summary describes a full cleaning pass.
type Summary struct {
	Steps          []Step
	DroppedColumns []string
	// OutlierCounts holds how many rows each column flagged, before the union.
	OutlierCounts map[string]int
}

// Cleaner runs the cleaning stages in order.
type Cleaner struct {
	cfg    config.CleanConf
	keep   []string
	logger *zap.Logger
	rng    *rand.Rand
}

// NewCleaner creates a new Cleaner. Columns named in keep are never dropped by
// the single-valued column rule.
func NewCleaner(cfg config.CleanConf, keep []string, logger *zap.Logger) *Cleaner {
	seed := cfg.SampleSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Cleaner{
		cfg:    cfg,
		keep:   keep,
		logger: logger,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Run applies drop-nulls, sample, drop-columns, outlier removal, the filter
// and, when enabled, the single-valued column rule, in that order.
func (c *Cleaner) Run(ctx context.Context, df dataframe.DataFrame) (dataframe.DataFrame, Summary, error) {
	var sum Summary

	query, err := CompileFilter(c.cfg.Filter)
	if err != nil {
		return dataframe.DataFrame{}, sum, err
	}

	run := func(name string, f func(dataframe.DataFrame) (dataframe.DataFrame, error)) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		in := df.Nrow()
		out, err := f(df)
		if err != nil {
			return fmt.Errorf("clean step %s: %w", name, err)
		}
		step := Step{Name: name, RowsIn: in, RowsOut: out.Nrow(), Duration: time.Since(start)}
		sum.Steps = append(sum.Steps, step)
		c.logger.Info("Clean step finished",
			zap.String("step", name), zap.Int("rows_in", step.RowsIn), zap.Int("rows_out", step.RowsOut),
			zap.Int("cols", out.Ncol()), zap.Duration("took", step.Duration))
		df = out
		return nil
	}

	if err := run("drop_nulls", DropNulls); err != nil {
		return dataframe.DataFrame{}, sum, err
	}
	if err := run("sample", func(in dataframe.DataFrame) (dataframe.DataFrame, error) {
		return Sample(in, c.cfg.RowBudget, c.rng)
	}); err != nil {
		return dataframe.DataFrame{}, sum, err
	}
	if err := run("drop_columns", func(in dataframe.DataFrame) (dataframe.DataFrame, error) {
		out, dropped, missing := DropColumns(in, c.cfg.DropColumns)
		if len(missing) > 0 {
			c.logger.Warn("Configured drop columns not present", zap.Strings("columns", missing))
		}
		if out.Err != nil {
			return dataframe.DataFrame{}, errs.DataIntegrity("drop columns", out.Err)
		}
		sum.DroppedColumns = append(sum.DroppedColumns, dropped...)
		return out, nil
	}); err != nil {
		return dataframe.DataFrame{}, sum, err
	}
	if err := run("remove_outliers", func(in dataframe.DataFrame) (dataframe.DataFrame, error) {
		out, counts, err := RemoveOutliers(in, c.cfg.Outliers)
		sum.OutlierCounts = counts
		return out, err
	}); err != nil {
		return dataframe.DataFrame{}, sum, err
	}
	if err := run("filter", query.Apply); err != nil {
		return dataframe.DataFrame{}, sum, err
	}
	// after the filter, so columns it narrows to one value go too
	if c.cfg.DropConstantColumns {
		if err := run("drop_constant_columns", func(in dataframe.DataFrame) (dataframe.DataFrame, error) {
			constant := ConstantColumns(in, c.keep)
			if len(constant) == 0 {
				return in, nil
			}
			c.logger.Info("Dropping single-valued columns", zap.Strings("columns", constant))
			out, dropped, _ := DropColumns(in, constant)
			if out.Err != nil {
				return dataframe.DataFrame{}, errs.DataIntegrity("drop constant columns", out.Err)
			}
			sum.DroppedColumns = append(sum.DroppedColumns, dropped...)
			return out, nil
		}); err != nil {
			return dataframe.DataFrame{}, sum, err
		}
	}
	return df, sum, nil
}

// DropNulls removes every row with a null in any column.
func DropNulls(df dataframe.DataFrame) (dataframe.DataFrame, error) {
	out, _, err := dataset.DropNullRows(df)
	if err != nil {
		return dataframe.DataFrame{}, errs.DataIntegrity("drop nulls", err)
	}
	return out, nil
}

// Sample keeps min(budget, N) rows chosen by a uniform random permutation.
// The returned rows are in permutation order.
func Sample(df dataframe.DataFrame, budget int, rng *rand.Rand) (dataframe.DataFrame, error) {
	if budget <= 0 {
		return dataframe.DataFrame{}, errs.Configurationf("sample", "row budget must be positive, got %d", budget)
	}
	n := df.Nrow()
	perm := rng.Perm(n)
	if budget < n {
		perm = perm[:budget]
	}
	if df.Ncol() == 0 {
		return df, nil
	}
	out := df.Subset(perm)
	if out.Err != nil {
		return dataframe.DataFrame{}, errs.DataIntegrity("sample", out.Err)
	}
	return out, nil
}

// DropColumns removes the named columns. It returns the names actually
// dropped and those that were not present.
func DropColumns(df dataframe.DataFrame, names []string) (out dataframe.DataFrame, dropped, missing []string) {
	seen := map[string]bool{}
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		if dataset.HasColumn(df, name) {
			dropped = append(dropped, name)
		} else {
			missing = append(missing, name)
		}
	}
	if len(dropped) == 0 {
		return df, dropped, missing
	}
	return df.Drop(dropped), dropped, missing
}

// ConstantColumns lists the columns holding at most one distinct non-null
// value, skipping the protected names.
func ConstantColumns(df dataframe.DataFrame, protected []string) []string {
	skip := map[string]bool{}
	for _, p := range protected {
		skip[p] = true
	}
	var out []string
	for _, name := range df.Names() {
		if skip[name] {
			continue
		}
		col := df.Col(name)
		distinct := map[string]struct{}{}
		for i := 0; i < col.Len() && len(distinct) < 2; i++ {
			e := col.Elem(i)
			if e.IsNA() {
				continue
			}
			distinct[e.String()] = struct{}{}
		}
		if len(distinct) <= 1 {
			out = append(out, name)
		}
	}
	return out
}

// RemoveOutliers drops every row that any numeric column flags as outside
// [q1 - k*iqr, q3 + k*iqr], with q1 and q3 taken at the configured low and
// high percentiles. Bounds are computed on the input table, before any row
// goes. Bool and String columns are skipped.
func RemoveOutliers(df dataframe.DataFrame, cfg config.OutlierConf) (dataframe.DataFrame, map[string]int, error) {
	flagged := make([]bool, df.Nrow())
	counts := map[string]int{}
	for _, name := range df.Names() {
		col := df.Col(name)
		if !dataset.IsNumeric(col) || col.Len() < 2 {
			continue
		}
		values := col.Float()
		bounds, ok := stats.IQRBounds(values, cfg.LowPercentile, cfg.HighPercentile, cfg.Multiplier)
		if !ok {
			continue
		}
		for i, v := range values {
			if math.IsNaN(v) {
				continue
			}
			if !bounds.Contains(v) {
				flagged[i] = true
				counts[name]++
			}
		}
	}

	keep := make([]bool, len(flagged))
	for i, f := range flagged {
		keep[i] = !f
	}
	out, err := dataset.KeepRows(df, keep)
	if err != nil {
		return dataframe.DataFrame{}, counts, errs.DataIntegrity("remove outliers", err)
	}
	return out, counts, nil
}

// SortedCounts returns the outlier counts as "column=count" pairs ordered by name.
func (s Summary) SortedCounts() []string {
	names := make([]string, 0, len(s.OutlierCounts))
	for n := range s.OutlierCounts {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = fmt.Sprintf("%s=%d", n, s.OutlierCounts[n])
	}
	return out
}
