// Package dataset reads the flight and airline tables and joins them.
package dataset

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"go.uber.org/zap"

	"github.com/Phillip-Gao/Flight-Forecast/internal/config"
	"github.com/Phillip-Gao/Flight-Forecast/internal/errs"
)

// NullTokens are the cell values read as missing.
var NullTokens = []string{"", "NA", "NaN", "nan", "null", "NULL", "<nil>"}

// CollisionSuffix is appended to airline-table columns whose name already exists in the flight table.
const CollisionSuffix = "_airline"

// Loader reads both input files and joins them on the airline key.
type Loader struct {
	cfg    config.InputConf
	logger *zap.Logger
}

// NewLoader creates a new Loader.
func NewLoader(cfg config.InputConf, logger *zap.Logger) *Loader {
	return &Loader{cfg: cfg, logger: logger}
}

// Load reads the flight and airline files and returns their inner join.
func (l *Loader) Load(ctx context.Context) (dataframe.DataFrame, error) {
	flights, err := ReadFile(l.cfg.FlightsPath)
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	l.logger.Info("Loaded flight table",
		zap.String("path", l.cfg.FlightsPath), zap.Int("rows", flights.Nrow()), zap.Int("cols", flights.Ncol()))
	if err := ctx.Err(); err != nil {
		return dataframe.DataFrame{}, err
	}

	airlines, err := ReadFile(l.cfg.AirlinesPath)
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	l.logger.Info("Loaded airline table",
		zap.String("path", l.cfg.AirlinesPath), zap.Int("rows", airlines.Nrow()), zap.Int("cols", airlines.Ncol()))

	airlines, err = RenameKey(airlines, l.cfg.AirlineNameColumn, l.cfg.JoinKey)
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	if err := ctx.Err(); err != nil {
		return dataframe.DataFrame{}, err
	}

	joined, err := InnerJoin(flights, airlines, l.cfg.JoinKey)
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	l.logger.Info("Joined flight and airline tables",
		zap.String("key", l.cfg.JoinKey), zap.Int("rows", joined.Nrow()), zap.Int("cols", joined.Ncol()))
	return joined, nil
}

// ReadFile opens path and parses it with ReadTable.
func ReadFile(path string) (dataframe.DataFrame, error) {
	f, err := os.Open(path)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	df, err := ReadTable(f)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return df, nil
}

// ReadTable parses a CSV with a header row, detects column types and promotes
// True/False text columns to Bool.
func ReadTable(r io.Reader) (dataframe.DataFrame, error) {
	df := dataframe.ReadCSV(r,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(true),
		dataframe.NaNValues(NullTokens),
		dataframe.WithLazyQuotes(true),
	)
	if df.Err != nil {
		return dataframe.DataFrame{}, errs.DataIntegrity("read csv", df.Err)
	}
	return PromoteBools(df), nil
}

// PromoteBools converts String columns whose non-null values are all
// true/false in any letter case into Bool columns.
func PromoteBools(df dataframe.DataFrame) dataframe.DataFrame {
	out := df
	for _, name := range df.Names() {
		col := df.Col(name)
		if col.Type() != series.String {
			continue
		}
		records, ok := boolRecords(col)
		if !ok {
			continue
		}
		out = out.Mutate(series.New(records, series.Bool, name))
	}
	return out
}

func boolRecords(col series.Series) ([]string, bool) {
	records := make([]string, col.Len())
	seen := false
	for i := 0; i < col.Len(); i++ {
		e := col.Elem(i)
		if e.IsNA() {
			records[i] = "NaN"
			continue
		}
		v := strings.ToLower(strings.TrimSpace(e.String()))
		if v != "true" && v != "false" {
			return nil, false
		}
		records[i] = v
		seen = true
	}
	return records, seen
}

// RenameKey renames the airline name column to the join key. A table that
// already carries the key is returned unchanged.
func RenameKey(df dataframe.DataFrame, from, to string) (dataframe.DataFrame, error) {
	if from == "" || from == to || HasColumn(df, to) && !HasColumn(df, from) {
		return df, nil
	}
	if !HasColumn(df, from) {
		return dataframe.DataFrame{}, errs.DataIntegrityf("rename key", "airline table has neither %q nor %q", from, to)
	}
	if HasColumn(df, to) {
		df = df.Drop(to)
	}
	out := df.Rename(to, from)
	if out.Err != nil {
		return dataframe.DataFrame{}, errs.DataIntegrity("rename key", out.Err)
	}
	return out, nil
}

// InnerJoin joins left and right on key with a hash lookup over right.
// Rows keep the left order; a left row matching several right rows is
// repeated once per match in right order. Null keys never match.
func InnerJoin(left, right dataframe.DataFrame, key string) (dataframe.DataFrame, error) {
	const op = "inner join"
	lkey, err := Column(left, key)
	if err != nil {
		return dataframe.DataFrame{}, errs.DataIntegrity(op, fmt.Errorf("left table: %w", err))
	}
	rkey, err := Column(right, key)
	if err != nil {
		return dataframe.DataFrame{}, errs.DataIntegrity(op, fmt.Errorf("right table: %w", err))
	}

	index := make(map[string][]int, rkey.Len())
	for i := 0; i < rkey.Len(); i++ {
		e := rkey.Elem(i)
		if e.IsNA() {
			continue
		}
		k := e.String()
		index[k] = append(index[k], i)
	}

	leftIdx := make([]int, 0, lkey.Len())
	rightIdx := make([]int, 0, lkey.Len())
	for i := 0; i < lkey.Len(); i++ {
		e := lkey.Elem(i)
		if e.IsNA() {
			continue
		}
		for _, j := range index[e.String()] {
			leftIdx = append(leftIdx, i)
			rightIdx = append(rightIdx, j)
		}
	}

	joined := left.Subset(leftIdx)
	if joined.Err != nil {
		return dataframe.DataFrame{}, errs.DataIntegrity(op, joined.Err)
	}
	if right.Ncol() == 1 {
		return joined, nil
	}

	extra := right.Drop(key)
	for _, name := range extra.Names() {
		if HasColumn(left, name) {
			extra = extra.Rename(name+CollisionSuffix, name)
		}
	}
	extra = extra.Subset(rightIdx)
	if extra.Err != nil {
		return dataframe.DataFrame{}, errs.DataIntegrity(op, extra.Err)
	}

	joined = joined.CBind(extra)
	if joined.Err != nil {
		return dataframe.DataFrame{}, errs.DataIntegrity(op, joined.Err)
	}
	return joined, nil
}
