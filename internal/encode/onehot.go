package encode

import (
	"math"
	"strconv"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/Phillip-Gao/Flight-Forecast/internal/dataset"
	"github.com/Phillip-Gao/Flight-Forecast/internal/errs"
)

// OneHotBools replaces each Bool column with an indicator column for its
// second state, named "<col>_<state>". The first non-null value seen is the
// reference state and is dropped. A column with a single state produces no
// column at all. Other columns keep their position.
func OneHotBools(df dataframe.DataFrame) (dataframe.DataFrame, error) {
	var cols []series.Series
	changed := false
	for _, name := range df.Names() {
		col := df.Col(name)
		if col.Type() != series.Bool {
			cols = append(cols, col)
			continue
		}
		changed = true
		if dummy, ok := indicator(col); ok {
			cols = append(cols, dummy)
		}
	}
	if !changed {
		return df, nil
	}
	if len(cols) == 0 {
		return dataframe.DataFrame{}, errs.DataIntegrityf("one-hot", "no columns left after encoding %d bool columns", df.Ncol())
	}
	out := dataframe.New(cols...)
	if out.Err != nil {
		return dataframe.DataFrame{}, errs.DataIntegrity("one-hot", out.Err)
	}
	return out, nil
}

func indicator(col series.Series) (series.Series, bool) {
	vals := make([]float64, col.Len())
	var ref bool
	seenRef, twoStates := false, false
	for i := 0; i < col.Len(); i++ {
		e := col.Elem(i)
		if e.IsNA() {
			vals[i] = math.NaN()
			continue
		}
		b, _ := e.Bool()
		if !seenRef {
			ref, seenRef = b, true
		}
		if b != ref {
			vals[i] = 1
			twoStates = true
		}
	}
	if !twoStates {
		return series.Series{}, false
	}
	return series.New(vals, series.Float, col.Name+"_"+strconv.FormatBool(!ref)), true
}

// Indicators replaces each Bool column with the indicator columns for it
// that appear in names. Unlike OneHotBools the state is taken from the name,
// so new data lines up with a trained column set whatever state it shows first.
func Indicators(df dataframe.DataFrame, names []string) (dataframe.DataFrame, error) {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var cols []series.Series
	changed := false
	for _, name := range df.Names() {
		col := df.Col(name)
		if col.Type() != series.Bool {
			cols = append(cols, col)
			continue
		}
		changed = true
		for _, state := range []bool{false, true} {
			dummy := col.Name + "_" + strconv.FormatBool(state)
			if !want[dummy] {
				continue
			}
			vals := make([]float64, col.Len())
			for i := range vals {
				e := col.Elem(i)
				if e.IsNA() {
					vals[i] = math.NaN()
					continue
				}
				if b, _ := e.Bool(); b == state {
					vals[i] = 1
				}
			}
			cols = append(cols, series.New(vals, series.Float, dummy))
		}
	}
	if !changed {
		return df, nil
	}
	if len(cols) == 0 {
		return dataframe.DataFrame{}, errs.DataIntegrityf("indicators", "no columns left after encoding %d bool columns", df.Ncol())
	}
	out := dataframe.New(cols...)
	if out.Err != nil {
		return dataframe.DataFrame{}, errs.DataIntegrity("indicators", out.Err)
	}
	return out, nil
}

// Report counts what Encode discarded.
type Report struct {
	Unseen      map[string]int
	DroppedRows int
}

// Encode runs the category transform, the bool one-hot and a final null drop.
// The returned table holds only Int and Float columns.
func Encode(df dataframe.DataFrame, enc *CategoryEncoder) (dataframe.DataFrame, Report, error) {
	var rep Report
	out, unseen, err := enc.Transform(df)
	rep.Unseen = unseen
	if err != nil {
		return dataframe.DataFrame{}, rep, err
	}
	out, err = OneHotBools(out)
	if err != nil {
		return dataframe.DataFrame{}, rep, err
	}
	out, rep.DroppedRows, err = dataset.DropNullRows(out)
	if err != nil {
		return dataframe.DataFrame{}, rep, errs.DataIntegrity("encode", err)
	}
	for _, name := range out.Names() {
		if !dataset.IsNumeric(out.Col(name)) {
			return dataframe.DataFrame{}, rep, errs.DataIntegrityf("encode", "column %q is %s after encoding", name, out.Col(name).Type())
		}
	}
	return out, rep, nil
}
