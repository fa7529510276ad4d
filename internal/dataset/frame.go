package dataset

import (
	"fmt"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// IsNumeric reports whether s holds Int or Float values. Bool is not numeric here.
func IsNumeric(s series.Series) bool {
	return s.Type() == series.Int || s.Type() == series.Float
}

// HasColumn reports whether df has a column called name.
func HasColumn(df dataframe.DataFrame, name string) bool {
	for _, n := range df.Names() {
		if n == name {
			return true
		}
	}
	return false
}

// Column returns a copy of the named column or an error if it does not exist.
func Column(df dataframe.DataFrame, name string) (series.Series, error) {
	if !HasColumn(df, name) {
		return series.Series{}, fmt.Errorf("unknown column %q", name)
	}
	s := df.Col(name)
	if s.Err != nil {
		return series.Series{}, fmt.Errorf("failed to read column %q: %w", name, s.Err)
	}
	return s, nil
}

// NullRows marks every row holding at least one null. Cells are read in
// place through df.Elem; rows already marked are not read again.
func NullRows(df dataframe.DataFrame) []bool {
	nrow, ncol := df.Dims()
	mask := make([]bool, nrow)
	for j := 0; j < ncol; j++ {
		for i := 0; i < nrow; i++ {
			if !mask[i] && df.Elem(i, j).IsNA() {
				mask[i] = true
			}
		}
	}
	return mask
}

// KeepRows returns the rows of df whose keep flag is set.
func KeepRows(df dataframe.DataFrame, keep []bool) (dataframe.DataFrame, error) {
	if len(keep) != df.Nrow() {
		return dataframe.DataFrame{}, fmt.Errorf("row mask has %d entries for %d rows", len(keep), df.Nrow())
	}
	if df.Ncol() == 0 {
		return df, nil
	}
	out := df.Subset(keep)
	if out.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("failed to subset rows: %w", out.Err)
	}
	return out, nil
}

// DropNullRows removes every row holding a null and reports how many went.
func DropNullRows(df dataframe.DataFrame) (dataframe.DataFrame, int, error) {
	nulls := NullRows(df)
	keep := make([]bool, len(nulls))
	dropped := 0
	for i, na := range nulls {
		keep[i] = !na
		if na {
			dropped++
		}
	}
	if dropped == 0 {
		return df.Copy(), 0, nil
	}
	out, err := KeepRows(df, keep)
	if err != nil {
		return dataframe.DataFrame{}, 0, err
	}
	return out, dropped, nil
}
