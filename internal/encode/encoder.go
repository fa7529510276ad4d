// Package encode turns the cleaned flight table into an all-numeric one.
//
// String columns are replaced by integer codes from a CategoryEncoder, which
// is fitted once and saved next to the models so inference sees the same
// codes. Bool columns are one-hot encoded with the first state dropped.
package encode

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/Phillip-Gao/Flight-Forecast/internal/dataset"
	"github.com/Phillip-Gao/Flight-Forecast/internal/errs"
	"github.com/Phillip-Gao/Flight-Forecast/pkg/atomicfile"
)

// CategoryEncoder maps the values of each string column to their
// first-occurrence position.
type CategoryEncoder struct {
	columns []string
	levels  map[string][]string
	codes   map[string]map[string]int
}

// encoderWire is the gob form of a CategoryEncoder.
type encoderWire struct {
	Columns []string
	Levels  map[string][]string
}

// FitCategoryEncoder records the distinct non-null values of every String
// column of df, in column order.
func FitCategoryEncoder(df dataframe.DataFrame) (*CategoryEncoder, error) {
	if df.Err != nil {
		return nil, errs.DataIntegrity("fit encoder", df.Err)
	}
	enc := &CategoryEncoder{levels: map[string][]string{}, codes: map[string]map[string]int{}}
	for _, name := range df.Names() {
		col := df.Col(name)
		if col.Type() != series.String {
			continue
		}
		var levels []string
		codes := map[string]int{}
		for i := 0; i < col.Len(); i++ {
			e := col.Elem(i)
			if e.IsNA() {
				continue
			}
			v := e.String()
			if _, ok := codes[v]; ok {
				continue
			}
			codes[v] = len(levels)
			levels = append(levels, v)
		}
		enc.columns = append(enc.columns, name)
		enc.levels[name] = levels
		enc.codes[name] = codes
	}
	return enc, nil
}

// Columns returns the fitted column names.
func (e *CategoryEncoder) Columns() []string {
	return append([]string(nil), e.columns...)
}

// Levels returns the fitted values of column in code order.
func (e *CategoryEncoder) Levels(column string) []string {
	return append([]string(nil), e.levels[column]...)
}

// Code returns the code of value in column.
func (e *CategoryEncoder) Code(column, value string) (int, bool) {
	c, ok := e.codes[column][value]
	return c, ok
}

// Restrict returns an encoder over the fitted columns that appear in names.
func (e *CategoryEncoder) Restrict(names []string) *CategoryEncoder {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	out := &CategoryEncoder{levels: map[string][]string{}, codes: map[string]map[string]int{}}
	for _, c := range e.columns {
		if !want[c] {
			continue
		}
		out.columns = append(out.columns, c)
		out.levels[c] = e.levels[c]
		out.codes[c] = e.codes[c]
	}
	return out
}

// Transform replaces every fitted column of df with its Int codes. Values not
// seen at fit time, and nulls, become null. It returns the per-column count
// of unseen values.
func (e *CategoryEncoder) Transform(df dataframe.DataFrame) (dataframe.DataFrame, map[string]int, error) {
	unseen := map[string]int{}
	out := df
	for _, name := range e.columns {
		col, err := dataset.Column(df, name)
		if err != nil {
			return dataframe.DataFrame{}, unseen, errs.DataIntegrity("encode categories", err)
		}
		codes := e.codes[name]
		records := make([]string, col.Len())
		for i := range records {
			el := col.Elem(i)
			if el.IsNA() {
				records[i] = "NaN"
				continue
			}
			c, ok := codes[el.String()]
			if !ok {
				records[i] = "NaN"
				unseen[name]++
				continue
			}
			records[i] = strconv.Itoa(c)
		}
		out = out.Mutate(series.New(records, series.Int, name))
		if out.Err != nil {
			return dataframe.DataFrame{}, unseen, errs.DataIntegrity("encode categories", out.Err)
		}
	}
	return out, unseen, nil
}

// MarshalBinary implements encoding.BinaryMarshaler using gob.
func (e *CategoryEncoder) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(encoderWire{Columns: e.columns, Levels: e.levels}); err != nil {
		return nil, fmt.Errorf("failed to encode category encoder: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler using gob.
func (e *CategoryEncoder) UnmarshalBinary(data []byte) error {
	var w encoderWire
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&w); err != nil {
		return fmt.Errorf("failed to decode category encoder: %w", err)
	}
	e.columns = w.Columns
	e.levels = map[string][]string{}
	e.codes = map[string]map[string]int{}
	for _, name := range w.Columns {
		levels := w.Levels[name]
		codes := make(map[string]int, len(levels))
		for i, v := range levels {
			codes[v] = i
		}
		e.levels[name] = levels
		e.codes[name] = codes
	}
	return nil
}

// Save writes the encoder to path atomically.
func (e *CategoryEncoder) Save(path string) error {
	data, err := e.MarshalBinary()
	if err != nil {
		return err
	}
	return atomicfile.Write(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// LoadEncoder reads an encoder written by Save.
func LoadEncoder(path string) (*CategoryEncoder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read encoder %s: %w", path, err)
	}
	enc := &CategoryEncoder{}
	if err := enc.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return enc, nil
}
