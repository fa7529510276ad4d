package learning

import (
	"encoding/gob"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/Phillip-Gao/Flight-Forecast/internal/encode"
	"github.com/Phillip-Gao/Flight-Forecast/internal/errs"
	"github.com/Phillip-Gao/Flight-Forecast/internal/preprocess"
	"github.com/Phillip-Gao/Flight-Forecast/pkg/atomicfile"
)

func init() {
	gob.Register(&LinearRegression{})
	gob.Register(&Network{})
	gob.Register(&Forest{})
}

// Bundle is everything needed to score raw feature rows with a fitted model.
type Bundle struct {
	Version   string
	Kind      Kind
	CreatedAt time.Time
	// Features are the input column names before scaling and projection.
	Features []string
	Target   string
	Scaler   *preprocess.StandardScaler
	PCA      *preprocess.PCA
	Encoder  *encode.CategoryEncoder
	Model    Model
	Metrics  Metrics
}

// Save writes b to path atomically.
func (b *Bundle) Save(path string) error {
	return atomicfile.Write(path, func(w io.Writer) error {
		if err := gob.NewEncoder(w).Encode(b); err != nil {
			return fmt.Errorf("failed to encode %s bundle: %w", b.Kind, err)
		}
		return nil
	})
}

// LoadBundle reads a bundle written by Save.
func LoadBundle(path string) (*Bundle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open bundle %s: %w", path, err)
	}
	defer f.Close()

	var b Bundle
	if err := gob.NewDecoder(f).Decode(&b); err != nil {
		return nil, fmt.Errorf("failed to decode bundle %s: %w", path, err)
	}
	if b.Model == nil || b.Scaler == nil {
		return nil, errs.DataIntegrityf("load bundle", "%s is missing its model or scaler", path)
	}
	return &b, nil
}

// Predict scores raw rows laid out as b.Features. Missing values are filled
// with the training mean before scaling.
func (b *Bundle) Predict(x [][]float64) ([]float64, error) {
	if err := checkWidth("bundle predict", x, len(b.Features)); err != nil {
		return nil, err
	}
	filled := make([][]float64, len(x))
	for i, row := range x {
		r := append([]float64(nil), row...)
		for j, v := range r {
			if math.IsNaN(v) {
				r[j] = b.Scaler.Mean[j]
			}
		}
		filled[i] = r
	}
	z := b.Scaler.Transform(filled)
	if b.PCA != nil {
		z = b.PCA.Transform(z)
	}
	return b.Model.Predict(z)
}

// Importances returns the per-input weights of the model, named by model
// input: the feature names, or PC1..PCn when the bundle projects with PCA.
// A forest reports impurity importances and a linear model its coefficients.
// Other models have none.
func (b *Bundle) Importances() []Importance {
	var values []float64
	switch m := b.Model.(type) {
	case *Forest:
		values = m.Importances
	case *LinearRegression:
		values = m.Coef
	default:
		return nil
	}
	out := make([]Importance, len(values))
	for j, v := range values {
		name := fmt.Sprintf("PC%d", j+1)
		if b.PCA == nil && j < len(b.Features) {
			name = b.Features[j]
		}
		out[j] = Importance{Feature: name, Value: v}
	}
	return out
}
