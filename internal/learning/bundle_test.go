package learning

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Phillip-Gao/Flight-Forecast/internal/preprocess"
)

func TestBundle_Importances(t *testing.T) {
	names := []string{"DepDelay", "TaxiOut"}
	tests := []struct {
		name   string
		bundle *Bundle
		want   []Importance
	}{
		{
			name:   "linear coefficients by feature",
			bundle: &Bundle{Features: names, Model: &LinearRegression{Coef: []float64{2, -1}, Intercept: 3}},
			want:   []Importance{{Feature: "DepDelay", Value: 2}, {Feature: "TaxiOut", Value: -1}},
		},
		{
			name:   "linear coefficients by component",
			bundle: &Bundle{Features: names, PCA: &preprocess.PCA{}, Model: &LinearRegression{Coef: []float64{0.5}}},
			want:   []Importance{{Feature: "PC1", Value: 0.5}},
		},
		{
			name:   "forest importances",
			bundle: &Bundle{Features: names, Model: &Forest{Importances: []float64{0.75, 0.25}}},
			want:   []Importance{{Feature: "DepDelay", Value: 0.75}, {Feature: "TaxiOut", Value: 0.25}},
		},
		{
			name:   "other models have none",
			bundle: &Bundle{Features: names, Model: new(MockModel)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.bundle.Importances())
		})
	}
}
