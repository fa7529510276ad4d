package preprocess

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/Phillip-Gao/Flight-Forecast/internal/config"
	"github.com/Phillip-Gao/Flight-Forecast/internal/errs"
)

// PCA projects rows onto the leading principal components.
type PCA struct {
	Mean []float64
	// Components holds one unit direction per row, strongest first.
	Components [][]float64
	// ExplainedRatio is the share of variance of every component, not just the kept ones.
	ExplainedRatio []float64
}

// FitPCA fits a projection on x. The kept component count is cfg.Components
// when positive, otherwise the smallest count whose cumulative explained
// variance reaches cfg.VarianceCutoff.
func FitPCA(x [][]float64, cfg config.PCAConf) (*PCA, error) {
	if len(x) < 2 {
		return nil, errs.DataIntegrityf("fit pca", "need at least 2 rows, got %d", len(x))
	}
	n, d := len(x), len(x[0])
	if cfg.Components < 0 || cfg.Components > d {
		return nil, errs.Configurationf("fit pca", "components must be in [0, %d], got %d", d, cfg.Components)
	}
	if cfg.Components == 0 && (cfg.VarianceCutoff <= 0 || cfg.VarianceCutoff > 1) {
		return nil, errs.Configurationf("fit pca", "variance cutoff must be in (0, 1], got %v", cfg.VarianceCutoff)
	}

	a := mat.NewDense(n, d, nil)
	for i, row := range x {
		a.SetRow(i, row)
	}
	var pc stat.PC
	if ok := pc.PrincipalComponents(a, nil); !ok {
		return nil, errs.ModelFitf("fit pca", "decomposition failed")
	}
	vars := pc.VarsTo(nil)
	var vecs mat.Dense
	pc.VectorsTo(&vecs)

	var total float64
	for _, v := range vars {
		total += v
	}
	ratios := make([]float64, len(vars))
	for i, v := range vars {
		if total > 0 {
			ratios[i] = v / total
		}
	}

	k := cfg.Components
	if k == 0 {
		k = ComponentsForVariance(ratios, cfg.VarianceCutoff)
	}
	if k > len(vars) {
		return nil, errs.Configurationf("fit pca", "%d components requested but only %d available", k, len(vars))
	}

	p := &PCA{Mean: make([]float64, d), ExplainedRatio: ratios, Components: make([][]float64, k)}
	for j := 0; j < d; j++ {
		p.Mean[j] = stat.Mean(mat.Col(nil, j, a), nil)
	}
	for c := 0; c < k; c++ {
		p.Components[c] = mat.Col(nil, c, &vecs)
	}
	return p, nil
}

// ComponentsForVariance returns the smallest k such that the first k ratios
// sum to at least cutoff. It returns len(ratios) when the cutoff is never met.
func ComponentsForVariance(ratios []float64, cutoff float64) int {
	var sum float64
	for i, r := range ratios {
		sum += r
		// tolerate rounding so a cutoff of 1 can be reached
		if sum >= cutoff-1e-12 {
			return i + 1
		}
	}
	return len(ratios)
}

// Kept returns the number of retained components.
func (p *PCA) Kept() int { return len(p.Components) }

// Transform projects x onto the kept components.
func (p *PCA) Transform(x [][]float64) [][]float64 {
	out := make([][]float64, len(x))
	for i, row := range x {
		r := make([]float64, len(p.Components))
		for c, dir := range p.Components {
			var dot float64
			for j, v := range row {
				dot += (v - p.Mean[j]) * dir[j]
			}
			r[c] = dot
		}
		out[i] = r
	}
	return out
}
