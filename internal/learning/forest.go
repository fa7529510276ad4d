package learning

import (
	"context"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/Phillip-Gao/Flight-Forecast/internal/errs"
)

// ForestConfig holds the random forest hyperparameters.
type ForestConfig struct {
	NEstimators     int
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	Seed            int64
	// Workers bounds concurrent tree construction. 0 means GOMAXPROCS.
	Workers int
}

// Forest is a bagged ensemble of CART regression trees. Every split
// considers all features.
type Forest struct {
	Config ForestConfig
	Trees  []Tree
	// Importances is the normalised squared-error decrease per feature.
	Importances []float64
	NFeatures   int
}

// NewForest returns an unfitted forest.
func NewForest(cfg ForestConfig) *Forest {
	return &Forest{Config: cfg}
}

// Kind implements Model.
func (f *Forest) Kind() Kind { return KindForest }

// Params implements Model.
func (f *Forest) Params() map[string]any {
	return map[string]any{
		"n_estimators":      f.Config.NEstimators,
		"max_depth":         f.Config.MaxDepth,
		"min_samples_split": f.Config.MinSamplesSplit,
		"min_samples_leaf":  f.Config.MinSamplesLeaf,
	}
}

// Fit grows NEstimators trees on bootstrap samples. Tree t draws its sample
// from a rand seeded with Seed+t, so results do not depend on scheduling.
func (f *Forest) Fit(ctx context.Context, x [][]float64, y []float64) error {
	const op = "fit forest"
	d, err := checkXY(op, x, y)
	if err != nil {
		return err
	}
	cfg := f.Config
	if cfg.NEstimators <= 0 {
		return errs.Configurationf(op, "n_estimators must be positive, got %d", cfg.NEstimators)
	}
	if cfg.MinSamplesSplit < 2 || cfg.MinSamplesLeaf < 1 {
		return errs.Configurationf(op, "min_samples_split must be >= 2 and min_samples_leaf >= 1, got %d and %d",
			cfg.MinSamplesSplit, cfg.MinSamplesLeaf)
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	trees := make([]Tree, cfg.NEstimators)
	importances := make([][]float64, cfg.NEstimators)
	tcfg := TreeConfig{MaxDepth: cfg.MaxDepth, MinSamplesSplit: cfg.MinSamplesSplit, MinSamplesLeaf: cfg.MinSamplesLeaf}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for t := range trees {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(cfg.Seed + int64(t)))
			imp := make([]float64, d)
			trees[t] = buildTree(tcfg, x, y, bootstrap(len(x), rng), imp)
			importances[t] = imp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	f.Trees = trees
	f.NFeatures = d
	f.Importances = make([]float64, d)
	for _, imp := range importances {
		var total float64
		for _, v := range imp {
			total += v
		}
		if total == 0 {
			continue
		}
		for j, v := range imp {
			f.Importances[j] += v / total
		}
	}
	var total float64
	for _, v := range f.Importances {
		total += v
	}
	if total > 0 {
		for j := range f.Importances {
			f.Importances[j] /= total
		}
	}
	return nil
}

// Predict implements Model. The prediction is the mean over all trees.
func (f *Forest) Predict(x [][]float64) ([]float64, error) {
	if len(f.Trees) == 0 {
		return nil, errs.ModelFitf("predict forest", "model is not fitted")
	}
	if err := checkWidth("predict forest", x, f.NFeatures); err != nil {
		return nil, err
	}
	out := make([]float64, len(x))
	for i, row := range x {
		var sum float64
		for _, t := range f.Trees {
			sum += t.Predict(row)
		}
		out[i] = sum / float64(len(f.Trees))
	}
	return out, nil
}
