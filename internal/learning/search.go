package learning

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Phillip-Gao/Flight-Forecast/internal/errs"
	"github.com/Phillip-Gao/Flight-Forecast/internal/preprocess"
)

// Params is one hyperparameter combination.
type Params map[string]int

// String formats p with sorted keys, e.g. "max_depth=10 n_estimators=50".
func (p Params) String() string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, p[k])
	}
	return strings.Join(parts, " ")
}

// Grid lists candidate values per hyperparameter.
type Grid map[string][]int

// Candidates expands g into every combination. Keys vary in sorted order
// with the last key fastest, so the order is stable across runs.
func (g Grid) Candidates() ([]Params, error) {
	keys := make([]string, 0, len(g))
	for k, vs := range g {
		if len(vs) == 0 {
			return nil, errs.Configurationf("grid", "no candidate values for %s", k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := []Params{{}}
	for _, k := range keys {
		next := make([]Params, 0, len(out)*len(g[k]))
		for _, base := range out {
			for _, v := range g[k] {
				p := make(Params, len(base)+1)
				for bk, bv := range base {
					p[bk] = bv
				}
				p[k] = v
				next = append(next, p)
			}
		}
		out = next
	}
	return out, nil
}

// FitFunc trains a model for params on the fold's training rows and returns
// its score on the fold's validation rows. Higher is better.
type FitFunc func(ctx context.Context, params Params, fold preprocess.Fold) (float64, error)

// CandidateScore is the cross-validated score of one candidate.
type CandidateScore struct {
	Params     Params
	FoldScores []float64
	Mean       float64
	Std        float64
}

// Searcher picks the best hyperparameters from a grid.
type Searcher interface {
	Search(ctx context.Context, grid Grid, fit FitFunc, folds []preprocess.Fold) (Params, []CandidateScore, error)
}

// GridSearch evaluates every candidate on every fold, at most Workers fits at
// a time. The best candidate has the highest mean score; ties go to the
// earlier candidate.
type GridSearch struct {
	Workers int
	// OnCandidate, when set, is called once per finished candidate.
	OnCandidate func(CandidateScore)
}

// Search implements Searcher.
func (s GridSearch) Search(ctx context.Context, grid Grid, fit FitFunc, folds []preprocess.Fold) (Params, []CandidateScore, error) {
	cands, err := grid.Candidates()
	if err != nil {
		return nil, nil, err
	}
	if len(folds) == 0 {
		return nil, nil, errs.Configurationf("grid search", "no folds")
	}
	workers := s.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	scores := make([]CandidateScore, len(cands))
	for i, p := range cands {
		scores[i] = CandidateScore{Params: p, FoldScores: make([]float64, len(folds))}
	}
	remaining := make([]int, len(cands))
	for i := range remaining {
		remaining[i] = len(folds)
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for c := range cands {
		for f := range folds {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				score, err := fit(gctx, cands[c], folds[f])
				if err != nil {
					return fmt.Errorf("candidate %s fold %d: %w", cands[c], f, err)
				}
				mu.Lock()
				defer mu.Unlock()
				scores[c].FoldScores[f] = score
				remaining[c]--
				if remaining[c] == 0 {
					summarize(&scores[c])
					if s.OnCandidate != nil {
						s.OnCandidate(scores[c])
					}
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	best := -1
	for i := range scores {
		if math.IsNaN(scores[i].Mean) {
			continue
		}
		if best < 0 || scores[i].Mean > scores[best].Mean {
			best = i
		}
	}
	if best < 0 {
		return nil, scores, errs.ModelFitf("grid search", "no candidate produced a finite score")
	}
	return scores[best].Params, scores, nil
}

func summarize(cs *CandidateScore) {
	var sum float64
	for _, v := range cs.FoldScores {
		sum += v
	}
	cs.Mean = sum / float64(len(cs.FoldScores))
	var sq float64
	for _, v := range cs.FoldScores {
		sq += (v - cs.Mean) * (v - cs.Mean)
	}
	cs.Std = math.Sqrt(sq / float64(len(cs.FoldScores)))
}

// NegMSEScorer returns a FitFunc that builds a model with build, fits it on
// the fold's training rows of x, y and scores it by negative mean squared
// error on the validation rows.
func NegMSEScorer(x [][]float64, y []float64, build func(Params) (Model, error)) FitFunc {
	return func(ctx context.Context, params Params, fold preprocess.Fold) (float64, error) {
		m, err := build(params)
		if err != nil {
			return 0, err
		}
		tx, ty := pick(x, y, fold.Train)
		if err := m.Fit(ctx, tx, ty); err != nil {
			return 0, err
		}
		vx, vy := pick(x, y, fold.Test)
		pred, err := m.Predict(vx)
		if err != nil {
			return 0, err
		}
		mse, err := MSE(vy, pred)
		if err != nil {
			return 0, err
		}
		return -mse, nil
	}
}

func pick(x [][]float64, y []float64, idx []int) ([][]float64, []float64) {
	px := make([][]float64, len(idx))
	py := make([]float64, len(idx))
	for i, j := range idx {
		px[i] = x[j]
		py[i] = y[j]
	}
	return px, py
}

// ForestBuilder returns a build function for NegMSEScorer that maps grid
// params onto base. Unknown parameter names are a ConfigurationError.
func ForestBuilder(base ForestConfig) func(Params) (Model, error) {
	return func(p Params) (Model, error) {
		cfg, err := forestConfigFrom(base, p)
		if err != nil {
			return nil, err
		}
		return NewForest(cfg), nil
	}
}

func forestConfigFrom(base ForestConfig, p Params) (ForestConfig, error) {
	cfg := base
	for k, v := range p {
		switch k {
		case "n_estimators":
			cfg.NEstimators = v
		case "max_depth":
			cfg.MaxDepth = v
		case "min_samples_split":
			cfg.MinSamplesSplit = v
		case "min_samples_leaf":
			cfg.MinSamplesLeaf = v
		default:
			return ForestConfig{}, errs.Configurationf("forest params", "unknown hyperparameter %q", k)
		}
	}
	return cfg, nil
}
