package learning

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Phillip-Gao/Flight-Forecast/internal/config"
	"github.com/Phillip-Gao/Flight-Forecast/internal/features"
	"github.com/Phillip-Gao/Flight-Forecast/internal/preprocess"
)

// TrainConfig holds the preparation steps shared by every trainer.
type TrainConfig struct {
	TestRatio         float64
	Seed              int64
	UsePCA            bool
	PCA               config.PCAConf
	AccuracyThreshold float64
}

// Prepared is the imputed, split, scaled and optionally projected data one
// model is trained and evaluated on.
type Prepared struct {
	Names  []string
	XTrain [][]float64
	YTrain []float64
	XTest  [][]float64
	YTest  []float64
	Scaler *preprocess.StandardScaler
	PCA    *preprocess.PCA
}

// Prepare runs mean imputation, the seeded split, standard scaling fitted on
// the training rows and, when enabled, PCA fitted on the scaled training rows.
func Prepare(ds features.Dataset, cfg TrainConfig) (*Prepared, error) {
	imputed, err := features.ImputeMean(ds)
	if err != nil {
		return nil, err
	}
	trainIdx, testIdx, err := preprocess.TrainTestSplit(imputed.Len(), cfg.TestRatio, cfg.Seed)
	if err != nil {
		return nil, err
	}
	train, test := imputed.Rows(trainIdx), imputed.Rows(testIdx)

	scaler, err := preprocess.FitScaler(train.Features)
	if err != nil {
		return nil, err
	}
	p := &Prepared{
		Names:  imputed.Names,
		XTrain: scaler.Transform(train.Features),
		YTrain: train.Target,
		XTest:  scaler.Transform(test.Features),
		YTest:  test.Target,
		Scaler: scaler,
	}
	if cfg.UsePCA {
		pca, err := preprocess.FitPCA(p.XTrain, cfg.PCA)
		if err != nil {
			return nil, err
		}
		p.PCA = pca
		p.XTrain = pca.Transform(p.XTrain)
		p.XTest = pca.Transform(p.XTest)
		p.Names = make([]string, pca.Kept())
		for i := range p.Names {
			p.Names[i] = fmt.Sprintf("PC%d", i+1)
		}
	}
	return p, nil
}

// Importance is the weight of one model input: the share of a forest's error
// reduction, or a linear coefficient on the scaled input.
type Importance struct {
	Feature string
	Value   float64
}

// Result is the outcome of one trainer.
type Result struct {
	Kind        Kind
	Version     string
	Metrics     Metrics
	Params      map[string]any
	TrainRows   int
	TestRows    int
	Components  int
	Duration    time.Duration
	History     []EpochStats
	Importances []Importance
	Candidates  []CandidateScore
	Bundle      *Bundle
}

// BuildFunc fits a model on prepared data. It may also return the grid
// search scores that led to it.
type BuildFunc func(ctx context.Context, p *Prepared) (Model, []CandidateScore, error)

// Trainer prepares data, fits one model and evaluates it on the held-out rows.
type Trainer struct {
	kind   Kind
	cfg    TrainConfig
	build  BuildFunc
	logger *zap.Logger
}

// NewTrainer creates a Trainer that fits models with build.
func NewTrainer(kind Kind, cfg TrainConfig, build BuildFunc, logger *zap.Logger) *Trainer {
	return &Trainer{kind: kind, cfg: cfg, build: build, logger: logger.With(zap.String("model", string(kind)))}
}

// Kind returns the model family this trainer fits.
func (t *Trainer) Kind() Kind { return t.kind }

// Train runs the shared steps on ds and fits the model. ds is not modified.
func (t *Trainer) Train(ctx context.Context, ds features.Dataset) (*Result, error) {
	start := time.Now()
	p, err := Prepare(ds, t.cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare %s data: %w", t.kind, err)
	}
	components := 0
	if p.PCA != nil {
		components = p.PCA.Kept()
	}
	t.logger.Info("Prepared training data",
		zap.Int("train_rows", len(p.YTrain)), zap.Int("test_rows", len(p.YTest)), zap.Int("pca_components", components))

	model, candidates, err := t.build(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("failed to fit %s model: %w", t.kind, err)
	}
	pred, err := model.Predict(p.XTest)
	if err != nil {
		return nil, fmt.Errorf("failed to predict with %s model: %w", t.kind, err)
	}
	metrics, err := Evaluate(p.YTest, pred, t.cfg.AccuracyThreshold)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Kind:       t.kind,
		Version:    NewVersion(t.kind),
		Metrics:    metrics,
		Params:     model.Params(),
		TrainRows:  len(p.YTrain),
		TestRows:   len(p.YTest),
		Components: components,
		Candidates: candidates,
	}
	if m, ok := model.(*Network); ok {
		res.History = append([]EpochStats(nil), m.History...)
	}
	res.Bundle = &Bundle{
		Version:   res.Version,
		Kind:      t.kind,
		CreatedAt: time.Now().UTC(),
		Features:  append([]string(nil), ds.Names...),
		Scaler:    p.Scaler,
		PCA:       p.PCA,
		Model:     model,
		Metrics:   metrics,
	}
	res.Importances = res.Bundle.Importances()
	res.Duration = time.Since(start)
	t.logger.Info("Model evaluated",
		zap.Float64("rmse", metrics.RMSE), zap.Float64("r2", metrics.R2),
		zap.Float64("accuracy", metrics.Accuracy), zap.Duration("took", res.Duration))
	return res, nil
}

// LinearBuild fits ordinary least squares.
func LinearBuild() BuildFunc {
	return func(ctx context.Context, p *Prepared) (Model, []CandidateScore, error) {
		m := NewLinearRegression()
		if err := m.Fit(ctx, p.XTrain, p.YTrain); err != nil {
			return nil, nil, err
		}
		return m, nil, nil
	}
}

// NetworkBuild fits a network with cfg, recording test loss every epoch.
func NetworkBuild(cfg NetworkConfig, logger *zap.Logger) BuildFunc {
	return func(ctx context.Context, p *Prepared) (Model, []CandidateScore, error) {
		m := NewNetwork(cfg)
		m.SetValidation(p.XTest, p.YTest)
		if err := m.Fit(ctx, p.XTrain, p.YTrain); err != nil {
			return nil, nil, err
		}
		for _, e := range m.History {
			logger.Debug("Epoch finished",
				zap.Int("epoch", e.Epoch), zap.Float64("train_loss", e.TrainLoss), zap.Float64("train_acc", e.TrainAcc),
				zap.Float64("test_loss", e.TestLoss), zap.Float64("test_acc", e.TestAcc))
		}
		return m, nil, nil
	}
}

// ForestBuild searches grid with searcher over folds-fold cross validation on
// the training rows, then refits the best candidate on all of them.
func ForestBuild(base ForestConfig, grid Grid, folds int, searcher Searcher, logger *zap.Logger) BuildFunc {
	return func(ctx context.Context, p *Prepared) (Model, []CandidateScore, error) {
		parts, err := preprocess.KFold(len(p.YTrain), folds)
		if err != nil {
			return nil, nil, err
		}
		// candidates already run in parallel; keep each forest single threaded
		searchBase := base
		searchBase.Workers = 1
		best, scores, err := searcher.Search(ctx, grid, NegMSEScorer(p.XTrain, p.YTrain, ForestBuilder(searchBase)), parts)
		if err != nil {
			return nil, scores, err
		}
		logger.Info("Grid search finished", zap.Stringer("best", best), zap.Int("candidates", len(scores)))

		cfg, err := forestConfigFrom(base, best)
		if err != nil {
			return nil, scores, err
		}
		m := NewForest(cfg)
		if err := m.Fit(ctx, p.XTrain, p.YTrain); err != nil {
			return nil, scores, err
		}
		return m, scores, nil
	}
}

// GridFromConfig converts the configured grid into a search Grid.
func GridFromConfig(g config.GridConf) Grid {
	return Grid{
		"n_estimators":      g.NEstimators,
		"max_depth":         g.MaxDepth,
		"min_samples_split": g.MinSamplesSplit,
		"min_samples_leaf":  g.MinSamplesLeaf,
	}
}
