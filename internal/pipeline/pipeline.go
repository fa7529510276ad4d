// Package pipeline runs the forecasting stages end to end: load, clean,
// encode, select, train, then persist bundles, store rows, reports and
// metrics for the run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Phillip-Gao/Flight-Forecast/internal/alert"
	"github.com/Phillip-Gao/Flight-Forecast/internal/benchmark"
	"github.com/Phillip-Gao/Flight-Forecast/internal/clean"
	"github.com/Phillip-Gao/Flight-Forecast/internal/config"
	"github.com/Phillip-Gao/Flight-Forecast/internal/csvwriter"
	"github.com/Phillip-Gao/Flight-Forecast/internal/dataset"
	"github.com/Phillip-Gao/Flight-Forecast/internal/dbwriter"
	"github.com/Phillip-Gao/Flight-Forecast/internal/encode"
	"github.com/Phillip-Gao/Flight-Forecast/internal/errs"
	"github.com/Phillip-Gao/Flight-Forecast/internal/features"
	"github.com/Phillip-Gao/Flight-Forecast/internal/learning"
	"github.com/Phillip-Gao/Flight-Forecast/internal/metrics"
	"github.com/Phillip-Gao/Flight-Forecast/internal/report"
)

// Artifact file names inside the output directory.
const (
	EncoderFile      = "encoder.gob"
	CorrelationsFile = "correlations.csv"
	ManifestFile     = "manifest.yaml"
	BundleExt        = ".bundle"
)

// BundlePath returns where the bundle of kind is written under dir.
func BundlePath(dir string, kind learning.Kind) string {
	return filepath.Join(dir, string(kind)+BundleExt)
}

// Outcome is what a successful run produced.
type Outcome struct {
	RunID        string
	RowsLoaded   int
	RowsCleaned  int
	RowsEncoded  int
	Clean        clean.Summary
	Encode       encode.Report
	Correlations []features.Correlation
	Results      []*learning.Result
	Comparison   *report.Comparison
	Manifest     Manifest
}

// Pipeline wires the stages to the run store, the metrics and the notifier.
type Pipeline struct {
	cfg      *config.Config
	writer   dbwriter.Writer
	metrics  *metrics.Metrics
	notifier alert.Notifier
	logger   *zap.Logger
}

// New creates a Pipeline. A nil notifier means no notifications; nil
// metrics get a fresh registry.
func New(cfg *config.Config, writer dbwriter.Writer, m *metrics.Metrics, notifier alert.Notifier, logger *zap.Logger) *Pipeline {
	if m == nil {
		m = metrics.New()
	}
	if notifier == nil {
		notifier = alert.NewNoOpNotifier()
	}
	return &Pipeline{cfg: cfg, writer: writer, metrics: m, notifier: notifier, logger: logger}
}

// Run executes every stage once. The run is recorded in the store before the
// first stage and finished, as succeeded or failed, when Run returns.
func (p *Pipeline) Run(ctx context.Context) (_ *Outcome, err error) {
	digest, err := p.cfg.Digest()
	if err != nil {
		return nil, err
	}
	o := &Outcome{RunID: uuid.NewString()}
	run := dbwriter.Run{
		ID:           o.RunID,
		StartedAt:    time.Now().UTC(),
		Status:       dbwriter.StatusRunning,
		ConfigDigest: digest,
	}
	if err := p.writer.SaveRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to record run start: %w", err)
	}
	logger := p.logger.With(zap.String("run_id", run.ID))
	logger.Info("Run started", zap.String("config_digest", digest))

	defer func() {
		run.FinishedAt = time.Now().UTC()
		run.RowsLoaded, run.RowsCleaned = o.RowsLoaded, o.RowsCleaned
		run.Status = dbwriter.StatusSucceeded
		if err != nil {
			run.Status, run.Error = dbwriter.StatusFailed, err.Error()
		}
		// record the outcome even when ctx was cancelled
		if ferr := p.writer.FinishRun(context.WithoutCancel(ctx), run); ferr != nil {
			logger.Error("Failed to record run outcome", zap.Error(ferr))
			err = errors.Join(err, ferr)
		}
		if path := p.cfg.Metrics.TextfilePath; path != "" {
			if merr := p.metrics.WriteTextfile(path); merr != nil {
				logger.Warn("Failed to write metrics textfile", zap.Error(merr))
			}
		}
		p.notify(logger, run, o)
	}()

	if err := os.MkdirAll(p.cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	start := time.Now()
	joined, err := dataset.NewLoader(p.cfg.Input, logger).Load(ctx)
	if err != nil {
		return nil, err
	}
	o.RowsLoaded = joined.Nrow()
	p.metrics.ObserveStage("load", time.Since(start), o.RowsLoaded)

	start = time.Now()
	keep := append(append([]string(nil), p.cfg.Features.Columns...), p.cfg.Features.Target)
	cleaned, summary, err := clean.NewCleaner(p.cfg.Clean, keep, logger).Run(ctx, joined)
	if err != nil {
		return nil, err
	}
	o.Clean, o.RowsCleaned = summary, cleaned.Nrow()
	p.metrics.ObserveStage("clean", time.Since(start), o.RowsCleaned)

	start = time.Now()
	enc, err := encode.FitCategoryEncoder(cleaned)
	if err != nil {
		return nil, err
	}
	if err := enc.Save(filepath.Join(p.cfg.OutputDir, EncoderFile)); err != nil {
		return nil, err
	}
	encoded, encRep, err := encode.Encode(cleaned, enc)
	if err != nil {
		return nil, err
	}
	o.Encode, o.RowsEncoded = encRep, encoded.Nrow()
	p.metrics.ObserveStage("encode", time.Since(start), o.RowsEncoded)
	logger.Info("Encoded table",
		zap.Strings("categorical", enc.Columns()), zap.Int("dropped_rows", encRep.DroppedRows), zap.Any("unseen", encRep.Unseen))

	start = time.Now()
	target := p.cfg.Features.Target
	o.Correlations, err = features.Correlations(encoded, target, p.cfg.Features.CorrelationExclude)
	if err != nil {
		return nil, err
	}
	if err := writeCorrelations(filepath.Join(p.cfg.OutputDir, CorrelationsFile), o.Correlations, logger); err != nil {
		return nil, err
	}
	for _, c := range features.Top(o.Correlations, 10) {
		logger.Debug("Correlation", zap.String("feature", c.Feature), zap.Float64("r", c.R))
	}
	ds, err := features.Select(encoded, p.cfg.Features.Columns, target)
	if err != nil {
		return nil, err
	}
	p.metrics.ObserveStage("select", time.Since(start), ds.Len())

	start = time.Now()
	o.Results, err = p.train(ctx, ds, logger)
	if err != nil {
		return nil, err
	}
	p.metrics.ObserveStage("train", time.Since(start), ds.Len())

	if err := p.persist(ctx, o, enc, logger); err != nil {
		return nil, err
	}
	return o, nil
}

// Trainers returns the enabled trainers in reporting order.
func (p *Pipeline) Trainers(logger *zap.Logger) []*learning.Trainer {
	tc := p.cfg.Trainers
	var out []*learning.Trainer
	if tc.Linear.Enabled {
		out = append(out, learning.NewTrainer(learning.KindLinear, p.trainConfig(bool(tc.Linear.PCA)), learning.LinearBuild(), logger))
	}
	if tc.Network.Enabled {
		nc := learning.NetworkConfig{
			Hidden:            tc.Network.Hidden,
			LearningRate:      tc.Network.LearningRate,
			Epochs:            tc.Network.Epochs,
			BatchSize:         tc.Network.BatchSize,
			Seed:              tc.Network.Seed,
			AccuracyThreshold: p.cfg.Evaluation.AccuracyThreshold,
		}
		out = append(out, learning.NewTrainer(learning.KindNetwork, p.trainConfig(bool(tc.Network.PCA)), learning.NetworkBuild(nc, logger), logger))
	}
	if tc.Forest.Enabled {
		searcher := learning.GridSearch{
			Workers:     p.cfg.SearchWorkers(),
			OnCandidate: func(learning.CandidateScore) { p.metrics.GridCandidates.Inc() },
		}
		build := learning.ForestBuild(learning.ForestConfig{Seed: tc.Forest.Seed},
			learning.GridFromConfig(tc.Forest.Grid), tc.Forest.Folds, searcher, logger)
		out = append(out, learning.NewTrainer(learning.KindForest, p.trainConfig(bool(tc.Forest.PCA)), build, logger))
	}
	if tc.Baseline.Enabled {
		out = append(out, learning.NewTrainer(learning.KindBaseline, p.trainConfig(false), benchmark.Build(), logger))
	}
	return out
}

func (p *Pipeline) trainConfig(usePCA bool) learning.TrainConfig {
	return learning.TrainConfig{
		TestRatio:         p.cfg.Split.TestRatio,
		Seed:              p.cfg.Split.Seed,
		UsePCA:            usePCA,
		PCA:               p.cfg.PCA,
		AccuracyThreshold: p.cfg.Evaluation.AccuracyThreshold,
	}
}

// train runs every trainer on ds, one after another or concurrently when
// trainers.parallel is set. Results keep trainer order either way.
func (p *Pipeline) train(ctx context.Context, ds features.Dataset, logger *zap.Logger) ([]*learning.Result, error) {
	trainers := p.Trainers(logger)
	if len(trainers) == 0 {
		return nil, errs.Configurationf("train", "no trainer is enabled")
	}
	results := make([]*learning.Result, len(trainers))
	if !p.cfg.Trainers.Parallel {
		for i, t := range trainers {
			res, err := t.Train(ctx, ds)
			if err != nil {
				return nil, err
			}
			results[i] = res
		}
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, t := range trainers {
		g.Go(func() error {
			res, err := t.Train(gctx, ds)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// persist writes bundles, store rows, the report and the manifest.
func (p *Pipeline) persist(ctx context.Context, o *Outcome, enc *encode.CategoryEncoder, logger *zap.Logger) error {
	var rows []dbwriter.ModelResult
	var history []dbwriter.Epoch
	var importances, coefficients []learning.Importance
	bundles := map[learning.Kind]string{}

	for _, res := range o.Results {
		res.Bundle.Target = p.cfg.Features.Target
		res.Bundle.Encoder = enc
		path := BundlePath(p.cfg.OutputDir, res.Kind)
		if err := res.Bundle.Save(path); err != nil {
			return err
		}
		bundles[res.Kind] = path

		row := dbwriter.ModelResult{
			RunID:      o.RunID,
			Model:      string(res.Kind),
			Version:    res.Version,
			RMSE:       res.Metrics.RMSE,
			MSE:        res.Metrics.MSE,
			R2:         res.Metrics.R2,
			Accuracy:   res.Metrics.Accuracy,
			ResidMean:  res.Metrics.Residuals.Mean,
			ResidStd:   res.Metrics.Residuals.Std,
			ResidMin:   res.Metrics.Residuals.Min,
			ResidMax:   res.Metrics.Residuals.Max,
			TrainRows:  res.TrainRows,
			TestRows:   res.TestRows,
			Components: res.Components,
			Params:     FormatParams(res.Params),
			Duration:   res.Duration,
		}
		if err := p.writer.SaveModelResult(ctx, row); err != nil {
			return err
		}
		rows = append(rows, row)

		epochs := make([]dbwriter.Epoch, len(res.History))
		for i, e := range res.History {
			epochs[i] = dbwriter.Epoch{
				RunID: o.RunID, Model: string(res.Kind), Epoch: e.Epoch,
				TrainLoss: e.TrainLoss, TrainAcc: e.TrainAcc, TestLoss: e.TestLoss, TestAcc: e.TestAcc,
			}
		}
		if err := p.writer.SaveEpochs(ctx, epochs); err != nil {
			return err
		}
		history = append(history, epochs...)
		switch res.Kind {
		case learning.KindForest:
			importances = append(importances, res.Importances...)
		case learning.KindLinear:
			coefficients = append(coefficients, res.Importances...)
		}

		p.metrics.ObserveModel(string(res.Kind), res.Metrics.RMSE, res.Metrics.R2, res.Metrics.Accuracy)
	}

	cmp, err := report.NewComparison(o.RunID, rows)
	if err != nil {
		return err
	}
	cmp.Importances = importances
	cmp.Coefficients = coefficients
	cmp.History = history
	cmp.Correlations = o.Correlations
	o.Comparison = cmp
	if path := p.cfg.Report.Path; path != "" {
		if err := report.Write(path, cmp, logger); err != nil {
			return err
		}
		logger.Info("Report written", zap.String("path", path))
	}

	o.Manifest = newManifest(o, p.cfg, bundles)
	return WriteManifest(filepath.Join(p.cfg.OutputDir, ManifestFile), o.Manifest)
}

func (p *Pipeline) notify(logger *zap.Logger, run dbwriter.Run, o *Outcome) {
	msg := fmt.Sprintf("run %s %s", run.ID, run.Status)
	if run.Status == dbwriter.StatusFailed {
		msg += ": " + run.Error
	} else if o.Comparison != nil {
		if best, ok := o.Comparison.Best(); ok {
			msg += fmt.Sprintf(", best model %s with rmse %.4f", best.Model, best.RMSE)
		}
	}
	if err := p.notifier.Send(msg); err != nil {
		logger.Warn("Failed to send notification", zap.Error(err))
	}
}

func writeCorrelations(path string, cs []features.Correlation, logger *zap.Logger) error {
	w, err := csvwriter.NewWriter(path, logger)
	if err != nil {
		return err
	}
	records := [][]string{{"feature", "r"}}
	for _, c := range cs {
		records = append(records, []string{c.Feature, csvwriter.Float(c.R)})
	}
	if err := w.WriteAll(records); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// FormatParams renders model parameters as space separated key=value pairs
// with sorted keys.
func FormatParams(params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, params[k])
	}
	return strings.Join(parts, " ")
}
