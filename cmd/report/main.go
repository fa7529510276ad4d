// Command report exports the model comparison of a stored run as CSV or XLSX.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"

	"github.com/Phillip-Gao/Flight-Forecast/internal/config"
	"github.com/Phillip-Gao/Flight-Forecast/internal/dataset"
	"github.com/Phillip-Gao/Flight-Forecast/internal/datastore"
	"github.com/Phillip-Gao/Flight-Forecast/internal/dbwriter"
	"github.com/Phillip-Gao/Flight-Forecast/internal/features"
	"github.com/Phillip-Gao/Flight-Forecast/internal/learning"
	"github.com/Phillip-Gao/Flight-Forecast/internal/pipeline"
	"github.com/Phillip-Gao/Flight-Forecast/internal/report"
	"github.com/Phillip-Gao/Flight-Forecast/pkg/logger"
)

type cli struct {
	Config string `short:"c" help:"Path to the YAML configuration. Defaults apply when empty." type:"path"`
	Out    string `required:"" help:"Report path; .csv or .xlsx." type:"path"`
	Run    string `help:"Run ID to export. Defaults to the latest succeeded run."`
}

func main() {
	var args cli
	kong.Parse(&args,
		kong.Name("report"),
		kong.Description("Export the stored model comparison of a run."),
		kong.UsageOnError(),
	)

	// --- Load Configuration ---
	cfg, err := config.LoadConfig(args.Config)
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}
	logger.SetGlobalLogLevel(cfg.LogLevel)
	defer logger.Sync()
	l := logger.Zap()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Run Store ---
	store, err := datastore.Connect(ctx, cfg.Store, l)
	if err != nil {
		logger.Fatalf("Unable to open run store: %v", err)
	}
	defer store.Close()

	cmp, err := buildComparison(ctx, store.Repository, args.Run, cfg.OutputDir, l)
	if err != nil {
		logger.Errorf("Failed to build comparison: %v", err)
		return
	}
	if err := report.Write(args.Out, cmp, l); err != nil {
		logger.Errorf("Failed to write report: %v", err)
		return
	}
	logger.Infof("Wrote comparison of run %s (%d models) to %s", cmp.RunID, len(cmp.Rows), args.Out)
}

// buildComparison loads the results and network history of runID, or of the
// latest succeeded run when runID is empty. Forest importances and
// correlations are read from the run artifacts in outputDir when they belong
// to that run.
func buildComparison(ctx context.Context, repo datastore.Repository, runID, outputDir string, l *zap.Logger) (*report.Comparison, error) {
	var (
		run dbwriter.Run
		err error
	)
	if runID == "" {
		run, err = repo.LatestRun(ctx, dbwriter.StatusSucceeded)
	} else {
		run, err = repo.GetRun(ctx, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find run %q: %w", runID, err)
	}

	results, err := repo.RunResults(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	cmp, err := report.NewComparison(run.ID, results)
	if err != nil {
		return nil, err
	}
	for _, r := range results {
		epochs, err := repo.Epochs(ctx, run.ID, r.Model)
		if err != nil {
			return nil, err
		}
		cmp.History = append(cmp.History, epochs...)
	}

	manifest, err := pipeline.ReadManifest(filepath.Join(outputDir, pipeline.ManifestFile))
	if err != nil || manifest.RunID != run.ID {
		l.Warn("Run artifacts not found, exporting stored results only", zap.String("run_id", run.ID), zap.String("output_dir", outputDir))
		return cmp, nil
	}
	for _, r := range results {
		kind := learning.Kind(r.Model)
		if kind != learning.KindForest && kind != learning.KindLinear {
			continue
		}
		b, err := learning.LoadBundle(pipeline.BundlePath(outputDir, kind))
		if err != nil {
			return nil, err
		}
		if b.Version != r.Version {
			continue
		}
		if kind == learning.KindForest {
			cmp.Importances = b.Importances()
		} else {
			cmp.Coefficients = b.Importances()
		}
	}
	cmp.Correlations, err = readCorrelations(filepath.Join(outputDir, pipeline.CorrelationsFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return cmp, nil
}

func readCorrelations(path string) ([]features.Correlation, error) {
	df, err := dataset.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !dataset.HasColumn(df, "feature") || !dataset.HasColumn(df, "r") {
		return nil, fmt.Errorf("%s is not a correlations file", path)
	}
	names := df.Col("feature").Records()
	rs := df.Col("r").Float()
	out := make([]features.Correlation, len(names))
	for i := range names {
		out[i] = features.Correlation{Feature: names[i], R: rs[i]}
	}
	return out, nil
}
