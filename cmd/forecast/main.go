// Command forecast trains and compares the flight arrival delay models, scores
// new flights with a saved bundle and inspects the run store.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"

	"github.com/Phillip-Gao/Flight-Forecast/internal/alert"
	"github.com/Phillip-Gao/Flight-Forecast/internal/config"
	"github.com/Phillip-Gao/Flight-Forecast/internal/datastore"
	"github.com/Phillip-Gao/Flight-Forecast/internal/dbwriter"
	"github.com/Phillip-Gao/Flight-Forecast/internal/metrics"
	"github.com/Phillip-Gao/Flight-Forecast/internal/pipeline"
	"github.com/Phillip-Gao/Flight-Forecast/pkg/logger"
)

// CLI is the command line of the forecast binary.
type CLI struct {
	Config string `short:"c" help:"Path to the YAML configuration. Defaults apply when empty." type:"path"`

	Run     RunCmd     `cmd:"" help:"Run the full training pipeline."`
	Predict PredictCmd `cmd:"" help:"Score flights with a saved model bundle."`
	Runs    RunsCmd    `cmd:"" help:"List stored runs, newest first."`
	Migrate MigrateCmd `cmd:"" help:"Apply the run store schema."`
}

// app is what every command runs with.
type app struct {
	ctx context.Context
	cfg *config.Config
	log *zap.Logger
	out io.Writer
}

// RunCmd runs the pipeline once.
type RunCmd struct {
	OutputDir string `help:"Override output_dir." type:"path"`
	Parallel  bool   `help:"Train the models concurrently."`
}

func (c *RunCmd) Run(a *app) error {
	if c.OutputDir != "" {
		a.cfg.OutputDir = c.OutputDir
	}
	if c.Parallel {
		a.cfg.Trainers.Parallel = true
	}

	store, err := datastore.Connect(a.ctx, a.cfg.Store, a.log)
	if err != nil {
		return err
	}
	defer store.Close()
	notifier := alert.NewLogNotifier(a.log)
	defer notifier.Close()

	out, err := pipeline.New(a.cfg, store.Writer, metrics.New(), notifier, a.log).Run(a.ctx)
	if err != nil {
		return err
	}
	for _, row := range out.Comparison.Rows {
		a.log.Info("Model result",
			zap.String("model", row.Model), zap.Float64("rmse", row.RMSE), zap.Float64("r2", row.R2),
			zap.Float64("accuracy", row.Accuracy), zap.String("vs_baseline_pct", row.VsBaseline.StringFixed(2)))
	}
	logger.Infof("Run %s finished, artifacts in %s", out.RunID, a.cfg.OutputDir)
	return nil
}

// PredictCmd applies a saved bundle to new flights.
type PredictCmd struct {
	Bundle   string `required:"" help:"Model bundle written by a run." type:"existingfile"`
	Input    string `required:"" help:"Flights CSV to score." type:"existingfile"`
	Airlines string `help:"Airline CSV to join before scoring." type:"existingfile"`
	Out      string `required:"" help:"Where to write the predictions CSV." type:"path"`
}

func (c *PredictCmd) Run(a *app) error {
	in := a.cfg.Input
	in.FlightsPath = c.Input
	in.AirlinesPath = c.Airlines
	n, err := pipeline.Predict(a.ctx, c.Bundle, in, c.Out, a.log)
	if err != nil {
		return err
	}
	logger.Infof("Wrote %d predictions to %s", n, c.Out)
	return nil
}

// RunsCmd lists stored runs.
type RunsCmd struct {
	Limit int `default:"20" help:"Maximum number of runs to list."`
}

func (c *RunsCmd) Run(a *app) error {
	store, err := datastore.Connect(a.ctx, a.cfg.Store, a.log)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.Repository.ListRuns(a.ctx, c.Limit)
	if err != nil {
		return err
	}
	return printRuns(a.out, runs)
}

func printRuns(w io.Writer, runs []dbwriter.Run) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tDURATION\tSTATUS\tLOADED\tCLEANED\tERROR")
	for _, r := range runs {
		took := "-"
		if !r.FinishedAt.IsZero() {
			took = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			r.ID, r.StartedAt.Format(time.RFC3339), took, r.Status, r.RowsLoaded, r.RowsCleaned, r.Error)
	}
	return tw.Flush()
}

// MigrateCmd applies pending migrations.
type MigrateCmd struct{}

func (c *MigrateCmd) Run(a *app) error {
	db, dialect, err := datastore.Open(a.ctx, a.cfg.Store, a.log)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := datastore.Migrate(db, dialect); err != nil {
		return err
	}
	logger.Infof("Store schema is up to date (%s)", a.cfg.Store.Driver)
	return nil
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("forecast"),
		kong.Description("Train and compare flight arrival delay models."),
		kong.UsageOnError(),
	)

	cfg, err := config.LoadConfig(cli.Config)
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}
	logger.SetGlobalLogLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = kctx.Run(&app{ctx: ctx, cfg: cfg, log: logger.Zap(), out: os.Stdout})
	stop()
	if err != nil {
		logger.Zap().Error("Command failed", zap.String("command", kctx.Command()), zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
	logger.Sync()
}
