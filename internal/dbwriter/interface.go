package dbwriter

import (
	"context"
	"time"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Run is one execution of the forecasting pipeline.
type Run struct {
	ID           string    `db:"id"`
	StartedAt    time.Time `db:"started_at"`
	FinishedAt   time.Time `db:"finished_at"` // zero while running
	Status       string    `db:"status"`
	ConfigDigest string    `db:"config_digest"`
	RowsLoaded   int       `db:"rows_loaded"`
	RowsCleaned  int       `db:"rows_cleaned"`
	Error        string    `db:"error"`
}

// ModelResult is the held-out evaluation of one trained model.
type ModelResult struct {
	RunID      string        `db:"run_id"`
	Model      string        `db:"model"`
	Version    string        `db:"version"`
	RMSE       float64       `db:"rmse"`
	MSE        float64       `db:"mse"`
	R2         float64       `db:"r2"`
	Accuracy   float64       `db:"accuracy"`
	ResidMean  float64       `db:"resid_mean"`
	ResidStd   float64       `db:"resid_std"`
	ResidMin   float64       `db:"resid_min"`
	ResidMax   float64       `db:"resid_max"`
	TrainRows  int           `db:"train_rows"`
	TestRows   int           `db:"test_rows"`
	Components int           `db:"components"`
	Params     string        `db:"params"`
	Duration   time.Duration `db:"duration_ms"`
}

// Epoch is one row of a network's training history.
type Epoch struct {
	RunID     string  `db:"run_id"`
	Model     string  `db:"model"`
	Epoch     int     `db:"epoch"`
	TrainLoss float64 `db:"train_loss"`
	TrainAcc  float64 `db:"train_acc"`
	TestLoss  float64 `db:"test_loss"`
	TestAcc   float64 `db:"test_acc"`
}

// Writer records runs and their results.
// This allows for an in-memory store in tests and the memory driver.
type Writer interface {
	// SaveRun inserts a new run.
	SaveRun(ctx context.Context, run Run) error
	// FinishRun updates the status, finish time, row counts and error of run.ID.
	FinishRun(ctx context.Context, run Run) error
	SaveModelResult(ctx context.Context, result ModelResult) error
	// SaveEpochs stores a network's history in one transaction.
	SaveEpochs(ctx context.Context, epochs []Epoch) error
	Close() error
}
