// Package datastore is the read side of the run store.
package datastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Phillip-Gao/Flight-Forecast/internal/dbwriter"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("not found")

// Repository queries stored runs.
type Repository interface {
	// ListRuns returns runs newest first. limit <= 0 returns all of them.
	ListRuns(ctx context.Context, limit int) ([]dbwriter.Run, error)
	GetRun(ctx context.Context, id string) (dbwriter.Run, error)
	// LatestRun returns the newest run with status, or with any status when
	// status is empty.
	LatestRun(ctx context.Context, status string) (dbwriter.Run, error)
	// RunResults returns the model results of a run ordered by model name.
	RunResults(ctx context.Context, runID string) ([]dbwriter.ModelResult, error)
	// Epochs returns the training history of one model ordered by epoch.
	Epochs(ctx context.Context, runID, model string) ([]dbwriter.Epoch, error)
}

// SQLRepository implements Repository over database/sql.
type SQLRepository struct {
	db      *sql.DB
	dialect dbwriter.Dialect
}

// NewSQLRepository creates a new SQLRepository.
func NewSQLRepository(db *sql.DB, dialect dbwriter.Dialect) *SQLRepository {
	return &SQLRepository{db: db, dialect: dialect}
}

const runColumns = `id, started_at, finished_at, status, config_digest, rows_loaded, rows_cleaned, error`

func scanRun(sc interface{ Scan(...any) error }) (dbwriter.Run, error) {
	var (
		r        dbwriter.Run
		finished sql.NullTime
	)
	if err := sc.Scan(&r.ID, &r.StartedAt, &finished, &r.Status, &r.ConfigDigest, &r.RowsLoaded, &r.RowsCleaned, &r.Error); err != nil {
		return dbwriter.Run{}, err
	}
	r.StartedAt = r.StartedAt.UTC()
	if finished.Valid {
		r.FinishedAt = finished.Time.UTC()
	}
	return r, nil
}

// ListRuns implements Repository.
func (r *SQLRepository) ListRuns(ctx context.Context, limit int) ([]dbwriter.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []dbwriter.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun implements Repository.
func (r *SQLRepository) GetRun(ctx context.Context, id string) (dbwriter.Run, error) {
	row := r.db.QueryRowContext(ctx, r.dialect.Rebind(`SELECT `+runColumns+` FROM runs WHERE id = ?`), id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return dbwriter.Run{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return dbwriter.Run{}, fmt.Errorf("failed to fetch run %s: %w", id, err)
	}
	return run, nil
}

// LatestRun implements Repository.
func (r *SQLRepository) LatestRun(ctx context.Context, status string) (dbwriter.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY started_at DESC, id DESC LIMIT 1`
	run, err := scanRun(r.db.QueryRowContext(ctx, r.dialect.Rebind(query), args...))
	if errors.Is(err, sql.ErrNoRows) {
		return dbwriter.Run{}, fmt.Errorf("latest %q run: %w", status, ErrNotFound)
	}
	if err != nil {
		return dbwriter.Run{}, fmt.Errorf("failed to fetch latest run: %w", err)
	}
	return run, nil
}

// RunResults implements Repository.
func (r *SQLRepository) RunResults(ctx context.Context, runID string) ([]dbwriter.ModelResult, error) {
	const query = `
		SELECT run_id, model, version, rmse, mse, r2, accuracy,
			resid_mean, resid_std, resid_min, resid_max, train_rows, test_rows, components, params, duration_ms
		FROM model_results
		WHERE run_id = ?
		ORDER BY model ASC
	`
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(query), runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query results of run %s: %w", runID, err)
	}
	defer rows.Close()

	var results []dbwriter.ModelResult
	for rows.Next() {
		var (
			m  dbwriter.ModelResult
			ms int64
		)
		if err := rows.Scan(&m.RunID, &m.Model, &m.Version, &m.RMSE, &m.MSE, &m.R2, &m.Accuracy,
			&m.ResidMean, &m.ResidStd, &m.ResidMin, &m.ResidMax, &m.TrainRows, &m.TestRows, &m.Components, &m.Params, &ms); err != nil {
			return nil, fmt.Errorf("failed to scan model result: %w", err)
		}
		m.Duration = time.Duration(ms) * time.Millisecond
		results = append(results, m)
	}
	return results, rows.Err()
}

// Epochs implements Repository.
func (r *SQLRepository) Epochs(ctx context.Context, runID, model string) ([]dbwriter.Epoch, error) {
	const query = `
		SELECT run_id, model, epoch, train_loss, train_acc, test_loss, test_acc
		FROM epochs
		WHERE run_id = ? AND model = ?
		ORDER BY epoch ASC
	`
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(query), runID, model)
	if err != nil {
		return nil, fmt.Errorf("failed to query epochs: %w", err)
	}
	defer rows.Close()

	var epochs []dbwriter.Epoch
	for rows.Next() {
		var e dbwriter.Epoch
		if err := rows.Scan(&e.RunID, &e.Model, &e.Epoch, &e.TrainLoss, &e.TrainAcc, &e.TestLoss, &e.TestAcc); err != nil {
			return nil, fmt.Errorf("failed to scan epoch: %w", err)
		}
		epochs = append(epochs, e)
	}
	return epochs, rows.Err()
}
