package dbwriter

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Dialect selects the SQL placeholder style.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// Rebind rewrites ? placeholders into $n for PostgreSQL. Queries must not
// contain literal question marks.
func (d Dialect) Rebind(query string) string {
	if d != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SQLWriter writes runs to a database/sql handle.
type SQLWriter struct {
	db      *sql.DB
	dialect Dialect
	logger  *zap.Logger
}

// NewSQLWriter creates a writer on db. The schema must already be migrated.
func NewSQLWriter(db *sql.DB, dialect Dialect, logger *zap.Logger) *SQLWriter {
	return &SQLWriter{db: db, dialect: dialect, logger: logger}
}

// SaveRun implements Writer.
func (w *SQLWriter) SaveRun(ctx context.Context, run Run) error {
	const query = `
		INSERT INTO runs (id, started_at, status, config_digest, rows_loaded, rows_cleaned, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := w.db.ExecContext(ctx, w.dialect.Rebind(query),
		run.ID, run.StartedAt.UTC(), run.Status, run.ConfigDigest, run.RowsLoaded, run.RowsCleaned, run.Error)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}
	w.logger.Debug("Run saved", zap.String("run_id", run.ID))
	return nil
}

// FinishRun implements Writer.
func (w *SQLWriter) FinishRun(ctx context.Context, run Run) error {
	const query = `
		UPDATE runs
		SET finished_at = ?, status = ?, rows_loaded = ?, rows_cleaned = ?, error = ?
		WHERE id = ?
	`
	res, err := w.db.ExecContext(ctx, w.dialect.Rebind(query),
		run.FinishedAt.UTC(), run.Status, run.RowsLoaded, run.RowsCleaned, run.Error, run.ID)
	if err != nil {
		return fmt.Errorf("failed to update run %s: %w", run.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("failed to update run %s: no such run", run.ID)
	}
	return nil
}

// SaveModelResult implements Writer.
func (w *SQLWriter) SaveModelResult(ctx context.Context, r ModelResult) error {
	const query = `
		INSERT INTO model_results (run_id, model, version, rmse, mse, r2, accuracy,
			resid_mean, resid_std, resid_min, resid_max, train_rows, test_rows, components, params, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := w.db.ExecContext(ctx, w.dialect.Rebind(query),
		r.RunID, r.Model, r.Version, r.RMSE, r.MSE, r.R2, r.Accuracy,
		r.ResidMean, r.ResidStd, r.ResidMin, r.ResidMax, r.TrainRows, r.TestRows, r.Components, r.Params, r.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to insert %s result for run %s: %w", r.Model, r.RunID, err)
	}
	return nil
}

// SaveEpochs implements Writer.
func (w *SQLWriter) SaveEpochs(ctx context.Context, epochs []Epoch) error {
	if len(epochs) == 0 {
		return nil
	}
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // no-op after commit

	stmt, err := tx.PrepareContext(ctx, w.dialect.Rebind(`
		INSERT INTO epochs (run_id, model, epoch, train_loss, train_acc, test_loss, test_acc)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`))
	if err != nil {
		return fmt.Errorf("failed to prepare epoch insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range epochs {
		if _, err := stmt.ExecContext(ctx, e.RunID, e.Model, e.Epoch, e.TrainLoss, e.TrainAcc, e.TestLoss, e.TestAcc); err != nil {
			return fmt.Errorf("failed to insert epoch %d of %s: %w", e.Epoch, e.Model, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit epochs: %w", err)
	}
	w.logger.Debug("Epochs saved", zap.String("run_id", epochs[0].RunID), zap.Int("count", len(epochs)))
	return nil
}

// Close closes the underlying database.
func (w *SQLWriter) Close() error {
	return w.db.Close()
}
