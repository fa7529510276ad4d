package datastore

import (
	"context"
	"fmt"
	"sort"

	"github.com/Phillip-Gao/Flight-Forecast/internal/dbwriter"
)

// InMemRepository is an in-memory implementation of the Repository
// interface. It reads whatever its InMemWriter has recorded.
type InMemRepository struct {
	w *dbwriter.InMemWriter
}

// NewInMemRepository creates a repository over w.
func NewInMemRepository(w *dbwriter.InMemWriter) *InMemRepository {
	return &InMemRepository{w: w}
}

// newestFirst sorts like the SQL implementation: started_at DESC, id DESC.
func newestFirst(runs []dbwriter.Run) {
	sort.SliceStable(runs, func(i, j int) bool {
		if !runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].StartedAt.After(runs[j].StartedAt)
		}
		return runs[i].ID > runs[j].ID
	})
}

// ListRuns implements Repository.
func (r *InMemRepository) ListRuns(ctx context.Context, limit int) ([]dbwriter.Run, error) {
	runs := r.w.Runs()
	newestFirst(runs)
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// GetRun implements Repository.
func (r *InMemRepository) GetRun(ctx context.Context, id string) (dbwriter.Run, error) {
	for _, run := range r.w.Runs() {
		if run.ID == id {
			return run, nil
		}
	}
	return dbwriter.Run{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
}

// LatestRun implements Repository.
func (r *InMemRepository) LatestRun(ctx context.Context, status string) (dbwriter.Run, error) {
	runs, _ := r.ListRuns(ctx, 0)
	for _, run := range runs {
		if status == "" || run.Status == status {
			return run, nil
		}
	}
	return dbwriter.Run{}, fmt.Errorf("latest %q run: %w", status, ErrNotFound)
}

// RunResults implements Repository.
func (r *InMemRepository) RunResults(ctx context.Context, runID string) ([]dbwriter.ModelResult, error) {
	var out []dbwriter.ModelResult
	for _, m := range r.w.Results() {
		if m.RunID == runID {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Model < out[j].Model })
	return out, nil
}

// Epochs implements Repository.
func (r *InMemRepository) Epochs(ctx context.Context, runID, model string) ([]dbwriter.Epoch, error) {
	var out []dbwriter.Epoch
	for _, e := range r.w.Epochs() {
		if e.RunID == runID && e.Model == model {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Epoch < out[j].Epoch })
	return out, nil
}
