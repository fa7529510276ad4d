package dbwriter

import (
	"context"
	"fmt"
	"sync"
)

// InMemWriter is an in-memory implementation of the Writer interface, used
// by tests and the memory store driver.
type InMemWriter struct {
	mu       sync.RWMutex
	runs     []Run
	results  []ModelResult
	epochs   []Epoch
	IsClosed bool
}

// NewInMemWriter creates a new InMemWriter.
func NewInMemWriter() *InMemWriter {
	return &InMemWriter{}
}

// SaveRun appends run.
func (w *InMemWriter) SaveRun(ctx context.Context, run Run) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, r := range w.runs {
		if r.ID == run.ID {
			return fmt.Errorf("failed to insert run %s: duplicate id", run.ID)
		}
	}
	w.runs = append(w.runs, run)
	return nil
}

// FinishRun updates the stored run with the same ID.
func (w *InMemWriter) FinishRun(ctx context.Context, run Run) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.runs {
		if w.runs[i].ID == run.ID {
			r := &w.runs[i]
			r.FinishedAt = run.FinishedAt
			r.Status = run.Status
			r.RowsLoaded = run.RowsLoaded
			r.RowsCleaned = run.RowsCleaned
			r.Error = run.Error
			return nil
		}
	}
	return fmt.Errorf("failed to update run %s: no such run", run.ID)
}

// SaveModelResult appends result.
func (w *InMemWriter) SaveModelResult(ctx context.Context, result ModelResult) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.results = append(w.results, result)
	return nil
}

// SaveEpochs appends epochs.
func (w *InMemWriter) SaveEpochs(ctx context.Context, epochs []Epoch) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.epochs = append(w.epochs, epochs...)
	return nil
}

// Close marks the writer as closed.
func (w *InMemWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.IsClosed = true
	return nil
}

// Runs returns a copy of the stored runs in insertion order.
func (w *InMemWriter) Runs() []Run {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]Run(nil), w.runs...)
}

// Results returns a copy of the stored model results.
func (w *InMemWriter) Results() []ModelResult {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]ModelResult(nil), w.results...)
}

// Epochs returns a copy of the stored epochs.
func (w *InMemWriter) Epochs() []Epoch {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]Epoch(nil), w.epochs...)
}

// Clear resets all the in-memory slices.
func (w *InMemWriter) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.runs = nil
	w.results = nil
	w.epochs = nil
	w.IsClosed = false
}
