// Package metrics holds the Prometheus collectors a run reports. They live on
// a private registry so that every run starts from zero and can be dumped to
// a node_exporter textfile.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the set of collectors for one run.
type Metrics struct {
	reg *prometheus.Registry

	StageDuration  *prometheus.GaugeVec
	StageRows      *prometheus.GaugeVec
	ModelRMSE      *prometheus.GaugeVec
	ModelR2        *prometheus.GaugeVec
	ModelAccuracy  *prometheus.GaugeVec
	GridCandidates prometheus.Counter
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		StageDuration: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "forecast_stage_duration_seconds",
				Help: "Wall time of each pipeline stage in seconds",
			},
			[]string{"stage"},
		),
		StageRows: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "forecast_stage_rows",
				Help: "Rows in the table produced by each pipeline stage",
			},
			[]string{"stage"},
		),
		ModelRMSE: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "forecast_model_rmse",
				Help: "Held-out root mean squared error in minutes",
			},
			[]string{"model"},
		),
		ModelR2: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "forecast_model_r2",
				Help: "Held-out coefficient of determination",
			},
			[]string{"model"},
		),
		ModelAccuracy: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "forecast_model_accuracy",
				Help: "Share of held-out predictions within the accuracy threshold",
			},
			[]string{"model"},
		),
		GridCandidates: f.NewCounter(
			prometheus.CounterOpts{
				Name: "forecast_grid_candidates_total",
				Help: "Grid search candidates evaluated on every fold",
			},
		),
	}
}

// ObserveStage records how long stage took and how many rows it produced.
func (m *Metrics) ObserveStage(stage string, took time.Duration, rows int) {
	m.StageDuration.WithLabelValues(stage).Set(took.Seconds())
	m.StageRows.WithLabelValues(stage).Set(float64(rows))
}

// ObserveModel records the held-out metrics of model.
func (m *Metrics) ObserveModel(model string, rmse, r2, accuracy float64) {
	m.ModelRMSE.WithLabelValues(model).Set(rmse)
	m.ModelR2.WithLabelValues(model).Set(r2)
	m.ModelAccuracy.WithLabelValues(model).Set(accuracy)
}

// Registry exposes the private registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// WriteTextfile writes every collector to path in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.reg); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
