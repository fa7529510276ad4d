package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Observe(t *testing.T) {
	m := New()
	m.ObserveStage("clean", 1500*time.Millisecond, 89)
	m.ObserveModel("linear", 4.2, 0.93, 0.71)
	m.GridCandidates.Add(3)

	assert.Equal(t, 1.5, testutil.ToFloat64(m.StageDuration.WithLabelValues("clean")))
	assert.Equal(t, 89.0, testutil.ToFloat64(m.StageRows.WithLabelValues("clean")))
	assert.Equal(t, 4.2, testutil.ToFloat64(m.ModelRMSE.WithLabelValues("linear")))
	assert.Equal(t, 0.93, testutil.ToFloat64(m.ModelR2.WithLabelValues("linear")))
	assert.Equal(t, 0.71, testutil.ToFloat64(m.ModelAccuracy.WithLabelValues("linear")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.GridCandidates))
}

func TestMetrics_RegistriesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.GridCandidates.Inc()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.GridCandidates))
}

func TestMetrics_WriteTextfile(t *testing.T) {
	m := New()
	m.ObserveModel("forest", 3.1, 0.95, 0.8)

	path := filepath.Join(t.TempDir(), "out", "metrics.prom")
	require.NoError(t, m.WriteTextfile(path))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `forecast_model_rmse{model="forest"} 3.1`)
	assert.Contains(t, string(b), "# TYPE forecast_grid_candidates_total counter")
}
