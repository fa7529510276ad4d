package main

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Phillip-Gao/Flight-Forecast/internal/datastore"
	"github.com/Phillip-Gao/Flight-Forecast/internal/dbwriter"
	"github.com/Phillip-Gao/Flight-Forecast/internal/learning"
	"github.com/Phillip-Gao/Flight-Forecast/internal/pipeline"
	"github.com/Phillip-Gao/Flight-Forecast/internal/preprocess"
)

var started = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func seedStore(t *testing.T) (*dbwriter.InMemWriter, datastore.Repository) {
	t.Helper()
	ctx := context.Background()
	w := dbwriter.NewInMemWriter()
	for i, id := range []string{"old", "new"} {
		require.NoError(t, w.SaveRun(ctx, dbwriter.Run{ID: id, StartedAt: started.Add(time.Duration(i) * time.Hour), Status: dbwriter.StatusRunning}))
		require.NoError(t, w.FinishRun(ctx, dbwriter.Run{ID: id, FinishedAt: started.Add(time.Duration(i)*time.Hour + time.Minute), Status: dbwriter.StatusSucceeded}))
		for _, m := range []struct {
			model string
			rmse  float64
		}{{"baseline", 10}, {"forest", 5}, {"network", 6}, {"linear", 7}} {
			require.NoError(t, w.SaveModelResult(ctx, dbwriter.ModelResult{
				RunID: id, Model: m.model, Version: m.model + "-" + id, RMSE: m.rmse,
			}))
		}
		require.NoError(t, w.SaveEpochs(ctx, []dbwriter.Epoch{
			{RunID: id, Model: "network", Epoch: 1, TrainLoss: 2},
			{RunID: id, Model: "network", Epoch: 2, TrainLoss: 1},
		}))
	}
	return w, datastore.NewInMemRepository(w)
}

// writeArtifacts writes the manifest, forest and linear bundles and correlations for runID.
func writeArtifacts(t *testing.T, dir, runID string) {
	t.Helper()
	x := [][]float64{{1, 0}, {2, 1}, {3, 0}, {4, 1}, {5, 0}, {6, 1}}
	y := []float64{1, 2, 3, 4, 5, 6}
	forest := learning.NewForest(learning.ForestConfig{NEstimators: 2, MaxDepth: 2, MinSamplesSplit: 2, MinSamplesLeaf: 1, Seed: 1})
	require.NoError(t, forest.Fit(context.Background(), x, y))
	scaler, err := preprocess.FitScaler(x)
	require.NoError(t, err)
	b := &learning.Bundle{Version: "forest-" + runID, Kind: learning.KindForest, Features: []string{"DepDelay", "TaxiOut"}, Scaler: scaler, Model: forest}
	require.NoError(t, b.Save(pipeline.BundlePath(dir, learning.KindForest)))

	linear := learning.NewLinearRegression()
	require.NoError(t, linear.Fit(context.Background(), x, y))
	lb := &learning.Bundle{Version: "linear-" + runID, Kind: learning.KindLinear, Features: b.Features, Scaler: scaler, Model: linear}
	require.NoError(t, lb.Save(pipeline.BundlePath(dir, learning.KindLinear)))

	require.NoError(t, pipeline.WriteManifest(filepath.Join(dir, pipeline.ManifestFile), pipeline.Manifest{RunID: runID}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, pipeline.CorrelationsFile),
		[]byte("feature,r\nDepDelay,0.93\nTaxiOut,0.21\nOriginState,\n"), 0o644))
}

func TestBuildComparison_LatestRunWithArtifacts(t *testing.T) {
	_, repo := seedStore(t)
	dir := t.TempDir()
	writeArtifacts(t, dir, "new")

	cmp, err := buildComparison(context.Background(), repo, "", dir, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, "new", cmp.RunID)
	require.Len(t, cmp.Rows, 4)
	assert.Equal(t, "forest", cmp.Rows[0].Model)
	assert.Equal(t, "50", cmp.Rows[0].VsBaseline.String())
	assert.Len(t, cmp.History, 2)

	require.Len(t, cmp.Importances, 2)
	assert.Equal(t, "DepDelay", cmp.Importances[0].Feature)
	assert.InDelta(t, 1, cmp.Importances[0].Value+cmp.Importances[1].Value, 1e-9)

	// y follows the first column exactly, so only it carries weight
	require.Len(t, cmp.Coefficients, 2)
	assert.Equal(t, "DepDelay", cmp.Coefficients[0].Feature)
	assert.Greater(t, cmp.Coefficients[0].Value, 0.0)
	assert.InDelta(t, 0, cmp.Coefficients[1].Value, 1e-9)

	require.Len(t, cmp.Correlations, 3)
	assert.Equal(t, "DepDelay", cmp.Correlations[0].Feature)
	assert.InDelta(t, 0.93, cmp.Correlations[0].R, 1e-12)
	assert.True(t, math.IsNaN(cmp.Correlations[2].R))
}

func TestBuildComparison_ArtifactsOfAnotherRun(t *testing.T) {
	_, repo := seedStore(t)
	dir := t.TempDir()
	writeArtifacts(t, dir, "new")

	cmp, err := buildComparison(context.Background(), repo, "old", dir, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "old", cmp.RunID)
	assert.Len(t, cmp.Rows, 4)
	assert.Empty(t, cmp.Importances)
	assert.Empty(t, cmp.Coefficients)
	assert.Empty(t, cmp.Correlations)
}

func TestBuildComparison_UnknownRun(t *testing.T) {
	_, repo := seedStore(t)
	_, err := buildComparison(context.Background(), repo, "missing", t.TempDir(), zap.NewNop())
	assert.ErrorIs(t, err, datastore.ErrNotFound)
}

func TestBuildComparison_NoSucceededRun(t *testing.T) {
	repo := datastore.NewInMemRepository(dbwriter.NewInMemWriter())
	_, err := buildComparison(context.Background(), repo, "", t.TempDir(), zap.NewNop())
	assert.ErrorIs(t, err, datastore.ErrNotFound)
}
