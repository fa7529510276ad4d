package datastore_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Phillip-Gao/Flight-Forecast/internal/config"
	"github.com/Phillip-Gao/Flight-Forecast/internal/datastore"
	"github.com/Phillip-Gao/Flight-Forecast/internal/dbwriter"
	"github.com/Phillip-Gao/Flight-Forecast/internal/errs"
)

func openSQLite(t *testing.T) (*sql.DB, dbwriter.Dialect) {
	t.Helper()
	db, dialect, err := datastore.Open(context.Background(),
		config.StoreConf{Driver: "sqlite", DSN: ":memory:", ConnectTimeoutSeconds: 1}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.Equal(t, dbwriter.DialectSQLite, dialect)
	require.NoError(t, datastore.Migrate(db, dialect))
	return db, dialect
}

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T, w dbwriter.Writer) {
	t.Helper()
	ctx := context.Background()
	runs := []dbwriter.Run{
		{ID: "run-a", StartedAt: base, Status: dbwriter.StatusRunning, ConfigDigest: "d1"},
		{ID: "run-b", StartedAt: base.Add(time.Hour), Status: dbwriter.StatusRunning, ConfigDigest: "d2"},
		{ID: "run-c", StartedAt: base.Add(2 * time.Hour), Status: dbwriter.StatusRunning, ConfigDigest: "d2"},
	}
	for _, r := range runs {
		require.NoError(t, w.SaveRun(ctx, r))
	}
	require.NoError(t, w.FinishRun(ctx, dbwriter.Run{
		ID: "run-a", FinishedAt: base.Add(30 * time.Minute), Status: dbwriter.StatusSucceeded, RowsLoaded: 100, RowsCleaned: 89,
	}))
	require.NoError(t, w.FinishRun(ctx, dbwriter.Run{
		ID: "run-b", FinishedAt: base.Add(90 * time.Minute), Status: dbwriter.StatusFailed, RowsLoaded: 100, Error: "model fit error",
	}))

	for _, model := range []string{"network", "linear"} {
		require.NoError(t, w.SaveModelResult(ctx, dbwriter.ModelResult{
			RunID: "run-a", Model: model, Version: model + "-v1", RMSE: 4.5, MSE: 20.25, R2: 0.91, Accuracy: 0.77,
			ResidMean: -0.4, ResidStd: 4.4, ResidMin: -30, ResidMax: 25,
			TrainRows: 71, TestRows: 18, Params: "k=1", Duration: 1500 * time.Millisecond,
		}))
	}
	require.NoError(t, w.SaveEpochs(ctx, []dbwriter.Epoch{
		{RunID: "run-a", Model: "network", Epoch: 2, TrainLoss: 1.5, TestLoss: 1.7},
		{RunID: "run-a", Model: "network", Epoch: 1, TrainLoss: 3, TestLoss: 3.2},
	}))
	require.NoError(t, w.SaveEpochs(ctx, nil))
}

func testRepository(t *testing.T, w dbwriter.Writer, repo datastore.Repository) {
	ctx := context.Background()
	seed(t, w)

	runs, err := repo.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, []string{"run-c", "run-b", "run-a"}, []string{runs[0].ID, runs[1].ID, runs[2].ID})

	runs, err = repo.ListRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	a, err := repo.GetRun(ctx, "run-a")
	require.NoError(t, err)
	assert.Equal(t, dbwriter.StatusSucceeded, a.Status)
	assert.True(t, base.Equal(a.StartedAt))
	assert.True(t, base.Add(30*time.Minute).Equal(a.FinishedAt))
	assert.Equal(t, 100, a.RowsLoaded)
	assert.Equal(t, 89, a.RowsCleaned)
	assert.Equal(t, "d1", a.ConfigDigest)

	c, err := repo.GetRun(ctx, "run-c")
	require.NoError(t, err)
	assert.True(t, c.FinishedAt.IsZero())

	_, err = repo.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, datastore.ErrNotFound)

	latest, err := repo.LatestRun(ctx, dbwriter.StatusSucceeded)
	require.NoError(t, err)
	assert.Equal(t, "run-a", latest.ID)
	latest, err = repo.LatestRun(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "run-c", latest.ID)
	failed, err := repo.LatestRun(ctx, dbwriter.StatusFailed)
	require.NoError(t, err)
	assert.Equal(t, "model fit error", failed.Error)

	results, err := repo.RunResults(ctx, "run-a")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "linear", results[0].Model)
	assert.Equal(t, "network", results[1].Model)
	assert.Equal(t, 1500*time.Millisecond, results[0].Duration)
	assert.Equal(t, 4.5, results[0].RMSE)
	assert.Equal(t, 20.25, results[0].MSE)
	assert.Equal(t, -0.4, results[0].ResidMean)
	assert.Equal(t, 4.4, results[0].ResidStd)
	assert.Equal(t, -30.0, results[0].ResidMin)
	assert.Equal(t, 25.0, results[0].ResidMax)
	assert.Equal(t, "k=1", results[0].Params)

	none, err := repo.RunResults(ctx, "run-b")
	require.NoError(t, err)
	assert.Empty(t, none)

	epochs, err := repo.Epochs(ctx, "run-a", "network")
	require.NoError(t, err)
	require.Len(t, epochs, 2)
	assert.Equal(t, 1, epochs[0].Epoch)
	assert.Equal(t, 3.0, epochs[0].TrainLoss)
}

func TestSQLRepository(t *testing.T) {
	db, dialect := openSQLite(t)
	testRepository(t, dbwriter.NewSQLWriter(db, dialect, zap.NewNop()), datastore.NewSQLRepository(db, dialect))
}

func TestInMemRepository(t *testing.T) {
	w := dbwriter.NewInMemWriter()
	testRepository(t, w, datastore.NewInMemRepository(w))
}

func TestLatestRun_Empty(t *testing.T) {
	db, dialect := openSQLite(t)
	_, err := datastore.NewSQLRepository(db, dialect).LatestRun(context.Background(), "")
	assert.ErrorIs(t, err, datastore.ErrNotFound)

	_, err = datastore.NewInMemRepository(dbwriter.NewInMemWriter()).LatestRun(context.Background(), "")
	assert.ErrorIs(t, err, datastore.ErrNotFound)
}

func TestMigrate_Idempotent(t *testing.T) {
	db, dialect := openSQLite(t)
	assert.NoError(t, datastore.Migrate(db, dialect))
}

func TestOpen_FileStoreCreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	dsn := "file:" + dir + "/nested/runs.db?_pragma=busy_timeout(5000)"
	db, dialect, err := datastore.Open(context.Background(), config.StoreConf{Driver: "sqlite", DSN: dsn}, zap.NewNop())
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, datastore.Migrate(db, dialect))
	assert.DirExists(t, dir+"/nested")
	assert.FileExists(t, dir+"/nested/runs.db")
}

func TestOpen_MemoryDriverHasNoDatabase(t *testing.T) {
	_, _, err := datastore.Open(context.Background(), config.StoreConf{Driver: "memory"}, zap.NewNop())
	assert.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestSQLitePath(t *testing.T) {
	tests := []struct {
		dsn  string
		want string
	}{
		{"file:out/runs.db?_pragma=busy_timeout(5000)", "out/runs.db"},
		{"out/runs.db", "out/runs.db"},
		{":memory:", ""},
		{"file::memory:?cache=shared", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.dsn, func(t *testing.T) {
			assert.Equal(t, tt.want, datastore.SQLitePath(tt.dsn))
		})
	}
}

func TestConnect(t *testing.T) {
	ctx := context.Background()
	for _, cfg := range []config.StoreConf{
		{Driver: "memory"},
		{Driver: "sqlite", DSN: ":memory:", ConnectTimeoutSeconds: 1},
	} {
		t.Run(cfg.Driver, func(t *testing.T) {
			store, err := datastore.Connect(ctx, cfg, zap.NewNop())
			require.NoError(t, err)
			defer store.Close()

			require.NoError(t, store.Writer.SaveRun(ctx, dbwriter.Run{ID: "r1", StartedAt: base, Status: dbwriter.StatusRunning}))
			got, err := store.Repository.GetRun(ctx, "r1")
			require.NoError(t, err)
			assert.Equal(t, dbwriter.StatusRunning, got.Status)
		})
	}
}
