package db

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irail-csv/pipeline/internal/csvstore"
	"github.com/irail-csv/pipeline/internal/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func testSummary(id string, startedAt time.Time) *models.RunSummary {
	s := &models.RunSummary{
		RunID:      id,
		StartedAt:  startedAt,
		FinishedAt: startedAt.Add(3 * time.Second),
		Delays:     models.DelayStats{Count: 3, MeanSeconds: 60, StdDevSeconds: 48.9},
	}
	s.Add(models.ItemResult{Kind: models.KindLiveboard, Target: "Gent-Sint-Pieters", Rows: 6})
	s.Add(models.ItemResult{Kind: models.KindConnections, Target: "Gent-Sint-Pieters -> Brussels-Central", Err: errors.New("boom")})
	return s
}

func TestEnsureSchema_Idempotent(t *testing.T) {
	database := openTestDB(t)
	require.NoError(t, database.EnsureSchema(context.Background()))
	require.NoError(t, database.Ping(context.Background()))
}

func TestRecordRun_GetRun(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	started := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, database.RecordRun(ctx, testSummary("run-1", started)))

	run, err := database.GetRun(ctx, "run-1")
	require.NoError(t, err)

	assert.Equal(t, "run-1", run.RunID)
	assert.True(t, started.Equal(run.StartedAt))
	assert.True(t, started.Add(3*time.Second).Equal(run.FinishedAt))
	assert.Equal(t, 1, run.ItemsOK)
	assert.Equal(t, 1, run.ItemsFailed)
	assert.Equal(t, 6, run.RowsWritten)
	assert.Equal(t, 3, run.Delays.Count)
	assert.InDelta(t, 60.0, run.Delays.MeanSeconds, 1e-9)

	require.Len(t, run.Items, 2)
	assert.Equal(t, models.KindLiveboard, run.Items[0].Kind)
	assert.Equal(t, "", run.Items[0].Error)
	assert.Equal(t, 6, run.Items[0].Rows)
	assert.Equal(t, models.KindConnections, run.Items[1].Kind)
	assert.Equal(t, "boom", run.Items[1].Error)
	assert.False(t, run.Items[1].OK())
}

func TestGetRun_NotFound(t *testing.T) {
	database := openTestDB(t)

	_, err := database.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestRecordRun_DuplicateID(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, database.RecordRun(ctx, testSummary("dup", now)))
	assert.Error(t, database.RecordRun(ctx, testSummary("dup", now)))
}

func TestListRuns_NewestFirst(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, database.RecordRun(ctx, testSummary(id, base.Add(time.Duration(i)*time.Minute))))
	}

	runs, err := database.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].RunID)
	assert.Equal(t, "b", runs[1].RunID)
	assert.Empty(t, runs[0].Items)

	all, err := database.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestListRuns_Empty(t *testing.T) {
	database := openTestDB(t)

	runs, err := database.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.NotNil(t, runs)
	assert.Empty(t, runs)
}

func TestCleanup_PrunesOldRuns(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, database.RecordRun(ctx, testSummary("old", time.Now().UTC().Add(-60*24*time.Hour))))
	require.NoError(t, database.RecordRun(ctx, testSummary("new", time.Now().UTC())))

	require.NoError(t, database.Cleanup(ctx, 30*24*time.Hour))

	_, err := database.GetRun(ctx, "old")
	assert.ErrorIs(t, err, ErrRunNotFound)

	var orphans int
	require.NoError(t, database.conn.QueryRow("SELECT COUNT(*) FROM pipeline_run_items WHERE run_id = 'old'").Scan(&orphans))
	assert.Zero(t, orphans)

	run, err := database.GetRun(ctx, "new")
	require.NoError(t, err)
	assert.Len(t, run.Items, 2)
}

func TestTrainIndex(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	index := NewTrainIndex(database, filepath.Join(t.TempDir(), models.TrainsFile))

	known, err := index.Known(ctx)
	require.NoError(t, err)
	assert.Empty(t, known)

	require.NoError(t, index.Remember(ctx, []models.TrainRecord{
		{TrainID: "BE.NMBS.IC1832", TrainType: "IC"},
		{TrainID: "BE.NMBS.L2970", TrainType: "L"},
	}))
	// Re-registering is ignored
	require.NoError(t, index.Remember(ctx, []models.TrainRecord{
		{TrainID: "BE.NMBS.IC1832", TrainType: "IC"},
	}))
	require.NoError(t, index.Remember(ctx, nil))

	known, err = index.Known(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{
		"BE.NMBS.IC1832": {},
		"BE.NMBS.L2970":  {},
	}, known)
}

func TestTrainIndex_KnownIncludesRegistryFile(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	trainsPath := filepath.Join(t.TempDir(), models.TrainsFile)

	// Registered by an earlier csv-backed run; the table never saw it
	require.NoError(t, csvstore.Append(trainsPath, models.TrainFields, []models.TrainRecord{
		{TrainID: "BE.NMBS.IC1832", TrainType: "IC"},
	}))

	index := NewTrainIndex(database, trainsPath)
	require.NoError(t, index.Remember(ctx, []models.TrainRecord{
		{TrainID: "BE.NMBS.L2970", TrainType: "L"},
	}))

	known, err := index.Known(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{
		"BE.NMBS.IC1832": {},
		"BE.NMBS.L2970":  {},
	}, known)
}

func TestTrainIndex_KnownRejectsForeignRegistryFile(t *testing.T) {
	database := openTestDB(t)
	trainsPath := filepath.Join(t.TempDir(), models.TrainsFile)
	require.NoError(t, os.WriteFile(trainsPath, []byte("id,kind\nBE.NMBS.IC1832,IC\n"), 0o644))

	_, err := NewTrainIndex(database, trainsPath).Known(context.Background())
	assert.ErrorIs(t, err, csvstore.ErrMissingKeyField)
}
