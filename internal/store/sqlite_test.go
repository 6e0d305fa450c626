package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/risk-dashboard/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

var t0 = time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC)

func TestSQLite_Entry_PutAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.PutEntry(ctx, Entry{Key: "load:2025-06-01", Value: []byte("csv"), InsertedAt: t0, TTL: time.Hour}))

	e, err := st.GetEntry(ctx, "load:2025-06-01", t0.Add(30*time.Minute))
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "csv", string(e.Value))
	assert.Equal(t, t0, e.InsertedAt)
	assert.Equal(t, time.Hour, e.TTL)
	assert.True(t, e.Fresh(t0.Add(59*time.Minute)))
}

func TestSQLite_Entry_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	e, err := st.GetEntry(context.Background(), "nope", t0)
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestSQLite_Entry_Expired(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, st.PutEntry(ctx, Entry{Key: "k", Value: []byte("v"), InsertedAt: t0, TTL: time.Hour}))

	e, err := st.GetEntry(ctx, "k", t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Nil(t, e)

	n, err := st.DeleteExpired(ctx, t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLite_Entry_Overwrite(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.PutEntry(ctx, Entry{Key: "k", Value: []byte("old"), InsertedAt: t0, TTL: time.Hour}))
	require.NoError(t, st.PutEntry(ctx, Entry{Key: "k", Value: []byte("new"), InsertedAt: t0, TTL: time.Hour}))

	e, err := st.GetEntry(ctx, "k", t0)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "new", string(e.Value))
}

func TestSQLite_Invalidate(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	for _, k := range []string{"load:2025-06-01:a", "load:2025-06-01:b", "other"} {
		require.NoError(t, st.PutEntry(ctx, Entry{Key: k, Value: []byte("x"), InsertedAt: t0, TTL: time.Hour}))
	}

	n, err := st.Invalidate(ctx, "load:")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = st.Invalidate(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLite_Runs(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	first := &RunLog{
		Command:    "load",
		Status:     model.LoadStatusDegraded,
		Action:     "reuse",
		Rows:       12,
		Sources:    []model.SourceReport{{Name: "historical", Status: model.LoadStatusOK, Rows: 10}},
		StartedAt:  t0,
		FinishedAt: t0.Add(time.Second),
	}
	require.NoError(t, st.RecordRun(ctx, first))
	assert.NotEmpty(t, first.ID)

	second := &RunLog{Command: "summary", Status: model.LoadStatusOK, CacheHit: true, StartedAt: t0.Add(time.Hour), FinishedAt: t0.Add(time.Hour)}
	require.NoError(t, st.RecordRun(ctx, second))

	runs, err := st.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID)
	assert.True(t, runs[0].CacheHit)
	assert.Equal(t, first.ID, runs[1].ID)
	assert.Equal(t, model.LoadStatusDegraded, runs[1].Status)
	assert.Equal(t, first.Sources, runs[1].Sources)
	assert.Equal(t, t0, runs[1].StartedAt)

	runs, err = st.ListRuns(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
