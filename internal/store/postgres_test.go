package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/risk-dashboard/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS cache_entries`).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetEntry_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT key, value, inserted_at, ttl_ms FROM cache_entries`).
		WithArgs("missing", t0).
		WillReturnError(pgx.ErrNoRows)

	e, err := s.GetEntry(context.Background(), "missing", t0)
	require.NoError(t, err)
	assert.Nil(t, e)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetEntry_Found(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rows := pgxmock.NewRows([]string{"key", "value", "inserted_at", "ttl_ms"}).
		AddRow("k", []byte("payload"), t0, int64(3600000))
	mock.ExpectQuery(`SELECT key, value, inserted_at, ttl_ms FROM cache_entries`).
		WithArgs("k", t0).
		WillReturnRows(rows)

	e, err := s.GetEntry(context.Background(), "k", t0)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "payload", string(e.Value))
	assert.Equal(t, time.Hour, e.TTL)
	assert.Equal(t, t0.Add(time.Hour), e.ExpiresAt())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetEntry_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectQuery(`SELECT key`).WithArgs("k", t0).WillReturnError(errors.New("conn reset"))

	_, err := s.GetEntry(context.Background(), "k", t0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: get entry k")
}

func TestPostgresStore_PutEntry_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`ON CONFLICT \(key\) DO UPDATE`).
		WithArgs("k", []byte("v"), t0, int64(60000), t0.Add(time.Minute)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.PutEntry(context.Background(), Entry{Key: "k", Value: []byte("v"), InsertedAt: t0, TTL: time.Minute}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InvalidateAndDeleteExpired(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM cache_entries WHERE left\(key`).
		WithArgs("load:").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectExec(`DELETE FROM cache_entries WHERE expires_at <= \$1`).
		WithArgs(t0).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	n, err := s.Invalidate(context.Background(), "load:")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = s.DeleteExpired(context.Background(), t0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordAndListRuns(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	ctx := context.Background()

	run := &RunLog{ID: "run-1", Command: "load", Status: model.LoadStatusOK, Rows: 3, StartedAt: t0, FinishedAt: t0}
	mock.ExpectExec(`INSERT INTO run_log`).
		WithArgs("run-1", "load", "ok", "", 3, false, []byte("null"), "", t0, t0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, s.RecordRun(ctx, run))

	rows := pgxmock.NewRows([]string{"id", "command", "status", "action", "rows", "cache_hit", "sources", "error", "started_at", "finished_at"}).
		AddRow("run-1", "load", "degraded", "reuse", 3, false, []byte(`[{"name":"same_day","status":"failed","rows":0}]`), "", t0, t0)
	mock.ExpectQuery(`SELECT id, command, status`).WithArgs(5).WillReturnRows(rows)

	runs, err := s.ListRuns(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.LoadStatusDegraded, runs[0].Status)
	require.Len(t, runs[0].Sources, 1)
	assert.True(t, runs[0].Sources[0].Failed())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEntry_Fresh(t *testing.T) {
	e := Entry{InsertedAt: t0, TTL: time.Hour}
	assert.True(t, e.Fresh(t0))
	assert.False(t, e.Fresh(t0.Add(time.Hour)))
}
