package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Times are stored as unix milliseconds so expiry comparisons stay numeric.
const sqliteMigration = `
CREATE TABLE IF NOT EXISTS cache_entries (
	key           TEXT PRIMARY KEY,
	value         BLOB NOT NULL,
	inserted_at   INTEGER NOT NULL,
	ttl_ms        INTEGER NOT NULL,
	expires_at    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS run_log (
	id          TEXT PRIMARY KEY,
	command     TEXT NOT NULL,
	status      TEXT NOT NULL,
	action      TEXT NOT NULL DEFAULT '',
	rows        INTEGER NOT NULL DEFAULT 0,
	cache_hit   INTEGER NOT NULL DEFAULT 0,
	sources     TEXT,
	error       TEXT NOT NULL DEFAULT '',
	started_at  INTEGER NOT NULL,
	finished_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cache_entries_expires_at ON cache_entries(expires_at);
CREATE INDEX IF NOT EXISTS idx_run_log_started_at ON run_log(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetEntry(ctx context.Context, key string, now time.Time) (*Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT key, value, inserted_at, ttl_ms FROM cache_entries WHERE key = ? AND expires_at > ?`,
		key, now.UnixMilli(),
	)

	var e Entry
	var inserted, ttl int64
	err := row.Scan(&e.Key, &e.Value, &inserted, &ttl)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get entry %s", key)
	}
	e.InsertedAt = time.UnixMilli(inserted).UTC()
	e.TTL = time.Duration(ttl) * time.Millisecond
	return &e, nil
}

func (s *SQLiteStore) PutEntry(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cache_entries (key, value, inserted_at, ttl_ms, expires_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, inserted_at = excluded.inserted_at,
		 ttl_ms = excluded.ttl_ms, expires_at = excluded.expires_at`,
		e.Key, e.Value, e.InsertedAt.UnixMilli(), e.TTL.Milliseconds(), e.ExpiresAt().UnixMilli(),
	)
	return eris.Wrapf(err, "sqlite: put entry %s", e.Key)
}

func (s *SQLiteStore) Invalidate(ctx context.Context, prefix string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE substr(key, 1, length(?)) = ?`,
		prefix, prefix,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: invalidate %q", prefix)
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE expires_at <= ?`, now.UnixMilli(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired entries")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) RecordRun(ctx context.Context, run *RunLog) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	sources, err := json.Marshal(run.Sources)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal sources")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO run_log (id, command, status, action, rows, cache_hit, sources, error, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Command, string(run.Status), run.Action, run.Rows, boolToInt(run.CacheHit),
		string(sources), run.Error, run.StartedAt.UnixMilli(), run.FinishedAt.UnixMilli(),
	)
	return eris.Wrapf(err, "sqlite: insert run %s", run.ID)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunLog, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, command, status, action, rows, cache_hit, sources, error, started_at, finished_at
		 FROM run_log ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []RunLog
	for rows.Next() {
		var r RunLog
		var status string
		var cacheHit int
		var sources sql.NullString
		var started, finished int64
		if err := rows.Scan(&r.ID, &r.Command, &status, &r.Action, &r.Rows, &cacheHit,
			&sources, &r.Error, &started, &finished); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		r.Status = modelStatus(status)
		r.CacheHit = cacheHit != 0
		r.StartedAt = time.UnixMilli(started).UTC()
		r.FinishedAt = time.UnixMilli(finished).UTC()
		if err := unmarshalSources(sources.String, &r); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
