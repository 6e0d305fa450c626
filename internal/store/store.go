// Package store persists the advisory result cache and the run log.
package store

import (
	"context"
	"time"

	"github.com/sells-group/risk-dashboard/internal/model"
)

// Entry is a cached value with an explicit insertion time and TTL.
type Entry struct {
	Key        string        `json:"key"`
	Value      []byte        `json:"-"`
	InsertedAt time.Time     `json:"inserted_at"`
	TTL        time.Duration `json:"ttl"`
}

// ExpiresAt returns the instant the entry stops being fresh.
func (e Entry) ExpiresAt() time.Time {
	return e.InsertedAt.Add(e.TTL)
}

// Fresh reports whether the entry can still be served at now.
func (e Entry) Fresh(now time.Time) bool {
	return now.Before(e.ExpiresAt())
}

// RunLog records one pipeline load.
type RunLog struct {
	ID         string               `json:"id"`
	Command    string               `json:"command"`
	Status     model.LoadStatus     `json:"status"`
	Action     string               `json:"action,omitempty"`
	Rows       int                  `json:"rows"`
	CacheHit   bool                 `json:"cache_hit"`
	Sources    []model.SourceReport `json:"sources,omitempty"`
	Error      string               `json:"error,omitempty"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt time.Time            `json:"finished_at"`
}

// Store defines the persistence interface for the cache and run log.
type Store interface {
	// Cache. GetEntry returns nil, nil when the key is missing or stale at now.
	GetEntry(ctx context.Context, key string, now time.Time) (*Entry, error)
	PutEntry(ctx context.Context, e Entry) error
	// Invalidate removes entries whose key starts with prefix ("" = all).
	Invalidate(ctx context.Context, prefix string) (int, error)
	DeleteExpired(ctx context.Context, now time.Time) (int, error)

	// Runs. RecordRun assigns an ID when run.ID is empty.
	RecordRun(ctx context.Context, run *RunLog) error
	ListRuns(ctx context.Context, limit int) ([]RunLog, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 50
