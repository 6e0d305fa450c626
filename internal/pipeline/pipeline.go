// Package pipeline builds the unified evaluation table from the historical
// monthly export and the live same-day sheets, and slices it for the
// dashboard.
package pipeline

import (
	"context"
	"time"

	"github.com/sells-group/risk-dashboard/internal/category"
	"github.com/sells-group/risk-dashboard/internal/freshness"
	"github.com/sells-group/risk-dashboard/internal/store"
	"github.com/sells-group/risk-dashboard/pkg/drive"
)

// Source names used in reports.
const (
	SourceHistorical = "historical"
	SourceSameDay    = "same_day"
	SourceAnalysts   = "analysts"
	SourceHandoff    = "handoff"
)

// Export formats for live sheets.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// Options locates the remote sources and tunes processing.
type Options struct {
	RootFolderID    string   // year/month hierarchy of raw exports
	UpdatedFolderID string   // daily canonical artifacts
	SheetIDs        []string // live sheets, concatenated in this order
	HandoffSheetID  string
	ExportFormat    string // FormatCSV or FormatXLSX
	TempDir         string
	Prefix          string
	Cutoff          freshness.Cutoff
	Location        *time.Location

	// ExcludedStatuses are dropped from the raw export (case-insensitive).
	ExcludedStatuses []string
	ProductUser      string
}

// DefaultOptions returns options with the production defaults and no
// remote ids.
func DefaultOptions() Options {
	return Options{
		ExportFormat:     FormatCSV,
		TempDir:          "temp_archives",
		Prefix:           "manual_evaluations",
		Cutoff:           freshness.DefaultCutoff,
		Location:         time.UTC,
		ExcludedStatuses: []string{"FINISHED", "CREATED"},
		ProductUser:      "producdigitalriesgo",
	}
}

// Cache is the subset of store.Store used for load results.
type Cache interface {
	GetEntry(ctx context.Context, key string, now time.Time) (*store.Entry, error)
	PutEntry(ctx context.Context, e store.Entry) error
}

// Pipeline runs fetches against one remote store. It keeps no state
// between calls besides the optional cache.
type Pipeline struct {
	client   drive.Client
	norm     *category.Normalizer
	resolver *freshness.Resolver
	cache    Cache
	opts     Options
	now      func() time.Time
}

// New creates a Pipeline. client may be nil when the remote store could not
// be reached; fetches then fall back to local artifacts.
func New(client drive.Client, norm *category.Normalizer, opts Options) *Pipeline {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.ExportFormat == "" {
		opts.ExportFormat = FormatCSV
	}
	if norm == nil {
		norm = category.MustDefault()
	}
	return &Pipeline{
		client:   client,
		norm:     norm,
		resolver: freshness.NewResolver(client, opts.UpdatedFolderID, opts.Prefix, opts.Cutoff, opts.Location),
		opts:     opts,
		now:      time.Now,
	}
}

// WithCache enables the advisory result cache.
func (p *Pipeline) WithCache(c Cache) *Pipeline {
	p.cache = c
	return p
}

// WithClock overrides the time source.
func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	p.now = now
	return p
}

// Resolver returns the freshness resolver for the daily artifact folder.
func (p *Pipeline) Resolver() *freshness.Resolver {
	return p.resolver
}

// Location returns the location day boundaries are evaluated in.
func (p *Pipeline) Location() *time.Location {
	return p.opts.Location
}

// Now returns the pipeline clock's current time.
func (p *Pipeline) Now() time.Time {
	return p.now()
}

func (p *Pipeline) dayStart(now time.Time) time.Time {
	return freshness.DayStart(now, p.opts.Location)
}
