package main

import (
	"context"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/risk-dashboard/internal/model"
	"github.com/sells-group/risk-dashboard/internal/pipeline"
	"github.com/sells-group/risk-dashboard/internal/store"
)

// tableQuery is a load plus the dashboard's view filters.
type tableQuery struct {
	Load        pipeline.LoadOptions
	From, To    time.Time
	OmitPending bool
}

// parseDay parses YYYY-MM-DD; an empty string is the zero time.
func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, eris.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return t, nil
}

func parseBool(s string) (bool, error) {
	if s == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, eris.Errorf("invalid boolean %q", s)
	}
	return b, nil
}

func newTableQuery(analysts, latest bool, from, to string, omitPending bool) (tableQuery, error) {
	q := tableQuery{
		Load:        pipeline.LoadOptions{IncludeAnalysts: analysts, LatestOnly: latest},
		OmitPending: omitPending,
	}
	var err error
	if q.From, err = parseDay(from); err != nil {
		return q, err
	}
	if q.To, err = parseDay(to); err != nil {
		return q, err
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		return q, eris.Errorf("date range ends (%s) before it starts (%s)", to, from)
	}
	return q, nil
}

// loadTable runs the load, applies the view filters and records the run.
func loadTable(ctx context.Context, p *pipeline.Pipeline, st store.Store, command string, q tableQuery) (*pipeline.Result, error) {
	started := time.Now()
	res, err := p.Load(ctx, q.Load)
	recordRun(ctx, st, command, started, res, err)
	if err != nil {
		return nil, err
	}

	recs := pipeline.FilterWindow(res.Records, q.From, q.To, p.Location())
	if q.OmitPending {
		recs = pipeline.OmitPending(recs)
	}
	res.Records = recs
	return res, nil
}

// recordRun appends a run log entry; failures to record are logged only.
func recordRun(ctx context.Context, st store.Store, command string, started time.Time, res *pipeline.Result, loadErr error) {
	if st == nil {
		return
	}
	run := &store.RunLog{
		Command:    command,
		StartedAt:  started.UTC(),
		FinishedAt: time.Now().UTC(),
	}
	if res != nil {
		run.Status = res.Status
		run.Rows = len(res.Records)
		run.CacheHit = res.CacheHit
		run.Sources = res.Sources
		if res.Decision != nil {
			run.Action = string(res.Decision.Action)
		}
	}
	if loadErr != nil {
		run.Status = model.LoadStatusFailed
		run.Error = loadErr.Error()
	}
	if err := st.RecordRun(ctx, run); err != nil {
		zap.L().Warn("record run failed", zap.String("command", command), zap.Error(err))
	}
}
