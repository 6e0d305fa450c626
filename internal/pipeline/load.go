package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/risk-dashboard/internal/fetcher"
	"github.com/sells-group/risk-dashboard/internal/freshness"
	"github.com/sells-group/risk-dashboard/internal/model"
	"github.com/sells-group/risk-dashboard/internal/store"
)

// CachePrefix prefixes every load cache key.
const CachePrefix = "load:"

// LoadOptions selects the shape of the unified table.
type LoadOptions struct {
	IncludeAnalysts bool
	LatestOnly      bool
	NoCache         bool // bypass the cache read; the result is still stored
}

// Result is the unified evaluation table plus how it was obtained.
type Result struct {
	Records     []model.EvaluationRecord `json:"records"`
	Status      model.LoadStatus         `json:"status"`
	Sources     []model.SourceReport     `json:"sources,omitempty"`
	Decision    *freshness.Decision      `json:"decision,omitempty"`
	GeneratedAt time.Time                `json:"generated_at"`
	CacheHit    bool                     `json:"cache_hit"`
}

// CacheKey is the cache key of a load for the local day of now.
func CacheKey(now time.Time, loc *time.Location, opts LoadOptions) string {
	if loc == nil {
		loc = time.UTC
	}
	return fmt.Sprintf("%s%s:analysts=%t:latest=%t",
		CachePrefix, now.In(loc).Format("2006-01-02"), opts.IncludeAnalysts, opts.LatestOnly)
}

// Load fetches both partitions, merges them, optionally keeps the latest
// record per subject, and attaches analysts when requested. Source failures
// degrade the result; only schema violations are returned as errors.
func (p *Pipeline) Load(ctx context.Context, opts LoadOptions) (*Result, error) {
	now := p.now()
	log := zap.L().With(zap.String("component", "pipeline"))
	key := CacheKey(now, p.opts.Location, opts)

	if p.cache != nil && !opts.NoCache {
		if res, ok := p.fromCache(ctx, key, now); ok {
			log.Info("pipeline: load served from cache", zap.String("key", key), zap.Int("rows", len(res.Records)))
			return res, nil
		}
	}

	var (
		hist    []model.EvaluationRecord
		histRep model.SourceReport
		dec     freshness.Decision
		live    liveTables
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		hist, histRep, dec, err = p.fetchHistorical(gctx, now)
		return err
	})
	g.Go(func() error {
		live = p.fetchLiveTables(gctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	same, sameRep, err := p.sameDayFrom(live, now)
	if err != nil {
		return nil, err
	}

	records := Merge(hist, same, p.dayStart(now))
	if opts.LatestOnly {
		records = FilterLatestPerSubject(records)
	}

	sources := []model.SourceReport{histRep, sameRep}
	if opts.IncludeAnalysts {
		var arep model.SourceReport
		records, arep = p.attachFrom(records, live)
		sources = append(sources, arep)
	} else {
		records, _ = p.AttachAnalyst(ctx, records, false)
	}

	res := &Result{
		Records:     records,
		Status:      model.CombineStatus(len(records), sources...),
		Sources:     sources,
		Decision:    &dec,
		GeneratedAt: now,
	}
	log.Info("pipeline: load complete",
		zap.String("status", string(res.Status)),
		zap.Int("rows", len(records)),
		zap.String("decision", string(dec.Action)),
	)

	if p.cache != nil && (res.Status == model.LoadStatusOK || res.Status == model.LoadStatusEmpty) {
		if err := p.toCache(ctx, key, now, records); err != nil {
			log.Warn("pipeline: cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return res, nil
}

func (p *Pipeline) fromCache(ctx context.Context, key string, now time.Time) (*Result, bool) {
	e, err := p.cache.GetEntry(ctx, key, now)
	if err != nil {
		zap.L().Warn("pipeline: cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if e == nil {
		return nil, false
	}
	recs, err := fetcher.ReadRecords(ctx, bytes.NewReader(e.Value))
	if err != nil {
		zap.L().Warn("pipeline: cached value unreadable", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	status := model.LoadStatusOK
	if len(recs) == 0 {
		status = model.LoadStatusEmpty
	}
	return &Result{
		Records:     recs,
		Status:      status,
		GeneratedAt: e.InsertedAt,
		CacheHit:    true,
	}, true
}

func (p *Pipeline) toCache(ctx context.Context, key string, now time.Time, recs []model.EvaluationRecord) error {
	var buf bytes.Buffer
	if err := fetcher.WriteRecords(&buf, recs); err != nil {
		return eris.Wrap(err, "pipeline: encode cache value")
	}
	return p.cache.PutEntry(ctx, store.Entry{
		Key:        key,
		Value:      buf.Bytes(),
		InsertedAt: now,
		TTL:        p.resolver.TTL(now),
	})
}
