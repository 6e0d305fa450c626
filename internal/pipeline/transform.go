package pipeline

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/risk-dashboard/internal/model"
)

// Merge concatenates the historical partition (strictly before dayStart)
// and the same-day partition (at or after dayStart). Records on the wrong
// side of the boundary are dropped so the two never overlap.
func Merge(historical, sameDay []model.EvaluationRecord, dayStart time.Time) []model.EvaluationRecord {
	out := make([]model.EvaluationRecord, 0, len(historical)+len(sameDay))
	for _, r := range historical {
		if r.CreatedAt.Before(dayStart) {
			out = append(out, r)
		}
	}
	for _, r := range sameDay {
		if !r.CreatedAt.Before(dayStart) {
			out = append(out, r)
		}
	}
	return out
}

// AttachAnalyst fills Analyst on a copy of records. When disabled every
// record gets N/A and nothing is fetched. When enabled the assignments come
// from the live sheets; unmatched subjects, and every subject when the
// fetch fails, get Desconocido.
func (p *Pipeline) AttachAnalyst(ctx context.Context, records []model.EvaluationRecord, enable bool) ([]model.EvaluationRecord, model.SourceReport) {
	if !enable {
		rep := model.SourceReport{Name: SourceAnalysts, Status: model.LoadStatusOK}
		return withAnalysts(records, nil, model.AnalystNotRequested), rep
	}
	return p.attachFrom(records, p.fetchLiveTables(ctx))
}

func (p *Pipeline) attachFrom(records []model.EvaluationRecord, live liveTables) ([]model.EvaluationRecord, model.SourceReport) {
	rep := model.SourceReport{Name: SourceAnalysts, Status: model.LoadStatusOK}
	if err := live.firstErr(); err != nil {
		rep.Err = err.Error()
		rep.Status = live.status()
	}
	if len(live.errs) > 0 && live.failures() == len(live.errs) {
		zap.L().Warn("pipeline: analyst assignments unavailable",
			zap.String("component", "pipeline"), zap.String("error", rep.Err))
		rep.Status = model.LoadStatusDegraded
		return withAnalysts(records, nil, model.AnalystUnknown), rep
	}

	bySubject := assignments(live, p.opts.Location)
	rep.Rows = len(bySubject)
	return withAnalysts(records, bySubject, model.AnalystUnknown), rep
}

func withAnalysts(records []model.EvaluationRecord, bySubject map[string]string, fallback string) []model.EvaluationRecord {
	out := make([]model.EvaluationRecord, len(records))
	for i, r := range records {
		r.Analyst = fallback
		if a, ok := bySubject[r.SubjectID]; ok && a != "" {
			r.Analyst = a
		}
		out[i] = r
	}
	return out
}

// FilterLatestPerSubject keeps the record with the greatest CreatedAt per
// subject. Ties keep the earlier record in input order. The result is
// ordered by CreatedAt descending and the function is idempotent.
func FilterLatestPerSubject(records []model.EvaluationRecord) []model.EvaluationRecord {
	sorted := make([]model.EvaluationRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	seen := make(map[string]bool, len(sorted))
	out := make([]model.EvaluationRecord, 0, len(sorted))
	for _, r := range sorted {
		if seen[r.SubjectID] {
			continue
		}
		seen[r.SubjectID] = true
		out = append(out, r)
	}
	return out
}

// FilterWindow keeps records whose local date lies in [from, to]. Zero
// bounds are open.
func FilterWindow(records []model.EvaluationRecord, from, to time.Time, loc *time.Location) []model.EvaluationRecord {
	if loc == nil {
		loc = time.UTC
	}
	var lo, hi time.Time
	if !from.IsZero() {
		lo = time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, loc)
	}
	if !to.IsZero() {
		hi = time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)
	}

	out := make([]model.EvaluationRecord, 0, len(records))
	for _, r := range records {
		if !lo.IsZero() && r.CreatedAt.Before(lo) {
			continue
		}
		if !hi.IsZero() && !r.CreatedAt.Before(hi) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// OmitPending drops records still waiting for a resolution.
func OmitPending(records []model.EvaluationRecord) []model.EvaluationRecord {
	out := make([]model.EvaluationRecord, 0, len(records))
	for _, r := range records {
		if r.Category != model.CategoryPending {
			out = append(out, r)
		}
	}
	return out
}
