package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/risk-dashboard/internal/category"
	"github.com/sells-group/risk-dashboard/internal/fetcher"
	"github.com/sells-group/risk-dashboard/internal/model"
	"github.com/sells-group/risk-dashboard/pkg/drive"
)

// Column aliases of the live sheets.
var (
	liveNameCols     = []string{"full_name"}
	liveSubjectCols  = []string{"rut", fetcher.ColSubjectID}
	liveCategoryCols = []string{fetcher.ColCategory, "resolution", "resolucion"}
	liveCreatedCols  = []string{fetcher.ColCreatedAt, "created_at"}
	liveAnalystCols  = []string{fetcher.ColAnalyst, "analista"}
)

// liveTables holds one export per configured sheet, in configured order.
// A nil table means that sheet failed; its error is at the same index.
type liveTables struct {
	tables []*fetcher.Table
	errs   []error
}

func (l liveTables) failures() int {
	n := 0
	for _, err := range l.errs {
		if err != nil {
			n++
		}
	}
	return n
}

func (l liveTables) firstErr() error {
	for _, err := range l.errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// status reports ok, degraded (some sheets failed) or failed (all did).
func (l liveTables) status() model.LoadStatus {
	switch n := l.failures(); {
	case n == 0:
		return model.LoadStatusOK
	case n == len(l.errs):
		return model.LoadStatusFailed
	default:
		return model.LoadStatusDegraded
	}
}

// fetchLiveTables exports every live sheet concurrently. Individual
// failures are recorded, never propagated, so one sheet cannot cancel
// the other.
func (p *Pipeline) fetchLiveTables(ctx context.Context) liveTables {
	n := len(p.opts.SheetIDs)
	out := liveTables{tables: make([]*fetcher.Table, n), errs: make([]error, n)}

	g, gctx := errgroup.WithContext(ctx)
	for i, id := range p.opts.SheetIDs {
		g.Go(func() error {
			t, err := p.exportSheet(gctx, id)
			if err != nil {
				zap.L().Warn("pipeline: live sheet export failed",
					zap.String("component", "pipeline"),
					zap.String("sheet", id),
					zap.Error(err),
				)
				out.errs[i] = err
				return nil
			}
			out.tables[i] = t
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// exportSheet exports a Google Sheet in the configured format and reads it.
func (p *Pipeline) exportSheet(ctx context.Context, sheetID string) (*fetcher.Table, error) {
	if p.client == nil {
		return nil, errNoRemote
	}
	mime, ext := drive.MimeCSV, ".csv"
	if p.opts.ExportFormat == FormatXLSX {
		mime, ext = drive.MimeXLSX, ".xlsx"
	}
	dest := filepath.Join(p.opts.TempDir, "sheet_"+sanitizeID(sheetID)+ext)

	path, err := p.client.Export(ctx, sheetID, mime, dest)
	if err != nil {
		return nil, err
	}
	defer os.Remove(path) //nolint:errcheck

	if ext == ".xlsx" {
		return fetcher.ReadXLSXTable(path, fetcher.XLSXOptions{})
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return fetcher.ReadCSVTable(ctx, f, fetcher.CSVOptions{})
}

func sanitizeID(id string) string {
	return strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == '.' {
			return '_'
		}
		return r
	}, id)
}

// FetchSameDay returns live-sheet records created at or after the local
// start of today.
// Sheet failures are reported, not returned; a sheet missing required
// columns is a *fetcher.SchemaError.
func (p *Pipeline) FetchSameDay(ctx context.Context) ([]model.EvaluationRecord, model.SourceReport, error) {
	return p.sameDayFrom(p.fetchLiveTables(ctx), p.now())
}

func (p *Pipeline) sameDayFrom(live liveTables, now time.Time) ([]model.EvaluationRecord, model.SourceReport, error) {
	rep := model.SourceReport{Name: SourceSameDay, Status: live.status()}
	if err := live.firstErr(); err != nil {
		rep.Err = err.Error()
	}

	start := p.dayStart(now)

	out := []model.EvaluationRecord{}
	for i, t := range live.tables {
		if t == nil {
			continue
		}
		recs, err := p.parseLive(t, p.opts.SheetIDs[i])
		if err != nil {
			return nil, failed(rep, err), err
		}
		for _, r := range recs {
			if !r.CreatedAt.Before(start) {
				out = append(out, r)
			}
		}
	}
	rep.Rows = len(out)
	return out, rep, nil
}

// subjectFromName extracts the subject id: the part of full_name before
// the first "_".
func subjectFromName(fullName string) string {
	id, _, _ := strings.Cut(strings.TrimSpace(fullName), "_")
	return id
}

func liveSubject(t *fetcher.Table, row []string) string {
	if i := t.Index(liveNameCols...); i >= 0 {
		if v := fetcher.Cell(row, i); v != "" {
			return subjectFromName(v)
		}
	}
	return fetcher.Cell(row, t.Index(liveSubjectCols...))
}

func (p *Pipeline) parseLive(t *fetcher.Table, source string) ([]model.EvaluationRecord, error) {
	if t.Header == nil {
		return nil, nil
	}
	var missing []string
	if !t.Has(liveNameCols...) && !t.Has(liveSubjectCols...) {
		missing = append(missing, liveNameCols[0])
	}
	if !t.Has(liveCategoryCols...) {
		missing = append(missing, liveCategoryCols[0])
	}
	if !t.Has(liveCreatedCols...) {
		missing = append(missing, liveCreatedCols[0])
	}
	if len(missing) > 0 {
		return nil, &fetcher.SchemaError{Source: "sheet " + source, Missing: missing}
	}

	iCat := t.Index(liveCategoryCols...)
	iCreated := t.Index(liveCreatedCols...)
	iStatus := t.Index(fetcher.ColStatus)
	iAnalyst := t.Index(liveAnalystCols...)

	out := make([]model.EvaluationRecord, 0, len(t.Rows))
	for _, row := range t.Rows {
		created, err := fetcher.ParseTime(fetcher.Cell(row, iCreated), p.opts.Location)
		if err != nil {
			continue
		}
		status := strings.ToUpper(fetcher.Cell(row, iStatus))
		// Live rows without a status are still in review and stay pending.
		cat := p.norm.Normalize(fetcher.Cell(row, iCat))
		if status != "" {
			cat = category.ResolveStatus(cat, status)
		}
		out = append(out, model.EvaluationRecord{
			SubjectID: liveSubject(t, row),
			Category:  cat,
			CreatedAt: created,
			Status:    status,
			Analyst:   fetcher.Cell(row, iAnalyst),
		})
	}
	return out, nil
}

// assignments builds subject -> analyst from the live sheets: duplicate
// full_name rows are dropped (first wins), then the latest assignment per
// subject is kept. Rows without a timestamp sort last.
func assignments(live liveTables, loc *time.Location) map[string]string {
	type assignment struct {
		subject string
		analyst string
		created time.Time
	}
	seen := map[string]bool{}
	var rows []assignment
	for _, t := range live.tables {
		if t == nil || t.Header == nil {
			continue
		}
		iName := t.Index(liveNameCols...)
		iCreated := t.Index(liveCreatedCols...)
		iAnalyst := t.Index(liveAnalystCols...)
		for _, row := range t.Rows {
			if iName >= 0 {
				name := fetcher.Cell(row, iName)
				if seen[name] {
					continue
				}
				seen[name] = true
			}
			created, _ := fetcher.ParseTime(fetcher.Cell(row, iCreated), loc)
			rows = append(rows, assignment{
				subject: liveSubject(t, row),
				analyst: fetcher.Cell(row, iAnalyst),
				created: created,
			})
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].created, rows[j].created
		if a.IsZero() != b.IsZero() {
			return b.IsZero()
		}
		return a.After(b)
	})

	out := make(map[string]string, len(rows))
	for _, r := range rows {
		if r.subject == "" {
			continue
		}
		if _, ok := out[r.subject]; !ok {
			out[r.subject] = r.analyst
		}
	}
	return out
}
