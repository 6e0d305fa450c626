package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/risk-dashboard/internal/category"
	"github.com/sells-group/risk-dashboard/internal/fetcher"
	"github.com/sells-group/risk-dashboard/internal/freshness"
	"github.com/sells-group/risk-dashboard/internal/model"
)

// Column aliases of the raw manual-evaluation export.
var (
	rawSubjectCols  = []string{"idNumber", "rut", fetcher.ColSubjectID}
	rawCategoryCols = []string{"resolution", fetcher.ColCategory}
	rawCreatedCols  = []string{"manualEvaluationUpdatedDate", fetcher.ColCreatedAt}
	rawEvalIDCols   = []string{"manualEvaluationId", fetcher.ColEvaluationID}
)

var errNoRemote = errors.New("remote store unavailable")

// FetchHistorical returns the historical partition. It reuses today's
// artifact when fresh, and otherwise rebuilds it from the newest raw export
// of the current month and publishes it. When the remote store cannot be
// reached it falls back to the newest local artifact and reports degraded.
// A schema violation is returned as *fetcher.SchemaError.
func (p *Pipeline) FetchHistorical(ctx context.Context) ([]model.EvaluationRecord, model.SourceReport, error) {
	recs, rep, _, err := p.fetchHistorical(ctx, p.now())
	return recs, rep, err
}

func (p *Pipeline) fetchHistorical(ctx context.Context, now time.Time) ([]model.EvaluationRecord, model.SourceReport, freshness.Decision, error) {
	log := zap.L().With(zap.String("component", "pipeline"), zap.String("source", SourceHistorical))
	rep := model.SourceReport{Name: SourceHistorical}

	d := p.resolver.Resolve(ctx, now)
	if d.Action == freshness.ActionReuse && d.Artifact != nil {
		recs, err := p.readDaily(ctx, *d.Artifact)
		if err == nil {
			rep.Status = model.LoadStatusOK
			rep.Rows = len(recs)
			log.Info("pipeline: reused daily artifact", zap.String("name", d.Artifact.Name), zap.Int("rows", len(recs)))
			return recs, rep, d, nil
		}
		var se *fetcher.SchemaError
		if errors.As(err, &se) {
			return nil, failed(rep, err), d, se
		}
		log.Warn("pipeline: reuse failed, rebuilding from source", zap.Error(err))
		d.Action = freshness.ActionRegenerate
		d.Reason = "download of fresh artifact failed"
	}

	recs, err := p.buildFromSource(ctx, now)
	if err != nil {
		var se *fetcher.SchemaError
		if errors.As(err, &se) {
			return nil, failed(rep, err), d, se
		}
		log.Warn("pipeline: historical fetch failed, trying local artifact", zap.Error(err))

		local, path, lerr := p.latestLocal(ctx)
		if lerr != nil {
			log.Warn("pipeline: no local artifact", zap.Error(lerr))
			return []model.EvaluationRecord{}, failed(rep, err), d, nil
		}
		rep.Status = model.LoadStatusDegraded
		rep.Rows = len(local)
		rep.Err = err.Error()
		log.Info("pipeline: using local artifact", zap.String("path", path), zap.Int("rows", len(local)))
		return local, rep, d, nil
	}

	rep.Status = model.LoadStatusOK
	rep.Rows = len(recs)
	if perr := p.publish(ctx, now, d, recs); perr != nil {
		log.Warn("pipeline: publish daily artifact failed", zap.Error(perr))
		rep.Err = perr.Error()
	}
	return recs, rep, d, nil
}

func failed(rep model.SourceReport, err error) model.SourceReport {
	rep.Status = model.LoadStatusFailed
	rep.Rows = 0
	rep.Err = err.Error()
	return rep
}

// readDaily returns the records of a daily artifact, preferring a local
// copy written no earlier than the remote one.
func (p *Pipeline) readDaily(ctx context.Context, a model.Artifact) ([]model.EvaluationRecord, error) {
	local := filepath.Join(p.opts.TempDir, a.Name)
	if info, err := os.Stat(local); err == nil && !info.ModTime().Before(a.CreatedAt) {
		return p.readArtifact(ctx, local)
	}
	if p.client == nil {
		return nil, errNoRemote
	}
	path, err := p.client.Download(ctx, a.ID, p.opts.TempDir)
	if err != nil {
		return nil, err
	}
	return p.readArtifact(ctx, path)
}

// buildFromSource walks root -> YYYY -> MM, downloads the newest CSV export
// and parses it.
func (p *Pipeline) buildFromSource(ctx context.Context, now time.Time) ([]model.EvaluationRecord, error) {
	if p.client == nil {
		return nil, errNoRemote
	}
	local := now.In(p.opts.Location)
	year, month := local.Format("2006"), local.Format("01")

	root, err := p.client.List(ctx, p.opts.RootFolderID)
	if err != nil {
		return nil, err
	}
	yearDir, ok := findFolder(root, year)
	if !ok {
		return nil, eris.Errorf("pipeline: no folder for year %s", year)
	}
	months, err := p.client.List(ctx, yearDir.ID)
	if err != nil {
		return nil, err
	}
	monthDir, ok := findFolder(months, month)
	if !ok {
		return nil, eris.Errorf("pipeline: no folder for month %s/%s", year, month)
	}
	files, err := p.client.List(ctx, monthDir.ID)
	if err != nil {
		return nil, err
	}
	newest, ok := newestCSV(files)
	if !ok {
		return nil, eris.Errorf("pipeline: no CSV export in %s/%s", year, month)
	}

	path, err := p.client.Download(ctx, newest.ID, p.opts.TempDir)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	t, err := fetcher.ReadCSVTable(ctx, f, fetcher.CSVOptions{})
	if err != nil {
		return nil, err
	}
	return p.parseRaw(t, newest.Name)
}

func findFolder(items []model.Artifact, name string) (model.Artifact, bool) {
	for _, a := range items {
		if a.Name == name && (a.MimeType == model.MimeFolder || a.MimeType == "") {
			return a, true
		}
	}
	return model.Artifact{}, false
}

// newestCSV picks the most recently created CSV; unknown creation times
// sort last.
func newestCSV(items []model.Artifact) (model.Artifact, bool) {
	var csvs []model.Artifact
	for _, a := range items {
		if a.MimeType == model.MimeCSV {
			csvs = append(csvs, a)
		}
	}
	if len(csvs) == 0 {
		return model.Artifact{}, false
	}
	sort.SliceStable(csvs, func(i, j int) bool {
		return csvs[i].CreatedAt.After(csvs[j].CreatedAt)
	})
	return csvs[0], true
}

// parseRaw converts a raw manual-evaluation export to records.
func (p *Pipeline) parseRaw(t *fetcher.Table, source string) ([]model.EvaluationRecord, error) {
	if t.Header == nil {
		return []model.EvaluationRecord{}, nil
	}
	var missing []string
	for _, group := range [][]string{rawSubjectCols, rawCategoryCols, rawCreatedCols} {
		if !t.Has(group...) {
			missing = append(missing, group[0])
		}
	}
	if len(missing) > 0 {
		return nil, &fetcher.SchemaError{Source: source, Missing: missing}
	}

	iSubject := t.Index(rawSubjectCols...)
	iCat := t.Index(rawCategoryCols...)
	iCreated := t.Index(rawCreatedCols...)
	iStatus := t.Index(fetcher.ColStatus)
	iEval := t.Index(rawEvalIDCols...)

	excluded := make(map[string]bool, len(p.opts.ExcludedStatuses))
	for _, s := range p.opts.ExcludedStatuses {
		excluded[strings.ToUpper(strings.TrimSpace(s))] = true
	}

	out := make([]model.EvaluationRecord, 0, len(t.Rows))
	skipped := 0
	for _, row := range t.Rows {
		status := strings.ToUpper(fetcher.Cell(row, iStatus))
		if excluded[status] {
			continue
		}
		created, err := fetcher.ParseTime(fetcher.Cell(row, iCreated), p.opts.Location)
		if err != nil {
			skipped++
			continue
		}
		cat := category.ResolveStatus(p.norm.Normalize(fetcher.Cell(row, iCat)), status)
		out = append(out, model.EvaluationRecord{
			SubjectID:    fetcher.Cell(row, iSubject),
			Category:     cat,
			CreatedAt:    created,
			Status:       status,
			EvaluationID: fetcher.Cell(row, iEval),
		})
	}
	if skipped > 0 {
		zap.L().Debug("pipeline: skipped rows without a valid timestamp",
			zap.String("source", source), zap.Int("skipped", skipped))
	}
	return out, nil
}

// publish writes today's artifact locally and creates or overwrites the
// remote copy according to the decision.
func (p *Pipeline) publish(ctx context.Context, now time.Time, d freshness.Decision, recs []model.EvaluationRecord) error {
	name := p.resolver.ExpectedName(now)
	local := filepath.Join(p.opts.TempDir, name)
	if err := writeRecordsFile(local, recs); err != nil {
		return err
	}
	if p.client == nil {
		return nil
	}

	switch {
	case d.Action == freshness.ActionRegenerate && d.Artifact != nil:
		return p.client.Overwrite(ctx, d.Artifact.ID, local)
	default:
		_, err := p.client.Upload(ctx, local, p.opts.UpdatedFolderID, name)
		return err
	}
}

// latestLocal reads the newest "<prefix>_*.csv" in the temp dir. The date in
// the name makes lexical order chronological.
func (p *Pipeline) latestLocal(ctx context.Context) ([]model.EvaluationRecord, string, error) {
	matches, err := filepath.Glob(filepath.Join(p.opts.TempDir, p.opts.Prefix+"_*.csv"))
	if err != nil {
		return nil, "", eris.Wrap(err, "pipeline: glob local artifacts")
	}
	if len(matches) == 0 {
		return nil, "", eris.Errorf("pipeline: no local %s_*.csv in %s", p.opts.Prefix, p.opts.TempDir)
	}
	sort.Strings(matches)
	path := matches[len(matches)-1]
	recs, err := p.readArtifact(ctx, path)
	if err != nil {
		return nil, "", err
	}
	return recs, path, nil
}

// readArtifact reads a daily artifact and normalizes its categories again.
// The file may predate the current synonyms or come from another writer.
func (p *Pipeline) readArtifact(ctx context.Context, path string) ([]model.EvaluationRecord, error) {
	recs, err := readRecordsFile(ctx, path)
	if err != nil {
		return nil, err
	}
	changed := 0
	for i := range recs {
		cat := category.ResolveStatus(p.norm.Normalize(string(recs[i].Category)), recs[i].Status)
		if cat != recs[i].Category {
			recs[i].Category = cat
			changed++
		}
	}
	if changed > 0 {
		zap.L().Debug("pipeline: normalized artifact categories",
			zap.String("path", path), zap.Int("changed", changed))
	}
	return recs, nil
}

func readRecordsFile(ctx context.Context, path string) ([]model.EvaluationRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return fetcher.ReadRecords(ctx, f)
}

func writeRecordsFile(path string, recs []model.EvaluationRecord) error {
	var buf bytes.Buffer
	if err := fetcher.WriteRecords(&buf, recs); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "pipeline: create dir for %s", path)
	}
	tmp := path + ".part"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return eris.Wrapf(err, "pipeline: write %s", tmp)
	}
	return eris.Wrapf(os.Rename(tmp, path), "pipeline: rename %s", tmp)
}
