package fetcher

import (
	"context"
	"encoding/csv"
	"io"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/risk-dashboard/internal/model"
)

// Canonical artifact columns.
const (
	ColSubjectID    = "subject_id"
	ColCategory     = "resolucion_riesgo"
	ColCreatedAt    = "fecha_creacion"
	ColStatus       = "status"
	ColAnalyst      = "analista_riesgo"
	ColEvaluationID = "evaluation_id"
)

// CanonicalHeader is the header row of every stored daily artifact.
var CanonicalHeader = []string{ColSubjectID, ColCategory, ColCreatedAt, ColStatus, ColAnalyst, ColEvaluationID}

// SchemaError reports a table that is missing columns the pipeline depends
// on. It signals an upstream contract break and is never coerced away.
type SchemaError struct {
	Source  string
	Missing []string
}

func (e *SchemaError) Error() string {
	return "schema violation in " + e.Source + ": missing column(s) " + strings.Join(e.Missing, ", ")
}

// WriteRecords encodes records in the canonical artifact format: UTF-8 CSV
// with a header row and RFC 3339 UTC timestamps.
func WriteRecords(w io.Writer, records []model.EvaluationRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CanonicalHeader); err != nil {
		return eris.Wrap(err, "records: write header")
	}
	for _, r := range records {
		row := []string{
			r.SubjectID,
			string(r.Category),
			r.CreatedAt.UTC().Format(time.RFC3339Nano),
			r.Status,
			r.Analyst,
			r.EvaluationID,
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrapf(err, "records: write row for %s", r.SubjectID)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "records: flush")
}

// ReadRecords decodes a canonical artifact. Rows whose timestamp cannot be
// parsed are skipped; a missing timestamp column is a *SchemaError.
func ReadRecords(ctx context.Context, r io.Reader) ([]model.EvaluationRecord, error) {
	t, err := ReadCSVTable(ctx, r, CSVOptions{})
	if err != nil {
		return nil, err
	}
	if t.Header == nil {
		return []model.EvaluationRecord{}, nil
	}

	var missing []string
	for _, col := range []string{ColSubjectID, ColCategory, ColCreatedAt} {
		if !t.Has(col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &SchemaError{Source: "artifact", Missing: missing}
	}

	iSubject := t.Index(ColSubjectID)
	iCat := t.Index(ColCategory)
	iCreated := t.Index(ColCreatedAt)
	iStatus := t.Index(ColStatus)
	iAnalyst := t.Index(ColAnalyst)
	iEval := t.Index(ColEvaluationID)

	out := make([]model.EvaluationRecord, 0, len(t.Rows))
	for _, row := range t.Rows {
		created, err := ParseTime(Cell(row, iCreated), time.UTC)
		if err != nil {
			continue
		}
		out = append(out, model.EvaluationRecord{
			SubjectID:    Cell(row, iSubject),
			Category:     model.Category(Cell(row, iCat)),
			CreatedAt:    created,
			Status:       Cell(row, iStatus),
			Analyst:      Cell(row, iAnalyst),
			EvaluationID: Cell(row, iEval),
		})
	}
	return out, nil
}
