package db

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/risk-dashboard/internal/model"
)

// ExportMode selects how a snapshot lands in the reporting table.
type ExportMode string

const (
	// ExportReplace truncates the table and copies the snapshot in.
	ExportReplace ExportMode = "replace"
	// ExportUpsert merges the snapshot keyed on (subject_id, fecha_creacion,
	// evaluation_id).
	ExportUpsert ExportMode = "upsert"
)

// ExportColumns are the reporting table columns, in COPY order.
var ExportColumns = []string{
	"subject_id",
	"resolucion_riesgo",
	"fecha_creacion",
	"status",
	"analista_riesgo",
	"evaluation_id",
}

var exportConflictKeys = []string{"subject_id", "fecha_creacion", "evaluation_id"}

// EnsureTable creates the reporting table if it does not exist.
func EnsureTable(ctx context.Context, pool Pool, table string) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	subject_id        TEXT NOT NULL,
	resolucion_riesgo TEXT NOT NULL,
	fecha_creacion    TIMESTAMPTZ NOT NULL,
	status            TEXT NOT NULL DEFAULT '',
	analista_riesgo   TEXT NOT NULL DEFAULT '',
	evaluation_id     TEXT NOT NULL DEFAULT '',
	exported_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (subject_id, fecha_creacion, evaluation_id)
)`, sanitizeTable(table))
	_, err := pool.Exec(ctx, ddl)
	return eris.Wrapf(err, "db: ensure table %s", table)
}

// ExportRecords writes records to table using mode and returns the number
// of rows written.
func ExportRecords(ctx context.Context, pool Pool, table string, mode ExportMode, records []model.EvaluationRecord) (int64, error) {
	rows, collapsed := exportRows(records)
	log := zap.L().With(
		zap.String("component", "export"),
		zap.String("table", table),
		zap.String("mode", string(mode)),
	)
	if collapsed > 0 {
		log.Debug("db: export collapsed duplicate events", zap.Int("collapsed", collapsed))
	}

	switch mode {
	case ExportUpsert:
		n, err := BulkUpsert(ctx, pool, UpsertConfig{
			Table:        table,
			Columns:      ExportColumns,
			ConflictKeys: exportConflictKeys,
		}, rows)
		if err != nil {
			return 0, err
		}
		log.Info("db: export upserted", zap.Int64("rows", n))
		return n, nil
	case ExportReplace, "":
		n, err := replace(ctx, pool, table, rows)
		if err != nil {
			return 0, err
		}
		log.Info("db: export replaced", zap.Int64("rows", n))
		return n, nil
	default:
		return 0, eris.Errorf("db: unknown export mode %q", mode)
	}
}

func replace(ctx context.Context, pool Pool, table string, rows [][]any) (int64, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: export: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "TRUNCATE TABLE "+sanitizeTable(table)); err != nil {
		return 0, eris.Wrapf(err, "db: export: truncate %s", table)
	}
	n, err := CopyFrom(ctx, tx, table, ExportColumns, rows)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: export: commit tx")
	}
	return n, nil
}

// exportRows converts records to COPY rows, keeping the last record for
// each (subject_id, fecha_creacion, evaluation_id) and counting the rows it
// replaced.
func exportRows(records []model.EvaluationRecord) ([][]any, int) {
	type key struct {
		subject string
		created time.Time
		evalID  string
	}
	pos := make(map[key]int, len(records))
	rows := make([][]any, 0, len(records))
	collapsed := 0
	for _, r := range records {
		row := []any{
			r.SubjectID,
			string(r.Category),
			r.CreatedAt.UTC(),
			r.Status,
			r.Analyst,
			r.EvaluationID,
		}
		k := key{r.SubjectID, r.CreatedAt.UTC(), r.EvaluationID}
		if i, ok := pos[k]; ok {
			rows[i] = row
			collapsed++
			continue
		}
		pos[k] = len(rows)
		rows = append(rows, row)
	}
	return rows, collapsed
}
