package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/risk-dashboard/internal/config"
	"github.com/sells-group/risk-dashboard/internal/freshness"
	"github.com/sells-group/risk-dashboard/internal/model"
	"github.com/sells-group/risk-dashboard/internal/pipeline"
	"github.com/sells-group/risk-dashboard/internal/store"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	expected := []string{"load", "freshness", "summary", "trend", "handoff", "export", "cache", "runs", "serve"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "risk-dashboard", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestTableFlags(t *testing.T) {
	for _, cmd := range []string{"load", "summary", "trend", "export"} {
		c, _, err := rootCmd.Find([]string{cmd})
		require.NoError(t, err)
		for _, flag := range []string{"analysts", "latest", "from", "to", "omit-pending"} {
			assert.NotNil(t, c.Flags().Lookup(flag), "%s --%s", cmd, flag)
		}
	}
	assert.NotNil(t, summaryCmd.Flags().Lookup("granularity"))
	assert.NotNil(t, loadCmd.Flags().Lookup("format"))
}

func TestNewTableQuery(t *testing.T) {
	q, err := newTableQuery(true, false, "2025-06-01", "2025-06-30", true)
	require.NoError(t, err)
	assert.True(t, q.Load.IncludeAnalysts)
	assert.False(t, q.Load.LatestOnly)
	assert.True(t, q.OmitPending)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), q.From)

	_, err = newTableQuery(false, false, "06/01/2025", "", false)
	assert.Error(t, err)
	_, err = newTableQuery(false, false, "2025-06-30", "2025-06-01", false)
	assert.Error(t, err)

	q, err = newTableQuery(false, true, "", "", false)
	require.NoError(t, err)
	assert.True(t, q.From.IsZero())
	assert.True(t, q.To.IsZero())
}

func TestParseBool(t *testing.T) {
	b, err := parseBool("")
	require.NoError(t, err)
	assert.False(t, b)

	b, err = parseBool("1")
	require.NoError(t, err)
	assert.True(t, b)

	_, err = parseBool("yes please")
	assert.Error(t, err)
}

func TestPipelineOptions(t *testing.T) {
	c := &config.Config{}
	c.Drive.RootFolderID = "root"
	c.Drive.UpdatedFolderID = "upd"
	c.Drive.SheetIDs = []string{"s1", "s2"}
	c.Drive.ExportFormat = "xlsx"
	c.Freshness = config.FreshnessConfig{Cutoff: "09:15", Timezone: "America/Santiago", Prefix: "E"}
	c.Pipeline.TempDir = "tmp"

	opts, err := pipelineOptions(c)
	require.NoError(t, err)
	assert.Equal(t, "root", opts.RootFolderID)
	assert.Equal(t, []string{"s1", "s2"}, opts.SheetIDs)
	assert.Equal(t, pipeline.FormatXLSX, opts.ExportFormat)
	assert.Equal(t, freshness.Cutoff{Hour: 9, Minute: 15}, opts.Cutoff)
	assert.Equal(t, "America/Santiago", opts.Location.String())
	assert.Equal(t, "tmp", opts.TempDir)
	assert.Equal(t, []string{"FINISHED", "CREATED"}, opts.ExcludedStatuses, "defaults kept")
	assert.Equal(t, "producdigitalriesgo", opts.ProductUser)

	c.Freshness.Timezone = "Nowhere/Land"
	_, err = pipelineOptions(c)
	assert.Error(t, err)
}

func TestInitNormalizer(t *testing.T) {
	n, err := initNormalizer("")
	require.NoError(t, err)
	assert.Equal(t, model.CategoryApproved, n.Normalize("APROBADO_100"))

	path := filepath.Join(t.TempDir(), "synonyms.yaml")
	require.NoError(t, os.WriteFile(path, []byte("Rechazado:\n  - no aprobado\n"), 0o644))
	n, err = initNormalizer(path)
	require.NoError(t, err)
	assert.Equal(t, model.CategoryRejected, n.Normalize("No Aprobado"))

	_, err = initNormalizer(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestWriteResult(t *testing.T) {
	res := &pipeline.Result{
		Status: model.LoadStatusOK,
		Records: []model.EvaluationRecord{
			{SubjectID: "A", Category: model.CategoryApproved, CreatedAt: time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC)},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, writeResult(&buf, res, "csv"))
	assert.Contains(t, buf.String(), "subject_id,resolucion_riesgo,fecha_creacion")
	assert.Contains(t, buf.String(), "A,Aprobado,2025-06-01T11:00:00Z")

	buf.Reset()
	require.NoError(t, writeResult(&buf, res, "json"))
	assert.Contains(t, buf.String(), `"status": "ok"`)

	assert.Error(t, writeResult(&buf, res, "parquet"))
}

func TestFormatRunsList(t *testing.T) {
	start := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	runs := []store.RunLog{
		{
			ID:         "abc12345-6789-0000-0000-000000000000",
			Command:    "load",
			Status:     model.LoadStatusOK,
			Action:     "reuse",
			Rows:       120,
			CacheHit:   true,
			StartedAt:  start,
			FinishedAt: start.Add(1500 * time.Millisecond),
		},
		{
			ID:         "def12345",
			Command:    "api:summary",
			Status:     model.LoadStatusFailed,
			Error:      "schema violation in export.csv: missing column(s) manualEvaluationUpdatedDate, resolution",
			StartedAt:  start,
			FinishedAt: start,
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "COMMAND")
	assert.Contains(t, output, "abc12345")
	assert.NotContains(t, output, "abc12345-6789")
	assert.Contains(t, output, "reuse")
	assert.Contains(t, output, "hit")
	assert.Contains(t, output, "1.5s")
	assert.Contains(t, output, "2025-06-15 10:30")
	assert.Contains(t, output, "...")
}

func TestFormatSummary(t *testing.T) {
	periods, err := pipeline.PartitionByPeriod([]model.EvaluationRecord{
		{SubjectID: "a", Category: model.CategoryApproved, CreatedAt: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)},
		{SubjectID: "b", Category: model.CategoryRejected, CreatedAt: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)},
	}, pipeline.GranularityMonth, time.UTC)
	require.NoError(t, err)

	var buf bytes.Buffer
	formatSummary(&buf, periods)
	assert.Contains(t, buf.String(), "PERIOD")
	assert.Contains(t, buf.String(), "Aprobado con propuesta")
	assert.Contains(t, buf.String(), "2025-06")
	assert.Contains(t, buf.String(), "1 (50.0%)")
}

func TestFormatTrend(t *testing.T) {
	v := 2.5
	var buf bytes.Buffer
	formatTrend(&buf, pipeline.TrendSeries{Points: []pipeline.TrendPoint{
		{Day: "2025-06-01", Count: 3},
		{Day: "2025-06-02", Count: 2, Trend: &v},
	}})
	assert.Regexp(t, `2025-06-01\s+3\s+-`, buf.String())
	assert.Contains(t, buf.String(), "2.50")
}

func TestFormatHandoff(t *testing.T) {
	rep := pipeline.Handoff([]pipeline.HandoffRow{
		{Username: "producdigitalriesgo", Name: "APROBADO_100", Count: 1, Month: "2025-06"},
		{Username: "x", Name: "RECHAZADO", Count: 3, Month: "2025-06"},
	}, "producdigitalriesgo", "", nil)

	var buf bytes.Buffer
	formatHandoff(&buf, rep)
	assert.Contains(t, buf.String(), "PRODUCT_SHARE")
	assert.Contains(t, buf.String(), "25.0%")
	assert.Contains(t, buf.String(), "Resolutions in 2025-06")
	assert.Contains(t, buf.String(), "Rechazado")
}
