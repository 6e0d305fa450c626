package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/risk-dashboard/internal/freshness"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "google", cfg.Drive.Mode)
	assert.Equal(t, "csv", cfg.Drive.ExportFormat)
	assert.InDelta(t, 5.0, cfg.Drive.RatePerSec, 0.001)
	assert.Equal(t, "10:00", cfg.Freshness.Cutoff)
	assert.Equal(t, "America/Santiago", cfg.Freshness.Timezone)
	assert.Equal(t, "manual_evaluations", cfg.Freshness.Prefix)
	assert.Equal(t, "temp_archives", cfg.Pipeline.TempDir)
	assert.Equal(t, []string{"FINISHED", "CREATED"}, cfg.Pipeline.ExcludedStatuses)
	assert.Equal(t, "producdigitalriesgo", cfg.Pipeline.ProductUser)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "risk.evaluations", cfg.Export.Table)
	assert.Equal(t, "replace", cfg.Export.Mode)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
drive:
  root_folder_id: root-1
  updated_folder_id: upd-1
  sheet_ids: [s1, s2]
freshness:
  cutoff: "09:30"
store:
  driver: postgres
log:
  level: debug
  format: console
server:
  port: 9090
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "root-1", cfg.Drive.RootFolderID)
	assert.Equal(t, []string{"s1", "s2"}, cfg.Drive.SheetIDs)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)

	cutoff, err := cfg.Freshness.CutoffTime()
	require.NoError(t, err)
	assert.Equal(t, freshness.Cutoff{Hour: 9, Minute: 30}, cutoff)
	// Defaults still apply for unset values
	assert.Equal(t, "temp_archives", cfg.Pipeline.TempDir)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("RISKDASH_STORE_DRIVER", "sqlite")
	t.Setenv("RISKDASH_LOG_LEVEL", "warn")
	t.Setenv("RISKDASH_FRESHNESS_TIMEZONE", "UTC")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "UTC", cfg.Freshness.Timezone)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("drive: [unclosed"), 0o644))

	_, err := Load()
	assert.Error(t, err)
}

func TestFreshnessLocation(t *testing.T) {
	loc, err := FreshnessConfig{Timezone: "America/Santiago"}.Location()
	require.NoError(t, err)
	assert.Equal(t, "America/Santiago", loc.String())

	_, err = FreshnessConfig{Timezone: "Mars/Olympus"}.Location()
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Drive.Mode = "google"
	cfg.Drive.ExportFormat = "csv"
	cfg.Drive.RootFolderID = "root"
	cfg.Drive.UpdatedFolderID = "updated"
	cfg.Freshness = FreshnessConfig{Cutoff: "10:00", Timezone: "America/Santiago", Prefix: "manual_evaluations"}
	cfg.Store.Driver = "sqlite"
	cfg.Export.Table = "risk.evaluations"
	cfg.Server.Port = 8080
	return cfg
}

func TestValidate_Load(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("load"))

	cfg := validDefaults()
	cfg.Drive.RootFolderID = ""
	cfg.Freshness.Cutoff = "25:00"
	err := cfg.Validate("load")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "drive.root_folder_id is required")
	assert.Contains(t, err.Error(), "freshness.cutoff must be HH:MM")
}

func TestValidate_Handoff(t *testing.T) {
	err := validDefaults().Validate("handoff")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "drive.handoff_sheet_id")
}

func TestValidate_ServePort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0
	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
}

func TestValidate_Export(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("export")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "export.database_url")

	cfg.Store.Driver = "postgres"
	cfg.Store.DatabaseURL = "postgres://localhost/risk"
	assert.NoError(t, cfg.Validate("export"))
	assert.Equal(t, "postgres://localhost/risk", cfg.ExportDatabaseURL())
}

func TestValidate_ExportFormat(t *testing.T) {
	cfg := validDefaults()
	cfg.Drive.ExportFormat = "ods"
	err := cfg.Validate("runs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "drive.export_format")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}
