package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/risk-dashboard/internal/freshness"
)

// Config holds the full application configuration.
type Config struct {
	Drive     DriveConfig     `yaml:"drive" mapstructure:"drive"`
	Freshness FreshnessConfig `yaml:"freshness" mapstructure:"freshness"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Export    ExportConfig    `yaml:"export" mapstructure:"export"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// DriveConfig locates the remote store and its folders. Mode "local" serves
// the same layout from LocalRoot.
type DriveConfig struct {
	Mode            string   `yaml:"mode" mapstructure:"mode"`
	CredentialsFile string   `yaml:"credentials_file" mapstructure:"credentials_file"`
	LocalRoot       string   `yaml:"local_root" mapstructure:"local_root"`
	RootFolderID    string   `yaml:"root_folder_id" mapstructure:"root_folder_id"`
	UpdatedFolderID string   `yaml:"updated_folder_id" mapstructure:"updated_folder_id"`
	SheetIDs        []string `yaml:"sheet_ids" mapstructure:"sheet_ids"`
	HandoffSheetID  string   `yaml:"handoff_sheet_id" mapstructure:"handoff_sheet_id"`
	ExportFormat    string   `yaml:"export_format" mapstructure:"export_format"`
	RatePerSec      float64  `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// FreshnessConfig configures the daily artifact policy.
type FreshnessConfig struct {
	Cutoff   string `yaml:"cutoff" mapstructure:"cutoff"`
	Timezone string `yaml:"timezone" mapstructure:"timezone"`
	Prefix   string `yaml:"prefix" mapstructure:"prefix"`
}

// PipelineConfig configures record processing.
type PipelineConfig struct {
	TempDir          string   `yaml:"temp_dir" mapstructure:"temp_dir"`
	ExcludedStatuses []string `yaml:"excluded_statuses" mapstructure:"excluded_statuses"`
	SynonymsFile     string   `yaml:"synonyms_file" mapstructure:"synonyms_file"`
	ProductUser      string   `yaml:"product_user" mapstructure:"product_user"`
}

// StoreConfig configures the cache and run log backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ExportConfig configures the Postgres reporting export.
type ExportConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Table       string `yaml:"table" mapstructure:"table"`
	Mode        string `yaml:"mode" mapstructure:"mode"`
}

// ServerConfig configures the dashboard API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// RetryConfig configures retries of remote store calls.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Location loads the configured timezone.
func (c FreshnessConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, eris.Wrapf(err, "config: load timezone %q", c.Timezone)
	}
	return loc, nil
}

// CutoffTime parses the configured cutoff.
func (c FreshnessConfig) CutoffTime() (freshness.Cutoff, error) {
	return freshness.ParseCutoff(c.Cutoff)
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RISKDASH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("drive.mode", "google")
	v.SetDefault("drive.credentials_file", "credentials_module.json")
	v.SetDefault("drive.local_root", "drive_local")
	v.SetDefault("drive.root_folder_id", "")
	v.SetDefault("drive.updated_folder_id", "")
	v.SetDefault("drive.sheet_ids", []string{})
	v.SetDefault("drive.handoff_sheet_id", "")
	v.SetDefault("drive.export_format", "csv")
	v.SetDefault("drive.rate_per_sec", 5.0)
	v.SetDefault("freshness.cutoff", "10:00")
	v.SetDefault("freshness.timezone", "America/Santiago")
	v.SetDefault("freshness.prefix", "manual_evaluations")
	v.SetDefault("pipeline.temp_dir", "temp_archives")
	v.SetDefault("pipeline.excluded_statuses", []string{"FINISHED", "CREATED"})
	v.SetDefault("pipeline.synonyms_file", "")
	v.SetDefault("pipeline.product_user", "producdigitalriesgo")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "risk-dashboard.db")
	v.SetDefault("export.database_url", "")
	v.SetDefault("export.table", "risk.evaluations")
	v.SetDefault("export.mode", "replace")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 10000)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings the named command depends on and reports
// every problem at once.
func (c *Config) Validate(command string) error {
	var errs []string
	need := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, msg)
		}
	}

	if _, err := c.Freshness.Location(); err != nil {
		errs = append(errs, "freshness.timezone is invalid")
	}
	if _, err := c.Freshness.CutoffTime(); err != nil {
		errs = append(errs, "freshness.cutoff must be HH:MM")
	}
	need(c.Freshness.Prefix != "", "freshness.prefix is required")
	need(c.Drive.ExportFormat == "csv" || c.Drive.ExportFormat == "xlsx", "drive.export_format must be csv or xlsx")
	need(c.Drive.Mode == "google" || c.Drive.Mode == "local", "drive.mode must be google or local")

	switch command {
	case "load", "summary", "trend", "serve", "export":
		need(c.Drive.RootFolderID != "", "drive.root_folder_id is required")
		need(c.Drive.UpdatedFolderID != "", "drive.updated_folder_id is required")
	case "freshness":
		need(c.Drive.UpdatedFolderID != "", "drive.updated_folder_id is required")
	case "handoff":
		need(c.Drive.HandoffSheetID != "", "drive.handoff_sheet_id is required")
	}
	switch command {
	case "serve":
		need(c.Server.Port > 0 && c.Server.Port <= 65535, "server.port must be between 1 and 65535")
	case "export":
		need(c.ExportDatabaseURL() != "",
			"export.database_url is required")
		need(c.Export.Table != "", "export.table is required")
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}

// ExportDatabaseURL returns the export database, falling back to the store
// database when the store is Postgres.
func (c *Config) ExportDatabaseURL() string {
	if c.Export.DatabaseURL != "" {
		return c.Export.DatabaseURL
	}
	if c.Store.Driver == "postgres" {
		return c.Store.DatabaseURL
	}
	return ""
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
