package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/risk-dashboard/internal/category"
	"github.com/sells-group/risk-dashboard/internal/config"
	"github.com/sells-group/risk-dashboard/internal/pipeline"
	"github.com/sells-group/risk-dashboard/internal/resilience"
	"github.com/sells-group/risk-dashboard/internal/store"
	"github.com/sells-group/risk-dashboard/pkg/drive"
)

// pipelineEnv holds the store and the pipeline needed by the data
// commands.
type pipelineEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline validates the config for command, opens the store, connects
// to the remote store and builds the Pipeline. An unreachable remote store
// is not fatal: the pipeline falls back to local artifacts. Callers should
// defer env.Close().
func initPipeline(ctx context.Context, command string) (*pipelineEnv, error) {
	if err := cfg.Validate(command); err != nil {
		return nil, err
	}

	opts, err := pipelineOptions(cfg)
	if err != nil {
		return nil, err
	}
	norm, err := initNormalizer(cfg.Pipeline.SynonymsFile)
	if err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	client, err := initDrive(ctx)
	if err != nil {
		zap.L().Warn("remote store unavailable, continuing with local artifacts", zap.Error(err))
		client = nil
	}

	p := pipeline.New(client, norm, opts).WithCache(st)
	return &pipelineEnv{Store: st, Pipeline: p}, nil
}

// pipelineOptions maps configuration onto pipeline options.
func pipelineOptions(c *config.Config) (pipeline.Options, error) {
	loc, err := c.Freshness.Location()
	if err != nil {
		return pipeline.Options{}, err
	}
	cutoff, err := c.Freshness.CutoffTime()
	if err != nil {
		return pipeline.Options{}, err
	}

	opts := pipeline.DefaultOptions()
	opts.RootFolderID = c.Drive.RootFolderID
	opts.UpdatedFolderID = c.Drive.UpdatedFolderID
	opts.SheetIDs = c.Drive.SheetIDs
	opts.HandoffSheetID = c.Drive.HandoffSheetID
	opts.ExportFormat = c.Drive.ExportFormat
	opts.Prefix = c.Freshness.Prefix
	opts.Cutoff = cutoff
	opts.Location = loc
	if c.Pipeline.TempDir != "" {
		opts.TempDir = c.Pipeline.TempDir
	}
	if len(c.Pipeline.ExcludedStatuses) > 0 {
		opts.ExcludedStatuses = c.Pipeline.ExcludedStatuses
	}
	if c.Pipeline.ProductUser != "" {
		opts.ProductUser = c.Pipeline.ProductUser
	}
	return opts, nil
}

func initNormalizer(synonymsFile string) (*category.Normalizer, error) {
	if synonymsFile == "" {
		return category.MustDefault(), nil
	}
	extra, err := category.LoadSynonyms(synonymsFile)
	if err != nil {
		return nil, err
	}
	return category.New(extra)
}

func initDrive(ctx context.Context) (drive.Client, error) {
	switch cfg.Drive.Mode {
	case "local":
		return drive.NewLocal(cfg.Drive.LocalRoot)
	default:
		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		return drive.Connect(ctx, drive.Options{
			CredentialsFile: cfg.Drive.CredentialsFile,
			RatePerSec:      cfg.Drive.RatePerSec,
			Retry:           resilience.FromConfig(cfg.Retry.MaxAttempts, cfg.Retry.InitialBackoffMs, cfg.Retry.MaxBackoffMs),
		})
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "risk-dashboard.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}
