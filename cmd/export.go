package main

import (
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/risk-dashboard/internal/db"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the unified table to a Postgres reporting table",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		q, err := tableQueryFromFlags(cmd)
		if err != nil {
			return err
		}
		mode := db.ExportMode(cfg.Export.Mode)
		if m, _ := cmd.Flags().GetString("mode"); m != "" {
			mode = db.ExportMode(m)
		}
		table := cfg.Export.Table
		if t, _ := cmd.Flags().GetString("table"); t != "" {
			table = t
		}

		env, err := initPipeline(ctx, "export")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := loadTable(ctx, env.Pipeline, env.Store, "export", q)
		if err != nil {
			return eris.Wrap(err, "export")
		}

		pool, err := pgxpool.New(ctx, cfg.ExportDatabaseURL())
		if err != nil {
			return eris.Wrap(err, "export: connect")
		}
		defer pool.Close()

		if err := db.EnsureTable(ctx, pool, table); err != nil {
			return err
		}
		n, err := db.ExportRecords(ctx, pool, table, mode, res.Records)
		if err != nil {
			return err
		}

		zap.L().Info("export complete",
			zap.String("table", table),
			zap.String("mode", string(mode)),
			zap.Int64("rows", n),
			zap.String("status", string(res.Status)),
		)
		fmt.Fprintf(os.Stderr, "exported %d rows to %s (status=%s)\n", n, table, res.Status)
		return nil
	},
}

func init() {
	addTableFlags(exportCmd)
	exportCmd.Flags().String("table", "", "target table (default from config)")
	exportCmd.Flags().String("mode", "", "replace or upsert (default from config)")
	rootCmd.AddCommand(exportCmd)
}
