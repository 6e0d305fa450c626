package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/risk-dashboard/internal/fetcher"
	"github.com/sells-group/risk-dashboard/internal/pipeline"
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Build the unified evaluation table",
	Long:  "Fetches the historical and same-day partitions, merges them and writes the table as canonical CSV or JSON.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		q, err := tableQueryFromFlags(cmd)
		if err != nil {
			return err
		}
		q.Load.NoCache, _ = cmd.Flags().GetBool("no-cache")
		format, _ := cmd.Flags().GetString("format")

		env, err := initPipeline(ctx, "load")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := loadTable(ctx, env.Pipeline, env.Store, "load", q)
		if err != nil {
			return eris.Wrap(err, "load")
		}

		fmt.Fprintf(os.Stderr, "status=%s rows=%d cache_hit=%t\n", res.Status, len(res.Records), res.CacheHit)
		return writeResult(os.Stdout, res, format)
	},
}

func writeResult(w io.Writer, res *pipeline.Result, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	case "csv", "":
		return fetcher.WriteRecords(w, res.Records)
	default:
		return eris.Errorf("unsupported format %q (csv or json)", format)
	}
}

// addTableFlags registers the flags shared by commands that load the table.
func addTableFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("analysts", false, "attach the assigned risk analyst (extra fetch)")
	cmd.Flags().Bool("latest", false, "keep only the latest evaluation per subject")
	cmd.Flags().String("from", "", "first local day to include (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "last local day to include (YYYY-MM-DD)")
	cmd.Flags().Bool("omit-pending", false, "drop evaluations still pending a resolution")
}

func tableQueryFromFlags(cmd *cobra.Command) (tableQuery, error) {
	analysts, _ := cmd.Flags().GetBool("analysts")
	latest, _ := cmd.Flags().GetBool("latest")
	from, _ := cmd.Flags().GetString("from")
	to, _ := cmd.Flags().GetString("to")
	omit, _ := cmd.Flags().GetBool("omit-pending")
	return newTableQuery(analysts, latest, from, to, omit)
}

func init() {
	addTableFlags(loadCmd)
	loadCmd.Flags().Bool("no-cache", false, "ignore cached results")
	loadCmd.Flags().String("format", "csv", "output format (csv, json)")
	rootCmd.AddCommand(loadCmd)
}
