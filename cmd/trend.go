package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/risk-dashboard/internal/pipeline"
)

var trendCmd = &cobra.Command{
	Use:   "trend",
	Short: "Daily evaluation volume with its trend component",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		q, err := tableQueryFromFlags(cmd)
		if err != nil {
			return err
		}

		env, err := initPipeline(ctx, "trend")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := loadTable(ctx, env.Pipeline, env.Store, "trend", q)
		if err != nil {
			return eris.Wrap(err, "trend")
		}

		ts := pipeline.DailyTrend(res.Records, env.Pipeline.Location())
		if !ts.Sufficient {
			fmt.Fprintf(os.Stderr, "not enough days for a trend (need %d)\n", 2*ts.Period)
		}
		formatTrend(os.Stdout, ts)
		return nil
	},
}

func formatTrend(out io.Writer, ts pipeline.TrendSeries) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DAY\tCOUNT\tTREND")
	for _, p := range ts.Points {
		trend := "-"
		if p.Trend != nil {
			trend = fmt.Sprintf("%.2f", *p.Trend)
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\n", p.Day, p.Count, trend)
	}
	_ = w.Flush()
}

func init() {
	addTableFlags(trendCmd)
	rootCmd.AddCommand(trendCmd)
}
