package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/risk-dashboard/internal/model"
	"github.com/sells-group/risk-dashboard/internal/pipeline"
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Count evaluations per period and resolution",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		gran, _ := cmd.Flags().GetString("granularity")
		g, err := pipeline.ParseGranularity(gran)
		if err != nil {
			return err
		}
		q, err := tableQueryFromFlags(cmd)
		if err != nil {
			return err
		}
		byAnalyst, _ := cmd.Flags().GetBool("by-analyst")
		if byAnalyst {
			q.Load.IncludeAnalysts = true
		}

		env, err := initPipeline(ctx, "summary")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := loadTable(ctx, env.Pipeline, env.Store, "summary", q)
		if err != nil {
			return eris.Wrap(err, "summary")
		}
		periods, err := pipeline.PartitionByPeriod(res.Records, g, env.Pipeline.Location())
		if err != nil {
			return eris.Wrap(err, "summary")
		}

		fmt.Fprintf(os.Stderr, "status=%s rows=%d\n", res.Status, len(res.Records))
		formatSummary(os.Stdout, periods)
		if byAnalyst {
			fmt.Fprintln(os.Stdout)
			formatAnalysts(os.Stdout, pipeline.CountByAnalyst(res.Records))
		}
		return nil
	},
}

// formatSummary writes one row per period with a count and percentage
// column per canonical category.
func formatSummary(out io.Writer, periods []pipeline.PeriodSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprint(w, "PERIOD\tTOTAL")
	for _, c := range model.Categories() {
		_, _ = fmt.Fprintf(w, "\t%s", c)
	}
	_, _ = fmt.Fprintln(w)

	for _, p := range periods {
		_, _ = fmt.Fprintf(w, "%s\t%d", p.Period, p.Total)
		for _, c := range p.Categories {
			_, _ = fmt.Fprintf(w, "\t%d (%.1f%%)", c.Count, c.Percent)
		}
		_, _ = fmt.Fprintln(w)
	}
	_ = w.Flush()
}

func formatAnalysts(out io.Writer, counts []pipeline.AnalystCount) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ANALYST\tEVALUATIONS")
	for _, a := range counts {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", a.Analyst, a.Count)
	}
	_ = w.Flush()
}

func init() {
	addTableFlags(summaryCmd)
	summaryCmd.Flags().String("granularity", "month", "period size (month, day, hour)")
	summaryCmd.Flags().Bool("by-analyst", false, "also count evaluations per analyst")
	rootCmd.AddCommand(summaryCmd)
}
