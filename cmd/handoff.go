package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/risk-dashboard/internal/pipeline"
)

var handoffCmd = &cobra.Command{
	Use:   "handoff",
	Short: "Monitor the handoff of evaluations from One to the product team",
	RunE: func(cmd *cobra.Command, _ []string) error {
		month, _ := cmd.Flags().GetString("month")

		env, err := initPipeline(cmd.Context(), "handoff")
		if err != nil {
			return err
		}
		defer env.Close()

		rep, err := env.Pipeline.FetchHandoff(cmd.Context(), month)
		if err != nil {
			return err
		}
		formatHandoff(os.Stdout, rep)
		return nil
	},
}

func formatHandoff(out io.Writer, rep pipeline.HandoffReport) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "MONTH\tPRODUCTO\tONE\tTOTAL\tPRODUCT_SHARE")
	for _, m := range rep.Months {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%.1f%%\n", m.Month, m.Product, m.One, m.Total, m.ProductShare)
	}
	t := rep.Totals
	_, _ = fmt.Fprintf(w, "ALL\t%d\t%d\t%d\t%.1f%%\n", t.Product, t.One, t.Total, t.ProductShare)
	_ = w.Flush()

	if rep.Selected == "" {
		return
	}
	_, _ = fmt.Fprintf(out, "\nResolutions in %s\n", rep.Selected)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CHANNEL\tRESOLUTION\tCOUNT\tSHARE")
	for _, b := range rep.Breakdown {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%.1f%%\n", b.Channel, b.Category, b.Count, b.Percent)
	}
	_ = w.Flush()
}

func init() {
	handoffCmd.Flags().String("month", "", "month to break down (YYYY-MM, default latest)")
	rootCmd.AddCommand(handoffCmd)
}
