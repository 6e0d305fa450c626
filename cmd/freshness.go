package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/risk-dashboard/internal/freshness"
)

// freshnessReport is the decision plus when it will next change.
type freshnessReport struct {
	freshness.Decision
	Cutoff      string    `json:"cutoff"`
	Timezone    string    `json:"timezone"`
	NextRefresh time.Time `json:"next_refresh"`
}

func checkFreshness(ctx context.Context, r *freshness.Resolver, now time.Time) freshnessReport {
	d := r.Resolve(ctx, now)
	return freshnessReport{
		Decision:    d,
		Cutoff:      r.Cutoff().String(),
		Timezone:    r.Location().String(),
		NextRefresh: now.Add(r.TTL(now)).UTC(),
	}
}

var freshnessCmd = &cobra.Command{
	Use:   "freshness",
	Short: "Report whether today's daily artifact can be reused",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := initPipeline(cmd.Context(), "freshness")
		if err != nil {
			return err
		}
		defer env.Close()

		rep := checkFreshness(cmd.Context(), env.Pipeline.Resolver(), env.Pipeline.Now())
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	},
}

func init() {
	rootCmd.AddCommand(freshnessCmd)
}
