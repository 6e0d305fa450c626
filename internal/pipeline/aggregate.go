package pipeline

import (
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/risk-dashboard/internal/model"
)

// Granularity selects how PartitionByPeriod buckets records.
type Granularity string

const (
	GranularityMonth Granularity = "month" // YYYY-MM
	GranularityDay   Granularity = "day"   // YYYY-MM-DD
	GranularityHour  Granularity = "hour"  // hour of day, 00..23
)

// ParseGranularity accepts month, day or hour in any case.
func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(strings.ToLower(strings.TrimSpace(s))); g {
	case GranularityMonth, GranularityDay, GranularityHour:
		return g, nil
	default:
		return "", eris.Errorf("pipeline: unknown granularity %q", s)
	}
}

func (g Granularity) key(t time.Time) string {
	switch g {
	case GranularityMonth:
		return t.Format("2006-01")
	case GranularityHour:
		return t.Format("15")
	default:
		return t.Format("2006-01-02")
	}
}

// CategoryCount is one category's share of a period.
type CategoryCount struct {
	Category model.Category `json:"category"`
	Count    int            `json:"count"`
	Percent  float64        `json:"percent"`
}

// PeriodSummary aggregates one period. Categories lists every canonical
// category in display order, including zero counts.
type PeriodSummary struct {
	Period     string          `json:"period"`
	Total      int             `json:"total"`
	Categories []CategoryCount `json:"categories"`
}

// Count returns the count for c, or 0.
func (s PeriodSummary) Count(c model.Category) int {
	for _, cc := range s.Categories {
		if cc.Category == c {
			return cc.Count
		}
	}
	return 0
}

// PartitionByPeriod groups records by local period and counts categories.
// Periods are sorted ascending. Percentages are of the period total.
func PartitionByPeriod(records []model.EvaluationRecord, g Granularity, loc *time.Location) ([]PeriodSummary, error) {
	if _, err := ParseGranularity(string(g)); err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}

	counts := map[string]map[model.Category]int{}
	for _, r := range records {
		if !r.Category.IsCanonical() {
			return nil, eris.Errorf("pipeline: non-canonical category %q for subject %s", r.Category, r.SubjectID)
		}
		k := g.key(r.CreatedAt.In(loc))
		if counts[k] == nil {
			counts[k] = map[model.Category]int{}
		}
		counts[k][r.Category]++
	}

	periods := make([]string, 0, len(counts))
	for k := range counts {
		periods = append(periods, k)
	}
	sort.Strings(periods)

	out := make([]PeriodSummary, 0, len(periods))
	for _, k := range periods {
		s := PeriodSummary{Period: k}
		for _, n := range counts[k] {
			s.Total += n
		}
		for _, c := range model.Categories() {
			n := counts[k][c]
			s.Categories = append(s.Categories, CategoryCount{
				Category: c,
				Count:    n,
				Percent:  percent(n, s.Total),
			})
		}
		out = append(out, s)
	}
	return out, nil
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) * 100 / float64(total)
}

// AnalystCount is the number of records handled by one analyst.
type AnalystCount struct {
	Analyst string `json:"analyst"`
	Count   int    `json:"count"`
}

// CountByAnalyst counts records per analyst, sorted by count descending then
// name ascending.
func CountByAnalyst(records []model.EvaluationRecord) []AnalystCount {
	counts := map[string]int{}
	for _, r := range records {
		a := r.Analyst
		if a == "" {
			a = model.AnalystUnknown
		}
		counts[a]++
	}
	out := make([]AnalystCount, 0, len(counts))
	for a, n := range counts {
		out = append(out, AnalystCount{Analyst: a, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Analyst < out[j].Analyst
	})
	return out
}
