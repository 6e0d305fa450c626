package pipeline

import (
	"sort"
	"time"

	"github.com/sells-group/risk-dashboard/internal/model"
)

const (
	trendPeriod  = 4
	trendMinDays = 2 * trendPeriod
)

// TrendPoint is one day of the daily series. Trend is nil where the moving
// average is undefined.
type TrendPoint struct {
	Day   string   `json:"day"`
	Count int      `json:"count"`
	Trend *float64 `json:"trend,omitempty"`
}

// TrendSeries is the daily evaluation count with its additive trend
// component.
type TrendSeries struct {
	Points     []TrendPoint `json:"points"`
	Sufficient bool         `json:"sufficient"`
	Period     int          `json:"period"`
}

// DailyTrend counts records per local day, zero-fills gaps between the first
// and last day, and, with at least two full periods of data, computes the
// trend as a centered 2x4 moving average.
func DailyTrend(records []model.EvaluationRecord, loc *time.Location) TrendSeries {
	if loc == nil {
		loc = time.UTC
	}
	ts := TrendSeries{Points: []TrendPoint{}, Period: trendPeriod}
	if len(records) == 0 {
		return ts
	}

	// Day keys are civil dates; stepping them in UTC avoids DST gaps.
	counts := map[string]int{}
	var days []time.Time
	for _, r := range records {
		l := r.CreatedAt.In(loc)
		d := time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, time.UTC)
		k := d.Format("2006-01-02")
		if _, ok := counts[k]; !ok {
			days = append(days, d)
		}
		counts[k]++
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	first, last := days[0], days[len(days)-1]
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		k := d.Format("2006-01-02")
		ts.Points = append(ts.Points, TrendPoint{Day: k, Count: counts[k]})
	}

	if len(ts.Points) < trendMinDays {
		return ts
	}
	ts.Sufficient = true

	x := make([]float64, len(ts.Points))
	for i, p := range ts.Points {
		x[i] = float64(p.Count)
	}
	half := trendPeriod / 2
	for t := half; t < len(x)-half; t++ {
		sum := 0.5*x[t-half] + 0.5*x[t+half]
		for k := t - half + 1; k < t+half; k++ {
			sum += x[k]
		}
		v := sum / trendPeriod
		ts.Points[t].Trend = &v
	}
	return ts
}
