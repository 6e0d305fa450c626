package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/risk-dashboard/internal/model"
)

func TestParseGranularity(t *testing.T) {
	for _, s := range []string{"month", "Day", " HOUR "} {
		_, err := ParseGranularity(s)
		assert.NoError(t, err, s)
	}
	_, err := ParseGranularity("week")
	assert.Error(t, err)
}

func TestPartitionByPeriod(t *testing.T) {
	recs := []model.EvaluationRecord{
		rec("a", model.CategoryApproved, time.Date(2025, 5, 30, 9, 0, 0, 0, time.UTC)),
		rec("b", model.CategoryApproved, time.Date(2025, 6, 1, 9, 15, 0, 0, time.UTC)),
		rec("c", model.CategoryRejected, time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC)),
		rec("d", model.CategoryRejected, time.Date(2025, 6, 2, 9, 45, 0, 0, time.UTC)),
		rec("e", model.CategoryPending, time.Date(2025, 6, 2, 9, 50, 0, 0, time.UTC)),
	}

	tests := []struct {
		name    string
		g       Granularity
		periods []string
		totals  []int
	}{
		{"month", GranularityMonth, []string{"2025-05", "2025-06"}, []int{1, 4}},
		{"day", GranularityDay, []string{"2025-05-30", "2025-06-01", "2025-06-02"}, []int{1, 2, 2}},
		{"hour", GranularityHour, []string{"09", "14"}, []int{4, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PartitionByPeriod(recs, tt.g, time.UTC)
			require.NoError(t, err)
			require.Len(t, got, len(tt.periods))
			for i, s := range got {
				assert.Equal(t, tt.periods[i], s.Period)
				assert.Equal(t, tt.totals[i], s.Total)
				assert.Len(t, s.Categories, len(model.Categories()))
			}
		})
	}

	june, err := PartitionByPeriod(recs, GranularityMonth, time.UTC)
	require.NoError(t, err)
	s := june[1]
	assert.Equal(t, 2, s.Count(model.CategoryRejected))
	assert.Equal(t, 0, s.Count(model.CategoryReturnedToSales))
	assert.Equal(t, model.CategoryUnknown, s.Categories[0].Category, "canonical display order")
	var pct float64
	for _, c := range s.Categories {
		pct += c.Percent
	}
	assert.InDelta(t, 100, pct, 1e-9)
	assert.InDelta(t, 50, s.Categories[4].Percent, 1e-9)
}

func TestPartitionByPeriod_LocalDays(t *testing.T) {
	loc, err := time.LoadLocation("America/Santiago")
	require.NoError(t, err)
	// 02:00 UTC on June 2 is June 1 in Santiago.
	recs := []model.EvaluationRecord{rec("a", model.CategoryApproved, time.Date(2025, 6, 2, 2, 0, 0, 0, time.UTC))}

	got, err := PartitionByPeriod(recs, GranularityDay, loc)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "2025-06-01", got[0].Period)
}

func TestPartitionByPeriod_Errors(t *testing.T) {
	at := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	_, err := PartitionByPeriod(nil, Granularity("week"), time.UTC)
	assert.Error(t, err)

	_, err = PartitionByPeriod([]model.EvaluationRecord{rec("a", "100% aprobado", at)}, GranularityDay, time.UTC)
	assert.Error(t, err)

	got, err := PartitionByPeriod(nil, GranularityDay, time.UTC)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCountByAnalyst(t *testing.T) {
	recs := []model.EvaluationRecord{
		{Analyst: "bea"}, {Analyst: "ana"}, {Analyst: "bea"}, {Analyst: "ana"}, {Analyst: "carla"}, {},
	}
	got := CountByAnalyst(recs)
	assert.Equal(t, []AnalystCount{
		{Analyst: "ana", Count: 2},
		{Analyst: "bea", Count: 2},
		{Analyst: model.AnalystUnknown, Count: 1},
		{Analyst: "carla", Count: 1},
	}, got)
}
