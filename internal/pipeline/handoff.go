package pipeline

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/risk-dashboard/internal/category"
	"github.com/sells-group/risk-dashboard/internal/fetcher"
	"github.com/sells-group/risk-dashboard/internal/model"
)

// Handoff channels.
const (
	ChannelProduct = "Producto"
	ChannelOne     = "One"
)

var handoffCols = []string{"username", "name", "count", "mes"}

// HandoffRow is one line of the product handoff sheet: how many evaluations
// a user resolved with a given resolution in a month.
type HandoffRow struct {
	Username string
	Name     string
	Count    int
	Month    string
}

// HandoffMonth is the per-channel volume of one month.
type HandoffMonth struct {
	Month        string  `json:"month"`
	Product      int     `json:"producto"`
	One          int     `json:"one"`
	Total        int     `json:"total"`
	ProductShare float64 `json:"product_share"`
}

// HandoffBreakdown is the resolution mix of one channel in the selected
// month.
type HandoffBreakdown struct {
	Channel  string         `json:"channel"`
	Category model.Category `json:"category"`
	Count    int            `json:"count"`
	Percent  float64        `json:"percent"`
}

// HandoffReport summarizes the handoff of evaluations from One to the
// product team.
type HandoffReport struct {
	Months    []HandoffMonth     `json:"months"`
	Totals    HandoffMonth       `json:"totals"`
	Selected  string             `json:"selected_month,omitempty"`
	Breakdown []HandoffBreakdown `json:"breakdown"`
}

// ParseHandoff reads handoff rows. Rows with a non-numeric count are
// skipped.
func ParseHandoff(t *fetcher.Table) ([]HandoffRow, error) {
	if t == nil || t.Header == nil {
		return []HandoffRow{}, nil
	}
	var missing []string
	idx := make([]int, len(handoffCols))
	for i, c := range handoffCols {
		idx[i] = t.Index(c)
		if idx[i] < 0 {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, &fetcher.SchemaError{Source: "handoff sheet", Missing: missing}
	}

	out := make([]HandoffRow, 0, len(t.Rows))
	for _, row := range t.Rows {
		n, err := parseCount(fetcher.Cell(row, idx[2]))
		if err != nil {
			continue
		}
		out = append(out, HandoffRow{
			Username: fetcher.Cell(row, idx[0]),
			Name:     fetcher.Cell(row, idx[1]),
			Count:    n,
			Month:    fetcher.Cell(row, idx[3]),
		})
	}
	return out, nil
}

// parseCount accepts integers and the "12.0" form spreadsheets export.
func parseCount(s string) (int, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

// Handoff builds the monthly channel split and, for month (the latest month
// when empty), the resolution breakdown per channel.
func Handoff(rows []HandoffRow, productUser, month string, norm *category.Normalizer) HandoffReport {
	if norm == nil {
		norm = category.MustDefault()
	}
	channel := func(r HandoffRow) string {
		if r.Username == productUser {
			return ChannelProduct
		}
		return ChannelOne
	}

	byMonth := map[string]*HandoffMonth{}
	for _, r := range rows {
		m := byMonth[r.Month]
		if m == nil {
			m = &HandoffMonth{Month: r.Month}
			byMonth[r.Month] = m
		}
		if channel(r) == ChannelProduct {
			m.Product += r.Count
		} else {
			m.One += r.Count
		}
	}

	rep := HandoffReport{Months: []HandoffMonth{}, Breakdown: []HandoffBreakdown{}}
	months := make([]string, 0, len(byMonth))
	for k := range byMonth {
		months = append(months, k)
	}
	sort.Strings(months)
	for _, k := range months {
		m := byMonth[k]
		m.Total = m.Product + m.One
		m.ProductShare = percent(m.Product, m.Total)
		rep.Months = append(rep.Months, *m)

		rep.Totals.Product += m.Product
		rep.Totals.One += m.One
	}
	rep.Totals.Total = rep.Totals.Product + rep.Totals.One
	rep.Totals.ProductShare = percent(rep.Totals.Product, rep.Totals.Total)

	if month == "" && len(months) > 0 {
		month = months[len(months)-1]
	}
	if _, ok := byMonth[month]; !ok {
		return rep
	}
	rep.Selected = month

	counts := map[string]map[model.Category]int{}
	totals := map[string]int{}
	for _, r := range rows {
		if r.Month != month {
			continue
		}
		ch := channel(r)
		if counts[ch] == nil {
			counts[ch] = map[model.Category]int{}
		}
		counts[ch][norm.Normalize(r.Name)] += r.Count
		totals[ch] += r.Count
	}
	for _, ch := range []string{ChannelProduct, ChannelOne} {
		for _, c := range model.Categories() {
			n, ok := counts[ch][c]
			if !ok {
				continue
			}
			rep.Breakdown = append(rep.Breakdown, HandoffBreakdown{
				Channel:  ch,
				Category: c,
				Count:    n,
				Percent:  percent(n, totals[ch]),
			})
		}
	}
	return rep
}

// FetchHandoff exports the handoff sheet and builds the report for month.
func (p *Pipeline) FetchHandoff(ctx context.Context, month string) (HandoffReport, error) {
	if strings.TrimSpace(p.opts.HandoffSheetID) == "" {
		return HandoffReport{}, eris.New("pipeline: handoff sheet id not configured")
	}
	t, err := p.exportSheet(ctx, p.opts.HandoffSheetID)
	if err != nil {
		return HandoffReport{}, eris.Wrap(err, "pipeline: export handoff sheet")
	}
	rows, err := ParseHandoff(t)
	if err != nil {
		return HandoffReport{}, err
	}
	return Handoff(rows, p.opts.ProductUser, month, p.norm), nil
}
