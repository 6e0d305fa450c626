package fetcher

import "strings"

// Table is a header plus string rows, as read from a CSV or sheet export.
type Table struct {
	Header []string
	Rows   [][]string
}

// Index returns the position of the first header matching any alias,
// compared case-insensitively after trimming. Returns -1 if none match.
func (t *Table) Index(aliases ...string) int {
	for _, alias := range aliases {
		want := strings.ToLower(strings.TrimSpace(alias))
		for i, h := range t.Header {
			if strings.ToLower(strings.TrimSpace(h)) == want {
				return i
			}
		}
	}
	return -1
}

// Has reports whether any alias is present in the header.
func (t *Table) Has(aliases ...string) bool {
	return t.Index(aliases...) >= 0
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Cell returns row[i] or "" when the row is short or i is negative.
func Cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// Concat appends the rows of others onto t, aligning columns by header name.
// Columns unknown to t are appended to its header.
func (t *Table) Concat(others ...*Table) *Table {
	out := &Table{Header: append([]string(nil), t.Header...)}
	out.Rows = append(out.Rows, t.Rows...)
	for _, o := range others {
		if o == nil {
			continue
		}
		mapping := make([]int, len(o.Header))
		for i, h := range o.Header {
			idx := out.Index(h)
			if idx < 0 {
				out.Header = append(out.Header, h)
				idx = len(out.Header) - 1
			}
			mapping[i] = idx
		}
		for _, row := range o.Rows {
			aligned := make([]string, len(out.Header))
			for i, v := range row {
				if i < len(mapping) {
					aligned[mapping[i]] = v
				}
			}
			out.Rows = append(out.Rows, aligned)
		}
	}
	return out
}
