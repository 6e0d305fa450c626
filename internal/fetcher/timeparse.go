package fetcher

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// zonedLayouts carry their own offset; naiveLayouts are read in the caller's
// location.
var (
	zonedLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02 15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05.999999999-0700",
		"2006-01-02T15:04:05.999999999-0700",
	}
	naiveLayouts = []string{
		"2006-01-02T15:04:05.999999999",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02 15:04",
		"2006-01-02",
		"02/01/2006 15:04:05",
		"02/01/2006",
	}
)

// ParseTime parses the timestamp spellings found in exports and Drive
// metadata (ISO 8601 with "Z" or an offset, pandas' "+00:00" form, or naive
// local times) and returns the instant in UTC. Naive values are interpreted
// in loc; a nil loc means UTC.
func ParseTime(raw string, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" || strings.EqualFold(s, "nat") || strings.EqualFold(s, "nan") {
		return time.Time{}, eris.Errorf("time: empty timestamp %q", raw)
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, eris.Errorf("time: unrecognized timestamp %q", raw)
}
