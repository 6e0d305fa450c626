// Package freshness decides whether today's daily artifact can be reused,
// must be regenerated, or does not exist yet.
package freshness

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/risk-dashboard/internal/fetcher"
	"github.com/sells-group/risk-dashboard/internal/model"
	"github.com/sells-group/risk-dashboard/pkg/drive"
)

// Action is what the caller must do to obtain today's artifact.
type Action string

const (
	ActionCreateNew  Action = "create_new"
	ActionReuse      Action = "reuse"
	ActionRegenerate Action = "regenerate_and_overwrite"
)

// Decision is the outcome of a freshness check. Artifact is set when an
// artifact with the expected name exists.
type Decision struct {
	Action       Action          `json:"action"`
	ExpectedName string          `json:"expected_name"`
	Artifact     *model.Artifact `json:"artifact,omitempty"`
	Reason       string          `json:"reason"`
	CheckedAt    time.Time       `json:"checked_at"`
	Err          string          `json:"error,omitempty"`
}

// Cutoff is a local time of day.
type Cutoff struct {
	Hour   int
	Minute int
}

// DefaultCutoff is 10:00, after the morning batch lands upstream.
var DefaultCutoff = Cutoff{Hour: 10}

// ParseCutoff parses "HH:MM".
func ParseCutoff(s string) (Cutoff, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return Cutoff{}, eris.Errorf("freshness: cutoff %q is not HH:MM", s)
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return Cutoff{}, eris.Errorf("freshness: invalid cutoff hour in %q", s)
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return Cutoff{}, eris.Errorf("freshness: invalid cutoff minute in %q", s)
	}
	return Cutoff{Hour: hour, Minute: minute}, nil
}

func (c Cutoff) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// On returns the cutoff instant on the local calendar day of t.
func (c Cutoff) On(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), c.Hour, c.Minute, 0, 0, loc)
}

// DayStart returns local midnight of the calendar day containing t.
func DayStart(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}

// DailyName returns "<prefix>_<YYYY-MM-DD>.csv" for the local day of t.
func DailyName(prefix string, t time.Time, loc *time.Location) string {
	return prefix + "_" + t.In(loc).Format("2006-01-02") + ".csv"
}

// ParseCreated parses a remote creation timestamp. Naive values are read
// in loc.
func ParseCreated(raw string, loc *time.Location) (time.Time, error) {
	return fetcher.ParseTime(raw, loc)
}

// Decide picks the action for expectedName among artifacts. It is pure:
// the same inputs always produce the same decision.
func Decide(artifacts []model.Artifact, expectedName string, now time.Time, cutoff Cutoff, loc *time.Location) Decision {
	d := Decision{ExpectedName: expectedName, CheckedAt: now.UTC()}

	found, ok := drive.FindByName(artifacts, expectedName)
	if !ok {
		d.Action = ActionCreateNew
		d.Reason = "no artifact named " + expectedName
		return d
	}
	d.Artifact = &found

	created := found.CreatedAt
	if created.IsZero() {
		t, err := ParseCreated(found.CreatedRaw, loc)
		if err != nil {
			d.Action = ActionRegenerate
			d.Reason = "creation time unparsable, treating as stale"
			return d
		}
		created = t
	}

	threshold := cutoff.On(now, loc)
	if !created.Before(threshold) {
		d.Action = ActionReuse
		d.Reason = "created at or after " + threshold.Format("2006-01-02 15:04 MST")
		return d
	}
	d.Action = ActionRegenerate
	d.Reason = "created before " + threshold.Format("2006-01-02 15:04 MST")
	return d
}

// NextRefresh returns the first cutoff instant strictly after now.
func NextRefresh(now time.Time, cutoff Cutoff, loc *time.Location) time.Time {
	next := cutoff.On(now, loc)
	if !next.After(now) {
		lt := now.In(loc)
		next = time.Date(lt.Year(), lt.Month(), lt.Day()+1, cutoff.Hour, cutoff.Minute, 0, 0, loc)
	}
	return next
}

// Resolver checks the daily artifact in one remote folder.
type Resolver struct {
	client   drive.Client
	folderID string
	prefix   string
	cutoff   Cutoff
	loc      *time.Location
}

// NewResolver returns a Resolver. A nil loc means UTC.
func NewResolver(client drive.Client, folderID, prefix string, cutoff Cutoff, loc *time.Location) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	return &Resolver{client: client, folderID: folderID, prefix: prefix, cutoff: cutoff, loc: loc}
}

// Location returns the location day boundaries are evaluated in.
func (r *Resolver) Location() *time.Location { return r.loc }

// Prefix returns the daily artifact name prefix.
func (r *Resolver) Prefix() string { return r.prefix }

// Cutoff returns the daily cutoff.
func (r *Resolver) Cutoff() Cutoff { return r.cutoff }

// FolderID returns the folder holding the daily artifacts.
func (r *Resolver) FolderID() string { return r.folderID }

// ExpectedName returns today's artifact name.
func (r *Resolver) ExpectedName(now time.Time) string {
	return DailyName(r.prefix, now, r.loc)
}

// TTL returns how long a result computed at now stays fresh.
func (r *Resolver) TTL(now time.Time) time.Duration {
	return NextRefresh(now, r.cutoff, r.loc).Sub(now)
}

// Resolve lists the folder and decides. A listing failure never escapes:
// it yields ActionCreateNew with the error recorded on the decision.
func (r *Resolver) Resolve(ctx context.Context, now time.Time) Decision {
	name := r.ExpectedName(now)
	log := zap.L().With(
		zap.String("component", "freshness"),
		zap.String("folder", r.folderID),
		zap.String("expected", name),
	)

	if r.client == nil {
		log.Warn("freshness: no remote client, creating new artifact")
		return Decision{
			Action:       ActionCreateNew,
			ExpectedName: name,
			CheckedAt:    now.UTC(),
			Reason:       "remote store unavailable",
			Err:          "no remote client",
		}
	}

	artifacts, err := r.client.List(ctx, r.folderID)
	if err != nil {
		log.Warn("freshness: list failed, creating new artifact", zap.Error(err))
		return Decision{
			Action:       ActionCreateNew,
			ExpectedName: name,
			CheckedAt:    now.UTC(),
			Reason:       "listing failed",
			Err:          err.Error(),
		}
	}

	d := Decide(artifacts, name, now, r.cutoff, r.loc)
	log.Info("freshness: decided", zap.String("action", string(d.Action)), zap.String("reason", d.Reason))
	return d
}
