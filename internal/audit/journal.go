// Package audit keeps the journal of authorization verdicts and override
// requests, and summarises it for analytics.
package audit

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/guardian-card/guardian-core/internal/model"
)

// Store persists journal entries.
type Store interface {
	AppendAudit(ctx context.Context, ev model.AuditEvent) error
	ListAudit(ctx context.Context, userID string, from, to time.Time) ([]model.AuditEvent, error)
}

// Range is a half-open reporting window [Start, End).
type Range struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Summary aggregates authorization outcomes over a range.
type Summary struct {
	Range         Range   `json:"range"`
	AuthEvents    int     `json:"auth_events"`
	Approvals     int     `json:"approvals"`
	Declines      int     `json:"declines"`
	RiskyCount    int     `json:"risky_count"`
	OverrideCount int     `json:"override_count"`
	RiskyRate     float64 `json:"risky_rate"`
	OverrideRate  float64 `json:"override_rate"`
}

// Option configures a Journal.
type Option func(*Journal)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(j *Journal) { j.now = now }
}

// Journal appends and summarises audit events.
type Journal struct {
	store Store
	now   func() time.Time
}

// NewJournal creates a Journal.
func NewJournal(store Store, opts ...Option) *Journal {
	j := &Journal{store: store, now: time.Now}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Record assigns an ID and timestamp when missing and appends ev.
func (j *Journal) Record(ctx context.Context, ev model.AuditEvent) (model.AuditEvent, error) {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = j.now().UTC()
	}
	if err := j.store.AppendAudit(ctx, ev); err != nil {
		return model.AuditEvent{}, eris.Wrap(err, "audit: append")
	}
	return ev, nil
}

// RangeBounds resolves a named range ending now: 7d, 30d, 90d or mtd
// (month to date, UTC). Anything else is treated as 30d.
func RangeBounds(name string, now time.Time) Range {
	now = now.UTC()
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "7d":
		return Range{Start: now.AddDate(0, 0, -7), End: now}
	case "90d":
		return Range{Start: now.AddDate(0, 0, -90), End: now}
	case "mtd":
		return Range{Start: time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC), End: now}
	default:
		return Range{Start: now.AddDate(0, 0, -30), End: now}
	}
}

// Summarize counts authorize and decline events in the named range. The
// risky and override rates are shares of those events; both are zero when
// there are none.
func (j *Journal) Summarize(ctx context.Context, userID, rangeName string) (Summary, error) {
	r := RangeBounds(rangeName, j.now())
	events, err := j.store.ListAudit(ctx, userID, r.Start, r.End)
	if err != nil {
		return Summary{}, eris.Wrap(err, "audit: list")
	}

	s := Summary{Range: r}
	for _, ev := range events {
		switch ev.EventType {
		case model.AuditAuthorize:
			s.Approvals++
		case model.AuditDecline:
			s.Declines++
		default:
			continue
		}
		s.AuthEvents++
		switch ev.Reason {
		case model.ReasonRisky:
			s.RiskyCount++
		case model.ReasonOverride:
			s.OverrideCount++
		}
	}
	if s.AuthEvents > 0 {
		s.RiskyRate = float64(s.RiskyCount) / float64(s.AuthEvents)
		s.OverrideRate = float64(s.OverrideCount) / float64(s.AuthEvents)
	}
	return s, nil
}

// Overrides lists explicit override requests in the named range, newest
// first, capped at limit when limit > 0.
func (j *Journal) Overrides(ctx context.Context, userID, rangeName string, limit int) ([]model.AuditEvent, error) {
	r := RangeBounds(rangeName, j.now())
	events, err := j.store.ListAudit(ctx, userID, r.Start, r.End)
	if err != nil {
		return nil, eris.Wrap(err, "audit: list")
	}
	out := make([]model.AuditEvent, 0, len(events))
	for _, ev := range events {
		if ev.EventType == model.AuditOverride {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Timestamp.After(out[b].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
