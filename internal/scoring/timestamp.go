package scoring

import (
	"strings"
	"time"

	"github.com/guardian-card/guardian-core/internal/model"
)

// Layouts accepted for zone-less timestamps, most specific first.
var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	time.DateOnly,
}

// ParseTimestamp parses an ISO-8601 timestamp. Values carrying an offset keep
// their own wall clock; values without one are read in loc.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, model.Invalid("timestamp is required")
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, model.Invalid("unparsable timestamp %q", s)
}

// CalendarFeatures returns hour of day and day of week with Monday = 0.
func CalendarFeatures(t time.Time) (hour, dow int) {
	return t.Hour(), (int(t.Weekday()) + 6) % 7
}
