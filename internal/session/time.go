package session

import "time"

const isoLayout = "2006-01-02T15:04:05Z07:00"

// ParseTime parses the timestamp shapes the agent stores actually write:
// RFC3339, RFC3339 with fractional seconds, and naive ISO-8601 without a
// zone. Returns the zero time when nothing matches.
func ParseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
		return t
	}
	return time.Time{}
}

// FromEpoch converts a numeric timestamp to a time. Values above 1e12 are
// epoch milliseconds, anything else epoch seconds.
func FromEpoch(v float64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	if v > 1e12 {
		return time.UnixMilli(int64(v))
	}
	return time.Unix(int64(v), 0)
}

// FromMillis converts integer Unix-epoch milliseconds, the opencode
// convention, to a time.
func FromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// ISO formats a time as a second-precision ISO-8601 string for export,
// with a Z suffix for UTC. Returns nil for the zero time so absent
// timestamps serialize as JSON null.
func ISO(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := t.Truncate(time.Second).Format(isoLayout)
	return &s
}
