package models

import "time"

// Status is the lifecycle state of an activity. It is never stored; it is
// derived from the clock and the activity's two timestamps.
type Status string

const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
	StatusEnded   Status = "ended"
)

// TimePrecision is the resolution kept for every stored timestamp. It matches
// the coarsest store (BSON datetimes hold milliseconds).
const TimePrecision = time.Millisecond

// StoredTime normalizes t to UTC at TimePrecision.
func StoredTime(t time.Time) time.Time {
	return t.UTC().Truncate(TimePrecision)
}

// ParseStatus maps a user supplied status name to a Status.
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusPending, StatusActive, StatusEnded:
		return Status(s), true
	}
	return "", false
}

// Priority orders statuses for listings: active first, then pending, then ended.
func (s Status) Priority() int {
	switch s {
	case StatusActive:
		return 0
	case StatusPending:
		return 1
	default:
		return 2
	}
}

// StatusAt computes the status of a [start, end] window at now.
// Unusable timestamps (zero, or start not before end) report StatusEnded so a
// corrupted activity can never accept participation.
func StatusAt(start, end, now time.Time) Status {
	if start.IsZero() || end.IsZero() || !start.Before(end) {
		return StatusEnded
	}
	switch {
	case now.Before(start):
		return StatusPending
	case now.After(end):
		return StatusEnded
	default:
		return StatusActive
	}
}
