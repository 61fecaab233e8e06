package domain

import "time"

// DateLayout is the ISO calendar date format used for record keys.
const DateLayout = "2006-01-02"

// SyncOutcome describes how a synchronization request ended.
type SyncOutcome string

const (
	OutcomeAbsent            SyncOutcome = "ABSENT"             // No local baseline exists
	OutcomeUpToDate          SyncOutcome = "UP_TO_DATE"         // Nothing to fetch or nothing new returned
	OutcomeUpdated           SyncOutcome = "UPDATED"            // Missing tail fetched and persisted
	OutcomeSourceUnavailable SyncOutcome = "SOURCE_UNAVAILABLE" // Remote failed, local record unchanged
	OutcomeCorruptAppend     SyncOutcome = "CORRUPT_APPEND"     // Fetched data failed integrity checks, local record unchanged
)

// Day truncates t to its calendar date in loc and returns it as midnight UTC.
// Two instants fall on the same market day iff their Day values are equal.
func Day(t time.Time, loc *time.Location) time.Time {
	if loc != nil {
		t = t.In(loc)
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses an ISO date (YYYY-MM-DD) into midnight UTC.
func ParseDay(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// NextDay returns the calendar day after d.
func NextDay(d time.Time) time.Time {
	return d.AddDate(0, 0, 1)
}
