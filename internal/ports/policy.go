package ports

import "time"

// FreshnessPolicy decides whether a local record is worth updating from the remote source.
type FreshnessPolicy interface {
	// Today returns the current calendar day, midnight UTC, as seen by the policy's market.
	Today(now time.Time) time.Time
	// ShouldUpdate reports whether a record whose last date is last may be extended at now.
	ShouldUpdate(last, now time.Time) bool
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}
