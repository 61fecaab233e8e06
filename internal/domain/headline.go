package domain

import "time"

// HeadlineDay holds the headlines published on one archive day of a news feed.
type HeadlineDay struct {
	Date      time.Time
	Headlines []string
}

// Day returns the archive date.
func (h HeadlineDay) Day() time.Time {
	return h.Date
}
