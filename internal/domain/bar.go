package domain

import "time"

// Bar represents a single daily OHLCV observation.
type Bar struct {
	Date     time.Time // Trading day, midnight UTC
	Open     float64   // Opening price
	High     float64   // Highest price
	Low      float64   // Lowest price
	Close    float64   // Closing price
	AdjClose float64   // Close adjusted for splits and dividends (equals Close when the source has no adjustment)
	Volume   float64   // Traded volume
}

// Day returns the calendar date the bar belongs to.
func (b Bar) Day() time.Time {
	return b.Date
}
