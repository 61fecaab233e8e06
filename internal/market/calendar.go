package market

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // Market zones must resolve on hosts without a zoneinfo database

	"stockSync/internal/domain"
)

// Config holds the market facts a Calendar needs.
type Config struct {
	Timezone string // IANA zone of the exchange, e.g. "America/New_York"
	Close    string // Market-close cutoff as HH:MM in the exchange zone
	AllDays  bool   // Treat every weekday, weekends included, as a publishing day
}

// Calendar decides whether "today" is settled for a market: it is a trading weekday and the
// close cutoff has passed. It implements ports.FreshnessPolicy.
type Calendar struct {
	loc         *time.Location
	closeHour   int
	closeMinute int
	allDays     bool
}

// NewCalendar creates a calendar from configuration.
func NewCalendar(cfg Config) (*Calendar, error) {
	tz := cfg.Timezone
	if tz == "" {
		tz = "America/New_York"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("failed to load market timezone '%s': %w", tz, err)
	}
	closeAt := cfg.Close
	if closeAt == "" {
		closeAt = "16:00"
	}
	hour, minute, err := ParseClock(closeAt)
	if err != nil {
		return nil, err
	}
	return &Calendar{loc: loc, closeHour: hour, closeMinute: minute, allDays: cfg.AllDays}, nil
}

// ParseClock parses an HH:MM wall-clock time.
func ParseClock(s string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid clock value '%s': expected HH:MM", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in clock value '%s'", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in clock value '%s'", s)
	}
	return hour, minute, nil
}

// Location returns the exchange time zone.
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// Today returns the exchange-local calendar date of now.
func (c *Calendar) Today(now time.Time) time.Time {
	return domain.Day(now, c.loc)
}

// IsTradingDay reports whether day (a calendar date) is Monday through Friday.
// Exchange holidays are not modelled; a holiday fetch simply returns no rows.
func (c *Calendar) IsTradingDay(day time.Time) bool {
	if c.allDays {
		return true
	}
	switch day.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	default:
		return true
	}
}

// AfterClose reports whether now is at or past today's close cutoff in the exchange zone.
func (c *Calendar) AfterClose(now time.Time) bool {
	local := now.In(c.loc)
	cutoff := time.Date(local.Year(), local.Month(), local.Day(), c.closeHour, c.closeMinute, 0, 0, c.loc)
	return !local.Before(cutoff)
}

// ShouldUpdate applies the freshness policy: the record must end before today, today must be
// a trading day and the close cutoff must have passed.
func (c *Calendar) ShouldUpdate(last, now time.Time) bool {
	today := c.Today(now)
	if !last.Before(today) {
		return false
	}
	return c.IsTradingDay(today) && c.AfterClose(now)
}

// SystemClock reads the host clock.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time { return time.Now() }
