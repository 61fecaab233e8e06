package domain

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Record is a daily observation keyed by calendar date.
type Record interface {
	Day() time.Time
}

var (
	ErrZeroDate          = errors.New("record has no date")
	ErrNonIncreasingDate = errors.New("record dates are not strictly increasing")
)

// Series is the ordered history of daily records for one ticker or feed.
// Dates are strictly increasing; duplicates never occur.
type Series[R Record] struct {
	Key     string // Ticker symbol or feed name
	Records []R
}

// NewSeries builds a series and validates its ordering.
func NewSeries[R Record](key string, records []R) (*Series[R], error) {
	s := &Series[R]{Key: key, Records: records}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Len returns the number of records.
func (s *Series[R]) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Records)
}

// LastDate returns the most recent record date, or false for an empty series.
func (s *Series[R]) LastDate() (time.Time, bool) {
	if s.Len() == 0 {
		return time.Time{}, false
	}
	return s.Records[len(s.Records)-1].Day(), true
}

// FirstDate returns the oldest record date, or false for an empty series.
func (s *Series[R]) FirstDate() (time.Time, bool) {
	if s.Len() == 0 {
		return time.Time{}, false
	}
	return s.Records[0].Day(), true
}

// Validate checks that every record has a date and dates strictly increase.
func (s *Series[R]) Validate() error {
	return checkIncreasing(s.Records, time.Time{})
}

// Append returns a new series with tail added after the existing records.
// The receiver is never modified; on error it remains the valid prior state.
func (s *Series[R]) Append(tail []R) (*Series[R], error) {
	after, _ := s.LastDate()
	if err := checkIncreasing(tail, after); err != nil {
		return nil, err
	}
	merged := make([]R, 0, s.Len()+len(tail))
	merged = append(merged, s.Records...)
	merged = append(merged, tail...)
	return &Series[R]{Key: s.Key, Records: merged}, nil
}

// SortByDay returns a copy of records ordered by date. Equal dates keep their input order
// so that duplicates stay adjacent and are caught by validation.
func SortByDay[R Record](records []R) []R {
	sorted := make([]R, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Day().Before(sorted[j].Day())
	})
	return sorted
}

func checkIncreasing[R Record](records []R, after time.Time) error {
	prev := after
	for i, r := range records {
		d := r.Day()
		if d.IsZero() {
			return fmt.Errorf("record %d: %w", i, ErrZeroDate)
		}
		if !prev.IsZero() && !d.After(prev) {
			return fmt.Errorf("record %d dated %s follows %s: %w",
				i, d.Format(DateLayout), prev.Format(DateLayout), ErrNonIncreasingDate)
		}
		prev = d
	}
	return nil
}

// Result is the typed outcome of a synchronization request.
type Result[R Record] struct {
	Key     string
	Outcome SyncOutcome
	Series  *Series[R] // Local record after the call; nil when absent
	Added   int        // Records appended by this call
	Err     error      // Reason for ABSENT-after-failure, SOURCE_UNAVAILABLE and CORRUPT_APPEND
}

// Fresh reports whether the local record is known to be current after the call.
func (r Result[R]) Fresh() bool {
	return r.Outcome == OutcomeUpdated || r.Outcome == OutcomeUpToDate
}
