package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockSync/internal/domain"
)

func mustDay(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := domain.ParseDay(s)
	require.NoError(t, err)
	return d
}

func newYorkCalendar(t *testing.T) *Calendar {
	t.Helper()
	cal, err := NewCalendar(Config{Timezone: "America/New_York", Close: "16:00"})
	require.NoError(t, err)
	return cal
}

func TestNewCalendar(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "defaults", cfg: Config{}},
		{name: "explicit", cfg: Config{Timezone: "Europe/London", Close: "16:30"}},
		{name: "bad zone", cfg: Config{Timezone: "Mars/Olympus"}, wantErr: true},
		{name: "bad close", cfg: Config{Close: "4pm"}, wantErr: true},
		{name: "hour out of range", cfg: Config{Close: "24:00"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cal, err := NewCalendar(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, cal.Location())
		})
	}
}

func TestCalendar_ShouldUpdate(t *testing.T) {
	cal := newYorkCalendar(t)
	ny := cal.Location()

	tests := []struct {
		name string
		last string
		now  time.Time
		want bool
	}{
		{
			name: "friday after close with thursday record",
			last: "2023-01-05",
			now:  time.Date(2023, 1, 6, 17, 0, 0, 0, ny),
			want: true,
		},
		{
			name: "exactly at close",
			last: "2023-01-05",
			now:  time.Date(2023, 1, 6, 16, 0, 0, 0, ny),
			want: true,
		},
		{
			name: "before close",
			last: "2023-01-05",
			now:  time.Date(2023, 1, 6, 15, 59, 0, 0, ny),
			want: false,
		},
		{
			name: "saturday",
			last: "2023-01-05",
			now:  time.Date(2023, 1, 7, 18, 0, 0, 0, ny),
			want: false,
		},
		{
			name: "sunday",
			last: "2023-01-05",
			now:  time.Date(2023, 1, 8, 18, 0, 0, 0, ny),
			want: false,
		},
		{
			name: "already synced today",
			last: "2023-01-06",
			now:  time.Date(2023, 1, 6, 20, 0, 0, 0, ny),
			want: false,
		},
		{
			name: "record dated in the future",
			last: "2023-01-09",
			now:  time.Date(2023, 1, 6, 20, 0, 0, 0, ny),
			want: false,
		},
		{
			name: "utc instant already past close in new york",
			last: "2023-01-05",
			now:  time.Date(2023, 1, 6, 22, 0, 0, 0, time.UTC),
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cal.ShouldUpdate(mustDay(t, tt.last), tt.now))
		})
	}
}

func TestCalendar_AllDays(t *testing.T) {
	cal, err := NewCalendar(Config{Timezone: "UTC", Close: "23:00", AllDays: true})
	require.NoError(t, err)

	saturdayLate := time.Date(2023, 1, 7, 23, 30, 0, 0, time.UTC)
	assert.True(t, cal.IsTradingDay(mustDay(t, "2023-01-07")))
	assert.True(t, cal.ShouldUpdate(mustDay(t, "2023-01-06"), saturdayLate))
	assert.False(t, cal.ShouldUpdate(mustDay(t, "2023-01-06"), saturdayLate.Add(-time.Hour)))
}

func TestCalendar_Today(t *testing.T) {
	cal := newYorkCalendar(t)
	instant := time.Date(2023, 1, 7, 3, 0, 0, 0, time.UTC) // 22:00 on the 6th in New York
	assert.Equal(t, mustDay(t, "2023-01-06"), cal.Today(instant))
}

func TestParseClock(t *testing.T) {
	h, m, err := ParseClock(" 09:30 ")
	require.NoError(t, err)
	assert.Equal(t, 9, h)
	assert.Equal(t, 30, m)

	_, _, err = ParseClock("09:75")
	assert.Error(t, err)
}
