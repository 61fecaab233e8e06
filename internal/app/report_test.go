package app

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockSync/internal/domain"
	"stockSync/internal/indicators"
	"stockSync/internal/ports"
)

func TestWriteReports(t *testing.T) {
	sma, rsi := 101.256, 74.5
	reports := []Report{
		{
			Key: "AAPL", Source: "yahoo", Outcome: domain.OutcomeUpdated, Added: 3, LastDate: day(2024, 1, 31),
			Summary: &indicators.Summary{LastClose: 102.5, SMA20: &sma, RSI14: &rsi, RSIZone: indicators.ZoneOverbought},
		},
		{Key: "ZZZZ", Source: "yahoo", Outcome: domain.OutcomeAbsent},
		{Key: "BAD", Source: "yahoo", Fatal: errors.New("disk full")},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteReports(&buf, reports))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "KEY"))
	assert.Equal(t, []string{"AAPL", "yahoo", "UPDATED", "3", "2024-01-31", "102.50", "101.26", "74.50", "overbought"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"ZZZZ", "yahoo", "ABSENT", "0", "-", "-", "-", "-", "-"}, strings.Fields(lines[2]))
	assert.Contains(t, lines[3], "ERROR")
	assert.Contains(t, lines[3], "disk full")
}

func TestWriteRunHistory(t *testing.T) {
	started := time.Date(2024, 1, 31, 21, 30, 0, 0, time.UTC)
	runs := []ports.SyncRun{
		{Key: "AAPL", Source: "yahoo", Outcome: domain.OutcomeUpdated, Added: 1, StartedAt: started, FinishedAt: started.Add(1500 * time.Millisecond)},
		{Key: "AAPL", Source: "yahoo", Outcome: domain.OutcomeSourceUnavailable, StartedAt: started.Add(-24 * time.Hour), FinishedAt: started.Add(-24 * time.Hour), Error: "rate limited"},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteRunHistory(&buf, runs))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "STARTED"))
	assert.Equal(t, []string{"2024-01-31T21:30:00Z", "AAPL", "yahoo", "UPDATED", "1", "1.5s"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"2024-01-30T21:30:00Z", "AAPL", "yahoo", "SOURCE_UNAVAILABLE", "0", "0s", "rate", "limited"}, strings.Fields(lines[2]))
}
