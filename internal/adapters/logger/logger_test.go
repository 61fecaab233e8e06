package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"warning", LevelWarn},
		{"Error", LevelError},
		{"verbose", LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestStdLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := &StdLogger{logger: log.New(&buf, "", 0), level: LevelWarn}

	l.Info(context.Background(), "hidden")
	l.Warn(context.Background(), "shown", map[string]interface{}{"ticker": "AAPL"})
	l.Error(context.Background(), errors.New("boom"), "failed")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN] shown | ticker=AAPL")
	assert.Contains(t, out, "[ERROR] failed | error: boom")
}

func TestLogrusLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := newLogrusLogger(&buf, LevelInfo, "json")

	l.Debug(context.Background(), "hidden")
	l.Error(context.Background(), errors.New("remote down"), "Fetch failed", map[string]interface{}{"key": "AAPL"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "Fetch failed", entry["msg"])
	assert.Equal(t, "AAPL", entry["key"])
	assert.Equal(t, "remote down", entry["error"])
	assert.Equal(t, "error", entry["level"])
}

func TestNew_SelectsImplementation(t *testing.T) {
	assert.IsType(t, &LogrusLogger{}, New(LevelInfo, "json"))
	assert.IsType(t, &LogrusLogger{}, New(LevelInfo, "text"))
	assert.IsType(t, &StdLogger{}, New(LevelInfo, "std"))
}

func TestStdLogger_MergesFieldMaps(t *testing.T) {
	var buf bytes.Buffer
	l := NewStdLoggerTo(&buf, LevelDebug)

	l.Info(context.Background(), "merged",
		map[string]interface{}{"key": "AAPL", "added": 1},
		map[string]interface{}{"added": 3, "source": "yahoo"},
	)

	assert.Contains(t, buf.String(), "[INFO] merged | added=3 key=AAPL source=yahoo")
}
