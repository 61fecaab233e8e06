package logger

import "stockSync/internal/ports"

// New picks a logger implementation by format: "json" and "text" use logrus,
// anything else the standard library logger.
func New(level LogLevel, format string) ports.Logger {
	switch format {
	case "json", "text":
		return NewLogrusLogger(level, format)
	default:
		return NewStdLogger(level)
	}
}
