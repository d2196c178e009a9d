package logger

import (
	"log/slog"
	"os"
	"strings"
)

// New creates a slog.Logger writing text output to stderr at the given level.
func New(level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: ParseLevel(level),
	}))
}

// NewDefault creates a logger and installs it as the slog default.
func NewDefault(level string) *slog.Logger {
	l := New(level)
	slog.SetDefault(l)
	return l
}

// ParseLevel maps a config string to a slog level. Unknown values fall back to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
