// Package log sets up structured logging and defines the shared field and
// component vocabulary used across services.
package log

import (
	"log/slog"
	"os"
)

// Setup installs a text slog handler at the given level as the process
// default and returns a logger tagged with the component name.
func Setup(level slog.Level, component string) *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger.With(FieldComponent, component)
}

// ParseLevel maps a config string to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
