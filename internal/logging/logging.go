package logging

import (
	"io"
	"log/slog"
	"strings"
)

// New returns a JSON logger for production and a text logger otherwise.
func New(w io.Writer, appEnv, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if appEnv == "production" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(level string) slog.Level {
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
