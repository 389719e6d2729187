package config

import (
	"log/slog"
	"os"
	"strings"
)

// NewLogger returns a JSON slog.Logger tagged with service and env.
func NewLogger(level string, serviceName string, env string) *slog.Logger {
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(level)})
	return slog.New(h).With(
		slog.String("service", serviceName),
		slog.String("env", env),
	)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "silent":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
