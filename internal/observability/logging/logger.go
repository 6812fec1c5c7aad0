package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
)

// NewLogger builds the service-wide logger. Format "console" selects tint's
// colored handler, anything else emits JSON lines on stdout.
func NewLogger(service, level, format string) *slog.Logger {
	return build(os.Stdout, service, level, format)
}

// NewStderrLogger logs to stderr; the MCP binary owns stdout for protocol
// frames.
func NewStderrLogger(service, level string) *slog.Logger {
	return build(os.Stderr, service, level, "console")
}

func build(w io.Writer, service, level, format string) *slog.Logger {
	minLevel := parseLevel(level)
	var handler slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "console") {
		handler = tint.NewHandler(w, &tint.Options{Level: minLevel})
	} else {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: minLevel})
	}
	return slog.New(handler).With("service", service)
}

// parseLevel accepts the slog spellings plus "warning"; anything unknown
// means info.
func parseLevel(level string) slog.Level {
	level = strings.TrimSpace(level)
	if strings.EqualFold(level, "warning") {
		return slog.LevelWarn
	}
	var parsed slog.Level
	if err := parsed.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return parsed
}
