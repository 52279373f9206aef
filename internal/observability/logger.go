package observability

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

// NewLogger builds the process logger and sets it as the slog default.
// LOG_FORMAT=text selects a colourised console handler for local runs;
// anything else logs JSON.
func NewLogger(level, format string) *slog.Logger {
	if !strings.EqualFold(format, "text") {
		return sharedobs.NewLogger(level, format)
	}
	logger := slog.New(newTextHandler(os.Stdout, ParseLevel(level)))
	slog.SetDefault(logger)
	return logger
}

func newTextHandler(w io.Writer, level slog.Level) slog.Handler {
	return tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	})
}

// ParseLevel converts a LOG_LEVEL value to a slog.Level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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
