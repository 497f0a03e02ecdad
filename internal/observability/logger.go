package observability

import (
	"io"
	"log/slog"
	"os"
	"strings"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/lmittmann/tint"

	"github.com/couchcryptid/sensor-temperature-etl/internal/config"
)

// NewLogger builds the service logger from LOG_FORMAT and LOG_LEVEL and sets
// it as the slog default. "text" writes colorized human-readable lines; any
// other format gets the shared JSON logger.
func NewLogger(cfg *config.Config) *slog.Logger {
	if !strings.EqualFold(cfg.LogFormat, "text") {
		return sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	}
	logger := newTextLogger(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)
	return logger
}

func newTextLogger(w io.Writer, level string) *slog.Logger {
	return slog.New(tint.NewHandler(w, &tint.Options{Level: parseLevel(level)}))
}

// parseLevel accepts the same names as the shared logger.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
