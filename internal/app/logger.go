package app

import (
	"io"
	"log/slog"
)

// newLogger builds the instance-scoped logger the app threads through
// context; the global default is never touched. Level and format arrive
// pre-validated from the CLI layer, so unknown values fall back to the
// defaults instead of failing a boot that is already underway.
func newLogger(cfg *Config, outW io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: logLevel(cfg.LogLevel)}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(outW, opts))
	}
	return slog.New(slog.NewTextHandler(outW, opts))
}

func logLevel(s string) slog.Level {
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
