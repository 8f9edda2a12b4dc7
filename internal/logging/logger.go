// Package logging builds the structured loggers used across callgate.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/LavishGent/callgate/internal/config"
)

// New builds the process logger from cfg. The zap backend is bridged into
// slog so every component logs through the same *slog.Logger.
func New(cfg config.LoggingConfig) (*slog.Logger, error) {
	switch strings.ToLower(cfg.Backend) {
	case "zap":
		zl, err := NewZap(cfg)
		if err != nil {
			return nil, err
		}
		return FromLogger(zl).With(slog.String("service", "callgate")), nil
	case "slog", "":
		return newSlog(cfg, os.Stdout)
	default:
		return nil, fmt.Errorf("logging: unsupported backend %q", cfg.Backend)
	}
}

func newSlog(cfg config.LoggingConfig, w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json", "":
		handler = slog.NewJSONHandler(w, opts)
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("logging: unsupported format %q", cfg.Format)
	}

	return slog.New(handler).With(slog.String("service", "callgate")), nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("logging: unsupported level %q", s)
	}
}
