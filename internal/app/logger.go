package app

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger returns a configured slog.Logger based on configuration.
func NewLogger(cfg *Config) *slog.Logger {
	format := ""
	if cfg != nil {
		format = cfg.LogFormat
	}
	return newLogger(os.Stdout, format, slog.LevelInfo)
}

// NewClientLogger logs to stderr so that command output on stdout stays clean.
func NewClientLogger(cfg *ClientConfig, level slog.Level) *slog.Logger {
	format := ""
	if cfg != nil {
		format = cfg.LogFormat
	}
	return newLogger(os.Stderr, format, level)
}

func newLogger(w io.Writer, format string, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true, Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
