package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// parseLogLevel parses a string log level (case-insensitive), defaulting to info
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// Logger is a leveled printf-style logger on top of slog. It satisfies earth.Logger.
type Logger struct {
	slog *slog.Logger
}

// NewLogger creates a logger writing to stderr.
func NewLogger(level, format string) *Logger {
	return newLoggerTo(os.Stderr, level, format)
}

func newLoggerTo(w io.Writer, level, format string) *Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(level)}
	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return &Logger{slog: slog.New(h)}
}

// With returns a logger that adds attrs to every record
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slog: l.slog.With(args...)}
}

func (l *Logger) logf(level slog.Level, format string, v ...any) {
	ctx := context.Background()
	if !l.slog.Enabled(ctx, level) {
		return
	}
	l.slog.Log(ctx, level, fmt.Sprintf(format, v...))
}

// Debugf logs a debug message
func (l *Logger) Debugf(format string, v ...any) { l.logf(slog.LevelDebug, format, v...) }

// Infof logs an info message
func (l *Logger) Infof(format string, v ...any) { l.logf(slog.LevelInfo, format, v...) }

// Warnf logs a warning message
func (l *Logger) Warnf(format string, v ...any) { l.logf(slog.LevelWarn, format, v...) }

// Errorf logs an error message
func (l *Logger) Errorf(format string, v ...any) { l.logf(slog.LevelError, format, v...) }

// Fatalf logs an error message and exits
func (l *Logger) Fatalf(format string, v ...any) {
	l.logf(slog.LevelError, format, v...)
	os.Exit(1)
}
