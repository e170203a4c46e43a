package cachedict

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with dictionary-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithDictionary adds the dictionary name to the logger.
func (l *Logger) WithDictionary(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("dictionary", name),
	}
}

// LogFetch logs a lookup operation.
func (l *Logger) LogFetch(ctx context.Context, keys, hits, misses int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "fetch failed",
			"keys", keys,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "fetch completed",
			"keys", keys,
			"hits", hits,
			"misses", misses,
		)
	}
}

// LogRefresh logs one refresh batch executed by an update worker.
func (l *Logger) LogRefresh(ctx context.Context, keys, found int, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "refresh failed",
			"keys", keys,
			"duration", duration,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "refresh completed",
			"keys", keys,
			"found", found,
			"duration", duration,
		)
	}
}

// LogStaleServe logs keys served stale while a refresh runs behind them.
func (l *Logger) LogStaleServe(ctx context.Context, keys int) {
	l.DebugContext(ctx, "serving stale values",
		"keys", keys,
	)
}

// LogClose logs dictionary shutdown.
func (l *Logger) LogClose(err error) {
	if err != nil {
		l.Error("close completed with errors",
			"error", err,
		)
	} else {
		l.Info("dictionary closed")
	}
}
