package vectier

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/hupe1980/vectier/optimizer"
)

// Logger wraps slog.Logger with vectier-specific context.
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
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.NewTextHandler(io.Discard, nil))
}

// WithID adds an id field to the logger.
func (l *Logger) WithID(id uint32) *Logger {
	return &Logger{
		Logger: l.Logger.With("id", id),
	}
}

// WithCount adds a count field to the logger.
func (l *Logger) WithCount(count int) *Logger {
	return &Logger{
		Logger: l.Logger.With("count", count),
	}
}

// WithMode adds the telemetry mode to the logger.
func (l *Logger) WithMode(mode string) *Logger {
	return &Logger{
		Logger: l.Logger.With("mode", mode),
	}
}

// LogInsert logs an insert operation.
func (l *Logger) LogInsert(ctx context.Context, id uint32, key string, dimension int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "insert failed",
			"key", key,
			"dimension", dimension,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "insert completed",
			"id", id,
			"key", key,
			"dimension", dimension,
		)
	}
}

// LogQuery logs a query.
func (l *Logger) LogQuery(ctx context.Context, k, resultsFound int, elapsed time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "query failed",
			"k", k,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "query completed",
			"k", k,
			"results", resultsFound,
			"elapsed", elapsed,
		)
	}
}

// LogOptimize logs the result of a partition optimization run.
func (l *Logger) LogOptimize(ctx context.Context, sizes optimizer.Sizes, records int, elapsed time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "optimize failed",
			"fast", sizes.Fast,
			"index", sizes.Index,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "optimize completed",
			"fast", sizes.Fast,
			"index", sizes.Index,
			"records", records,
			"elapsed", elapsed,
		)
	}
}

// LogRollback logs an online rollback to a larger configuration.
func (l *Logger) LogRollback(ctx context.Context, restored optimizer.Sizes, remaining int) {
	l.InfoContext(ctx, "tier sizes re-optimized",
		"fast", restored.Fast,
		"index", restored.Index,
		"records", remaining,
	)
}
