// Package logger provides structured logging built on zerolog.
// It sets up a JSON (or console) logger with service-level context and
// provides trace ID propagation through context.Context.
package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

type ctxKey string

const traceIDKey ctxKey = "trace_id"

// Init creates and returns a structured logger for the given service.
// level is a zerolog level name; an unknown level falls back to info.
// format "console" selects the human-readable writer, anything else is JSON.
func Init(service, level, format string) zerolog.Logger {
	return New(os.Stdout, service, level, format)
}

// New is Init with an explicit output writer.
func New(out io.Writer, service, level, format string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).
		Level(lvl).
		With().
		Timestamp().
		Str("service", service).
		Logger()
}

// WithTraceID stores a trace ID in the context for downstream propagation.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceID extracts the trace ID from context. Returns "" if not set.
func TraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return ""
}

// GenerateTraceID creates a trace ID from a token and timestamp.
// Format: "{token}-{unixNano}".
func GenerateTraceID(token string, ts time.Time) string {
	return fmt.Sprintf("%s-%d", token, ts.UnixNano())
}

// FromContext returns base enriched with the context's trace ID, if any.
func FromContext(ctx context.Context, base zerolog.Logger) zerolog.Logger {
	tid := TraceID(ctx)
	if tid == "" {
		return base
	}
	return base.With().Str("trace_id", tid).Logger()
}
