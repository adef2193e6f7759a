package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestInit(t *testing.T) {
	log := Init("test-service", "info", "json")
	if log.GetLevel() != zerolog.InfoLevel {
		t.Fatalf("expected info level, got %s", log.GetLevel())
	}
}

func TestNew_FieldsAndLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "signalengine", "warn", "json")

	log.Info().Msg("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level, got %s", buf.String())
	}

	log.Warn().Str("pair", "X@1m").Msg("skipped")
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON line, got %q: %v", buf.String(), err)
	}
	if entry["service"] != "signalengine" || entry["pair"] != "X@1m" || entry["message"] != "skipped" {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestNew_BadLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "svc", "loud", "json")
	if log.GetLevel() != zerolog.InfoLevel {
		t.Fatalf("expected info fallback, got %s", log.GetLevel())
	}
}

func TestTraceID_RoundTrip(t *testing.T) {
	ctx := context.Background()

	if tid := TraceID(ctx); tid != "" {
		t.Errorf("expected empty trace id, got %q", tid)
	}

	ctx = WithTraceID(ctx, "test-trace-123")
	if tid := TraceID(ctx); tid != "test-trace-123" {
		t.Errorf("expected 'test-trace-123', got %q", tid)
	}
}

func TestGenerateTraceID(t *testing.T) {
	ts := time.Date(2024, 1, 15, 10, 30, 0, 123456789, time.UTC)
	tid := GenerateTraceID("cycle", ts)

	if !strings.HasPrefix(tid, "cycle-") {
		t.Errorf("expected trace id to start with 'cycle-', got %s", tid)
	}
	if !strings.Contains(tid, "123456789") {
		t.Errorf("expected trace id to contain nanoseconds, got %s", tid)
	}
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := New(&buf, "svc", "debug", "json")

	plain := FromContext(context.Background(), base)
	plain.Debug().Msg("plain")
	if strings.Contains(buf.String(), "trace_id") {
		t.Fatalf("unexpected trace id: %s", buf.String())
	}

	buf.Reset()
	ctx := WithTraceID(context.Background(), "abc-123")
	traced := FromContext(ctx, base)
	traced.Debug().Msg("traced")
	if !strings.Contains(buf.String(), `"trace_id":"abc-123"`) {
		t.Fatalf("expected trace id in %s", buf.String())
	}
}
