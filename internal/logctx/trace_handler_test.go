package logctx

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON log output: %v", err)
	}

	return entry
}

func newTestLogger(buf *bytes.Buffer, opts *slog.HandlerOptions) *slog.Logger {
	return slog.New(NewTraceHandler(slog.NewJSONHandler(buf, opts)))
}

// TestTraceHandler_NoCorrelation verifies plain contexts add no correlation fields.
func TestTraceHandler_NoCorrelation(t *testing.T) {
	var buf bytes.Buffer

	newTestLogger(&buf, nil).InfoContext(context.Background(), "job started", "playlist_id", "PL1")

	entry := decode(t, &buf)

	for _, key := range []string{"trace_id", "span_id", "request_id"} {
		if _, ok := entry[key]; ok {
			t.Errorf("%s should not be present, got %v", key, entry[key])
		}
	}

	if entry["playlist_id"] != "PL1" {
		t.Errorf("expected playlist_id=PL1, got %v", entry["playlist_id"])
	}
}

// TestTraceHandler_WithValidSpan verifies trace ids from a valid span context.
func TestTraceHandler_WithValidSpan(t *testing.T) {
	var buf bytes.Buffer

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})
	ctx := trace.ContextWithSpanContext(context.Background(), spanCtx)

	newTestLogger(&buf, nil).InfoContext(ctx, "track written")

	entry := decode(t, &buf)

	if entry["trace_id"] != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("unexpected trace_id: %v", entry["trace_id"])
	}

	if entry["span_id"] != "00f067aa0ba902b7" {
		t.Errorf("unexpected span_id: %v", entry["span_id"])
	}
}

// TestTraceHandler_WithRequestID verifies the request id is stamped on records.
func TestTraceHandler_WithRequestID(t *testing.T) {
	var buf bytes.Buffer

	ctx := WithRequestID(context.Background(), "req-42")

	newTestLogger(&buf, nil).WarnContext(ctx, "no session")

	if got := decode(t, &buf)["request_id"]; got != "req-42" {
		t.Errorf("expected request_id=req-42, got %v", got)
	}
}

// TestTraceHandler_Enabled verifies that Enabled delegates to inner handler.
func TestTraceHandler_Enabled(t *testing.T) {
	h := NewTraceHandler(slog.NewJSONHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn}))
	ctx := context.Background()

	if h.Enabled(ctx, slog.LevelInfo) {
		t.Errorf("expected Info level to be disabled when handler level is Warn")
	}

	if !h.Enabled(ctx, slog.LevelError) {
		t.Errorf("expected Error level to be enabled")
	}
}

// TestTraceHandler_WithAttrsAndGroup verifies derived handlers keep the wrapper.
func TestTraceHandler_WithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer

	h := NewTraceHandler(slog.NewJSONHandler(&buf, nil))

	withAttrs := h.WithAttrs([]slog.Attr{slog.String("component", "downloader")})
	if _, ok := withAttrs.(*TraceHandler); !ok {
		t.Fatalf("WithAttrs should return *TraceHandler, got %T", withAttrs)
	}

	withGroup := withAttrs.WithGroup("track")
	if _, ok := withGroup.(*TraceHandler); !ok {
		t.Fatalf("WithGroup should return *TraceHandler, got %T", withGroup)
	}

	slog.New(withGroup).InfoContext(WithRequestID(context.Background(), "r1"), "written", "ordinal", 3)

	entry := decode(t, &buf)
	if entry["component"] != "downloader" {
		t.Errorf("expected component attribute, got %v", entry)
	}

	group, ok := entry["track"].(map[string]any)
	if !ok || group["ordinal"] != float64(3) {
		t.Errorf("expected grouped ordinal, got %v", entry["track"])
	}
}

// TestTraceHandler_NilHandler verifies that NewTraceHandler panics with nil handler.
func TestTraceHandler_NilHandler(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("NewTraceHandler with nil handler should panic")
		}
	}()

	NewTraceHandler(nil)
}

func TestLoggerFromContext_Default(t *testing.T) {
	if LoggerFromContext(context.Background()) != slog.Default() {
		t.Errorf("expected slog.Default() without a logger in context")
	}

	l := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	if LoggerFromContext(WithLogger(context.Background(), l)) != l {
		t.Errorf("expected stored logger")
	}
}
