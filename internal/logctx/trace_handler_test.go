package logctx

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func decodeRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	return entry
}

func spanContext(t *testing.T) trace.SpanContext {
	t.Helper()

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)

	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)

	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
}

func TestTraceHandler(t *testing.T) {
	tests := []struct {
		name      string
		ctx       func(t *testing.T) context.Context
		wantTrace bool
	}{
		{
			name:      "without span",
			ctx:       func(*testing.T) context.Context { return context.Background() },
			wantTrace: false,
		},
		{
			name: "with valid span",
			ctx: func(t *testing.T) context.Context {
				return trace.ContextWithSpanContext(context.Background(), spanContext(t))
			},
			wantTrace: true,
		},
		{
			name: "with invalid span",
			ctx: func(*testing.T) context.Context {
				return trace.ContextWithSpanContext(context.Background(), trace.SpanContext{})
			},
			wantTrace: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(NewTraceHandler(slog.NewJSONHandler(&buf, nil)))

			logger.InfoContext(tt.ctx(t), "update check", "outcome", "available")

			entry := decodeRecord(t, &buf)
			assert.Equal(t, "update check", entry["msg"])
			assert.Equal(t, "available", entry["outcome"])

			if tt.wantTrace {
				assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", entry["trace_id"])
				assert.Equal(t, "00f067aa0ba902b7", entry["span_id"])
			} else {
				assert.NotContains(t, entry, "trace_id")
				assert.NotContains(t, entry, "span_id")
			}
		})
	}
}

func TestTraceHandler_WithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewTraceHandler(slog.NewJSONHandler(&buf, nil))).
		With("component", "updater").
		WithGroup("release")

	ctx := trace.ContextWithSpanContext(context.Background(), spanContext(t))
	logger.InfoContext(ctx, "update available", "version", "2.0.0")

	entry := decodeRecord(t, &buf)
	assert.Equal(t, "updater", entry["component"])

	group, ok := entry["release"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "2.0.0", group["version"])
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", group["trace_id"])
}

func TestTraceHandler_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewTraceHandler(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})))

	logger.Info("dropped")
	assert.Empty(t, buf.String())

	logger.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestNewTraceHandler_NilPanics(t *testing.T) {
	assert.Panics(t, func() { NewTraceHandler(nil) })
}

func TestLoggerFromContext(t *testing.T) {
	assert.Same(t, slog.Default(), LoggerFromContext(context.Background()))

	logger := Discard()
	ctx := WithLogger(context.Background(), logger)
	assert.Same(t, logger, LoggerFromContext(ctx))

	var buf bytes.Buffer
	ctx = WithLogger(context.Background(), slog.New(slog.NewJSONHandler(&buf, nil)))
	ctx, enriched := With(ctx, "component", "scheduler")
	assert.Same(t, enriched, LoggerFromContext(ctx))

	enriched.Info("tick")
	assert.Equal(t, "scheduler", decodeRecord(t, &buf)["component"])
}
