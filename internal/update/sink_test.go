package update

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/italolelis/updaterd/internal/logctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultiSink(t *testing.T) {
	first := &recordingSink{}
	failing := &recordingSink{err: errors.New("closed")}
	last := &recordingSink{}

	err := MultiSink{first, nil, failing, last}.Emit(context.Background(), EventTopic, CheckingEvent())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
	assert.Len(t, first.Events(), 1)
	assert.Len(t, failing.Events(), 1)
	assert.Len(t, last.Events(), 1)

	assert.NoError(t, MultiSink{}.Emit(context.Background(), EventTopic, CheckingEvent()))
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer

	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	ctx := logctx.WithLogger(context.Background(), logger)

	sink := LogSink{}
	require.NoError(t, sink.Emit(ctx, EventTopic, ProgressEvent(Progress{Downloaded: 1})))
	assert.Empty(t, buf.String(), "progress is logged at debug")

	require.NoError(t, sink.Emit(ctx, EventTopic, AvailableEvent(Descriptor{Version: "2.0.0", CurrentVersion: "1.0.0"})))
	require.NoError(t, sink.Emit(ctx, EventTopic, ErrorEvent("boom", false)))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var available, failed map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &available))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &failed))

	assert.Equal(t, "available", available["event_type"])
	assert.Equal(t, "2.0.0", available["version"])
	assert.Equal(t, EventTopic, available["topic"])
	assert.Equal(t, "boom", failed["message"])
	assert.Equal(t, false, failed["recoverable"])
}
