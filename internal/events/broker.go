// Package events streams updater events to live subscribers over SSE.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/italolelis/updaterd/internal/logctx"
	"github.com/italolelis/updaterd/internal/update"
	"github.com/r3labs/sse/v2"
)

const DefaultBufferSize = 32

// Broker implements update.EventSink on top of an SSE server with one stream
// per topic. Publishing never blocks: when the stream buffer is full the event
// is dropped.
type Broker struct {
	server *sse.Server

	dropped atomic.Uint64
}

func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = DefaultBufferSize
	}

	server := sse.New()
	server.BufferSize = buffer
	server.AutoReplay = false
	server.CreateStream(update.EventTopic)

	return &Broker{server: server}
}

// Emit publishes event on the stream named by topic.
func (b *Broker) Emit(ctx context.Context, topic string, event update.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	b.server.CreateStream(topic)

	if !b.server.TryPublish(topic, &sse.Event{Event: []byte(topic), Data: data}) {
		b.dropped.Add(1)
		logctx.LoggerFromContext(ctx).WarnContext(ctx, "dropping event, stream buffer full",
			"topic", topic, "event_type", string(event.Type))
	}

	return nil
}

// Dropped returns how many events were skipped because a buffer was full.
func (b *Broker) Dropped() uint64 {
	return b.dropped.Load()
}

// ServeHTTP streams events until the client goes away. The stream query
// parameter selects the topic and defaults to update.EventTopic.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("stream") == "" {
		r = r.Clone(r.Context())

		q := r.URL.Query()
		q.Set("stream", update.EventTopic)
		r.URL.RawQuery = q.Encode()
	}

	logctx.LoggerFromContext(r.Context()).DebugContext(r.Context(), "event stream subscribed",
		"topic", r.URL.Query().Get("stream"))

	b.server.ServeHTTP(w, r)
}

// Close ends every open stream.
func (b *Broker) Close() {
	b.server.Close()
}
