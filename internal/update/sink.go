package update

import (
	"context"
	"errors"

	"github.com/italolelis/updaterd/internal/logctx"
)

// EventSink delivers events to observers. Delivery is best effort.
type EventSink interface {
	Emit(ctx context.Context, topic string, event Event) error
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(ctx context.Context, topic string, event Event) error

func (f SinkFunc) Emit(ctx context.Context, topic string, event Event) error {
	return f(ctx, topic, event)
}

// MultiSink emits to every sink and joins their errors.
type MultiSink []EventSink

func (m MultiSink) Emit(ctx context.Context, topic string, event Event) error {
	var errs []error

	for _, s := range m {
		if s == nil {
			continue
		}

		if err := s.Emit(ctx, topic, event); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// LogSink writes every event to the context logger.
type LogSink struct{}

func (LogSink) Emit(ctx context.Context, topic string, event Event) error {
	logger := logctx.LoggerFromContext(ctx)

	attrs := []any{"topic", topic, "event_type", string(event.Type)}

	switch event.Type {
	case EventAvailable, EventDownloaded:
		attrs = append(attrs, "version", event.Info.Version, "current_version", event.Info.CurrentVersion)
	case EventNotAvailable:
		attrs = append(attrs, "current_version", event.CurrentVersion)
	case EventProgress:
		attrs = append(attrs, "downloaded", event.Progress.Downloaded, "total", event.Progress.Total)
	case EventError:
		attrs = append(attrs, "message", event.Message, "recoverable", event.Recoverable)
	}

	if event.Type == EventProgress {
		logger.DebugContext(ctx, "update event", attrs...)

		return nil
	}

	logger.InfoContext(ctx, "update event", attrs...)

	return nil
}
