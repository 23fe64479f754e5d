package notifier

import (
	"context"
	"fmt"

	"github.com/italolelis/updaterd/internal/update"
)

// Sink turns the updater events people care about into notifications:
// a new version, a finished install and failures that need a new check.
type Sink struct {
	notifier Notifier
	appName  string
}

func NewSink(n Notifier, appName string) *Sink {
	return &Sink{notifier: n, appName: appName}
}

func (s *Sink) Emit(ctx context.Context, _ string, event update.Event) error {
	content, ok := s.message(event)
	if !ok {
		return nil
	}

	if err := s.notifier.Notify(ctx, content); err != nil {
		return fmt.Errorf("failed to notify %s event: %w", event.Type, err)
	}

	return nil
}

func (s *Sink) message(event update.Event) (string, bool) {
	switch event.Type {
	case update.EventAvailable:
		return fmt.Sprintf("%s %s is available (running %s)", s.appName, event.Info.Version, event.Info.CurrentVersion), true
	case update.EventDownloaded:
		return fmt.Sprintf("%s %s downloaded and installed, restart pending", s.appName, event.Info.Version), true
	case update.EventError:
		if event.Recoverable {
			return "", false
		}

		return fmt.Sprintf("%s update failed: %s", s.appName, event.Message), true
	default:
		return "", false
	}
}
