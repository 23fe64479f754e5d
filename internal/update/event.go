package update

import (
	"encoding/json"
	"fmt"
)

// EventTopic is the topic every updater event is published on.
const EventTopic = "update-event"

// EventType discriminates the variants of Event.
type EventType string

const (
	EventChecking     EventType = "checking"
	EventAvailable    EventType = "available"
	EventNotAvailable EventType = "not-available"
	EventProgress     EventType = "progress"
	EventDownloaded   EventType = "downloaded"
	EventInstalling   EventType = "installing"
	EventError        EventType = "error"
)

// Event is a lifecycle notification. Only the fields of its Type are set.
type Event struct {
	Type EventType

	Info           *Descriptor // available, downloaded
	CurrentVersion string      // not-available
	Progress       *Progress   // progress
	Message        string      // error
	Recoverable    bool        // error
}

func CheckingEvent() Event { return Event{Type: EventChecking} }

func AvailableEvent(info Descriptor) Event { return Event{Type: EventAvailable, Info: &info} }

func NotAvailableEvent(currentVersion string) Event {
	return Event{Type: EventNotAvailable, CurrentVersion: currentVersion}
}

func ProgressEvent(p Progress) Event { return Event{Type: EventProgress, Progress: &p} }

func DownloadedEvent(info Descriptor) Event { return Event{Type: EventDownloaded, Info: &info} }

func InstallingEvent() Event { return Event{Type: EventInstalling} }

func ErrorEvent(message string, recoverable bool) Event {
	return Event{Type: EventError, Message: message, Recoverable: recoverable}
}

// wireEvent is the payload sent to the UI. The not-available field is
// snake case while Descriptor fields are camel case.
type wireEvent struct {
	Type           EventType   `json:"type"`
	Info           *Descriptor `json:"info,omitempty"`
	CurrentVersion *string     `json:"current_version,omitempty"`
	Progress       *Progress   `json:"progress,omitempty"`
	Message        *string     `json:"message,omitempty"`
	Recoverable    *bool       `json:"recoverable,omitempty"`
}

// MarshalJSON encodes the event as {"type": ..., <variant fields>}.
func (e Event) MarshalJSON() ([]byte, error) {
	w := wireEvent{Type: e.Type}

	switch e.Type {
	case EventChecking, EventInstalling:
	case EventAvailable, EventDownloaded:
		if e.Info == nil {
			return nil, fmt.Errorf("%s event without info", e.Type)
		}

		w.Info = e.Info
	case EventNotAvailable:
		w.CurrentVersion = &e.CurrentVersion
	case EventProgress:
		if e.Progress == nil {
			return nil, fmt.Errorf("progress event without progress")
		}

		w.Progress = e.Progress
	case EventError:
		w.Message = &e.Message
		w.Recoverable = &e.Recoverable
	default:
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}

	return json.Marshal(w)
}

// UnmarshalJSON decodes the tagged representation produced by MarshalJSON.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*e = Event{Type: w.Type, Info: w.Info, Progress: w.Progress}

	if w.CurrentVersion != nil {
		e.CurrentVersion = *w.CurrentVersion
	}

	if w.Message != nil {
		e.Message = *w.Message
	}

	if w.Recoverable != nil {
		e.Recoverable = *w.Recoverable
	}

	return nil
}
