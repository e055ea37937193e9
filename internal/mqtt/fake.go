package mqtt

import (
	"github.com/sweeney/reed-table/internal/logic"
)

// FakePublisher keeps every published message in memory.
// Payloads are formatted exactly as the real publisher would send them.
type FakePublisher struct {
	Events   []logic.Event
	Payloads [][]byte

	SystemEvents   []SystemEvent
	SystemPayloads [][]byte

	// Injected failures; a failed publish records nothing.
	PublishError       error
	PublishSystemError error

	// Connected is reported by IsConnected.
	Connected bool
}

// NewFakePublisher returns an empty FakePublisher.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// Publish implements Publisher.
func (f *FakePublisher) Publish(event logic.Event) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatPayload(event)
	if err != nil {
		return err
	}
	f.Events = append(f.Events, event)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishSystem implements Publisher.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

// EventsOfType filters the recorded events, keeping their order.
func (f *FakePublisher) EventsOfType(typ logic.EventType) []logic.Event {
	var out []logic.Event
	for _, e := range f.Events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// Close implements Publisher.
func (f *FakePublisher) Close() error { return nil }

// IsConnected implements ConnectionStatus.
func (f *FakePublisher) IsConnected() bool { return f.Connected }
