package basic

import (
	"context"
	"sync"

	"github.com/contextgg/go-projections/es"
)

// NewEventBus create boring event bus
func NewEventBus() es.EventBus {
	return &eventBus{}
}

type eventBus struct {
}

func (b *eventBus) PublishEvent(context.Context, *es.Event) error {
	return nil
}

func (b *eventBus) Close() {
}

// RecordingEventBus keeps everything published on it
type RecordingEventBus struct {
	sync.Mutex
	Events []*es.Event
}

// PublishEvent implements es.EventBus
func (b *RecordingEventBus) PublishEvent(ctx context.Context, evt *es.Event) error {
	b.Lock()
	defer b.Unlock()

	b.Events = append(b.Events, evt)
	return nil
}

// Close implements es.EventBus
func (b *RecordingEventBus) Close() {
}

// Published returns a copy of the recorded events
func (b *RecordingEventBus) Published() []*es.Event {
	b.Lock()
	defer b.Unlock()

	return append([]*es.Event{}, b.Events...)
}
