package es

import (
	"context"
	"errors"
)

// EventBus publishes projection status changes and other events
type EventBus interface {
	PublishEvent(context.Context, *Event) error
	Close()
}

// EventHandler consumes events, e.g. to fold them inline
type EventHandler interface {
	HandleEvent(context.Context, *Event) error
}

// EventHandlerFunc adapts a function to EventHandler
type EventHandlerFunc func(context.Context, *Event) error

// HandleEvent implements EventHandler
func (f EventHandlerFunc) HandleEvent(ctx context.Context, evt *Event) error {
	return f(ctx, evt)
}

type fanout []EventBus

// PublishEvent hands the event to every bus, a failing bus doesn't stop the others
func (f fanout) PublishEvent(ctx context.Context, evt *Event) error {
	var errs []error
	for _, bus := range f {
		if err := bus.PublishEvent(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanout) Close() {
	for _, bus := range f {
		bus.Close()
	}
}

// NewCombinedEventBus publishes on every non nil bus
func NewCombinedEventBus(buses ...EventBus) EventBus {
	out := make(fanout, 0, len(buses))
	for _, bus := range buses {
		if bus != nil {
			out = append(out, bus)
		}
	}
	return out
}
