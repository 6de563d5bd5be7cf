package es

import (
	"context"
	"fmt"
	"sync"
)

// FoldHandler folds one event into a projection
type FoldHandler func(ctx context.Context, fc *FoldContext) error

// FoldMiddleware wraps the dispatch of an event
type FoldMiddleware func(next FoldHandler) FoldHandler

// HandlerRegistry maps event type names to fold handlers. Handlers are
// resolved once at setup, dispatch is a map lookup.
type HandlerRegistry struct {
	sync.RWMutex
	registry map[string]FoldHandler
}

// NewHandlerRegistry creates an empty registry
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		registry: make(map[string]FoldHandler),
	}
}

// Set registers the handler for an event type name
func (r *HandlerRegistry) Set(eventType string, handler FoldHandler) error {
	if eventType == "" {
		return fmt.Errorf("You need to supply an event type")
	}
	if handler == nil {
		return fmt.Errorf("You need to supply a handler for %s", eventType)
	}

	r.Lock()
	defer r.Unlock()

	r.registry[eventType] = handler
	return nil
}

// Get returns the handler of an event type, nil when none is registered
func (r *HandlerRegistry) Get(eventType string) FoldHandler {
	r.RLock()
	defer r.RUnlock()

	return r.registry[eventType]
}

// Types returns the registered event type names
func (r *HandlerRegistry) Types() []string {
	r.RLock()
	defer r.RUnlock()

	out := make([]string, 0, len(r.registry))
	for k := range r.registry {
		out = append(out, k)
	}
	return out
}

// ParameterFactory builds a typed value for a handler from the document and event
type ParameterFactory interface {
	Create(doc *Document, evt *Event) (interface{}, error)
}

// ParameterFunc adapts a function to ParameterFactory
type ParameterFunc func(doc *Document, evt *Event) (interface{}, error)

// Create implements ParameterFactory
func (f ParameterFunc) Create(doc *Document, evt *Event) (interface{}, error) {
	return f(doc, evt)
}

// FoldContext is what a handler sees while an event is dispatched
type FoldContext struct {
	Document *Document
	Event    *Event
	Token    *VersionToken

	parameters map[string]ParameterFactory
}

// Param resolves a registered parameter for the current event
func (fc *FoldContext) Param(key string) (interface{}, error) {
	factory, ok := fc.parameters[key]
	if !ok {
		return nil, fmt.Errorf("no parameter factory registered for %q", key)
	}
	return factory.Create(fc.Document, fc.Event)
}

// Param resolves a parameter and asserts its type
func Param[T any](fc *FoldContext, key string) (T, error) {
	var zero T
	v, err := fc.Param(key)
	if err != nil {
		return zero, err
	}
	out, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("parameter %q is %T, want %T", key, v, zero)
	}
	return out, nil
}

// handlerSetter is implemented by projections embedding BaseProjection
type handlerSetter interface {
	Handlers() *HandlerRegistry
}

// When registers a typed handler keyed by the payload type name
func When[T any](p handlerSetter, fn func(ctx context.Context, fc *FoldContext, data *T) error) {
	var zero T
	_, name := GetTypeName(zero)

	// the name is never empty for a concrete T so Set can't fail
	_ = p.Handlers().Set(name, func(ctx context.Context, fc *FoldContext) error {
		switch d := fc.Event.Data.(type) {
		case *T:
			return fn(ctx, fc, d)
		case T:
			return fn(ctx, fc, &d)
		}
		return fmt.Errorf("event %s: unexpected payload %T", fc.Event.Type, fc.Event.Data)
	})
}
