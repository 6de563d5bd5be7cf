package es

import (
	"fmt"
	"reflect"
	"sync"
)

// EventDataFactory creates an empty payload for an event type name
type EventDataFactory func(typeName string) (interface{}, error)

// EventRegistry knows the payload types of stored events
type EventRegistry interface {
	// Set registers the type of data under its type name
	Set(data interface{})
	// Get creates a new pointer for the type name
	Get(typeName string) (interface{}, error)
	// Factory returns Get as an EventDataFactory
	Factory() EventDataFactory
}

// NewEventRegistry creates an empty registry
func NewEventRegistry() EventRegistry {
	return &eventRegistry{
		registry: make(map[string]reflect.Type),
	}
}

type eventRegistry struct {
	sync.RWMutex
	registry map[string]reflect.Type
}

func (r *eventRegistry) Set(data interface{}) {
	rawType, name := GetTypeName(data)
	if rawType == nil {
		return
	}

	r.Lock()
	defer r.Unlock()

	r.registry[name] = rawType
}

func (r *eventRegistry) Get(typeName string) (interface{}, error) {
	r.RLock()
	defer r.RUnlock()

	rawType, ok := r.registry[typeName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, typeName)
	}
	return reflect.New(rawType).Interface(), nil
}

func (r *eventRegistry) Factory() EventDataFactory {
	return r.Get
}
