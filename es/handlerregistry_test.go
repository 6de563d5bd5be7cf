package es

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Renamed struct {
	Name string
}

type registryHost struct {
	handlers *HandlerRegistry
}

func (h *registryHost) Handlers() *HandlerRegistry {
	return h.handlers
}

func TestHandlerRegistrySet(t *testing.T) {
	r := NewHandlerRegistry()

	assert.Error(t, r.Set("", func(context.Context, *FoldContext) error { return nil }))
	assert.Error(t, r.Set("Renamed", nil))
	assert.Nil(t, r.Get("Renamed"))

	require.NoError(t, r.Set("Renamed", func(context.Context, *FoldContext) error { return nil }))
	assert.NotNil(t, r.Get("Renamed"))
	assert.Equal(t, []string{"Renamed"}, r.Types())
}

func TestWhen(t *testing.T) {
	host := &registryHost{handlers: NewHandlerRegistry()}

	var got string
	When(host, func(ctx context.Context, fc *FoldContext, e *Renamed) error {
		got = e.Name
		return nil
	})

	handler := host.handlers.Get("Renamed")
	require.NotNil(t, handler)

	require.NoError(t, handler(context.Background(), &FoldContext{Event: NewEvent(&Renamed{Name: "ptr"})}))
	assert.Equal(t, "ptr", got)

	require.NoError(t, handler(context.Background(), &FoldContext{Event: NewEvent(Renamed{Name: "value"})}))
	assert.Equal(t, "value", got)

	evt := NewEvent(&Renamed{})
	evt.Data = "not a payload"
	assert.Error(t, handler(context.Background(), &FoldContext{Event: evt}))
}

func TestParam(t *testing.T) {
	fc := &FoldContext{
		Document: &Document{ObjectName: "order", ObjectID: "1"},
		Event:    NewEvent(&Renamed{}),
		parameters: map[string]ParameterFactory{
			"owner": ParameterFunc(func(doc *Document, evt *Event) (interface{}, error) {
				return doc.ObjectName + "/" + doc.ObjectID, nil
			}),
			"broken": ParameterFunc(func(*Document, *Event) (interface{}, error) {
				return nil, errors.New("broken")
			}),
		},
	}

	owner, err := Param[string](fc, "owner")
	require.NoError(t, err)
	assert.Equal(t, "order/1", owner)

	_, err = Param[int](fc, "owner")
	assert.Error(t, err)

	_, err = Param[string](fc, "missing")
	assert.Error(t, err)

	_, err = fc.Param("broken")
	assert.EqualError(t, err, "broken")
}

func TestEventRegistry(t *testing.T) {
	registry := NewEventRegistry()
	registry.Set(&Renamed{})

	data, err := registry.Factory()("Renamed")
	require.NoError(t, err)
	assert.IsType(t, &Renamed{}, data)

	_, err = registry.Get("Missing")
	assert.True(t, errors.Is(err, ErrUnknownEventType))
}
