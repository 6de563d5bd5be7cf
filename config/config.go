package config

import (
	"context"
	"time"

	"github.com/contextgg/go-projections/es"
	"github.com/contextgg/go-projections/es/basic"
	"github.com/contextgg/go-projections/es/mongo"
	"github.com/contextgg/go-projections/es/nats"
	"github.com/contextgg/go-projections/es/sqlite"
)

// StatusStore returns an es.StatusStore impl
type StatusStore func() (es.StatusStore, error)

// EventBus returns an es.EventBus impl
type EventBus func() (es.EventBus, error)

// Client has the shared infrastructure of the projection engine
type Client struct {
	StatusStore es.StatusStore
	EventBus    es.EventBus
	Coordinator *es.Coordinator
}

// Close all the underlying services
func (c *Client) Close() {
	if c.EventBus != nil {
		c.EventBus.Close()
	}
	if c.StatusStore != nil {
		c.StatusStore.Close()
	}
}

// NewClient will create the status store, the event bus and a coordinator over them
func NewClient(storeFactory StatusStore, eventBusFactory EventBus, opts ...es.CoordinatorOption) (*Client, error) {
	store, err := storeFactory()
	if err != nil {
		return nil, err
	}

	eventBus, err := eventBusFactory()
	if err != nil {
		store.Close()
		return nil, err
	}

	opts = append([]es.CoordinatorOption{es.WithEventBus(eventBus)}, opts...)
	client := &Client{
		StatusStore: store,
		EventBus:    eventBus,
		Coordinator: es.NewCoordinator(store, opts...),
	}
	return client, nil
}

// LocalStatusStore used for testing and single process deployments
func LocalStatusStore() StatusStore {
	return func() (es.StatusStore, error) {
		return basic.NewStatusStore(), nil
	}
}

// SQLiteStatusStore generates a SQLite implementation of StatusStore
func SQLiteStatusStore(path string) StatusStore {
	return func() (es.StatusStore, error) {
		return sqlite.NewStatusStore(path)
	}
}

// MongoStatusStore generates a MongoDB implementation of StatusStore
func MongoStatusStore(uri, db string, timeout time.Duration) StatusStore {
	return func() (es.StatusStore, error) {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		database, err := mongo.Connect(ctx, uri, db)
		if err != nil {
			return nil, err
		}
		return mongo.NewStatusStore(ctx, database)
	}
}

// LocalPublisher used for testing
func LocalPublisher() EventBus {
	return func() (es.EventBus, error) {
		return basic.NewEventBus(), nil
	}
}

// Combined publishes on every bus the factories create
func Combined(factories ...EventBus) EventBus {
	return func() (es.EventBus, error) {
		buses := make([]es.EventBus, 0, len(factories))
		for _, f := range factories {
			bus, err := f()
			if err != nil {
				for _, b := range buses {
					b.Close()
				}
				return nil, err
			}
			buses = append(buses, bus)
		}
		return es.NewCombinedEventBus(buses...), nil
	}
}

// Nats generates a Nats implementation of EventBus
func Nats(uri string, useTLS bool, namespace string) EventBus {
	return func() (es.EventBus, error) {
		return nats.NewClient(uri, useTLS, namespace)
	}
}
