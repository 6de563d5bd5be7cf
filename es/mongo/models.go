package mongo

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

const (
	// StreamsCollection holds one head document per object
	StreamsCollection = "streams"
	// EventsCollection holds the events of every stream
	EventsCollection = "events"
	// StatusCollection holds the projection status entries
	StatusCollection = "projection_status"
)

// StreamDB is the head of an object and its active stream
type StreamDB struct {
	ObjectName string `bson:"object_name"`
	ObjectID   string `bson:"object_id"`
	StreamID   string `bson:"stream_id"`
	Version    int64  `bson:"version"`
}

// EventDB defines the structure of the events to be stored
type EventDB struct {
	StreamID  string                 `bson:"streamid"`
	Version   int64                  `bson:"version"`
	Type      string                 `bson:"type"`
	Timestamp time.Time              `bson:"timestamp"`
	Data      *bson.RawValue         `bson:"data,omitempty"`
	Metadata  map[string]interface{} `bson:"metadata,omitempty"`
}
