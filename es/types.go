package es

import (
	"fmt"
	"reflect"
	"time"
)

// Metadata keys naming the object owning an event
const (
	MetadataObjectName = "object_name"
	MetadataObjectID   = "object_id"
)

// Event is a single entry of a stream
type Event struct {
	StreamID  string                 `json:"stream_id"`
	Version   int64                  `json:"version"`
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      interface{}            `json:"data"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// String implements the String method of the Event interface.
func (e Event) String() string {
	return fmt.Sprintf("%s@%d", e.Type, e.Version)
}

// VersionIdentifier returns the position of the event in its stream
func (e *Event) VersionIdentifier() VersionIdentifier {
	return NewVersionIdentifier(e.StreamID, e.Version)
}

// Object returns the owning object recorded in the metadata
func (e *Event) Object() (ObjectIdentifier, bool) {
	name, _ := e.Metadata[MetadataObjectName].(string)
	id, _ := e.Metadata[MetadataObjectID].(string)
	if name == "" || id == "" {
		return ObjectIdentifier{}, false
	}
	return NewObjectIdentifier(name, id), true
}

// NewEvent will create an event from data
func NewEvent(data interface{}) *Event {
	_, typeName := GetTypeName(data)
	return &Event{
		Type:      typeName,
		Timestamp: GetTimestamp(),
		Data:      data,
	}
}

// NewEventForStream creates an event at a position of a stream
func NewEventForStream(streamID string, version int64, data interface{}) *Event {
	evt := NewEvent(data)
	evt.StreamID = streamID
	evt.Version = version
	return evt
}

// NewEventForDocument creates the next event of a document's stream
func NewEventForDocument(doc *Document, version int64, data interface{}) *Event {
	evt := NewEventForStream(doc.StreamID, version, data)
	evt.Metadata = map[string]interface{}{
		MetadataObjectName: doc.ObjectName,
		MetadataObjectID:   doc.ObjectID,
	}
	return evt
}

// Stream is the head of an event stream
type Stream struct {
	ID      string
	Type    string
	Version int64
}

// NewStream creates a stream head
func NewStream(id string, sType string, version int64) *Stream {
	return &Stream{
		ID:      id,
		Type:    sType,
		Version: version,
	}
}

// GetTimestamp returns the current time in UTC
func GetTimestamp() time.Time {
	return time.Now().UTC()
}

// GetTypeName returns the dereferenced type and its name
func GetTypeName(source interface{}) (reflect.Type, string) {
	rawType := reflect.TypeOf(source)
	if rawType == nil {
		return nil, ""
	}

	// source is a pointer, convert to its value
	if rawType.Kind() == reflect.Ptr {
		rawType = rawType.Elem()
	}

	return rawType, rawType.Name()
}
