package es

import (
	"context"
)

// Document is the stored head of an object and its active stream
type Document struct {
	ObjectName string `json:"object_name" bson:"object_name"`
	ObjectID   string `json:"object_id" bson:"object_id"`
	StreamID   string `json:"stream_id" bson:"stream_id"`
	Version    int64  `json:"version" bson:"version"`
}

// Identifier returns the object identifier of the document
func (d *Document) Identifier() ObjectIdentifier {
	return NewObjectIdentifier(d.ObjectName, d.ObjectID)
}

// DocumentFactory loads object documents
type DocumentFactory interface {
	// Get returns the document or nil when it does not exist
	Get(ctx context.Context, objectName, objectID string) (*Document, error)
	// GetOrCreate returns the document, creating an empty one if needed
	GetOrCreate(ctx context.Context, objectName, objectID string) (*Document, error)
}

// EventStream reads the events of a single document
type EventStream interface {
	// Read returns events with from <= version <= to, ordered by version.
	// Pass LatestVersion as to for an open range.
	Read(ctx context.Context, fromVersion, toVersion int64) ([]*Event, error)
}

// EventStreamFactory opens the stream of a document
type EventStreamFactory interface {
	Create(doc *Document) EventStream
}

// ObjectIDPage is one page of object ids. An empty ContinuationToken means
// the population is exhausted.
type ObjectIDPage struct {
	IDs               []string
	ContinuationToken string
}

// ObjectIDProvider enumerates object ids per object type
type ObjectIDProvider interface {
	GetObjectIDs(ctx context.Context, objectName, continuationToken string, pageSize int) (*ObjectIDPage, error)
	Count(ctx context.Context, objectName string) (int64, error)
}

// ProjectionCreator creates an empty projection for an object id
type ProjectionCreator func(objectID string) Projection

// ProjectionFactory creates and persists one concrete projection type.
// versionName is empty for the unversioned projection.
type ProjectionFactory interface {
	// TypeName is the bare name used for version naming
	TypeName() string
	Exists(ctx context.Context, objectID, versionName string) (bool, error)
	GetOrCreate(ctx context.Context, objectID, versionName string) (Projection, error)
	Save(ctx context.Context, projection Projection, versionName string) error
}

// StatusStore persists status info keyed by projection name and object id.
// Put is last write wins.
type StatusStore interface {
	Get(ctx context.Context, projectionName, objectID string) (*StatusInfo, error)
	Put(ctx context.Context, info *StatusInfo) error
	ListByStatus(ctx context.Context, statuses ...ProjectionStatus) ([]*StatusInfo, error)
	Close() error
}
