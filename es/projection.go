package es

import (
	"context"
	"fmt"
)

// Projection is a read model folded from one or more event streams
type Projection interface {
	// Name is the projection type name
	Name() string
	ObjectID() string

	Checkpoint() *Checkpoint
	Lifecycle() *Lifecycle

	// SchemaVersion is the schema the stored state was built with,
	// CodeSchemaVersion the one the running code expects.
	SchemaVersion() int
	CodeSchemaVersion() int
	NeedsSchemaUpgrade() bool

	// SetFactories gives the projection access to documents and streams
	SetFactories(DocumentFactory, EventStreamFactory)

	// Fold applies an event of the document's stream if it is newer than
	// the checkpoint. It returns false for an already seen event.
	Fold(ctx context.Context, doc *Document, evt *Event) (bool, error)

	// UpdateToVersion reads and folds the events needed to reach target
	// and returns how many were applied.
	UpdateToVersion(ctx context.Context, target *Checkpoint) (int64, error)

	Snapshot() *ProjectionSnapshot
	Restore(*ProjectionSnapshot)

	// ReadModel returns a pointer to the state that gets persisted
	ReadModel() interface{}
}

// ProjectionSnapshot is the persisted bookkeeping of a projection
type ProjectionSnapshot struct {
	Name          string            `json:"name" bson:"name"`
	ObjectID      string            `json:"object_id" bson:"object_id"`
	SchemaVersion int               `json:"schema_version" bson:"schema_version"`
	Checkpoint    []CheckpointEntry `json:"checkpoint" bson:"checkpoint"`
	Fingerprint   string            `json:"fingerprint" bson:"fingerprint"`
	Lifecycle     LifecycleState    `json:"lifecycle" bson:"lifecycle"`
	Routes        *RoutedSnapshot   `json:"routes,omitempty" bson:"routes,omitempty"`
}

// BaseProjection to make our projections smaller
type BaseProjection struct {
	name              string
	objectID          string
	schemaVersion     int
	codeSchemaVersion int

	checkpoint *Checkpoint
	lifecycle  *Lifecycle
	handlers   *HandlerRegistry
	parameters map[string]ParameterFactory
	middleware []FoldMiddleware

	documents DocumentFactory
	streams   EventStreamFactory
}

// Initialize the projection with its name, object id and the schema version of the code
func (p *BaseProjection) Initialize(name, objectID string, codeSchemaVersion int) {
	p.name = name
	p.objectID = objectID
	p.codeSchemaVersion = codeSchemaVersion
	p.schemaVersion = codeSchemaVersion
	p.ensure()
}

func (p *BaseProjection) ensure() {
	if p.checkpoint == nil {
		p.checkpoint = NewCheckpoint()
	}
	if p.lifecycle == nil {
		p.lifecycle = NewLifecycle()
	}
	if p.handlers == nil {
		p.handlers = NewHandlerRegistry()
	}
	if p.parameters == nil {
		p.parameters = make(map[string]ParameterFactory)
	}
}

// Name returns the projection type name
func (p *BaseProjection) Name() string {
	return p.name
}

// ObjectID returns the id the projection was loaded for
func (p *BaseProjection) ObjectID() string {
	return p.objectID
}

// Checkpoint returns the live checkpoint
func (p *BaseProjection) Checkpoint() *Checkpoint {
	p.ensure()
	return p.checkpoint
}

// Lifecycle returns the status state machine
func (p *BaseProjection) Lifecycle() *Lifecycle {
	p.ensure()
	return p.lifecycle
}

// Handlers returns the fold handler registry
func (p *BaseProjection) Handlers() *HandlerRegistry {
	p.ensure()
	return p.handlers
}

// SchemaVersion returns the schema the state was built with
func (p *BaseProjection) SchemaVersion() int {
	return p.schemaVersion
}

// CodeSchemaVersion returns the schema the code expects
func (p *BaseProjection) CodeSchemaVersion() int {
	return p.codeSchemaVersion
}

// NeedsSchemaUpgrade is true when the stored schema differs from the code
func (p *BaseProjection) NeedsSchemaUpgrade() bool {
	return p.schemaVersion != p.codeSchemaVersion
}

// SetFactories implements Projection
func (p *BaseProjection) SetFactories(documents DocumentFactory, streams EventStreamFactory) {
	p.documents = documents
	p.streams = streams
}

// RegisterParameter adds a capability keyed parameter factory for handlers
func (p *BaseProjection) RegisterParameter(key string, factory ParameterFactory) {
	p.ensure()
	p.parameters[key] = factory
}

// Use adds a middleware around event dispatch, first added is outermost
func (p *BaseProjection) Use(mw FoldMiddleware) {
	p.middleware = append(p.middleware, mw)
}

// StartRebuild starts a rebuild recording the current checkpoint fingerprint
func (p *BaseProjection) StartRebuild(strategy RebuildStrategy, sourceVersion int) error {
	return p.Lifecycle().StartRebuild(strategy, sourceVersion, p.Checkpoint().Fingerprint())
}

// ReadModel is nil for projections without persisted state
func (p *BaseProjection) ReadModel() interface{} {
	return nil
}

// Fold implements Projection
func (p *BaseProjection) Fold(ctx context.Context, doc *Document, evt *Event) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.ensure()

	object := doc.Identifier()
	token := NewVersionToken(object, evt.VersionIdentifier())
	newer, err := p.isNewer(doc, token)
	if err != nil {
		return false, err
	}
	if !newer {
		return false, nil
	}

	handler := p.handlers.Get(evt.Type)
	run := func(ctx context.Context, fc *FoldContext) error {
		if handler == nil {
			return nil
		}
		return handler(ctx, fc)
	}
	for i := len(p.middleware) - 1; i >= 0; i-- {
		run = p.middleware[i](run)
	}

	fc := &FoldContext{
		Document:   doc,
		Event:      evt,
		Token:      token,
		parameters: p.parameters,
	}
	if err := run(ctx, fc); err != nil {
		return false, &FoldError{Event: evt, Err: err}
	}

	p.checkpoint.Advance(object, evt.VersionIdentifier())
	return true, nil
}

// isNewer compares within a stream. An event of the document's current
// stream is new when the checkpoint still records another stream, events
// of a stream the document has left are not.
func (p *BaseProjection) isNewer(doc *Document, token *VersionToken) (bool, error) {
	seen := p.checkpoint.Token(token.Object)
	if seen == nil || seen.Version.StreamID == token.Version.StreamID {
		return IsNewer(token, seen)
	}
	return doc.StreamID == "" || doc.StreamID == token.Version.StreamID, nil
}

// UpdateToVersion implements Projection
func (p *BaseProjection) UpdateToVersion(ctx context.Context, target *Checkpoint) (int64, error) {
	if p.documents == nil || p.streams == nil {
		return 0, ErrNotInitialized
	}
	p.ensure()

	var applied int64
	for _, entry := range target.Entries() {
		own, seen := p.checkpoint.Get(entry.Object)
		if seen && own.StreamID == entry.Version.StreamID && own.Version >= entry.Version.Version {
			continue
		}

		n, err := p.foldRange(ctx, entry.Object, entry.Version.Version)
		applied += n
		if err != nil {
			return applied, err
		}
	}
	return applied, nil
}

// UpdateToLatest folds everything not yet seen on the given objects
func (p *BaseProjection) UpdateToLatest(ctx context.Context, objects ...ObjectIdentifier) (int64, error) {
	if p.documents == nil || p.streams == nil {
		return 0, ErrNotInitialized
	}
	p.ensure()

	var applied int64
	for _, object := range objects {
		n, err := p.foldRange(ctx, object, LatestVersion)
		applied += n
		if err != nil {
			return applied, err
		}
	}
	return applied, nil
}

// foldRange reads the document's current stream after the checkpoint entry,
// from the start when the entry is for another stream
func (p *BaseProjection) foldRange(ctx context.Context, object ObjectIdentifier, to int64) (int64, error) {
	doc, err := p.documents.Get(ctx, object.ObjectName, object.ObjectID)
	if err != nil {
		return 0, err
	}
	if doc == nil {
		return 0, fmt.Errorf("document %s not found", object)
	}

	from := int64(0)
	if own, ok := p.checkpoint.Get(object); ok && own.StreamID == doc.StreamID {
		from = own.Version + 1
	}
	if from > to {
		return 0, nil
	}

	events, err := p.streams.Create(doc).Read(ctx, from, to)
	if err != nil {
		return 0, err
	}

	var applied int64
	for _, evt := range events {
		ok, err := p.Fold(ctx, doc, evt)
		if err != nil {
			return applied, err
		}
		if ok {
			applied++
		}
	}
	return applied, nil
}

// Snapshot implements Projection
func (p *BaseProjection) Snapshot() *ProjectionSnapshot {
	p.ensure()
	return &ProjectionSnapshot{
		Name:          p.name,
		ObjectID:      p.objectID,
		SchemaVersion: p.schemaVersion,
		Checkpoint:    p.checkpoint.Entries(),
		Fingerprint:   p.checkpoint.Fingerprint(),
		Lifecycle:     p.lifecycle.State(),
	}
}

// Restore implements Projection
func (p *BaseProjection) Restore(s *ProjectionSnapshot) {
	if s == nil {
		return
	}
	p.ensure()
	p.schemaVersion = s.SchemaVersion
	p.checkpoint = NewCheckpointFromEntries(s.Checkpoint)
	p.lifecycle = RestoreLifecycle(s.Lifecycle)
}
