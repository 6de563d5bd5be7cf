package basic

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/contextgg/go-projections/es"
)

// ErrDocumentNil guard our function
var ErrDocumentNil = errors.New("Document is nil")

// Option so we can inject test data
type Option = func(*MemoryStore)

// AddDocument will add a document with its stream to the store
func AddDocument(doc *es.Document, events ...*es.Event) Option {
	return func(ms *MemoryStore) {
		ms.documents[doc.Identifier()] = doc
		ms.events[doc.StreamID] = append(ms.events[doc.StreamID], events...)
		if n := len(events); n > 0 && events[n-1].Version > doc.Version {
			doc.Version = events[n-1].Version
		}
	}
}

// MemoryStore keeps documents and their streams in memory. It serves as
// document factory, event stream factory and object id provider.
type MemoryStore struct {
	sync.RWMutex
	documents map[es.ObjectIdentifier]*es.Document
	events    map[string][]*es.Event
}

var (
	_ es.DocumentFactory    = (*MemoryStore)(nil)
	_ es.EventStreamFactory = (*MemoryStore)(nil)
	_ es.ObjectIDProvider   = (*MemoryStore)(nil)
)

// NewMemoryStore create boring event store
func NewMemoryStore(opts ...Option) *MemoryStore {
	ms := &MemoryStore{
		documents: make(map[es.ObjectIdentifier]*es.Document),
		events:    make(map[string][]*es.Event),
	}

	for _, opt := range opts {
		opt(ms)
	}

	return ms
}

func streamID(objectName, objectID string) string {
	return fmt.Sprintf("%s.%s", objectName, objectID)
}

// Get implements es.DocumentFactory
func (b *MemoryStore) Get(ctx context.Context, objectName, objectID string) (*es.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.RLock()
	defer b.RUnlock()

	doc, ok := b.documents[es.NewObjectIdentifier(objectName, objectID)]
	if !ok {
		return nil, nil
	}
	out := *doc
	return &out, nil
}

// GetOrCreate implements es.DocumentFactory
func (b *MemoryStore) GetOrCreate(ctx context.Context, objectName, objectID string) (*es.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.Lock()
	defer b.Unlock()

	obj := es.NewObjectIdentifier(objectName, objectID)
	doc, ok := b.documents[obj]
	if !ok {
		doc = &es.Document{
			ObjectName: objectName,
			ObjectID:   objectID,
			StreamID:   streamID(objectName, objectID),
		}
		b.documents[obj] = doc
	}
	out := *doc
	return &out, nil
}

// Append adds events to the active stream of an object, creating the
// document when needed, and returns them with their stream positions
func (b *MemoryStore) Append(ctx context.Context, objectName, objectID string, data ...interface{}) ([]*es.Event, error) {
	doc, err := b.GetOrCreate(ctx, objectName, objectID)
	if err != nil {
		return nil, err
	}

	b.Lock()
	defer b.Unlock()

	stored := b.documents[doc.Identifier()]
	out := make([]*es.Event, 0, len(data))
	for _, d := range data {
		stored.Version++
		evt := es.NewEventForDocument(stored, stored.Version, d)
		b.events[stored.StreamID] = append(b.events[stored.StreamID], evt)
		out = append(out, evt)
	}
	return out, nil
}

// SwitchStream points the document of an object at a new empty stream
func (b *MemoryStore) SwitchStream(ctx context.Context, objectName, objectID, newStreamID string) error {
	doc, err := b.GetOrCreate(ctx, objectName, objectID)
	if err != nil {
		return err
	}

	b.Lock()
	defer b.Unlock()

	stored := b.documents[doc.Identifier()]
	stored.StreamID = newStreamID
	stored.Version = 0
	return nil
}

// Create implements es.EventStreamFactory
func (b *MemoryStore) Create(doc *es.Document) es.EventStream {
	return &memoryStream{store: b, streamID: doc.StreamID}
}

type memoryStream struct {
	store    *MemoryStore
	streamID string
}

func (s *memoryStream) Read(ctx context.Context, fromVersion, toVersion int64) ([]*es.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.store.RLock()
	defer s.store.RUnlock()

	filtered := []*es.Event{}
	for _, e := range s.store.events[s.streamID] {
		if e.Version >= fromVersion && e.Version <= toVersion {
			filtered = append(filtered, e)
		}
	}
	return filtered, nil
}

func (b *MemoryStore) ids(objectName string) []string {
	out := []string{}
	for k := range b.documents {
		if k.ObjectName == objectName {
			out = append(out, k.ObjectID)
		}
	}
	sort.Strings(out)
	return out
}

// GetObjectIDs implements es.ObjectIDProvider. The continuation token is the
// last id of the previous page.
func (b *MemoryStore) GetObjectIDs(ctx context.Context, objectName, continuationToken string, pageSize int) (*es.ObjectIDPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.RLock()
	defer b.RUnlock()

	return pageOf(b.ids(objectName), continuationToken, pageSize), nil
}

// Count implements es.ObjectIDProvider
func (b *MemoryStore) Count(ctx context.Context, objectName string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	b.RLock()
	defer b.RUnlock()

	return int64(len(b.ids(objectName))), nil
}

// pageOf slices sorted ids after the token
func pageOf(ids []string, after string, pageSize int) *es.ObjectIDPage {
	start := 0
	if after != "" {
		start = sort.SearchStrings(ids, after)
		if start < len(ids) && ids[start] == after {
			start++
		}
	}
	if pageSize <= 0 {
		return &es.ObjectIDPage{IDs: []string{}}
	}

	end := start + pageSize
	if end > len(ids) {
		end = len(ids)
	}
	page := &es.ObjectIDPage{
		IDs: append([]string{}, ids[start:end]...),
	}
	if end < len(ids) {
		page.ContinuationToken = ids[end-1]
	}
	return page
}
