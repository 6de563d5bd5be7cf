package basic

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/contextgg/go-projections/es"
)

// ErrProjectionNil guard our function
var ErrProjectionNil = errors.New("Projection is nil")

type storedProjection struct {
	snapshot *es.ProjectionSnapshot
	state    []byte
}

// ProjectionStore is an in-memory es.ProjectionFactory for one projection type.
// Saved projections are copied so later changes to an instance are not visible
// until it is saved again.
type ProjectionStore struct {
	sync.RWMutex
	typeName  string
	create    es.ProjectionCreator
	documents es.DocumentFactory
	streams   es.EventStreamFactory
	stored    map[string]map[string]storedProjection
}

var _ es.ProjectionFactory = (*ProjectionStore)(nil)

// NewProjectionStore creates a store for projections of typeName
func NewProjectionStore(typeName string, create es.ProjectionCreator, documents es.DocumentFactory, streams es.EventStreamFactory) *ProjectionStore {
	return &ProjectionStore{
		typeName:  typeName,
		create:    create,
		documents: documents,
		streams:   streams,
		stored:    make(map[string]map[string]storedProjection),
	}
}

func (s *ProjectionStore) name(versionName string) string {
	if versionName == "" {
		return s.typeName
	}
	return versionName
}

// TypeName implements es.ProjectionFactory
func (s *ProjectionStore) TypeName() string {
	return s.typeName
}

// Exists implements es.ProjectionFactory
func (s *ProjectionStore) Exists(ctx context.Context, objectID, versionName string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.RLock()
	defer s.RUnlock()

	_, ok := s.stored[s.name(versionName)][objectID]
	return ok, nil
}

// GetOrCreate implements es.ProjectionFactory
func (s *ProjectionStore) GetOrCreate(ctx context.Context, objectID, versionName string) (es.Projection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p := s.create(objectID)
	p.SetFactories(s.documents, s.streams)

	s.RLock()
	stored, ok := s.stored[s.name(versionName)][objectID]
	s.RUnlock()
	if !ok {
		return p, nil
	}

	p.Restore(stored.snapshot)
	if model := p.ReadModel(); model != nil && stored.state != nil {
		if err := json.Unmarshal(stored.state, model); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Save implements es.ProjectionFactory
func (s *ProjectionStore) Save(ctx context.Context, projection es.Projection, versionName string) error {
	if projection == nil {
		return ErrProjectionNil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	stored := storedProjection{
		snapshot: projection.Snapshot(),
	}
	if model := projection.ReadModel(); model != nil {
		blob, err := json.Marshal(model)
		if err != nil {
			return err
		}
		stored.state = blob
	}

	s.Lock()
	defer s.Unlock()

	name := s.name(versionName)
	if s.stored[name] == nil {
		s.stored[name] = make(map[string]storedProjection)
	}
	s.stored[name][projection.ObjectID()] = stored
	return nil
}
