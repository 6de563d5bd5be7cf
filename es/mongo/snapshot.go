package mongo

import (
	"context"

	"gopkg.in/mgo.v2"
	"gopkg.in/mgo.v2/bson"

	"github.com/contextgg/go-projections/es"
)

// SnapshotClient for access to mongodb
type SnapshotClient struct {
	db      string
	session *mgo.Session
}

// NewSnapshotClient generates a new client to access to mongodb
func NewSnapshotClient(uri, db string) (*SnapshotClient, error) {
	session, err := mgo.Dial(uri)
	if err != nil {
		return nil, err
	}

	session.SetMode(mgo.Monotonic, true)

	cli := &SnapshotClient{
		db,
		session,
	}

	return cli, nil
}

// Projections returns the projection factory for one projection type.
// Every version lives in its own collection named after the version.
func (c *SnapshotClient) Projections(typeName string, create es.ProjectionCreator, documents es.DocumentFactory, streams es.EventStreamFactory) *SnapshotStore {
	return &SnapshotStore{
		client:    c,
		typeName:  typeName,
		create:    create,
		documents: documents,
		streams:   streams,
	}
}

// Close underlying connection
func (c *SnapshotClient) Close() {
	if c.session != nil {
		c.session.Close()
	}
}

// SnapshotStore persists projections of one type as snapshot documents
type SnapshotStore struct {
	client    *SnapshotClient
	typeName  string
	create    es.ProjectionCreator
	documents es.DocumentFactory
	streams   es.EventStreamFactory
}

var _ es.ProjectionFactory = (*SnapshotStore)(nil)

type projectionDB struct {
	ObjectID string                 `bson:"object_id"`
	Meta     *es.ProjectionSnapshot `bson:"meta"`
	State    bson.Raw               `bson:"state,omitempty"`
}

func (s *SnapshotStore) collection(versionName string) string {
	if versionName == "" {
		return s.typeName
	}
	return versionName
}

// TypeName implements es.ProjectionFactory
func (s *SnapshotStore) TypeName() string {
	return s.typeName
}

// Exists implements es.ProjectionFactory
func (s *SnapshotStore) Exists(ctx context.Context, objectID, versionName string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	sess := s.client.session.Copy()
	defer sess.Close()

	n, err := sess.
		DB(s.client.db).
		C(s.collection(versionName)).
		Find(bson.M{"object_id": objectID}).
		Count()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetOrCreate implements es.ProjectionFactory
func (s *SnapshotStore) GetOrCreate(ctx context.Context, objectID, versionName string) (es.Projection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p := s.create(objectID)
	p.SetFactories(s.documents, s.streams)

	sess := s.client.session.Copy()
	defer sess.Close()

	var stored projectionDB
	if err := sess.
		DB(s.client.db).
		C(s.collection(versionName)).
		Find(bson.M{"object_id": objectID}).
		One(&stored); err != nil {
		if err == mgo.ErrNotFound {
			return p, nil
		}
		return nil, err
	}

	p.Restore(stored.Meta)
	if model := p.ReadModel(); model != nil && stored.State.Kind != 0 {
		if err := stored.State.Unmarshal(model); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Save implements es.ProjectionFactory
func (s *SnapshotStore) Save(ctx context.Context, projection es.Projection, versionName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	sess := s.client.session.Copy()
	defer sess.Close()

	id := projection.ObjectID()
	set := bson.M{
		"object_id": id,
		"meta":      projection.Snapshot(),
	}
	if model := projection.ReadModel(); model != nil {
		set["state"] = model
	}

	_, err := sess.
		DB(s.client.db).
		C(s.collection(versionName)).
		Upsert(bson.M{"object_id": id}, bson.M{"$set": set})
	return err
}
