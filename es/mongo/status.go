package mongo

import (
	"context"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/contextgg/go-projections/es"
)

// StatusStore persists projection status in mongodb
type StatusStore struct {
	db *mongo.Database
}

var _ es.StatusStore = (*StatusStore)(nil)

// NewStatusStore creates the store and its unique key index
func NewStatusStore(ctx context.Context, db *mongo.Database) (*StatusStore, error) {
	index := mongo.IndexModel{
		Keys: bson.D{
			{Key: "projection_name", Value: 1},
			{Key: "object_id", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	}
	if _, err := db.
		Collection(StatusCollection).
		Indexes().
		CreateOne(ctx, index); err != nil {
		return nil, err
	}
	return &StatusStore{db}, nil
}

func statusFilter(projectionName, objectID string) bson.M {
	return bson.M{
		"projection_name": projectionName,
		"object_id":       objectID,
	}
}

// Get returns nil when nothing was stored for the key
func (s *StatusStore) Get(ctx context.Context, projectionName, objectID string) (*es.StatusInfo, error) {
	info := &es.StatusInfo{}
	if err := s.db.
		Collection(StatusCollection).
		FindOne(ctx, statusFilter(projectionName, objectID)).
		Decode(info); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		log.
			Error().
			Err(err).
			Str("projection", projectionName).
			Str("objectid", objectID).
			Msg("Could not load projection status")
		return nil, err
	}
	return info, nil
}

// Put replaces the entry, last write wins
func (s *StatusStore) Put(ctx context.Context, info *es.StatusInfo) error {
	replaceOptions := options.
		Replace().
		SetUpsert(true)

	_, err := s.db.
		Collection(StatusCollection).
		ReplaceOne(ctx, statusFilter(info.ProjectionName, info.ObjectID), info, replaceOptions)
	return err
}

// ListByStatus returns entries in any of the statuses ordered by key
func (s *StatusStore) ListByStatus(ctx context.Context, statuses ...es.ProjectionStatus) ([]*es.StatusInfo, error) {
	out := []*es.StatusInfo{}
	if len(statuses) == 0 {
		return out, nil
	}

	values := make([]int, len(statuses))
	for i, status := range statuses {
		values[i] = int(status)
	}
	query := bson.M{
		"status": bson.M{"$in": values},
	}
	findOptions := options.
		Find().
		SetSort(bson.D{
			{Key: "projection_name", Value: 1},
			{Key: "object_id", Value: 1},
		})

	cur, err := s.db.
		Collection(StatusCollection).
		Find(ctx, query, findOptions)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		info := &es.StatusInfo{}
		if err := cur.Decode(info); err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, cur.Err()
}

// Close underlying connection
func (s *StatusStore) Close() error {
	if s.db != nil {
		return s.db.
			Client().
			Disconnect(context.TODO())
	}
	return nil
}
