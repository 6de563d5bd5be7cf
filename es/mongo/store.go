package mongo

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/contextgg/go-projections/es"
)

var (
	// ErrVersionMismatch when the stored version doesn't match
	ErrVersionMismatch = errors.New("Stream version mismatch")
)

// Store reads documents and event streams from mongodb and pages through
// object ids with a keyset on the object id
type Store struct {
	db      *mongo.Database
	factory es.EventDataFactory
}

var (
	_ es.DocumentFactory    = (*Store)(nil)
	_ es.EventStreamFactory = (*Store)(nil)
	_ es.ObjectIDProvider   = (*Store)(nil)
)

// NewStore generates a new store to access to mongodb
func NewStore(db *mongo.Database, factory es.EventDataFactory) *Store {
	return &Store{db, factory}
}

// Connect dials mongodb and returns the database
func Connect(ctx context.Context, uri, db string) (*mongo.Database, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}
	return client.Database(db), nil
}

func documentFilter(objectName, objectID string) bson.M {
	return bson.M{
		"object_name": objectName,
		"object_id":   objectID,
	}
}

// Get implements es.DocumentFactory
func (c *Store) Get(ctx context.Context, objectName, objectID string) (*es.Document, error) {
	logger := log.
		With().
		Str("objectname", objectName).
		Str("objectid", objectID).
		Logger()

	stream := &StreamDB{}
	if err := c.db.
		Collection(StreamsCollection).
		FindOne(ctx, documentFilter(objectName, objectID)).
		Decode(stream); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		logger.
			Error().
			Err(err).
			Msg("Could not load stream")
		return nil, err
	}

	return &es.Document{
		ObjectName: stream.ObjectName,
		ObjectID:   stream.ObjectID,
		StreamID:   stream.StreamID,
		Version:    stream.Version,
	}, nil
}

// GetOrCreate implements es.DocumentFactory
func (c *Store) GetOrCreate(ctx context.Context, objectName, objectID string) (*es.Document, error) {
	doc, err := c.Get(ctx, objectName, objectID)
	if err != nil || doc != nil {
		return doc, err
	}

	updateOptions := options.
		Update().
		SetUpsert(true)
	update := bson.M{
		"$setOnInsert": bson.M{
			"object_name": objectName,
			"object_id":   objectID,
			"stream_id":   uuid.New().String(),
			"version":     int64(0),
		},
	}

	if _, err := c.db.
		Collection(StreamsCollection).
		UpdateOne(ctx, documentFilter(objectName, objectID), update, updateOptions); err != nil {
		log.
			Error().
			Err(err).
			Str("objectname", objectName).
			Str("objectid", objectID).
			Msg("Could not insert stream")
		return nil, err
	}

	// another writer may have won the upsert, read back whatever is stored
	return c.Get(ctx, objectName, objectID)
}

// Append stores events at the end of the active stream of an object
func (c *Store) Append(ctx context.Context, objectName, objectID string, data ...interface{}) ([]*es.Event, error) {
	if len(data) == 0 {
		return []*es.Event{}, nil
	}

	doc, err := c.GetOrCreate(ctx, objectName, objectID)
	if err != nil {
		return nil, err
	}

	logger := log.
		With().
		Str("streamid", doc.StreamID).
		Int64("version", doc.Version).
		Logger()

	events := make([]*es.Event, 0, len(data))
	items := make([]interface{}, 0, len(data))
	for i, d := range data {
		event := es.NewEventForDocument(doc, doc.Version+int64(i)+1, d)

		b, err := bson.Marshal(event.Data)
		if err != nil {
			return nil, err
		}
		items = append(items, &EventDB{
			StreamID:  event.StreamID,
			Version:   event.Version,
			Type:      event.Type,
			Timestamp: event.Timestamp,
			Metadata:  event.Metadata,
			Data: &bson.RawValue{
				Type:  bson.TypeEmbeddedDocument,
				Value: b,
			},
		})
		events = append(events, event)
	}

	filter := documentFilter(objectName, objectID)
	filter["version"] = doc.Version
	update := bson.M{
		"$set": bson.M{
			"version": events[len(events)-1].Version,
		},
	}
	res, err := c.db.
		Collection(StreamsCollection).
		UpdateOne(ctx, filter, update)
	if err != nil {
		logger.
			Error().
			Err(err).
			Msg("Error saving stream")
		return nil, err
	}
	if res.MatchedCount == 0 {
		logger.
			Error().
			Err(ErrVersionMismatch).
			Msg("Version issues")
		return nil, ErrVersionMismatch
	}

	if _, err := c.db.
		Collection(EventsCollection).
		InsertMany(ctx, items); err != nil {
		logger.
			Error().
			Err(err).
			Msg("Could not insert many events")
		return nil, err
	}
	return events, nil
}

// Create implements es.EventStreamFactory
func (c *Store) Create(doc *es.Document) es.EventStream {
	return &stream{store: c, streamID: doc.StreamID}
}

type stream struct {
	store    *Store
	streamID string
}

func (s *stream) Read(ctx context.Context, fromVersion, toVersion int64) ([]*es.Event, error) {
	logger := log.
		With().
		Str("streamid", s.streamID).
		Int64("fromVersion", fromVersion).
		Int64("toVersion", toVersion).
		Logger()

	query := bson.M{
		"streamid": s.streamID,
		"version": bson.M{
			"$gte": fromVersion,
			"$lte": toVersion,
		},
	}
	findOptions := options.
		Find().
		SetSort(bson.D{{Key: "version", Value: 1}})

	cur, err := s.store.db.
		Collection(EventsCollection).
		Find(ctx, query, findOptions)
	if err != nil {
		logger.
			Error().
			Err(err).
			Msg("Couldn't find events")
		return nil, err
	}
	defer cur.Close(ctx)

	events := []*es.Event{}
	for cur.Next(ctx) {
		var item EventDB
		if err := cur.Decode(&item); err != nil {
			return nil, err
		}

		data, err := s.store.factory(item.Type)
		if err != nil {
			logger.
				Error().
				Err(err).
				Str("type", item.Type).
				Msg("Issue creating the factory")
			return nil, err
		}
		if item.Data != nil {
			if err := item.Data.Unmarshal(data); err != nil {
				logger.
					Error().
					Err(err).
					Str("type", item.Type).
					Msg("Issue unmarshalling")
				return nil, err
			}
		}

		events = append(events, &es.Event{
			StreamID:  item.StreamID,
			Version:   item.Version,
			Type:      item.Type,
			Data:      data,
			Timestamp: item.Timestamp,
			Metadata:  item.Metadata,
		})
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// GetObjectIDs implements es.ObjectIDProvider. The continuation token is
// the last object id of the previous page.
func (c *Store) GetObjectIDs(ctx context.Context, objectName, continuationToken string, pageSize int) (*es.ObjectIDPage, error) {
	page := &es.ObjectIDPage{IDs: []string{}}
	if pageSize < 1 {
		return page, nil
	}

	query := bson.M{
		"object_name": objectName,
	}
	if continuationToken != "" {
		query["object_id"] = bson.M{"$gt": continuationToken}
	}

	// one extra row tells whether another page exists
	findOptions := options.
		Find().
		SetSort(bson.D{{Key: "object_id", Value: 1}}).
		SetLimit(int64(pageSize) + 1).
		SetProjection(bson.M{"object_id": 1})

	cur, err := c.db.
		Collection(StreamsCollection).
		Find(ctx, query, findOptions)
	if err != nil {
		log.
			Error().
			Err(err).
			Str("objectname", objectName).
			Msg("Couldn't find object ids")
		return nil, err
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var item StreamDB
		if err := cur.Decode(&item); err != nil {
			return nil, err
		}
		page.IDs = append(page.IDs, item.ObjectID)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}

	if len(page.IDs) > pageSize {
		page.IDs = page.IDs[:pageSize]
		page.ContinuationToken = page.IDs[pageSize-1]
	}
	return page, nil
}

// Count implements es.ObjectIDProvider
func (c *Store) Count(ctx context.Context, objectName string) (int64, error) {
	return c.db.
		Collection(StreamsCollection).
		CountDocuments(ctx, bson.M{"object_name": objectName})
}

// Close underlying connection
func (c *Store) Close() error {
	if c.db != nil {
		return c.db.
			Client().
			Disconnect(context.TODO())
	}
	return nil
}
