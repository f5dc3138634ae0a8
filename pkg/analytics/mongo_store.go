package analytics

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// DefaultCollection is the collection events are written to.
const DefaultCollection = "analytics_events"

// MongoStore writes events to a MongoDB collection.
type MongoStore struct {
	coll *mongo.Collection
}

var _ Store = (*MongoStore)(nil)

// NewMongoStore creates a store on db's DefaultCollection.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{coll: db.Collection(DefaultCollection)}
}

// EnsureIndexes creates the tenant/name/time index Count relies on.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "name", Value: 1}, {Key: "occurred_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create analytics index: %w", err)
	}
	return nil
}

// Insert upserts e by id.
func (s *MongoStore) Insert(ctx context.Context, e Event) error {
	if err := e.validate(); err != nil {
		return err
	}
	_, err := s.coll.ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: e.ID}},
		e,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert analytics event: %w", err)
	}
	return nil
}

// Count returns how many events named name the tenant recorded since since.
func (s *MongoStore) Count(ctx context.Context, tenantID, name string, since time.Time) (int64, error) {
	n, err := s.coll.CountDocuments(ctx, bson.D{
		{Key: "tenant_id", Value: tenantID},
		{Key: "name", Value: name},
		{Key: "occurred_at", Value: bson.D{{Key: "$gte", Value: since}}},
	})
	if err != nil {
		return 0, fmt.Errorf("count analytics events: %w", err)
	}
	return n, nil
}
