package audit

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
)

const collectionName = "dispatch_audit"

type MongoStore struct {
	collection *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		collection: db.Collection(collectionName),
	}
}

func (s *MongoStore) Record(ctx context.Context, record DispatchRecord) error {
	if _, err := s.collection.InsertOne(ctx, record); err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}
	return nil
}
