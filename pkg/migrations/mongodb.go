package migrations

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureMongoCollections creates the indexes the dispatch audit log
// queries by. Mongo creates the collection itself on first insert.
func EnsureMongoCollections(ctx context.Context, db *mongo.Database) error {
	collection := db.Collection("dispatch_audit")

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_dispatch_audit_created_at"),
		},
		{
			Keys:    bson.D{{Key: "operation", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_dispatch_audit_operation_created_at"),
		},
		{
			Keys:    bson.D{{Key: "identifier", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_dispatch_audit_identifier_created_at"),
		},
	}

	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		if !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("failed to create indexes: %w", err)
		}
	}
	return nil
}
