package database

import (
	"context"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CreateIndexes creates all necessary indexes for the collections
func CreateIndexes(ctx context.Context, db *MongoDB) error {
	slog.Info("Creating MongoDB indexes")

	collection := db.GetCollection(CollectionSlots)

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "slot_no", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("idx_slot_no_unique"),
		},
		{
			Keys:    bson.D{{Key: "holder_id", Value: 1}, {Key: "expires_at", Value: 1}},
			Options: options.Index().SetName("idx_holder_expires"),
		},
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := collection.Indexes().CreateMany(ctxTimeout, indexes); err != nil {
		return err
	}

	// panel_meta is keyed by _id, no extra indexes needed.

	slog.Info("Successfully created all MongoDB indexes")
	return nil
}
