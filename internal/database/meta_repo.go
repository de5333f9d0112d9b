package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvoicu/slotboard/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MetaRepository handles the small key-value metadata table. The key is the
// document id, so reads and upserts are single-document operations.
type MetaRepository struct {
	collection *mongo.Collection
}

// NewMetaRepository creates a new metadata repository
func NewMetaRepository(db *MongoDB) *MetaRepository {
	return &MetaRepository{
		collection: db.GetCollection(CollectionPanelMeta),
	}
}

// Get returns the value for key, or the empty string when absent.
func (r *MetaRepository) Get(ctx context.Context, key string) (string, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var entry model.MetaEntry
	err := r.collection.FindOne(ctxTimeout, bson.M{"_id": key}).Decode(&entry)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get metadata %s: %w", key, err)
	}

	return entry.Value, nil
}

// Set upserts the value for key.
func (r *MetaRepository) Set(ctx context.Context, key, value string) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	update := bson.M{"$set": bson.M{"value": value}}
	_, err := r.collection.UpdateOne(ctxTimeout, bson.M{"_id": key}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to set metadata %s: %w", key, err)
	}

	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (r *MetaRepository) Delete(ctx context.Context, key string) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := r.collection.DeleteOne(ctxTimeout, bson.M{"_id": key}); err != nil {
		return fmt.Errorf("failed to delete metadata %s: %w", key, err)
	}

	return nil
}
