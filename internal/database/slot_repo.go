package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dvoicu/slotboard/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SlotRepository handles slot record operations. Every mutation is a single
// conditional update; MongoDB applies the filter and the effect atomically,
// which is what arbitrates concurrent claims on the same slot.
type SlotRepository struct {
	db         *MongoDB
	collection *mongo.Collection
}

// NewSlotRepository creates a new slot repository
func NewSlotRepository(db *MongoDB) *SlotRepository {
	return &SlotRepository{
		db:         db,
		collection: db.GetCollection(CollectionSlots),
	}
}

// freeFilter matches a slot that is logically free at the given instant:
// never leased, released, or carrying a lease that already expired.
func freeFilter(now time.Time) []bson.M {
	return []bson.M{
		{"holder_id": nil},
		{"expires_at": bson.M{"$lte": now}},
	}
}

// clearLease unsets all four mutable fields in one update.
var clearLease = bson.M{
	"$unset": bson.M{
		"holder_id":    "",
		"holder_label": "",
		"leased_at":    "",
		"expires_at":   "",
	},
}

// InitSlots ensures rows 1..n exist. Existing rows are left untouched so a
// restart never disturbs live leases.
func (r *SlotRepository) InitSlots(ctx context.Context, n int) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	for slotNo := 1; slotNo <= n; slotNo++ {
		filter := bson.M{"slot_no": slotNo}
		update := bson.M{"$setOnInsert": bson.M{"slot_no": slotNo}}

		if _, err := r.collection.UpdateOne(ctxTimeout, filter, update, options.Update().SetUpsert(true)); err != nil {
			return fmt.Errorf("failed to initialize slot %d: %w", slotNo, err)
		}
	}

	slog.Info("Slot table initialized", "slot_count", n)
	return nil
}

// ListAll returns every slot ordered by slot number ascending.
func (r *SlotRepository) ListAll(ctx context.Context) ([]model.Slot, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "slot_no", Value: 1}})
	cursor, err := r.collection.Find(ctxTimeout, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list slots: %w", err)
	}
	defer cursor.Close(ctxTimeout)

	var slots []model.Slot
	if err := cursor.All(ctxTimeout, &slots); err != nil {
		return nil, fmt.Errorf("failed to decode slots: %w", err)
	}

	return slots, nil
}

// ListHeldBy returns the slots leased by userID whose expiry is still in the
// future. The expiry condition sits in the query so an expired-but-unswept
// lease is already invisible here.
func (r *SlotRepository) ListHeldBy(ctx context.Context, userID string, now time.Time) ([]model.Slot, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := bson.M{
		"holder_id":  userID,
		"expires_at": bson.M{"$gt": now},
	}
	opts := options.Find().SetSort(bson.D{{Key: "slot_no", Value: 1}})

	cursor, err := r.collection.Find(ctxTimeout, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list held slots: %w", err)
	}
	defer cursor.Close(ctxTimeout)

	var slots []model.Slot
	if err := cursor.All(ctxTimeout, &slots); err != nil {
		return nil, fmt.Errorf("failed to decode held slots: %w", err)
	}

	return slots, nil
}

// Claim attempts to lease a slot to userID. The filter requires the slot to
// be free right now, so of two concurrent claims exactly one matches and the
// other sees ErrNoDocuments.
func (r *SlotRepository) Claim(ctx context.Context, slotNo int, userID, label string, now, expiresAt time.Time) (*model.Slot, bool, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := bson.M{
		"slot_no": slotNo,
		"$or":     freeFilter(now),
	}
	update := bson.M{
		"$set": bson.M{
			"holder_id":    userID,
			"holder_label": label,
			"leased_at":    now,
			"expires_at":   expiresAt,
		},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var slot model.Slot
	err := r.collection.FindOneAndUpdate(ctxTimeout, filter, update, opts).Decode(&slot)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			// Slot is held by someone else with a live lease
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to claim slot %d: %w", slotNo, err)
	}

	slog.Debug("Slot claimed",
		"slot_no", slotNo,
		"holder_id", userID,
		"expires_at", expiresAt,
	)

	return &slot, true, nil
}

// Release clears a slot only if it is currently held by userID with a live
// lease. An expired lease counts as not held.
func (r *SlotRepository) Release(ctx context.Context, slotNo int, userID string, now time.Time) (bool, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := bson.M{
		"slot_no":    slotNo,
		"holder_id":  userID,
		"expires_at": bson.M{"$gt": now},
	}

	result, err := r.collection.UpdateOne(ctxTimeout, filter, clearLease)
	if err != nil {
		return false, fmt.Errorf("failed to release slot %d: %w", slotNo, err)
	}

	if result.MatchedCount == 0 {
		return false, nil
	}

	slog.Debug("Slot released", "slot_no", slotNo, "holder_id", userID)
	return true, nil
}

// ReleaseAnyHeldBy clears the lowest-numbered slot held by userID with a
// live lease and reports which one it was.
func (r *SlotRepository) ReleaseAnyHeldBy(ctx context.Context, userID string, now time.Time) (int, bool, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := bson.M{
		"holder_id":  userID,
		"expires_at": bson.M{"$gt": now},
	}
	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "slot_no", Value: 1}}).
		SetReturnDocument(options.Before)

	var slot model.Slot
	err := r.collection.FindOneAndUpdate(ctxTimeout, filter, clearLease, opts).Decode(&slot)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to release slot held by %s: %w", userID, err)
	}

	slog.Debug("Slot released", "slot_no", slot.SlotNo, "holder_id", userID)
	return slot.SlotNo, true, nil
}

// SweepExpired clears every leased slot whose expiry has passed. Safe to
// call with arbitrary frequency; sweeping nothing is not an error.
func (r *SlotRepository) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	filter := bson.M{
		"holder_id":  bson.M{"$ne": nil},
		"expires_at": bson.M{"$lte": now},
	}

	result, err := r.collection.UpdateMany(ctxTimeout, filter, clearLease)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired slots: %w", err)
	}

	if result.ModifiedCount > 0 {
		slog.Info("Swept expired leases", "count", result.ModifiedCount)
	}

	return result.ModifiedCount, nil
}

// Ping reports backend connectivity.
func (r *SlotRepository) Ping(ctx context.Context) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return r.db.Client.Ping(ctxTimeout, nil)
}
