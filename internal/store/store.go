package store

import (
	"context"
	"time"

	"github.com/dvoicu/slotboard/internal/model"
)

// SlotStore is the durable table of fixed slot records. Implementations must
// guarantee that Claim, Release, ReleaseAnyHeldBy and SweepExpired evaluate
// their condition and apply their effect as one indivisible operation under
// concurrent access; all cross-process mutual exclusion rests on that.
type SlotStore interface {
	// InitSlots ensures rows 1..n exist, creating missing ones and never
	// touching existing ones.
	InitSlots(ctx context.Context, n int) error

	// ListAll returns every slot ordered by slot number ascending. Rows are
	// returned raw; expired-but-unswept leases are included as stored.
	ListAll(ctx context.Context) ([]model.Slot, error)

	// ListHeldBy returns the slots leased by userID whose expiry is still in
	// the future relative to now, ordered by slot number ascending.
	ListHeldBy(ctx context.Context, userID string, now time.Time) ([]model.Slot, error)

	// Claim atomically leases the slot to userID if it is currently free
	// (no holder, or a lease that expired at or before now). Returns the
	// updated slot and true on success, or nil and false when the slot is
	// held by someone else.
	Claim(ctx context.Context, slotNo int, userID, label string, now, expiresAt time.Time) (*model.Slot, bool, error)

	// Release atomically clears the slot if it is currently held by userID
	// with a live lease. Returns false when the slot is free, expired, or
	// held by another user.
	Release(ctx context.Context, slotNo int, userID string, now time.Time) (bool, error)

	// ReleaseAnyHeldBy atomically clears the lowest-numbered slot held by
	// userID with a live lease. Returns the released slot number and true,
	// or false when the user holds nothing.
	ReleaseAnyHeldBy(ctx context.Context, userID string, now time.Time) (int, bool, error)

	// SweepExpired clears every slot whose lease expired at or before now
	// and reports how many were cleared. Idempotent.
	SweepExpired(ctx context.Context, now time.Time) (int64, error)

	// Ping reports backend connectivity.
	Ping(ctx context.Context) error
}

// MetaStore is the small key-value table for identifiers that must survive
// restarts. Get returns the empty string for an absent key.
type MetaStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
