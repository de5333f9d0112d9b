package model

import (
	"time"
)

// Slot represents one of the fixed, numbered reservable slots.
// A free slot has no holder fields set; a leased slot carries the holder's
// opaque identifier, a display label, and the lease window. A slot whose
// expires_at is in the past is logically free even before a sweep clears it.
type Slot struct {
	SlotNo      int        `json:"slot_no" bson:"slot_no"`
	HolderID    string     `json:"holder_id,omitempty" bson:"holder_id,omitempty"`
	HolderLabel string     `json:"holder_label,omitempty" bson:"holder_label,omitempty"`
	LeasedAt    *time.Time `json:"leased_at,omitempty" bson:"leased_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty" bson:"expires_at,omitempty"`
}

// HeldAt reports whether the slot is leased with a still-live expiry at the
// given instant. Every read path that feeds a decision uses this, so an
// expired-but-unswept slot is treated as free everywhere.
func (s *Slot) HeldAt(now time.Time) bool {
	return s.HolderID != "" && s.ExpiresAt != nil && s.ExpiresAt.After(now)
}

// FreeAt is the complement of HeldAt.
func (s *Slot) FreeAt(now time.Time) bool {
	return !s.HeldAt(now)
}

// Expired reports whether the slot carries a lease whose expiry has passed
// but has not been physically cleared yet.
func (s *Slot) Expired(now time.Time) bool {
	return s.HolderID != "" && s.ExpiresAt != nil && !s.ExpiresAt.After(now)
}

// Clear resets the slot to its free state, keeping only the slot number.
func (s *Slot) Clear() {
	s.HolderID = ""
	s.HolderLabel = ""
	s.LeasedAt = nil
	s.ExpiresAt = nil
}

// MetaEntry is one row of the small key-value metadata table. It remembers
// identifiers that must survive restarts, currently only the published
// panel message id.
type MetaEntry struct {
	Key   string `json:"key" bson:"_id"`
	Value string `json:"value" bson:"value"`
}
