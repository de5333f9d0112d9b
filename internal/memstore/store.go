// Package memstore is an in-process store backend for local development and
// tests. A single mutex makes every conditional update indivisible, which
// satisfies the same atomicity contract the durable backends provide.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/dvoicu/slotboard/internal/model"
)

// Store implements store.SlotStore and store.MetaStore in memory.
type Store struct {
	mu    sync.Mutex
	slots []model.Slot
	meta  map[string]string
}

// New creates an empty store. InitSlots sizes the slot table.
func New() *Store {
	return &Store{
		meta: make(map[string]string),
	}
}

func (s *Store) InitSlots(ctx context.Context, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for slotNo := len(s.slots) + 1; slotNo <= n; slotNo++ {
		s.slots = append(s.slots, model.Slot{SlotNo: slotNo})
	}
	return nil
}

func (s *Store) ListAll(ctx context.Context) ([]model.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Slot, len(s.slots))
	copy(out, s.slots)
	return out, nil
}

func (s *Store) ListHeldBy(ctx context.Context, userID string, now time.Time) ([]model.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Slot
	for _, slot := range s.slots {
		if slot.HolderID == userID && slot.HeldAt(now) {
			out = append(out, slot)
		}
	}
	return out, nil
}

func (s *Store) Claim(ctx context.Context, slotNo int, userID, label string, now, expiresAt time.Time) (*model.Slot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot := s.find(slotNo)
	if slot == nil || slot.HeldAt(now) {
		return nil, false, nil
	}

	leasedAt := now
	expiry := expiresAt
	slot.HolderID = userID
	slot.HolderLabel = label
	slot.LeasedAt = &leasedAt
	slot.ExpiresAt = &expiry

	claimed := *slot
	return &claimed, true, nil
}

func (s *Store) Release(ctx context.Context, slotNo int, userID string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot := s.find(slotNo)
	if slot == nil || slot.HolderID != userID || !slot.HeldAt(now) {
		return false, nil
	}

	slot.Clear()
	return true, nil
}

func (s *Store) ReleaseAnyHeldBy(ctx context.Context, userID string, now time.Time) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.slots {
		slot := &s.slots[i]
		if slot.HolderID == userID && slot.HeldAt(now) {
			slot.Clear()
			return slot.SlotNo, true, nil
		}
	}
	return 0, false, nil
}

func (s *Store) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var swept int64
	for i := range s.slots {
		if s.slots[i].Expired(now) {
			s.slots[i].Clear()
			swept++
		}
	}
	return swept, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.meta[key], nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.meta[key] = value
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.meta, key)
	return nil
}

// find returns the slot with the given number, or nil. Callers hold the lock.
func (s *Store) find(slotNo int) *model.Slot {
	if slotNo < 1 || slotNo > len(s.slots) {
		return nil
	}
	return &s.slots[slotNo-1]
}
