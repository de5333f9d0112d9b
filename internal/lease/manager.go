// Package lease owns the reservation semantics: at most one holder per slot,
// fixed-duration leases with lazy expiry, and the typed outcomes the trigger
// surface reports back to users. All mutual exclusion is delegated to the
// store's atomic conditional updates; the manager never locks.
package lease

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dvoicu/slotboard/internal/config"
	"github.com/dvoicu/slotboard/internal/model"
	"github.com/dvoicu/slotboard/internal/store"
)

// ClaimStatus is the outcome space of a claim. Losing the race for a slot is
// a normal result, not an error.
type ClaimStatus int

const (
	// ClaimOK means the lease was written.
	ClaimOK ClaimStatus = iota
	// ClaimAlreadyHeld means another user holds the slot; the caller should
	// refresh and pick again.
	ClaimAlreadyHeld
	// ClaimAlreadyHolding means the caller already holds a slot and the
	// single-slot policy is in force.
	ClaimAlreadyHolding
	// ClaimNoFreeSlots means no slot was free (or every free candidate was
	// taken while iterating).
	ClaimNoFreeSlots
)

// ClaimResult carries the claim outcome and, on success, the written lease.
type ClaimResult struct {
	Status ClaimStatus
	Slot   *model.Slot
}

// ReleaseStatus is the outcome space of a release.
type ReleaseStatus int

const (
	// ReleaseOK means the slot was cleared.
	ReleaseOK ReleaseStatus = iota
	// ReleaseNotHeld means the slot is free, expired, or held by someone
	// else. By the time a release arrives the lease may have expired or
	// been cleared, so this is a normal outcome the caller reports back.
	ReleaseNotHeld
)

// ReleaseResult carries the release outcome and, on success, which slot was
// freed.
type ReleaseResult struct {
	Status ReleaseStatus
	SlotNo int
}

// ErrInvalidSlot reports a slot number outside [1, N]. Rejected before
// touching the store.
type ErrInvalidSlot struct {
	SlotNo int
	Max    int
}

func (e *ErrInvalidSlot) Error() string {
	return fmt.Sprintf("slot number %d is out of range [1, %d]", e.SlotNo, e.Max)
}

// ErrInvalidUser reports a missing caller identity.
type ErrInvalidUser struct{}

func (e *ErrInvalidUser) Error() string {
	return "user id is required"
}

// Manager is the business logic layer over the slot store.
type Manager struct {
	store         store.SlotStore
	slotCount     int
	leaseDuration time.Duration
	singleSlot    bool
	now           func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source, used by tests to simulate expiry.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a lease manager. releasePolicy is one of the
// config.ReleasePolicy* constants.
func NewManager(slotStore store.SlotStore, slotCount int, leaseDuration time.Duration, releasePolicy string, opts ...Option) *Manager {
	m := &Manager{
		store:         slotStore,
		slotCount:     slotCount,
		leaseDuration: leaseDuration,
		singleSlot:    releasePolicy == config.ReleasePolicySingle,
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SlotCount returns the fixed pool size N.
func (m *Manager) SlotCount() int {
	return m.slotCount
}

// SingleSlotPolicy reports whether the at-most-one-slot-per-user policy is
// in force.
func (m *Manager) SingleSlotPolicy() bool {
	return m.singleSlot
}

// SweepExpired converts expired-but-unswept leases back to free in storage.
// Idempotent; sweeping nothing is not an error.
func (m *Manager) SweepExpired(ctx context.Context) (int64, error) {
	swept, err := m.store.SweepExpired(ctx, m.now())
	if err != nil {
		return 0, fmt.Errorf("sweep failed: %w", err)
	}
	return swept, nil
}

// ListAll returns a point-in-time snapshot of every slot, ordered by slot
// number ascending. Rows are returned raw so the renderer can show the
// transitional "expired" state.
func (m *Manager) ListAll(ctx context.Context) ([]model.Slot, error) {
	slots, err := m.store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list failed: %w", err)
	}
	return slots, nil
}

// ListHeldBy returns the slots currently leased by userID. An expired lease
// is already absent here even before a sweep runs.
func (m *Manager) ListHeldBy(ctx context.Context, userID string) ([]model.Slot, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, &ErrInvalidUser{}
	}

	slots, err := m.store.ListHeldBy(ctx, userID, m.now())
	if err != nil {
		return nil, fmt.Errorf("list held failed: %w", err)
	}
	return slots, nil
}

// FreeSlots returns the slots that are logically free right now, including
// expired-but-unswept ones. Used to build claim offers.
func (m *Manager) FreeSlots(ctx context.Context) ([]model.Slot, error) {
	slots, err := m.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	now := m.now()
	var free []model.Slot
	for _, slot := range slots {
		if slot.FreeAt(now) {
			free = append(free, slot)
		}
	}
	return free, nil
}

// Claim leases the given slot to the caller for the configured duration.
// The store's conditional update arbitrates concurrent claims: exactly one
// wins, the rest get ClaimAlreadyHeld.
func (m *Manager) Claim(ctx context.Context, slotNo int, userID, label string) (ClaimResult, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ClaimResult{}, &ErrInvalidUser{}
	}
	if slotNo < 1 || slotNo > m.slotCount {
		return ClaimResult{}, &ErrInvalidSlot{SlotNo: slotNo, Max: m.slotCount}
	}
	if label = strings.TrimSpace(label); label == "" {
		label = userID
	}

	if m.singleSlot {
		held, err := m.store.ListHeldBy(ctx, userID, m.now())
		if err != nil {
			return ClaimResult{}, fmt.Errorf("claim precheck failed: %w", err)
		}
		if len(held) > 0 {
			return ClaimResult{Status: ClaimAlreadyHolding}, nil
		}
	}

	now := m.now()
	slot, won, err := m.store.Claim(ctx, slotNo, userID, label, now, now.Add(m.leaseDuration))
	if err != nil {
		return ClaimResult{}, fmt.Errorf("claim failed: %w", err)
	}
	if !won {
		return ClaimResult{Status: ClaimAlreadyHeld}, nil
	}

	slog.Info("Lease granted",
		"slot_no", slot.SlotNo,
		"holder_id", userID,
		"expires_at", slot.ExpiresAt,
	)
	return ClaimResult{Status: ClaimOK, Slot: slot}, nil
}

// ClaimAny leases the lowest-numbered free slot to the caller. When a
// candidate is taken between the listing and the conditional update, the
// next one is tried; that is the expected resolution of the list-then-pick
// window, not an error.
func (m *Manager) ClaimAny(ctx context.Context, userID, label string) (ClaimResult, error) {
	free, err := m.FreeSlots(ctx)
	if err != nil {
		return ClaimResult{}, err
	}

	for _, candidate := range free {
		result, err := m.Claim(ctx, candidate.SlotNo, userID, label)
		if err != nil {
			return ClaimResult{}, err
		}
		if result.Status != ClaimAlreadyHeld {
			return result, nil
		}
	}

	return ClaimResult{Status: ClaimNoFreeSlots}, nil
}

// Release clears the given slot if the caller holds it with a live lease.
func (m *Manager) Release(ctx context.Context, slotNo int, userID string) (ReleaseResult, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ReleaseResult{}, &ErrInvalidUser{}
	}
	if slotNo < 1 || slotNo > m.slotCount {
		return ReleaseResult{}, &ErrInvalidSlot{SlotNo: slotNo, Max: m.slotCount}
	}

	released, err := m.store.Release(ctx, slotNo, userID, m.now())
	if err != nil {
		return ReleaseResult{}, fmt.Errorf("release failed: %w", err)
	}
	if !released {
		return ReleaseResult{Status: ReleaseNotHeld}, nil
	}

	slog.Info("Lease released", "slot_no", slotNo, "holder_id", userID)
	return ReleaseResult{Status: ReleaseOK, SlotNo: slotNo}, nil
}

// ReleaseAny clears one slot held by the caller, used under the single-slot
// policy where the user never picks which slot to free.
func (m *Manager) ReleaseAny(ctx context.Context, userID string) (ReleaseResult, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ReleaseResult{}, &ErrInvalidUser{}
	}

	slotNo, released, err := m.store.ReleaseAnyHeldBy(ctx, userID, m.now())
	if err != nil {
		return ReleaseResult{}, fmt.Errorf("release failed: %w", err)
	}
	if !released {
		return ReleaseResult{Status: ReleaseNotHeld}, nil
	}

	slog.Info("Lease released", "slot_no", slotNo, "holder_id", userID)
	return ReleaseResult{Status: ReleaseOK, SlotNo: slotNo}, nil
}
