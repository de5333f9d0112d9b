package memstore

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestConcurrentClaimsOneWinner(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.InitSlots(ctx, 1); err != nil {
		t.Fatalf("init: %v", err)
	}

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	expires := now.Add(8 * time.Hour)

	const claimers = 32
	var wins int32
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, won, err := s.Claim(ctx, 1, string(rune('a'+n%26)), "user", now, expires)
			if err != nil {
				t.Errorf("claim: %v", err)
				return
			}
			if won {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one winning claim, got %d", wins)
	}
}

func TestClaimUnknownSlot(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.InitSlots(ctx, 2); err != nil {
		t.Fatalf("init: %v", err)
	}

	now := time.Now().UTC()
	_, won, err := s.Claim(ctx, 5, "alice", "Alice", now, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if won {
		t.Fatal("claim on a nonexistent slot must not win")
	}
}

func TestInitSlotsPreservesLeases(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.InitSlots(ctx, 2); err != nil {
		t.Fatalf("init: %v", err)
	}

	now := time.Now().UTC()
	if _, won, _ := s.Claim(ctx, 1, "alice", "Alice", now, now.Add(time.Hour)); !won {
		t.Fatal("claim should win on a fresh slot")
	}

	// Re-initialization (a restart) grows the table without touching leases.
	if err := s.InitSlots(ctx, 3); err != nil {
		t.Fatalf("re-init: %v", err)
	}

	slots, err := s.ListAll(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(slots) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(slots))
	}
	if slots[0].HolderID != "alice" {
		t.Fatalf("expected lease preserved across init, got %+v", slots[0])
	}
}

func TestMetaRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()

	if v, _ := s.Get(ctx, "panel_message_id"); v != "" {
		t.Fatalf("expected empty value for absent key, got %q", v)
	}

	if err := s.Set(ctx, "panel_message_id", "123"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if v, _ := s.Get(ctx, "panel_message_id"); v != "123" {
		t.Fatalf("expected 123, got %q", v)
	}

	if err := s.Delete(ctx, "panel_message_id"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if v, _ := s.Get(ctx, "panel_message_id"); v != "" {
		t.Fatalf("expected empty after delete, got %q", v)
	}

	// Deleting an absent key is not an error.
	if err := s.Delete(ctx, "panel_message_id"); err != nil {
		t.Fatalf("repeat delete: %v", err)
	}
}
