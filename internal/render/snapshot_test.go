package render

import (
	"testing"
	"time"

	"github.com/dvoicu/slotboard/internal/model"
)

func TestRemaining(t *testing.T) {
	tests := []struct {
		name string
		d    time.Duration
		want string
	}{
		{"negative", -time.Minute, "expired"},
		{"zero", 0, "expired"},
		{"under a minute rounds up", 30 * time.Second, "1m"},
		{"minutes only", 45 * time.Minute, "45m"},
		{"exact hour", time.Hour, "1h"},
		{"full lease", 8 * time.Hour, "8h"},
		{"hours and minutes", 7*time.Hour + 30*time.Minute, "7h 30m"},
		{"seconds round into next hour", 7*time.Hour + 59*time.Minute + 30*time.Second, "8h"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Remaining(tt.d); got != tt.want {
				t.Fatalf("Remaining(%v) = %q, want %q", tt.d, got, tt.want)
			}
		})
	}
}

func TestSnapshot(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	aliceExpiry := now.Add(8 * time.Hour)
	bobExpiry := now.Add(-5 * time.Minute)
	aliceLease := now.Add(-time.Hour)
	bobLease := now.Add(-9 * time.Hour)

	slots := []model.Slot{
		{SlotNo: 1},
		{SlotNo: 2, HolderID: "u1", HolderLabel: "Alice", LeasedAt: &aliceLease, ExpiresAt: &aliceExpiry},
		{SlotNo: 3, HolderID: "u2", HolderLabel: "Bob", LeasedAt: &bobLease, ExpiresAt: &bobExpiry},
	}

	want := "Slot status\n" +
		"Slot 1 — available\n" +
		"Slot 2 — Alice (8h left)\n" +
		"Slot 3 — Bob (expired)\n"

	got := Snapshot(slots, now)
	if got != want {
		t.Fatalf("Snapshot mismatch:\ngot:\n%s\nwant:\n%s", got, want)
	}

	// Pure: identical inputs yield identical output.
	if again := Snapshot(slots, now); again != got {
		t.Fatal("Snapshot is not deterministic for identical inputs")
	}
}

func TestSnapshotAllFree(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	slots := []model.Slot{{SlotNo: 1}, {SlotNo: 2}, {SlotNo: 3}}

	want := "Slot status\n" +
		"Slot 1 — available\n" +
		"Slot 2 — available\n" +
		"Slot 3 — available\n"

	if got := Snapshot(slots, now); got != want {
		t.Fatalf("Snapshot mismatch:\ngot:\n%s\nwant:\n%s", got, want)
	}
}
