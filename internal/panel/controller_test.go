package panel

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/dvoicu/slotboard/internal/config"
	"github.com/dvoicu/slotboard/internal/display"
	"github.com/dvoicu/slotboard/internal/lease"
	"github.com/dvoicu/slotboard/internal/memstore"
)

// fakeDisplay records created artifacts in memory and supports external
// deletion.
type fakeDisplay struct {
	mu          sync.Mutex
	nextID      int
	artifacts   map[string]string
	createCalls int
	updateCalls int
}

func newFakeDisplay() *fakeDisplay {
	return &fakeDisplay{artifacts: make(map[string]string)}
}

func (d *fakeDisplay) Create(ctx context.Context, document string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.createCalls++
	d.nextID++
	id := strconv.Itoa(d.nextID)
	d.artifacts[id] = document
	return id, nil
}

func (d *fakeDisplay) Update(ctx context.Context, artifactID, document string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.updateCalls++
	if _, ok := d.artifacts[artifactID]; !ok {
		return display.ErrNotFound
	}
	d.artifacts[artifactID] = document
	return nil
}

func (d *fakeDisplay) Fetch(ctx context.Context, artifactID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.artifacts[artifactID]; !ok {
		return display.ErrNotFound
	}
	return nil
}

func (d *fakeDisplay) delete(artifactID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.artifacts, artifactID)
}

func (d *fakeDisplay) document(artifactID string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.artifacts[artifactID]
}

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func newTestController(t *testing.T) (*Controller, *lease.Manager, *fakeDisplay, *memstore.Store, *testClock) {
	t.Helper()

	store := memstore.New()
	if err := store.InitSlots(context.Background(), 3); err != nil {
		t.Fatalf("init slots: %v", err)
	}

	clock := &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	leases := lease.NewManager(store, 3, 8*time.Hour, config.ReleasePolicyChoose, lease.WithClock(clock.Now))
	disp := newFakeDisplay()

	controller := NewController(leases, store, disp)
	controller.now = clock.Now

	return controller, leases, disp, store, clock
}

func TestPublishIdempotent(t *testing.T) {
	controller, _, disp, store, _ := newTestController(t)
	ctx := context.Background()

	if err := controller.Publish(ctx); err != nil {
		t.Fatalf("publish: %v", err)
	}

	id, err := store.Get(ctx, MetaKeyArtifactID)
	if err != nil {
		t.Fatalf("meta get: %v", err)
	}
	if id == "" {
		t.Fatal("expected artifact id persisted after first publish")
	}
	first := disp.document(id)

	// Second publish with no intervening mutation: same document, same
	// single artifact, no duplicate create.
	if err := controller.Publish(ctx); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if disp.createCalls != 1 {
		t.Fatalf("expected 1 create, got %d", disp.createCalls)
	}
	if len(disp.artifacts) != 1 {
		t.Fatalf("expected exactly one artifact, got %d", len(disp.artifacts))
	}
	if second := disp.document(id); second != first {
		t.Fatalf("expected identical documents, got:\n%s\nvs:\n%s", first, second)
	}
}

func TestPublishRecreatesDeletedArtifact(t *testing.T) {
	controller, _, disp, store, _ := newTestController(t)
	ctx := context.Background()

	if err := controller.Publish(ctx); err != nil {
		t.Fatalf("publish: %v", err)
	}
	oldID, _ := store.Get(ctx, MetaKeyArtifactID)

	// Someone deletes the panel message out from under us.
	disp.delete(oldID)

	if err := controller.Publish(ctx); err != nil {
		t.Fatalf("publish after external delete: %v", err)
	}

	newID, _ := store.Get(ctx, MetaKeyArtifactID)
	if newID == "" || newID == oldID {
		t.Fatalf("expected a replacement artifact id, old=%q new=%q", oldID, newID)
	}
	if disp.createCalls != 2 {
		t.Fatalf("expected 2 creates, got %d", disp.createCalls)
	}
}

func TestPublishSweepsAndProjectsStore(t *testing.T) {
	controller, leases, disp, store, clock := newTestController(t)
	ctx := context.Background()

	if _, err := leases.Claim(ctx, 1, "u1", "Alice"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	if err := controller.Publish(ctx); err != nil {
		t.Fatalf("publish: %v", err)
	}

	id, _ := store.Get(ctx, MetaKeyArtifactID)
	doc := disp.document(id)
	want := "Slot status\n" +
		"Slot 1 — Alice (8h left)\n" +
		"Slot 2 — available\n" +
		"Slot 3 — available\n"
	if doc != want {
		t.Fatalf("document mismatch:\ngot:\n%s\nwant:\n%s", doc, want)
	}

	// After the lease expires the publish path sweeps it before rendering.
	clock.now = clock.now.Add(9 * time.Hour)

	if err := controller.Publish(ctx); err != nil {
		t.Fatalf("publish: %v", err)
	}

	slots, _ := leases.ListAll(ctx)
	if slots[0].HolderID != "" {
		t.Fatalf("expected publish to sweep the expired lease, got %+v", slots[0])
	}

	doc = disp.document(id)
	wantFree := "Slot status\n" +
		"Slot 1 — available\n" +
		"Slot 2 — available\n" +
		"Slot 3 — available\n"
	if doc != wantFree {
		t.Fatalf("document mismatch after sweep:\ngot:\n%s\nwant:\n%s", doc, wantFree)
	}
}

func TestRepostForcesFreshArtifact(t *testing.T) {
	controller, _, disp, store, _ := newTestController(t)
	ctx := context.Background()

	if err := controller.Publish(ctx); err != nil {
		t.Fatalf("publish: %v", err)
	}
	oldID, _ := store.Get(ctx, MetaKeyArtifactID)

	if err := controller.Repost(ctx); err != nil {
		t.Fatalf("repost: %v", err)
	}

	newID, _ := store.Get(ctx, MetaKeyArtifactID)
	if newID == oldID {
		t.Fatalf("expected repost to mint a new artifact, still %q", oldID)
	}
	if disp.createCalls != 2 {
		t.Fatalf("expected 2 creates, got %d", disp.createCalls)
	}
}
