package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/dvoicu/slotboard/internal/config"
	"github.com/dvoicu/slotboard/internal/lease"
	"github.com/dvoicu/slotboard/internal/memstore"
	"github.com/dvoicu/slotboard/internal/panel"
)

// fakeDisplay accepts every publish so handler tests exercise the full
// trigger path without a chat surface.
type fakeDisplay struct {
	artifacts map[string]string
	nextID    int
}

func newFakeDisplay() *fakeDisplay {
	return &fakeDisplay{artifacts: make(map[string]string)}
}

func (d *fakeDisplay) Create(ctx context.Context, document string) (string, error) {
	d.nextID++
	id := strconv.Itoa(d.nextID)
	d.artifacts[id] = document
	return id, nil
}

func (d *fakeDisplay) Update(ctx context.Context, artifactID, document string) error {
	d.artifacts[artifactID] = document
	return nil
}

func (d *fakeDisplay) Fetch(ctx context.Context, artifactID string) error {
	return nil
}

func newTestHandler(t *testing.T, releasePolicy string) (*SlotHandler, *memstore.Store, *fakeDisplay) {
	t.Helper()

	ms := memstore.New()
	if err := ms.InitSlots(context.Background(), 3); err != nil {
		t.Fatalf("init slots: %v", err)
	}

	leases := lease.NewManager(ms, 3, 8*time.Hour, releasePolicy)
	disp := newFakeDisplay()
	controller := panel.NewController(leases, ms, disp)
	return NewSlotHandler(leases, controller), ms, disp
}

func doJSON(t *testing.T, h http.HandlerFunc, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func decodeAction(t *testing.T, rec *httptest.ResponseRecorder) ActionResponse {
	t.Helper()

	var resp ActionResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func TestClaimPublishesPanel(t *testing.T) {
	h, _, disp := newTestHandler(t, config.ReleasePolicyChoose)

	rec := doJSON(t, h.Claim, http.MethodPost, "/api/v1/slots/claim",
		`{"slot_no": 1, "user_id": "u1", "user_label": "Alice"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	resp := decodeAction(t, rec)
	if resp.Status != "claimed" || resp.SlotNo != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.ExpiresAt == "" {
		t.Fatal("expected expires_at in the response")
	}

	if len(disp.artifacts) != 1 {
		t.Fatalf("expected one published artifact, got %d", len(disp.artifacts))
	}
	doc := disp.artifacts["1"]
	if !strings.Contains(doc, "Slot 1 — Alice") {
		t.Fatalf("published panel missing the new lease: %q", doc)
	}
}

func TestClaimConflict(t *testing.T) {
	h, _, _ := newTestHandler(t, config.ReleasePolicyChoose)

	doJSON(t, h.Claim, http.MethodPost, "/api/v1/slots/claim", `{"slot_no": 1, "user_id": "u1"}`)
	rec := doJSON(t, h.Claim, http.MethodPost, "/api/v1/slots/claim", `{"slot_no": 1, "user_id": "u2"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if resp := decodeAction(t, rec); resp.Status != "already_held" {
		t.Fatalf("expected already_held, got %+v", resp)
	}
}

func TestClaimWithoutSlotPicksLowestFree(t *testing.T) {
	h, _, _ := newTestHandler(t, config.ReleasePolicyChoose)

	doJSON(t, h.Claim, http.MethodPost, "/api/v1/slots/claim", `{"slot_no": 1, "user_id": "u1"}`)
	rec := doJSON(t, h.Claim, http.MethodPost, "/api/v1/slots/claim", `{"user_id": "u2"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if resp := decodeAction(t, rec); resp.SlotNo != 2 {
		t.Fatalf("expected slot 2, got %+v", resp)
	}
}

func TestClaimInvalidSlot(t *testing.T) {
	h, _, _ := newTestHandler(t, config.ReleasePolicyChoose)

	rec := doJSON(t, h.Claim, http.MethodPost, "/api/v1/slots/claim", `{"slot_no": 9, "user_id": "u1"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestReleaseNotHeld(t *testing.T) {
	h, _, _ := newTestHandler(t, config.ReleasePolicyChoose)

	rec := doJSON(t, h.Release, http.MethodPost, "/api/v1/slots/release", `{"slot_no": 1, "user_id": "u1"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if resp := decodeAction(t, rec); resp.Status != "not_held" {
		t.Fatalf("expected not_held, got %+v", resp)
	}
}

func TestReleaseRoundTrip(t *testing.T) {
	h, _, disp := newTestHandler(t, config.ReleasePolicyChoose)

	doJSON(t, h.Claim, http.MethodPost, "/api/v1/slots/claim", `{"slot_no": 2, "user_id": "u1", "user_label": "Alice"}`)
	rec := doJSON(t, h.Release, http.MethodPost, "/api/v1/slots/release", `{"slot_no": 2, "user_id": "u1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	doc := disp.artifacts["1"]
	if !strings.Contains(doc, "Slot 2 — available") {
		t.Fatalf("published panel still shows the lease: %q", doc)
	}
}

func TestSinglePolicyRejectsSlotSelection(t *testing.T) {
	h, _, _ := newTestHandler(t, config.ReleasePolicySingle)

	rec := doJSON(t, h.Release, http.MethodPost, "/api/v1/slots/release", `{"slot_no": 1, "user_id": "u1"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSinglePolicyReleasesWithoutSlot(t *testing.T) {
	h, _, _ := newTestHandler(t, config.ReleasePolicySingle)

	doJSON(t, h.Claim, http.MethodPost, "/api/v1/slots/claim", `{"slot_no": 3, "user_id": "u1"}`)
	rec := doJSON(t, h.Release, http.MethodPost, "/api/v1/slots/release", `{"user_id": "u1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if resp := decodeAction(t, rec); resp.SlotNo != 3 {
		t.Fatalf("expected released slot 3, got %+v", resp)
	}
}

func TestChoosePolicyRequiresSlot(t *testing.T) {
	h, _, _ := newTestHandler(t, config.ReleasePolicyChoose)

	rec := doJSON(t, h.Release, http.MethodPost, "/api/v1/slots/release", `{"user_id": "u1"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestListHeldBy(t *testing.T) {
	h, _, _ := newTestHandler(t, config.ReleasePolicyChoose)

	doJSON(t, h.Claim, http.MethodPost, "/api/v1/slots/claim", `{"slot_no": 1, "user_id": "u1"}`)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/slots?held_by=u1", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Slots []struct {
			SlotNo int `json:"slot_no"`
		} `json:"slots"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Slots) != 1 || resp.Slots[0].SlotNo != 1 {
		t.Fatalf("unexpected held_by result: %+v", resp.Slots)
	}
}

func TestRefreshEndpoint(t *testing.T) {
	h, _, disp := newTestHandler(t, config.ReleasePolicyChoose)

	rec := doJSON(t, h.Refresh, http.MethodPost, "/api/v1/panel/refresh", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(disp.artifacts) != 1 {
		t.Fatalf("expected the panel to be created, got %d artifacts", len(disp.artifacts))
	}
}
