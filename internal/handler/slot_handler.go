package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dvoicu/slotboard/internal/lease"
	"github.com/dvoicu/slotboard/internal/panel"
	"github.com/dvoicu/slotboard/internal/render"
)

// SlotHandler handles the three logical triggers: claim, release, and
// display refresh. Each successful mutation concludes with a panel publish
// so the visible state never lags the store by more than one round trip.
type SlotHandler struct {
	leases *lease.Manager
	panel  *panel.Controller
}

// NewSlotHandler creates a new slot handler
func NewSlotHandler(leases *lease.Manager, panelController *panel.Controller) *SlotHandler {
	return &SlotHandler{
		leases: leases,
		panel:  panelController,
	}
}

// ClaimRequest represents a claim trigger. SlotNo is optional; when absent
// the lowest-numbered free slot is picked.
type ClaimRequest struct {
	SlotNo    *int   `json:"slot_no,omitempty"`
	UserID    string `json:"user_id"`
	UserLabel string `json:"user_label,omitempty"`
}

// ReleaseRequest represents a release trigger. SlotNo is required under the
// choose policy and rejected under the single policy.
type ReleaseRequest struct {
	SlotNo *int   `json:"slot_no,omitempty"`
	UserID string `json:"user_id"`
}

// ActionResponse reports a claim/release outcome to the user. Conflict
// outcomes reuse this shape with a conflict status.
type ActionResponse struct {
	Status    string `json:"status"`
	SlotNo    int    `json:"slot_no,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
	Message   string `json:"message"`
}

// SlotsResponse represents the read snapshot.
type SlotsResponse struct {
	Slots interface{} `json:"slots"`
	Panel string      `json:"panel,omitempty"`
}

// Claim handles POST /api/v1/slots/claim
func (h *SlotHandler) Claim(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	var result lease.ClaimResult
	var err error
	if req.SlotNo != nil {
		result, err = h.leases.Claim(r.Context(), *req.SlotNo, req.UserID, req.UserLabel)
	} else {
		result, err = h.leases.ClaimAny(r.Context(), req.UserID, req.UserLabel)
	}
	if err != nil {
		h.writeLeaseError(w, err)
		return
	}

	switch result.Status {
	case lease.ClaimOK:
		if !h.publish(w, r) {
			return
		}
		remaining := render.Remaining(time.Until(*result.Slot.ExpiresAt))
		writeJSON(w, http.StatusOK, ActionResponse{
			Status:    "claimed",
			SlotNo:    result.Slot.SlotNo,
			ExpiresAt: result.Slot.ExpiresAt.Format(time.RFC3339),
			Message:   fmt.Sprintf("Slot %d is yours for the next %s", result.Slot.SlotNo, remaining),
		})
	case lease.ClaimAlreadyHeld:
		writeJSON(w, http.StatusConflict, ActionResponse{
			Status:  "already_held",
			Message: "That slot was just taken. Refresh the panel and pick another one.",
		})
	case lease.ClaimAlreadyHolding:
		writeJSON(w, http.StatusConflict, ActionResponse{
			Status:  "already_holding",
			Message: "You already hold a slot. Release it before claiming another.",
		})
	case lease.ClaimNoFreeSlots:
		writeJSON(w, http.StatusConflict, ActionResponse{
			Status:  "no_free_slots",
			Message: "No slots are free right now.",
		})
	}
}

// Release handles POST /api/v1/slots/release
func (h *SlotHandler) Release(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req ReleaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	// The two release shapes belong to different deployment policies and
	// are never mixed: slot selection only exists under the choose policy.
	var result lease.ReleaseResult
	var err error
	if h.leases.SingleSlotPolicy() {
		if req.SlotNo != nil {
			writeError(w, http.StatusBadRequest, "Slot selection is not supported under the single-slot policy")
			return
		}
		result, err = h.leases.ReleaseAny(r.Context(), req.UserID)
	} else {
		if req.SlotNo == nil {
			writeError(w, http.StatusBadRequest, "slot_no is required")
			return
		}
		result, err = h.leases.Release(r.Context(), *req.SlotNo, req.UserID)
	}
	if err != nil {
		h.writeLeaseError(w, err)
		return
	}

	switch result.Status {
	case lease.ReleaseOK:
		if !h.publish(w, r) {
			return
		}
		writeJSON(w, http.StatusOK, ActionResponse{
			Status:  "released",
			SlotNo:  result.SlotNo,
			Message: fmt.Sprintf("Slot %d released", result.SlotNo),
		})
	case lease.ReleaseNotHeld:
		writeJSON(w, http.StatusConflict, ActionResponse{
			Status:  "not_held",
			Message: "You don't hold that slot. The lease may have already expired or been released.",
		})
	}
}

// List handles GET /api/v1/slots. With held_by it returns the caller's live
// leases; otherwise the full snapshot plus the rendered panel text.
func (h *SlotHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if heldBy := r.URL.Query().Get("held_by"); heldBy != "" {
		slots, err := h.leases.ListHeldBy(r.Context(), heldBy)
		if err != nil {
			h.writeLeaseError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, SlotsResponse{Slots: slots})
		return
	}

	slots, err := h.leases.ListAll(r.Context())
	if err != nil {
		h.writeLeaseError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SlotsResponse{
		Slots: slots,
		Panel: render.Snapshot(slots, time.Now().UTC()),
	})
}

// Refresh handles POST /api/v1/panel/refresh
func (h *SlotHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if !h.publish(w, r) {
		return
	}

	writeJSON(w, http.StatusOK, ActionResponse{
		Status:  "refreshed",
		Message: "Panel refreshed",
	})
}

// publish pushes the panel after a trigger. On failure the user gets a
// generic failure message; the mutation (if any) already committed
// atomically and the next tick will converge the display.
func (h *SlotHandler) publish(w http.ResponseWriter, r *http.Request) bool {
	if err := h.panel.Publish(r.Context()); err != nil {
		slog.Error("Panel publish failed", "error", err)
		writeError(w, http.StatusBadGateway, "The panel could not be refreshed. Please try again.")
		return false
	}
	return true
}

// writeLeaseError maps manager errors: invalid input is the caller's
// mistake, anything else is an infrastructure failure reported generically.
func (h *SlotHandler) writeLeaseError(w http.ResponseWriter, err error) {
	var invalidSlot *lease.ErrInvalidSlot
	var invalidUser *lease.ErrInvalidUser
	if errors.As(err, &invalidSlot) || errors.As(err, &invalidUser) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	slog.Error("Slot operation failed", "error", err)
	writeError(w, http.StatusInternalServerError, "Something went wrong. Please try again.")
}
