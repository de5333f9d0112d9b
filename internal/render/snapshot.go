// Package render maps a point-in-time list of slot records to the panel
// text. Pure functions only; identical inputs yield identical output.
package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/dvoicu/slotboard/internal/model"
)

const header = "Slot status"

// Snapshot renders the panel document for the given slots at the given
// instant. Slots are expected in ascending slot number order; free slots get
// the available marker, leased slots show the holder label and remaining
// time. A lease past its expiry renders "expired" until the next sweep
// clears it.
func Snapshot(slots []model.Slot, now time.Time) string {
	var b strings.Builder
	b.WriteString(header)
	b.WriteByte('\n')

	for _, slot := range slots {
		if slot.HolderID == "" {
			fmt.Fprintf(&b, "Slot %d — available\n", slot.SlotNo)
			continue
		}
		fmt.Fprintf(&b, "Slot %d — %s (%s)\n", slot.SlotNo, slot.HolderLabel, remainingLabel(slot, now))
	}

	return b.String()
}

func remainingLabel(slot model.Slot, now time.Time) string {
	if slot.ExpiresAt == nil {
		return "expired"
	}
	remaining := Remaining(slot.ExpiresAt.Sub(now))
	if remaining == "expired" {
		return remaining
	}
	return remaining + " left"
}

// Remaining formats a lease's remaining duration. Non-positive durations
// render "expired"; otherwise hours and minutes are shown, each clause
// omitted when zero. Minutes round up so a live lease never renders empty.
func Remaining(d time.Duration) string {
	if d <= 0 {
		return "expired"
	}

	totalMinutes := int64((d + time.Minute - 1) / time.Minute)
	hours := totalMinutes / 60
	minutes := totalMinutes % 60

	switch {
	case hours == 0:
		return fmt.Sprintf("%dm", minutes)
	case minutes == 0:
		return fmt.Sprintf("%dh", hours)
	default:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
}
