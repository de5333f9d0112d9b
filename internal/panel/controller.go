// Package panel keeps exactly one published chat message in sync with the
// slot store. Every trigger, user action or timer tick, funnels through the
// same sweep-read-render-publish path, so the displayed state is always a
// projection of the store.
package panel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dvoicu/slotboard/internal/display"
	"github.com/dvoicu/slotboard/internal/lease"
	"github.com/dvoicu/slotboard/internal/render"
	"github.com/dvoicu/slotboard/internal/store"
)

// MetaKeyArtifactID is the metadata key holding the published panel message
// id across restarts.
const MetaKeyArtifactID = "panel_message_id"

// Display is the narrow contract the controller needs from the chat
// surface. The artifact id is opaque.
type Display interface {
	Create(ctx context.Context, document string) (string, error)
	Update(ctx context.Context, artifactID, document string) error
	Fetch(ctx context.Context, artifactID string) error
}

// Controller orchestrates publishing the panel.
type Controller struct {
	leases  *lease.Manager
	meta    store.MetaStore
	display Display
	now     func() time.Time
}

// NewController creates a panel controller.
func NewController(leases *lease.Manager, meta store.MetaStore, disp Display) *Controller {
	return &Controller{
		leases:  leases,
		meta:    meta,
		display: disp,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Publish sweeps expired leases, renders the current snapshot, and pushes it
// to the display surface: the previously-published message is updated when
// it still exists, otherwise a new one is created and its id persisted.
// Publishing with no intervening mutation converges to the same single
// artifact, so the call is idempotent across restarts and duplicate ticks.
func (c *Controller) Publish(ctx context.Context) error {
	if _, err := c.leases.SweepExpired(ctx); err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	slots, err := c.leases.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	document := render.Snapshot(slots, c.now())

	artifactID, err := c.meta.Get(ctx, MetaKeyArtifactID)
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	if artifactID != "" {
		err := c.display.Update(ctx, artifactID, document)
		if err == nil {
			return nil
		}
		if !errors.Is(err, display.ErrNotFound) {
			return fmt.Errorf("publish: %w", err)
		}

		// The message was deleted externally; forget the stale id and
		// fall through to creating a replacement.
		slog.Warn("Panel artifact gone, recreating", "artifact_id", artifactID)
		if err := c.meta.Delete(ctx, MetaKeyArtifactID); err != nil {
			return fmt.Errorf("publish: %w", err)
		}
	}

	newID, err := c.display.Create(ctx, document)
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	if err := c.meta.Set(ctx, MetaKeyArtifactID, newID); err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	return nil
}

// Repost forgets the stored artifact id before publishing, forcing a fresh
// message. Used by the repost schedule to bring the panel back to the
// bottom of the channel.
func (c *Controller) Repost(ctx context.Context) error {
	if err := c.meta.Delete(ctx, MetaKeyArtifactID); err != nil {
		return fmt.Errorf("repost: %w", err)
	}
	return c.Publish(ctx)
}
