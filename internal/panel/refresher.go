package panel

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dvoicu/slotboard/internal/config"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// Refresher drives the recurring panel refresh. One repeating timer invokes
// the same Publish path the manual triggers use; a failed tick is logged and
// swallowed so it never halts future refreshes.
type Refresher struct {
	cfg        *config.Config
	controller *Controller
	instanceID string
	ticker     *time.Ticker
	stopChan   chan struct{}
	wg         sync.WaitGroup

	repostSchedule cron.Schedule
	nextRepost     time.Time
}

// NewRefresher creates a refresher. The optional repost schedule is a
// standard five-field cron expression.
func NewRefresher(cfg *config.Config, controller *Controller) (*Refresher, error) {
	// Instance identifier (hostname in Kubernetes)
	instanceID, err := os.Hostname()
	if err != nil {
		instanceID = uuid.New().String() // Fallback to UUID
		slog.Warn("Failed to get hostname, using UUID as instance ID", "instance_id", instanceID)
	}

	r := &Refresher{
		cfg:        cfg,
		controller: controller,
		instanceID: instanceID,
		stopChan:   make(chan struct{}),
	}

	if cfg.PanelRepostSchedule != "" {
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		schedule, err := parser.Parse(cfg.PanelRepostSchedule)
		if err != nil {
			return nil, fmt.Errorf("invalid panel repost schedule: %w", err)
		}
		r.repostSchedule = schedule
		r.nextRepost = schedule.Next(time.Now().UTC())
	}

	return r, nil
}

// Start begins the refresh loop. Call after initialization completes so the
// first tick already sees an initialized slot table.
func (r *Refresher) Start(ctx context.Context) {
	if !r.cfg.RefreshEnabled {
		slog.Info("Panel refresh is disabled by configuration")
		return
	}

	slog.Info("Starting panel refresher",
		"instance_id", r.instanceID,
		"refresh_interval", r.cfg.RefreshInterval,
		"repost_schedule", r.cfg.PanelRepostSchedule,
	)

	r.ticker = time.NewTicker(r.cfg.RefreshInterval)
	r.wg.Add(1)

	go r.run(ctx)
}

// Stop gracefully stops the refresher
func (r *Refresher) Stop(ctx context.Context) {
	if !r.cfg.RefreshEnabled {
		return
	}

	slog.Info("Stopping panel refresher", "instance_id", r.instanceID)

	close(r.stopChan)

	if r.ticker != nil {
		r.ticker.Stop()
	}

	// Wait for an in-flight tick with timeout
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Panel refresher stopped", "instance_id", r.instanceID)
	case <-ctx.Done():
		slog.Warn("Timeout waiting for panel refresh to complete")
	}
}

// run is the main refresh loop
func (r *Refresher) run(ctx context.Context) {
	defer r.wg.Done()

	// Publish immediately on start
	r.tick(ctx)

	for {
		select {
		case <-r.ticker.C:
			r.tick(ctx)
		case <-r.stopChan:
			return
		case <-ctx.Done():
			slog.Info("Panel refresher context done", "instance_id", r.instanceID)
			return
		}
	}
}

// tick publishes one refresh. Failures are logged and swallowed; the next
// tick is the retry.
func (r *Refresher) tick(ctx context.Context) {
	correlationID := uuid.New().String()
	now := time.Now().UTC()
	start := now

	var err error
	if r.repostSchedule != nil && !now.Before(r.nextRepost) {
		err = r.controller.Repost(ctx)
		r.nextRepost = r.repostSchedule.Next(now)
	} else {
		err = r.controller.Publish(ctx)
	}

	duration := time.Since(start)

	if err != nil {
		slog.Error("Panel refresh failed",
			"instance_id", r.instanceID,
			"correlation_id", correlationID,
			"duration_ms", duration.Milliseconds(),
			"error", err,
		)
		return
	}

	slog.Debug("Panel refreshed",
		"instance_id", r.instanceID,
		"correlation_id", correlationID,
		"duration_ms", duration.Milliseconds(),
	)
}
