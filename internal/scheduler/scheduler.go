// Package scheduler polls for campaigns whose scheduled time has arrived and
// hands each to the dispatcher exactly once.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"wasender/internal/domain"
	"wasender/internal/observability"
	"wasender/internal/store"
)

type Store interface {
	ListDueCampaigns(ctx context.Context, now time.Time) ([]store.Campaign, error)
}

// Starter is the claim-and-dispatch entry point (the dispatcher manager).
type Starter interface {
	Start(ctx context.Context, campaignID string) error
}

type Scheduler struct {
	Store    Store
	Starter  Starter
	Interval time.Duration
	Now      func() time.Time // defaults to time.Now().UTC
}

// Run ticks until ctx is canceled. Each tick lists due scheduled campaigns
// and attempts to start them. A campaign claimed elsewhere in the meantime
// (manual start winning the race) yields ErrInvalidState and is skipped
// silently; a transient store error leaves the campaign scheduled, so it
// simply surfaces again next tick. No retries within a tick.
func (s *Scheduler) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("scheduler started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick is one poll pass. Exposed so tests can drive the scheduler directly.
func (s *Scheduler) Tick(ctx context.Context) {
	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now()
	}

	due, err := s.Store.ListDueCampaigns(ctx, now)
	if err != nil {
		slog.Error("scheduler list due campaigns failed", "err", err)
		return
	}

	for _, c := range due {
		err := s.Starter.Start(ctx, c.ID)
		switch {
		case err == nil:
			observability.SchedulerClaims.WithLabelValues("claimed").Inc()
			if c.ScheduledAt != nil {
				slog.Info("scheduled campaign started", "campaign_id", c.ID, "scheduled_at", *c.ScheduledAt)
			} else {
				slog.Info("scheduled campaign started", "campaign_id", c.ID)
			}
		case errors.Is(err, domain.ErrInvalidState):
			// Lost the race to a manual start. Nothing to do.
			observability.SchedulerClaims.WithLabelValues("lost_race").Inc()
		default:
			observability.SchedulerClaims.WithLabelValues("error").Inc()
			slog.Error("scheduled campaign start failed", "err", err, "campaign_id", c.ID)
		}
	}
}
