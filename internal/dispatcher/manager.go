package dispatcher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"wasender/internal/domain"
	"wasender/internal/events"
	"wasender/internal/store"
)

// ManagerStore adds the campaign lifecycle operations the manager claims
// through.
type ManagerStore interface {
	Store
	GetCampaign(ctx context.Context, id string) (store.Campaign, bool, error)
	ClaimCampaign(ctx context.Context, in store.CampaignClaim) (bool, error)
}

// Manager enforces the exclusivity invariant: at most one active dispatch
// pass per campaign. The DB-level conditional status update is the real
// arbiter between racing starters (scheduler tick vs manual request); the
// in-process registry tracks the winning pass so pause can reach it.
type Manager struct {
	Store      ManagerStore
	Dispatcher *Dispatcher
	Bus        *events.Bus

	mu     sync.Mutex
	active map[string]context.CancelFunc
	wg     sync.WaitGroup
	root   context.Context
}

func NewManager(root context.Context, st ManagerStore, d *Dispatcher, bus *events.Bus) *Manager {
	return &Manager{
		Store:      st,
		Dispatcher: d,
		Bus:        bus,
		active:     map[string]context.CancelFunc{},
		root:       root,
	}
}

// Start claims the campaign (draft, scheduled or paused -> running) and runs
// a dispatch pass in the background. Exactly one of any set of concurrent
// callers wins; the rest get ErrInvalidState. Resume is the same operation —
// the pass only ever touches messages still pending, so nothing already sent
// or failed is re-sent.
func (m *Manager) Start(ctx context.Context, campaignID string) error {
	campaign, found, err := m.Store.GetCampaign(ctx, campaignID)
	if err != nil {
		return err
	}
	if !found {
		return domain.ErrNotFound
	}

	claimed, err := m.Store.ClaimCampaign(ctx, store.CampaignClaim{
		ID:   campaignID,
		From: []string{"draft", "scheduled", "paused"},
		To:   "running",
	})
	if err != nil {
		return err
	}
	if !claimed {
		return domain.ErrInvalidState
	}

	runCtx, cancel := context.WithCancel(m.root)
	m.mu.Lock()
	if _, busy := m.active[campaignID]; busy {
		// A paused pass can still be draining its registry entry when the
		// resume claim wins. Give the claim back so the campaign doesn't sit
		// in running with no pass attached; the caller can retry.
		m.mu.Unlock()
		cancel()
		if _, rerr := m.Store.ClaimCampaign(ctx, store.CampaignClaim{
			ID:   campaignID,
			From: []string{"running"},
			To:   "paused",
		}); rerr != nil {
			slog.Error("campaign claim revert failed", "err", rerr, "campaign_id", campaignID)
		}
		return domain.ErrInvalidState
	}
	m.active[campaignID] = cancel
	m.mu.Unlock()

	m.Bus.Publish(events.Event{Type: events.TypeCampaignStarted, Data: events.CampaignEvent{CampaignID: campaignID}})

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			m.mu.Lock()
			delete(m.active, campaignID)
			m.mu.Unlock()
			cancel()
		}()
		m.runPass(runCtx, campaign)
	}()

	return nil
}

func (m *Manager) runPass(ctx context.Context, campaign store.Campaign) {
	start := time.Now()
	res, err := m.Dispatcher.Run(ctx, campaign)
	switch {
	case err == nil:
		slog.Info("campaign dispatch finished",
			"campaign_id", campaign.ID,
			"sent", res.Sent,
			"failed", res.Failed,
			"total", res.Total,
			"duration", time.Since(start),
		)
	case errors.Is(err, context.Canceled):
		// Pause or shutdown. Park the campaign so the remaining pending
		// messages survive for a later resume. If a pause request already
		// moved it to paused this is a no-op.
		if _, cerr := m.Store.ClaimCampaign(context.Background(), store.CampaignClaim{
			ID:   campaign.ID,
			From: []string{"running"},
			To:   "paused",
		}); cerr != nil {
			slog.Error("campaign park failed", "err", cerr, "campaign_id", campaign.ID)
		}
		slog.Info("campaign dispatch stopped",
			"campaign_id", campaign.ID,
			"sent", res.Sent,
			"failed", res.Failed,
			"total", res.Total,
		)
	default:
		slog.Error("campaign dispatch failed",
			"err", err,
			"campaign_id", campaign.ID,
			"sent", res.Sent,
			"failed", res.Failed,
			"total", res.Total,
		)
	}
}

// Pause moves running -> paused and signals the in-flight pass to stop at
// its next message boundary. Unattempted messages stay pending.
func (m *Manager) Pause(ctx context.Context, campaignID string) error {
	claimed, err := m.Store.ClaimCampaign(ctx, store.CampaignClaim{
		ID:   campaignID,
		From: []string{"running"},
		To:   "paused",
	})
	if err != nil {
		return err
	}
	if !claimed {
		_, found, gerr := m.Store.GetCampaign(ctx, campaignID)
		if gerr != nil {
			return gerr
		}
		if !found {
			return domain.ErrNotFound
		}
		return domain.ErrInvalidState
	}

	m.mu.Lock()
	cancel := m.active[campaignID]
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	m.Bus.Publish(events.Event{Type: events.TypeCampaignPaused, Data: events.CampaignEvent{CampaignID: campaignID}})
	return nil
}

// Resume re-enters dispatch over the campaign's remaining pending messages.
func (m *Manager) Resume(ctx context.Context, campaignID string) error {
	return m.Start(ctx, campaignID)
}

// Active reports whether a dispatch pass for the campaign is currently live.
func (m *Manager) Active(campaignID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[campaignID]
	return ok
}

// Close waits for in-flight passes to reach a boundary and park.
func (m *Manager) Close() {
	m.mu.Lock()
	for _, cancel := range m.active {
		cancel()
	}
	m.mu.Unlock()
	m.wg.Wait()
}
