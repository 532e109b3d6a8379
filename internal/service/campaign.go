package service

import (
	"context"
	"fmt"
	"time"

	"wasender/internal/domain"
	"wasender/internal/resolver"
	"wasender/internal/store"
)

type Store interface {
	ListContactsByIDs(ctx context.Context, ids []string) ([]store.Contact, error)
	CreateCampaignWithMessages(ctx context.Context, c store.CampaignInsert, msgs []store.MessageInsert) error
	GetCampaign(ctx context.Context, id string) (store.Campaign, bool, error)
	ListCampaigns(ctx context.Context, status string) ([]store.Campaign, error)
	CampaignStats(ctx context.Context, id string) (store.CampaignStats, error)
	ListMessages(ctx context.Context, campaignID string) ([]store.Message, error)
	DeleteCampaign(ctx context.Context, id string) (bool, error)
}

// Lifecycle is the dispatcher manager's claim surface.
type Lifecycle interface {
	Start(ctx context.Context, campaignID string) error
	Pause(ctx context.Context, campaignID string) error
	Resume(ctx context.Context, campaignID string) error
}

type CampaignService struct {
	Store     Store
	Lifecycle Lifecycle
	IDGen     func() string // campaign ids
}

// CreateCampaign materializes the campaign and its full message set in one
// atomic store call. The message set is fixed from this point on; dispatch,
// pause and resume only ever flip per-message status fields.
func (s *CampaignService) CreateCampaign(ctx context.Context, req domain.CreateCampaignRequest, now time.Time) (domain.CreateCampaignResponse, error) {
	if err := req.Validate(); err != nil {
		return domain.CreateCampaignResponse{}, err
	}

	status := string(domain.CampaignDraft)
	var scheduledAt *time.Time
	if req.ScheduledAt != "" {
		t, err := time.Parse(time.RFC3339, req.ScheduledAt)
		if err != nil {
			return domain.CreateCampaignResponse{}, fmt.Errorf("%w: bad scheduledAt", domain.ErrInvalidInput)
		}
		if !t.After(now) {
			return domain.CreateCampaignResponse{}, fmt.Errorf("%w: scheduledAt not in the future", domain.ErrInvalidInput)
		}
		tu := t.UTC()
		scheduledAt = &tu
		status = string(domain.CampaignScheduled)
	}

	contacts, err := s.Store.ListContactsByIDs(ctx, req.ContactIDs)
	if err != nil {
		return domain.CreateCampaignResponse{}, err
	}
	if len(contacts) != len(uniqueIDs(req.ContactIDs)) {
		return domain.CreateCampaignResponse{}, fmt.Errorf("%w: unknown contact id", domain.ErrNotFound)
	}

	campaignID := s.IDGen()
	msgs, err := resolver.Resolve(campaignID, req.Body, contacts)
	if err != nil {
		return domain.CreateCampaignResponse{}, err
	}

	if err := s.Store.CreateCampaignWithMessages(ctx, store.CampaignInsert{
		ID:            campaignID,
		Name:          req.Name,
		Body:          req.Body,
		MediaURL:      req.MediaURL,
		MediaMimeType: req.MediaMimeType,
		Status:        status,
		ScheduledAt:   scheduledAt,
		Now:           now,
	}, msgs); err != nil {
		return domain.CreateCampaignResponse{}, err
	}

	return domain.CreateCampaignResponse{
		CampaignID: campaignID,
		Status:     status,
		Messages:   len(msgs),
	}, nil
}

func (s *CampaignService) Start(ctx context.Context, campaignID string) error {
	return s.Lifecycle.Start(ctx, campaignID)
}

func (s *CampaignService) Pause(ctx context.Context, campaignID string) error {
	return s.Lifecycle.Pause(ctx, campaignID)
}

func (s *CampaignService) Resume(ctx context.Context, campaignID string) error {
	return s.Lifecycle.Resume(ctx, campaignID)
}

type CampaignDetails struct {
	ID            string              `json:"id"`
	Name          string              `json:"name"`
	Body          string              `json:"body"`
	MediaURL      string              `json:"mediaUrl,omitempty"`
	MediaMimeType string              `json:"mediaMimeType,omitempty"`
	Status        string              `json:"status"`
	ScheduledAt   *time.Time          `json:"scheduledAt,omitempty"`
	CreatedAt     time.Time           `json:"createdAt"`
	CompletedAt   *time.Time          `json:"completedAt,omitempty"`
	Stats         store.CampaignStats `json:"stats"`
}

func (s *CampaignService) GetCampaign(ctx context.Context, id string) (CampaignDetails, error) {
	c, found, err := s.Store.GetCampaign(ctx, id)
	if err != nil {
		return CampaignDetails{}, err
	}
	if !found {
		return CampaignDetails{}, domain.ErrNotFound
	}
	stats, err := s.Store.CampaignStats(ctx, id)
	if err != nil {
		return CampaignDetails{}, err
	}
	return CampaignDetails{
		ID:            c.ID,
		Name:          c.Name,
		Body:          c.Body,
		MediaURL:      c.MediaURL,
		MediaMimeType: c.MediaMimeType,
		Status:        c.Status,
		ScheduledAt:   c.ScheduledAt,
		CreatedAt:     c.CreatedAt,
		CompletedAt:   c.CompletedAt,
		Stats:         stats,
	}, nil
}

func (s *CampaignService) ListCampaigns(ctx context.Context, status string) ([]store.Campaign, error) {
	return s.Store.ListCampaigns(ctx, status)
}

func (s *CampaignService) ListMessages(ctx context.Context, campaignID string) ([]store.Message, error) {
	_, found, err := s.Store.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, domain.ErrNotFound
	}
	return s.Store.ListMessages(ctx, campaignID)
}

func (s *CampaignService) DeleteCampaign(ctx context.Context, id string) error {
	ok, err := s.Store.DeleteCampaign(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotFound
	}
	return nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
