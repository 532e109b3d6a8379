package domain

type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignRunning   CampaignStatus = "running"
	CampaignCompleted CampaignStatus = "completed"
	CampaignPaused    CampaignStatus = "paused"
)

type MessageStatus string

const (
	MessagePending MessageStatus = "pending"
	MessageSent    MessageStatus = "sent"
	MessageFailed  MessageStatus = "failed"
)

type CreateCampaignRequest struct {
	Name          string   `json:"name"`
	Body          string   `json:"body"`
	MediaURL      string   `json:"mediaUrl,omitempty"`
	MediaMimeType string   `json:"mediaMimeType,omitempty"`
	ScheduledAt   string   `json:"scheduledAt,omitempty"` // RFC3339; empty means manual start
	ContactIDs    []string `json:"contactIds"`
}

func (r CreateCampaignRequest) Validate() error {
	if r.Name == "" || r.Body == "" {
		return ErrInvalidInput
	}
	if len(r.ContactIDs) == 0 {
		return ErrInvalidInput
	}
	if r.MediaURL != "" && r.MediaMimeType == "" {
		return ErrInvalidInput
	}
	return nil
}

type CreateContactRequest struct {
	Name         string            `json:"name"`
	Phone        string            `json:"phone"`
	Email        string            `json:"email,omitempty"`
	Tags         []string          `json:"tags,omitempty"`
	CustomFields map[string]string `json:"customFields,omitempty"`
}

func (r CreateContactRequest) Validate() error {
	if r.Name == "" || r.Phone == "" {
		return ErrInvalidInput
	}
	return nil
}

type CreateTemplateRequest struct {
	Name string `json:"name"`
	Body string `json:"body"`
}

func (r CreateTemplateRequest) Validate() error {
	if r.Name == "" || r.Body == "" {
		return ErrInvalidInput
	}
	return nil
}

type CreateCampaignResponse struct {
	CampaignID string `json:"campaignId"`
	Status     string `json:"status"`
	Messages   int    `json:"messages"`
}

// DispatchResult summarizes one full dispatcher pass over a campaign.
type DispatchResult struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
	Total  int `json:"total"`
}
