package store

import "time"

type Contact struct {
	ID           string
	Name         string
	Phone        string
	Email        string
	Tags         []string
	CustomFields map[string]string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Template struct {
	ID        string
	Name      string
	Body      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Campaign struct {
	ID            string
	Name          string
	Body          string
	MediaURL      string
	MediaMimeType string
	Status        string
	ScheduledAt   *time.Time
	CreatedAt     time.Time
	CompletedAt   *time.Time
}

// Message is one per-recipient send attempt. Phone and body are snapshotted
// at campaign creation so deleting the contact never corrupts history.
type Message struct {
	ID            string
	CampaignID    string
	ContactID     string
	Phone         string
	Body          string
	Status        string
	ProviderMsgID string
	LastError     string
	SentAt        *time.Time
	DeliveredAt   *time.Time
	ReadAt        *time.Time
	CreatedAt     time.Time
}

type ContactInsert struct {
	ID           string
	Name         string
	Phone        string
	Email        string
	Tags         []string
	CustomFields map[string]string
	Now          time.Time
}

type TemplateInsert struct {
	ID   string
	Name string
	Body string
	Now  time.Time
}

type CampaignInsert struct {
	ID            string
	Name          string
	Body          string
	MediaURL      string
	MediaMimeType string
	Status        string
	ScheduledAt   *time.Time
	Now           time.Time
}

type MessageInsert struct {
	ID         string
	CampaignID string
	ContactID  string
	Phone      string
	Body       string
}

// CampaignClaim is the conditional status transition that enforces the
// one-active-dispatch-per-campaign guarantee. The update applies only while
// the campaign status is still one of From; the bool result tells the caller
// whether it won the claim.
type CampaignClaim struct {
	ID   string
	From []string
	To   string
}

type MessageOutcome struct {
	ID            string
	Status        string
	ProviderMsgID string
	LastError     string
	Now           time.Time
}

// ReceiptUpdate records what the transport reported for a sent message,
// keyed by the gateway's own message id.
type ReceiptUpdate struct {
	ProviderMsgID string
	Delivered     bool
	Read          bool
	Now           time.Time
}

type CampaignStats struct {
	Total   int `json:"total"`
	Pending int `json:"pending"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
}
