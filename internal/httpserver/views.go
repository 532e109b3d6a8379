package httpserver

import (
	"time"

	"wasender/internal/store"
)

// JSON views keep wire shape independent of store records.

type contactView struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Phone        string            `json:"phone"`
	Email        string            `json:"email,omitempty"`
	Tags         []string          `json:"tags,omitempty"`
	CustomFields map[string]string `json:"customFields,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

func contactJSON(c store.Contact) contactView {
	return contactView{
		ID: c.ID, Name: c.Name, Phone: c.Phone, Email: c.Email,
		Tags: c.Tags, CustomFields: c.CustomFields,
		CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt,
	}
}

func contactsJSON(cs []store.Contact) []contactView {
	out := make([]contactView, 0, len(cs))
	for _, c := range cs {
		out = append(out, contactJSON(c))
	}
	return out
}

type templateView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func templateJSON(t store.Template) templateView {
	return templateView{ID: t.ID, Name: t.Name, Body: t.Body, CreatedAt: t.CreatedAt, UpdatedAt: t.UpdatedAt}
}

func templatesJSON(ts []store.Template) []templateView {
	out := make([]templateView, 0, len(ts))
	for _, t := range ts {
		out = append(out, templateJSON(t))
	}
	return out
}

type campaignView struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Status      string     `json:"status"`
	ScheduledAt *time.Time `json:"scheduledAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

func campaignsJSON(cs []store.Campaign) []campaignView {
	out := make([]campaignView, 0, len(cs))
	for _, c := range cs {
		out = append(out, campaignView{
			ID: c.ID, Name: c.Name, Status: c.Status,
			ScheduledAt: c.ScheduledAt, CreatedAt: c.CreatedAt, CompletedAt: c.CompletedAt,
		})
	}
	return out
}

type messageView struct {
	ID          string     `json:"id"`
	CampaignID  string     `json:"campaignId"`
	ContactID   string     `json:"contactId"`
	Phone       string     `json:"phone"`
	Body        string     `json:"body"`
	Status      string     `json:"status"`
	LastError   string     `json:"lastError,omitempty"`
	SentAt      *time.Time `json:"sentAt,omitempty"`
	DeliveredAt *time.Time `json:"deliveredAt,omitempty"`
	ReadAt      *time.Time `json:"readAt,omitempty"`
}

func messagesJSON(ms []store.Message) []messageView {
	out := make([]messageView, 0, len(ms))
	for _, m := range ms {
		out = append(out, messageView{
			ID: m.ID, CampaignID: m.CampaignID, ContactID: m.ContactID,
			Phone: m.Phone, Body: m.Body, Status: m.Status, LastError: m.LastError,
			SentAt: m.SentAt, DeliveredAt: m.DeliveredAt, ReadAt: m.ReadAt,
		})
	}
	return out
}
