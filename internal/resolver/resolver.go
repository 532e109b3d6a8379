// Package resolver expands a campaign draft into concrete per-recipient
// message records with template variables substituted.
package resolver

import (
	"regexp"

	"wasender/internal/domain"
	"wasender/internal/store"
	"wasender/internal/util"
)

var placeholderRe = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// Render substitutes {var} placeholders with the contact's field values.
// Built-ins are {name}, {phone}, {email}; custom fields resolve by key.
// A placeholder the contact has no value for becomes the empty string —
// a literal {name} must never leak into an outgoing message.
func Render(body string, c store.Contact) string {
	vars := map[string]string{
		"name":  c.Name,
		"phone": c.Phone,
		"email": c.Email,
	}
	for k, v := range c.CustomFields {
		if _, reserved := vars[k]; !reserved {
			vars[k] = v
		}
	}
	return placeholderRe.ReplaceAllStringFunc(body, func(m string) string {
		key := m[1 : len(m)-1]
		return vars[key]
	})
}

// Resolve produces one pending message per contact, body rendered and phone
// snapshotted. The caller persists the slice atomically with the campaign.
func Resolve(campaignID, body string, contacts []store.Contact) ([]store.MessageInsert, error) {
	if len(contacts) == 0 {
		return nil, domain.ErrInvalidInput
	}
	msgs := make([]store.MessageInsert, 0, len(contacts))
	for _, c := range contacts {
		msgs = append(msgs, store.MessageInsert{
			ID:         util.NewMessageID(),
			CampaignID: campaignID,
			ContactID:  c.ID,
			Phone:      c.Phone,
			Body:       Render(body, c),
		})
	}
	return msgs, nil
}
