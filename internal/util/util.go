package util

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// NormalizePhone strips formatting down to the channel-addressable form:
// digits with an optional leading "+".
func NormalizePhone(p string) string {
	p = strings.TrimSpace(p)
	var b strings.Builder
	for i, r := range p {
		if r == '+' && i == 0 {
			b.WriteRune(r)
			continue
		}
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func newID(prefix string) string {
	// ULID is sortable (nice for DB indexes and stable insertion order)
	t := time.Now().UTC()
	return prefix + ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}

func NewCampaignID() string { return newID("cmp_") }
func NewMessageID() string  { return newID("msg_") }
func NewContactID() string  { return newID("ct_") }
func NewTemplateID() string { return newID("tpl_") }

func NowUTC() time.Time {
	return time.Now().UTC()
}
