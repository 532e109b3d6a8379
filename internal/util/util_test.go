package util

import (
	"strings"
	"testing"
)

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"+55 (11) 98765-4321", "+5511987654321"},
		{"55 11 98765 4321", "5511987654321"},
		{"  +1-202-555-0143  ", "+12025550143"},
		{"11 + 22", "1122"}, // plus only counts at the front
		{"", ""},
	}
	for _, c := range cases {
		if got := NormalizePhone(c.in); got != c.want {
			t.Fatalf("NormalizePhone(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestIDPrefixes(t *testing.T) {
	if id := NewCampaignID(); !strings.HasPrefix(id, "cmp_") {
		t.Fatalf("campaign id %q missing prefix", id)
	}
	if id := NewMessageID(); !strings.HasPrefix(id, "msg_") {
		t.Fatalf("message id %q missing prefix", id)
	}
	if id := NewContactID(); !strings.HasPrefix(id, "ct_") {
		t.Fatalf("contact id %q missing prefix", id)
	}
	if id := NewTemplateID(); !strings.HasPrefix(id, "tpl_") {
		t.Fatalf("template id %q missing prefix", id)
	}
	if NewMessageID() == NewMessageID() {
		t.Fatalf("expected unique ids")
	}
}
