// Package channel abstracts the external messaging transport. The dispatch
// engine only depends on this capability surface; QR authentication and
// session persistence live behind the gateway.
package channel

import "context"

// Receipt is what the transport reports for an accepted send.
type Receipt struct {
	ProviderMsgID string
	Status        string
}

type MediaRef struct {
	URL      string
	MimeType string
}

type Channel interface {
	IsReady() bool
	SendText(ctx context.Context, to, body string) (Receipt, error)
	SendMedia(ctx context.Context, to string, media MediaRef, caption string) (Receipt, error)
}
