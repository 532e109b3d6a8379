package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput covers empty recipient sets, malformed schedules and
	// other request-shape problems. Surfaces to the caller, no state change.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound is returned for unknown campaign/contact/template/message ids.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState is returned when a lifecycle transition is attempted
	// from a status that disallows it, including a lost start race.
	// A rejected duplicate start never disturbs the pass already running.
	ErrInvalidState = errors.New("invalid campaign state")

	// ErrChannelUnavailable means the transport is not authenticated/ready.
	// Recorded per message; never aborts the campaign as a whole.
	ErrChannelUnavailable = errors.New("channel not ready")
)

// DeliveryError carries the provider-reported detail for a single failed send.
type DeliveryError struct {
	Detail string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery failed: %s", e.Detail)
}
