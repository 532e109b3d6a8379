// Package events is the in-process event sink for dispatch and channel
// lifecycle notifications. Publish never blocks the dispatcher; slow or
// absent subscribers drop events rather than stall sending.
package events

import (
	"sync"
	"time"

	"wasender/internal/observability"
)

const (
	TypeChannelQR           = "channel.qr"
	TypeChannelReady        = "channel.ready"
	TypeChannelDisconnected = "channel.disconnected"
	TypeMessageSent         = "message.sent"
	TypeMessageFailed       = "message.failed"
	TypeCampaignStarted     = "campaign.started"
	TypeCampaignPaused      = "campaign.paused"
	TypeCampaignCompleted   = "campaign.completed"
)

type Event struct {
	Type string    `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data,omitempty"`
}

// Progress is the payload of message.sent / message.failed events.
type Progress struct {
	CampaignID string `json:"campaignId"`
	MessageID  string `json:"messageId"`
	Phone      string `json:"phone"`
	Sent       int    `json:"sent"`
	Failed     int    `json:"failed"`
	Total      int    `json:"total"`
}

// CampaignEvent is the payload of campaign lifecycle events.
type CampaignEvent struct {
	CampaignID string `json:"campaignId"`
	Sent       int    `json:"sent,omitempty"`
	Failed     int    `json:"failed,omitempty"`
	Total      int    `json:"total,omitempty"`
}

// Bus is a small in-memory fanout. Subscribers get buffered channels; a full
// buffer means the subscriber misses events, never that Publish waits.
type Bus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  uint64
	last Event
}

func NewBus() *Bus {
	return &Bus{subs: map[uint64]chan Event{}}
}

func (b *Bus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	observability.EventsPublished.WithLabelValues(e.Type).Inc()

	b.mu.Lock()
	b.last = e
	chs := make([]chan Event, 0, len(b.subs))
	for _, ch := range b.subs {
		chs = append(chs, ch)
	}
	b.mu.Unlock()

	for _, ch := range chs {
		// Non-blocking delivery. A concurrent unsubscribe may close the
		// channel between the snapshot and the send; recover covers that.
		func() {
			defer func() { _ = recover() }()
			select {
			case ch <- e:
			default:
			}
		}()
	}
}

// Subscribe registers a listener. The returned unsubscribe func is
// idempotent; after it runs the channel is closed.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	b.seq++
	id := b.seq
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Last returns the most recent event, for late-connecting observers.
func (b *Bus) Last() (Event, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.last, b.last.Type != ""
}
