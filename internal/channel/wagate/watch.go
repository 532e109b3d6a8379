package wagate

import (
	"context"
	"log/slog"
	"time"

	"wasender/internal/events"
)

// Watch keeps the readiness flag fresh by polling the gateway, publishing
// channel.ready / channel.disconnected on edges. Webhook callbacks flip the
// flag faster; this is the fallback when callbacks are lost.
func (c *Client) Watch(ctx context.Context, interval time.Duration, bus *events.Bus) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ready, err := c.PollStatus(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("gateway status poll failed", "err", err)
				ready = false
			}
			prev := c.State.Ready()
			if ready == prev {
				continue
			}
			c.State.SetReady(ready)
			if ready {
				bus.Publish(events.Event{Type: events.TypeChannelReady})
			} else {
				bus.Publish(events.Event{Type: events.TypeChannelDisconnected})
			}
		}
	}
}
