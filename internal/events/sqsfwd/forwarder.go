// Package sqsfwd relays bus events to an SQS queue for external consumers
// (analytics, audit). Fire-and-forget: a failed relay is logged and dropped,
// it never feeds back into dispatch.
package sqsfwd

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"wasender/internal/events"
)

type Forwarder struct {
	SQS      *sqs.Client
	QueueURL string
}

// Run subscribes to the bus and forwards until ctx is canceled.
func (f *Forwarder) Run(ctx context.Context, bus *events.Bus) {
	ch, unsub := bus.Subscribe(64)
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			f.forward(ctx, e)
		}
	}
}

func (f *Forwarder) forward(ctx context.Context, e events.Event) {
	body, err := json.Marshal(e)
	if err != nil {
		slog.Error("event marshal failed", "err", err, "type", e.Type)
		return
	}
	s := string(body)
	if _, err := f.SQS.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    &f.QueueURL,
		MessageBody: &s,
	}); err != nil {
		slog.Error("event forward failed", "err", err, "type", e.Type)
	}
}
