// Package dispatcher walks a campaign's pending messages and attempts
// delivery for each, one at a time, with randomized inter-message delay.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"wasender/internal/channel"
	"wasender/internal/channel/wagate"
	"wasender/internal/domain"
	"wasender/internal/events"
	"wasender/internal/observability"
	"wasender/internal/store"
	"wasender/internal/util"
)

// Store is the slice of persistence the dispatcher needs.
type Store interface {
	ListPendingMessages(ctx context.Context, campaignID string) ([]store.Message, error)
	MarkMessageOutcome(ctx context.Context, in store.MessageOutcome) (bool, error)
	CompleteCampaign(ctx context.Context, id string, now time.Time) (bool, error)
}

type Dispatcher struct {
	Store   Store
	Channel channel.Channel
	Bus     *events.Bus

	// Limiter caps aggregate gateway calls across concurrent campaigns.
	Limiter *rate.Limiter
	// Breaker protects the gateway; an open breaker fails messages fast.
	Breaker *gobreaker.CircuitBreaker

	// Randomized inter-message delay, chosen independently per message.
	// Emulates human sending cadence so the provider's abuse detection
	// doesn't flag the session.
	DelayMin time.Duration
	DelayMax time.Duration

	// Bound on a single send attempt so an unresponsive gateway becomes a
	// per-message failure instead of a campaign hang.
	SendTimeout time.Duration
}

// Run performs one full dispatch pass over the campaign's pending messages.
// The campaign must already be in running state; Run only ever transitions it
// out of running, to completed. A canceled ctx (pause, shutdown) stops the
// walk at the next message boundary and is returned as the error; messages
// not yet attempted stay pending. Any persistence failure also aborts the
// pass, leaving the affected message pending rather than falsely terminal.
func (d *Dispatcher) Run(ctx context.Context, campaign store.Campaign) (domain.DispatchResult, error) {
	msgs, err := d.Store.ListPendingMessages(ctx, campaign.ID)
	if err != nil {
		return domain.DispatchResult{}, fmt.Errorf("list pending: %w", err)
	}

	res := domain.DispatchResult{Total: len(msgs)}
	now := util.NowUTC

	for i, m := range msgs {
		// Pause checkpoint: between messages, never mid-send.
		if err := ctx.Err(); err != nil {
			return res, err
		}

		if !d.Channel.IsReady() {
			// Transport gone: fail this and every remaining message so the
			// campaign lands in completed-with-failures, not limbo.
			for _, rest := range msgs[i:] {
				if err := d.markFailed(ctx, campaign.ID, rest, domain.ErrChannelUnavailable.Error(), &res); err != nil {
					return res, err
				}
			}
			break
		}

		receipt, sendErr := d.sendOne(ctx, campaign, m)
		if sendErr != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			if err := d.markFailed(ctx, campaign.ID, m, sendErr.Error(), &res); err != nil {
				return res, err
			}
		} else {
			ok, err := d.Store.MarkMessageOutcome(ctx, store.MessageOutcome{
				ID: m.ID, Status: "sent", ProviderMsgID: receipt.ProviderMsgID, Now: now(),
			})
			if err != nil {
				return res, fmt.Errorf("record sent outcome for %s: %w", m.ID, err)
			}
			if ok {
				res.Sent++
			}
			observability.DispatchMessages.WithLabelValues("sent").Inc()
			d.publishProgress(events.TypeMessageSent, campaign.ID, m, res)
		}

		if i < len(msgs)-1 {
			if err := d.pause(ctx); err != nil {
				return res, err
			}
		}
	}

	completed, err := d.Store.CompleteCampaign(ctx, campaign.ID, now())
	if err != nil {
		return res, fmt.Errorf("complete campaign %s: %w", campaign.ID, err)
	}
	if completed {
		result := "clean"
		if res.Failed > 0 {
			result = "with_failures"
		}
		observability.CampaignsCompleted.WithLabelValues(result).Inc()
		d.Bus.Publish(events.Event{Type: events.TypeCampaignCompleted, Data: events.CampaignEvent{
			CampaignID: campaign.ID, Sent: res.Sent, Failed: res.Failed, Total: res.Total,
		}})
	}
	return res, nil
}

func (d *Dispatcher) markFailed(ctx context.Context, campaignID string, m store.Message, detail string, res *domain.DispatchResult) error {
	ok, err := d.Store.MarkMessageOutcome(ctx, store.MessageOutcome{
		ID: m.ID, Status: "failed", LastError: detail, Now: util.NowUTC(),
	})
	if err != nil {
		return fmt.Errorf("record failed outcome for %s: %w", m.ID, err)
	}
	if ok {
		res.Failed++
	}
	observability.DispatchMessages.WithLabelValues("failed").Inc()
	d.publishProgress(events.TypeMessageFailed, campaignID, m, *res)
	return nil
}

// sendOne attempts delivery of a single message, with bounded transient
// retries inside the attempt. A non-nil return is the per-message failure
// detail; it never aborts the campaign.
func (d *Dispatcher) sendOne(ctx context.Context, campaign store.Campaign, m store.Message) (channel.Receipt, error) {
	to := util.NormalizePhone(m.Phone)

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if d.Limiter != nil {
			if err := d.Limiter.Wait(ctx); err != nil {
				return channel.Receipt{}, err
			}
		}

		start := time.Now()
		receipt, err := d.executeWithBreaker(ctx, campaign, to, m.Body)
		observability.GatewayLatency.Observe(time.Since(start).Seconds())

		if err == nil {
			observability.GatewaySend.WithLabelValues("ok", "").Inc()
			return receipt, nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			observability.GatewaySend.WithLabelValues("cb_open", "").Inc()
			return channel.Receipt{}, &domain.DeliveryError{Detail: "gateway circuit open"}
		}
		observability.GatewaySend.WithLabelValues("error", httpStatusLabel(err)).Inc()
		lastErr = err

		if !wagate.ShouldRetry(err) {
			break
		}
		tmr := time.NewTimer(wagate.Backoff(attempt))
		select {
		case <-ctx.Done():
			tmr.Stop()
			return channel.Receipt{}, ctx.Err()
		case <-tmr.C:
		}
	}
	return channel.Receipt{}, &domain.DeliveryError{Detail: lastErr.Error()}
}

func (d *Dispatcher) executeWithBreaker(ctx context.Context, campaign store.Campaign, to, body string) (channel.Receipt, error) {
	call := func() (any, error) {
		// Detached from the pause/shutdown cancel: an in-flight attempt runs
		// to completion (bounded by SendTimeout). Cancellation is observed at
		// message boundaries only, so a send the gateway already accepted is
		// never left pending and re-sent on resume.
		sendCtx := context.WithoutCancel(ctx)
		if d.SendTimeout > 0 {
			var cancel context.CancelFunc
			sendCtx, cancel = context.WithTimeout(sendCtx, d.SendTimeout)
			defer cancel()
		}
		if campaign.MediaURL != "" {
			return d.Channel.SendMedia(sendCtx, to, channel.MediaRef{URL: campaign.MediaURL, MimeType: campaign.MediaMimeType}, body)
		}
		return d.Channel.SendText(sendCtx, to, body)
	}

	var out any
	var err error
	if d.Breaker != nil {
		out, err = d.Breaker.Execute(call)
	} else {
		out, err = call()
	}
	if err != nil {
		return channel.Receipt{}, err
	}
	return out.(channel.Receipt), nil
}

func (d *Dispatcher) publishProgress(eventType, campaignID string, m store.Message, res domain.DispatchResult) {
	d.Bus.Publish(events.Event{Type: eventType, Data: events.Progress{
		CampaignID: campaignID,
		MessageID:  m.ID,
		Phone:      m.Phone,
		Sent:       res.Sent,
		Failed:     res.Failed,
		Total:      res.Total,
	}})
}

// pause sleeps for a random duration in [DelayMin, DelayMax], honoring
// cancellation. A suspension point, never a whole-process sleep.
func (d *Dispatcher) pause(ctx context.Context) error {
	delay := d.DelayMin
	if d.DelayMax > d.DelayMin {
		delay += time.Duration(rand.Int63n(int64(d.DelayMax - d.DelayMin)))
	}
	if delay <= 0 {
		return ctx.Err()
	}
	tmr := time.NewTimer(delay)
	defer tmr.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-tmr.C:
		return nil
	}
}

func httpStatusLabel(err error) string {
	var he *wagate.HTTPError
	if errors.As(err, &he) {
		return fmt.Sprintf("%d", he.Status)
	}
	return "0"
}
