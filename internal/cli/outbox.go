package cli

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"tycoon/internal/ads"
	"tycoon/internal/syncq"
)

// Outbox reports through the client and queues anything the backend did not
// accept. Report methods never fail; the backend is optional.
type Outbox struct {
	client *Client
	queue  *syncq.Queue
	log    *slog.Logger
}

func NewOutbox(client *Client, queue *syncq.Queue, logger *slog.Logger) *Outbox {
	if logger == nil {
		logger = slog.Default()
	}
	return &Outbox{client: client, queue: queue, log: logger}
}

func (o *Outbox) ReportAd(ctx context.Context, ev ads.AdEvent) error {
	o.deliver(ctx, "/api/ads", ev.ID, ev)
	if ev.Filled && ev.SDK != "" {
		o.deliver(ctx, "/api/"+ev.SDK, ev.ID, ev)
	}
	return nil
}

func (o *Outbox) ReportPayment(ctx context.Context, ev ads.PaymentEvent) error {
	o.deliver(ctx, "/api/payments", ev.OrderID, ev)
	return nil
}

func (o *Outbox) ReportECPM(ctx context.Context, e ads.ECPMEntry) error {
	o.deliver(ctx, "/api/ecpm-history", "", e)
	return nil
}

func (o *Outbox) Track(ctx context.Context, event map[string]any) {
	o.deliver(ctx, "/api/analytics", "", event)
}

// Flush replays queued reports in order.
func (o *Outbox) Flush(ctx context.Context) (int, error) {
	if o.queue == nil {
		return 0, nil
	}
	return o.queue.Drain(ctx, func(ctx context.Context, cmd syncq.Command) error {
		return o.client.Post(ctx, cmd.Path, cmd.Body)
	})
}

func (o *Outbox) deliver(ctx context.Context, path, eventID string, body any) {
	err := o.client.Post(ctx, path, body)
	if err == nil {
		return
	}
	o.log.Warn("backend report failed", "path", path, "err", err)
	if o.queue == nil {
		return
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return
	}
	if eventID == "" {
		eventID = uuid.NewString()
	}
	if err := o.queue.Push(syncq.Command{Path: path, Body: raw, EventID: eventID}); err != nil {
		o.log.Warn("queue report failed", "path", path, "err", err)
	}
}
