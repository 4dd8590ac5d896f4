package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"wager/internal/metrics"
	"wager/internal/models"
)

const relayBatch = 100

// OutboxReader is the outbox surface the relay drains.
type OutboxReader interface {
	ListPending(ctx context.Context, limit int) ([]models.OutboxEvent, error)
	MarkPublished(ctx context.Context, eventID string, now time.Time) error
}

// Relay moves committed outbox events to publishers in commit order.
// Delivery is at least once: an event is marked only after it published.
type Relay struct {
	outbox    OutboxReader
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewRelay(outbox OutboxReader, publisher Publisher, logger *slog.Logger) *Relay {
	return &Relay{outbox: outbox, publisher: publisher, logger: logger, now: time.Now}
}

// RelayOnce publishes one batch. It stops at the first failure so later
// events never overtake an earlier one.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	events, err := r.outbox.ListPending(ctx, relayBatch)
	if err != nil {
		return 0, fmt.Errorf("list pending events: %w", err)
	}
	published := 0
	for _, event := range events {
		if err := r.publisher.Publish(ctx, event); err != nil {
			metrics.OutboxFailures.Inc()
			return published, fmt.Errorf("publish event %s: %w", event.ID, err)
		}
		if err := r.outbox.MarkPublished(ctx, event.ID, r.now().UTC()); err != nil {
			return published, fmt.Errorf("mark event %s published: %w", event.ID, err)
		}
		metrics.OutboxPublished.WithLabelValues(event.Kind).Inc()
		published++
	}
	return published, nil
}

// Run drains the outbox until it is empty or a publish fails.
func (r *Relay) Run(ctx context.Context) error {
	for {
		published, err := r.RelayOnce(ctx)
		if err != nil {
			return err
		}
		if published > 0 {
			r.logger.Debug("outbox relayed", "events", published)
		}
		if published < relayBatch {
			return nil
		}
	}
}
