package notify

import (
	"context"
	"errors"

	"wager/internal/models"
)

// Publisher hands a committed domain event to a delivery channel.
type Publisher interface {
	Publish(ctx context.Context, event models.OutboxEvent) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, event models.OutboxEvent) error

func (f PublisherFunc) Publish(ctx context.Context, event models.OutboxEvent) error {
	return f(ctx, event)
}

// Fanout publishes to every publisher and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, event models.OutboxEvent) error {
	var errs []error
	for _, publisher := range f {
		if err := publisher.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
