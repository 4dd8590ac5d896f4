package notify

import (
	"context"

	"wager/internal/models"
	"wager/internal/websocket"
)

// HubPublisher pushes events to the recipients' live websocket sessions.
// Recipients without a session simply miss the push; the event stays
// queryable through the API.
type HubPublisher struct {
	Hub *websocket.Hub
}

func (p HubPublisher) Publish(_ context.Context, event models.OutboxEvent) error {
	message := websocket.Message{
		ID:        event.ID,
		Kind:      event.Kind,
		Payload:   event.Payload,
		CreatedAt: event.CreatedAt,
	}
	for _, accountID := range event.Recipients {
		p.Hub.Send(accountID, message)
	}
	return nil
}
