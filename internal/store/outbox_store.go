package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lib/pq"

	"wager/internal/models"
)

type OutboxStore struct {
	db DB
}

type outboxRow struct {
	ID          string          `db:"id"`
	Kind        string          `db:"kind"`
	Recipients  pq.StringArray  `db:"recipients"`
	Payload     json.RawMessage `db:"payload"`
	CreatedAt   time.Time       `db:"created_at"`
	PublishedAt *time.Time      `db:"published_at"`
}

func NewOutboxStore(db DB) *OutboxStore {
	return &OutboxStore{db: db}
}

func (s *OutboxStore) Enqueue(ctx context.Context, tx Execer, event models.OutboxEvent) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO outbox_events (id, kind, recipients, payload)
		VALUES ($1, $2, $3, $4)
	`, event.ID, event.Kind, pq.StringArray(event.Recipients), string(event.Payload))
	return err
}

// ListPending returns unpublished events in insertion order.
func (s *OutboxStore) ListPending(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	var rows []outboxRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, kind, recipients, payload, created_at, published_at
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY seq
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	events := make([]models.OutboxEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, models.OutboxEvent{
			ID:          row.ID,
			Kind:        row.Kind,
			Recipients:  []string(row.Recipients),
			Payload:     row.Payload,
			CreatedAt:   row.CreatedAt,
			PublishedAt: row.PublishedAt,
		})
	}
	return events, nil
}

func (s *OutboxStore) MarkPublished(ctx context.Context, eventID string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE outbox_events SET published_at = $2
		WHERE id = $1 AND published_at IS NULL
	`, eventID, now)
	return err
}
