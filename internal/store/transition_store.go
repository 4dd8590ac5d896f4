package store

import "context"

// TransitionStore keeps one row per terminal transition. The unique key on
// (entity_type, entity_id, transition) makes a replayed transition a no-op.
type TransitionStore struct {
	db DB
}

type Transition struct {
	EntityType string `db:"entity_type" json:"entity_type"`
	EntityID   string `db:"entity_id" json:"entity_id"`
	Transition string `db:"transition" json:"transition"`
	ActorID    string `db:"actor_id" json:"actor_id"`
	Data       string `db:"data" json:"data"`
	CreatedAt  any    `db:"created_at" json:"created_at"`
}

func NewTransitionStore(db DB) *TransitionStore {
	return &TransitionStore{db: db}
}

// Record reports false when the transition was already recorded.
func (s *TransitionStore) Record(ctx context.Context, tx Execer, entry Transition) (bool, error) {
	if entry.Data == "" {
		entry.Data = "{}"
	}
	n, err := rowsAffected(tx.ExecContext(ctx, `
		INSERT INTO transitions (entity_type, entity_id, transition, actor_id, data)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (entity_type, entity_id, transition) DO NOTHING
	`, entry.EntityType, entry.EntityID, entry.Transition, entry.ActorID, entry.Data))
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *TransitionStore) ListForEntity(ctx context.Context, entityType, entityID string) ([]Transition, error) {
	var rows []Transition
	err := s.db.SelectContext(ctx, &rows, `
		SELECT entity_type, entity_id, transition, actor_id, data, created_at
		FROM transitions
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at
	`, entityType, entityID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *TransitionStore) List(ctx context.Context, limit, offset int) ([]Transition, error) {
	var rows []Transition
	err := s.db.SelectContext(ctx, &rows, `
		SELECT entity_type, entity_id, transition, actor_id, data, created_at
		FROM transitions
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
