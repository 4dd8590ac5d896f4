package store

import (
	"context"
	"time"

	"wager/internal/models"
)

type StealStore struct {
	db DB
}

const stealColumns = `id, attacker_id, target_id, percentage, potential_amount, target_online, window_start, window_end,
	was_defended, minigame_passed, status, amount_taken, penalty_applied, created_at, resolved_at`

// StealOutcome is written when an attempt leaves in_progress.
type StealOutcome struct {
	Status         models.StealStatus
	WasDefended    bool
	AmountTaken    int64
	PenaltyApplied int64
	ResolvedAt     time.Time
}

// StealHistory counts an attacker's finished attempts.
type StealHistory struct {
	Successes int `db:"successes"`
	Defended  int `db:"defended"`
}

func NewStealStore(db DB) *StealStore {
	return &StealStore{db: db}
}

func (s *StealStore) Create(ctx context.Context, tx Execer, attempt models.StealAttempt) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO steal_attempts (id, attacker_id, target_id, percentage, potential_amount, target_online, window_start, window_end, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, attempt.ID, attempt.AttackerID, attempt.TargetID, attempt.Percentage, attempt.PotentialAmount,
		attempt.TargetOnline, attempt.WindowStart, attempt.WindowEnd, string(attempt.Status), attempt.CreatedAt)
	return err
}

func (s *StealStore) GetByID(ctx context.Context, stealID string) (models.StealAttempt, error) {
	var row models.StealAttempt
	err := s.db.GetContext(ctx, &row, `SELECT `+stealColumns+` FROM steal_attempts WHERE id = $1`, stealID)
	if err != nil {
		return models.StealAttempt{}, err
	}
	return row, nil
}

func (s *StealStore) GetForUpdate(ctx context.Context, tx Getter, stealID string) (models.StealAttempt, error) {
	var row models.StealAttempt
	err := tx.GetContext(ctx, &row, `SELECT `+stealColumns+` FROM steal_attempts WHERE id = $1 FOR UPDATE`, stealID)
	if err != nil {
		return models.StealAttempt{}, err
	}
	return row, nil
}

func (s *StealStore) RecordMinigame(ctx context.Context, tx Execer, stealID string, passed bool) (int64, error) {
	return rowsAffected(tx.ExecContext(ctx, `
		UPDATE steal_attempts
		SET minigame_passed = $2
		WHERE id = $1 AND status = 'in_progress' AND minigame_passed IS NULL
	`, stealID, passed))
}

func (s *StealStore) Resolve(ctx context.Context, tx Execer, stealID string, outcome StealOutcome) (int64, error) {
	return rowsAffected(tx.ExecContext(ctx, `
		UPDATE steal_attempts
		SET status = $2, was_defended = $3, amount_taken = $4, penalty_applied = $5, resolved_at = $6
		WHERE id = $1 AND status = 'in_progress'
	`, stealID, string(outcome.Status), outcome.WasDefended, outcome.AmountTaken, outcome.PenaltyApplied, outcome.ResolvedAt))
}

func (s *StealStore) History(ctx context.Context, tx Getter, attackerID string) (StealHistory, error) {
	var row StealHistory
	err := tx.GetContext(ctx, &row, `
		SELECT COUNT(*) FILTER (WHERE status = 'success') AS successes,
		       COUNT(*) FILTER (WHERE status = 'defended') AS defended
		FROM steal_attempts
		WHERE attacker_id = $1
	`, attackerID)
	return row, err
}

// ListAbandoned returns offline attempts whose minigame was never played
// and that were opened at or before cutoff.
func (s *StealStore) ListAbandoned(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, `
		SELECT id
		FROM steal_attempts
		WHERE status = 'in_progress' AND window_end IS NULL AND minigame_passed IS NULL AND created_at <= $1
		ORDER BY created_at
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// ListExpired returns attempts whose defense window has closed.
func (s *StealStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, `
		SELECT id
		FROM steal_attempts
		WHERE status = 'in_progress' AND window_end IS NOT NULL AND window_end <= $1
		ORDER BY window_end
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	return ids, nil
}
