package store

import (
	"context"
	"time"

	"wager/internal/models"
)

type PropositionStore struct {
	db DB
}

const propositionColumns = `id, text, stake, status, expires_at, created_at`

func NewPropositionStore(db DB) *PropositionStore {
	return &PropositionStore{db: db}
}

func (s *PropositionStore) Create(ctx context.Context, tx Execer, proposition models.Proposition, participantIDs []string) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO propositions (id, text, stake, status, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`, proposition.ID, proposition.Text, proposition.Stake, string(proposition.Status), proposition.ExpiresAt); err != nil {
		return err
	}
	for _, accountID := range participantIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO proposition_participants (proposition_id, account_id, vote)
			VALUES ($1, $2, '')
		`, proposition.ID, accountID); err != nil {
			return err
		}
	}
	return nil
}

func (s *PropositionStore) GetByID(ctx context.Context, propositionID string) (models.Proposition, error) {
	var row models.Proposition
	err := s.db.GetContext(ctx, &row, `SELECT `+propositionColumns+` FROM propositions WHERE id = $1`, propositionID)
	if err != nil {
		return models.Proposition{}, err
	}
	return row, nil
}

func (s *PropositionStore) GetForUpdate(ctx context.Context, tx Getter, propositionID string) (models.Proposition, error) {
	var row models.Proposition
	err := tx.GetContext(ctx, &row, `SELECT `+propositionColumns+` FROM propositions WHERE id = $1 FOR UPDATE`, propositionID)
	if err != nil {
		return models.Proposition{}, err
	}
	return row, nil
}

// Participants are returned in ascending account id order.
func (s *PropositionStore) Participants(ctx context.Context, tx Selecter, propositionID string) ([]models.Participant, error) {
	var rows []models.Participant
	err := tx.SelectContext(ctx, &rows, `
		SELECT proposition_id, account_id, vote, voted_at
		FROM proposition_participants
		WHERE proposition_id = $1
		ORDER BY account_id
	`, propositionID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// SetVote records a first vote. Zero rows means the participant is unknown or
// has already voted.
func (s *PropositionStore) SetVote(ctx context.Context, tx Execer, propositionID, accountID string, vote models.Vote, now time.Time) (int64, error) {
	return rowsAffected(tx.ExecContext(ctx, `
		UPDATE proposition_participants
		SET vote = $3, voted_at = $4
		WHERE proposition_id = $1 AND account_id = $2 AND vote = ''
	`, propositionID, accountID, string(vote), now))
}

func (s *PropositionStore) TransitionStatus(ctx context.Context, tx Execer, propositionID string, from, to models.PropositionStatus) (int64, error) {
	return rowsAffected(tx.ExecContext(ctx, `
		UPDATE propositions
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`, propositionID, string(from), string(to)))
}

func (s *PropositionStore) ListOverdue(ctx context.Context, now time.Time, limit int) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, `
		SELECT id
		FROM propositions
		WHERE status = 'open' AND expires_at <= $1
		ORDER BY expires_at
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	return ids, nil
}
