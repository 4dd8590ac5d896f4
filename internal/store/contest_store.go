package store

import (
	"context"
	"time"

	"wager/internal/models"
)

type ContestStore struct {
	db DB
}

const contestColumns = `id, proposition_id, prover_id, counterpart_id, prover_stake, counterpart_stake, pot, status,
	proof_id, proof_deadline, winner_id, loser_id, disputed_by, dispute_reason, disputed_at, resolved_by, resolved_at, created_at`

// ContestChange is applied together with a status compare-and-swap. Nil
// fields keep their stored value.
type ContestChange struct {
	Status        models.ContestStatus
	ProofID       *string
	WinnerID      *string
	LoserID       *string
	DisputedBy    *string
	DisputeReason *string
	DisputedAt    *time.Time
	ResolvedBy    *string
	ResolvedAt    *time.Time
}

func NewContestStore(db DB) *ContestStore {
	return &ContestStore{db: db}
}

// Create fails with a unique violation when the proposition already spawned
// a contest.
func (s *ContestStore) Create(ctx context.Context, tx Execer, contest models.Contest) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO contests (id, proposition_id, prover_id, counterpart_id, prover_stake, counterpart_stake, pot, status, proof_deadline)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, contest.ID, contest.PropositionID, contest.ProverID, contest.CounterpartID,
		contest.ProverStake, contest.CounterpartStake, contest.Pot, string(contest.Status), contest.ProofDeadline)
	return err
}

func (s *ContestStore) GetByID(ctx context.Context, contestID string) (models.Contest, error) {
	var row models.Contest
	err := s.db.GetContext(ctx, &row, `SELECT `+contestColumns+` FROM contests WHERE id = $1`, contestID)
	if err != nil {
		return models.Contest{}, err
	}
	return row, nil
}

func (s *ContestStore) GetForUpdate(ctx context.Context, tx Getter, contestID string) (models.Contest, error) {
	var row models.Contest
	err := tx.GetContext(ctx, &row, `SELECT `+contestColumns+` FROM contests WHERE id = $1 FOR UPDATE`, contestID)
	if err != nil {
		return models.Contest{}, err
	}
	return row, nil
}

// Transition moves a contest out of from. Zero rows means another writer got
// there first.
func (s *ContestStore) Transition(ctx context.Context, tx Execer, contestID string, from models.ContestStatus, change ContestChange) (int64, error) {
	return rowsAffected(tx.ExecContext(ctx, `
		UPDATE contests
		SET status = $3,
		    proof_id = COALESCE($4, proof_id),
		    winner_id = COALESCE($5, winner_id),
		    loser_id = COALESCE($6, loser_id),
		    disputed_by = COALESCE($7, disputed_by),
		    dispute_reason = COALESCE($8, dispute_reason),
		    disputed_at = COALESCE($9, disputed_at),
		    resolved_by = COALESCE($10, resolved_by),
		    resolved_at = COALESCE($11, resolved_at),
		    updated_at = NOW()
		WHERE id = $1 AND status = $2
	`, contestID, string(from), string(change.Status), change.ProofID, change.WinnerID, change.LoserID,
		change.DisputedBy, change.DisputeReason, change.DisputedAt, change.ResolvedBy, change.ResolvedAt))
}

func (s *ContestStore) ListOverdue(ctx context.Context, now time.Time, limit int) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, `
		SELECT id
		FROM contests
		WHERE status = 'pending_proof' AND proof_deadline <= $1
		ORDER BY proof_deadline
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *ContestStore) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]models.Contest, error) {
	var rows []models.Contest
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+contestColumns+`
		FROM contests
		WHERE prover_id = $1 OR counterpart_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
