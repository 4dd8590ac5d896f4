package store

import (
	"context"
	"time"

	"wager/internal/models"
)

type ProofStore struct {
	db DB
}

const proofColumns = `id, contest_id, ref_kind, ref, media_kind, capture_metadata, view_duration_hours, max_views,
	view_count, first_viewed_at, submitted_at, expires_at, destroyed, destroyed_at, artifact_purged`

func NewProofStore(db DB) *ProofStore {
	return &ProofStore{db: db}
}

func (s *ProofStore) Create(ctx context.Context, tx Execer, proof models.Proof) error {
	metadata := proof.CaptureMetadata
	if len(metadata) == 0 {
		metadata = []byte("{}")
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO proofs (id, contest_id, ref_kind, ref, media_kind, capture_metadata, view_duration_hours, max_views, submitted_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, proof.ID, proof.ContestID, string(proof.RefKind), proof.Ref, proof.MediaKind, string(metadata),
		proof.ViewDurationHours, proof.MaxViews, proof.SubmittedAt, proof.ExpiresAt)
	return err
}

func (s *ProofStore) GetByID(ctx context.Context, proofID string) (models.Proof, error) {
	var row models.Proof
	err := s.db.GetContext(ctx, &row, `SELECT `+proofColumns+` FROM proofs WHERE id = $1`, proofID)
	if err != nil {
		return models.Proof{}, err
	}
	return row, nil
}

// GrantView spends one view in a single statement. A destroyed or expired
// proof matches no row and the call returns sql.ErrNoRows untouched.
func (s *ProofStore) GrantView(ctx context.Context, tx Getter, proofID string, now time.Time) (models.Proof, error) {
	var row models.Proof
	err := tx.GetContext(ctx, &row, `
		UPDATE proofs
		SET view_count = view_count + 1,
		    destroyed = (view_count + 1 >= max_views),
		    destroyed_at = CASE WHEN view_count + 1 >= max_views THEN $2 ELSE destroyed_at END,
		    first_viewed_at = COALESCE(first_viewed_at, $2)
		WHERE id = $1 AND destroyed = FALSE AND expires_at > $2 AND view_count < max_views
		RETURNING `+proofColumns, proofID, now)
	if err != nil {
		return models.Proof{}, err
	}
	return row, nil
}

func (s *ProofStore) Destroy(ctx context.Context, tx Execer, proofID string, now time.Time) (int64, error) {
	return rowsAffected(tx.ExecContext(ctx, `
		UPDATE proofs
		SET destroyed = TRUE, destroyed_at = $2
		WHERE id = $1 AND destroyed = FALSE
	`, proofID, now))
}

func (s *ProofStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, `
		SELECT id
		FROM proofs
		WHERE destroyed = FALSE AND expires_at <= $1
		ORDER BY expires_at
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// ListPurgeable returns destroyed proofs whose stored bytes are still on disk
// and whose last grant has lapsed.
func (s *ProofStore) ListPurgeable(ctx context.Context, destroyedBefore time.Time, limit int) ([]models.Proof, error) {
	var rows []models.Proof
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+proofColumns+`
		FROM proofs
		WHERE destroyed = TRUE AND artifact_purged = FALSE AND ref_kind = 'storage_path' AND destroyed_at <= $1
		ORDER BY destroyed_at
		LIMIT $2
	`, destroyedBefore, limit)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *ProofStore) MarkPurged(ctx context.Context, proofID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE proofs SET artifact_purged = TRUE WHERE id = $1`, proofID)
	return err
}
