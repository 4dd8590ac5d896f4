package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"wager/internal/artifact"
	"wager/internal/auth"
	"wager/internal/config"
	"wager/internal/db"
	"wager/internal/models"
	"wager/internal/store"
)

type GrantIssuer interface {
	Issue(proofID, viewerID string, now time.Time) (string, time.Time, error)
	Verify(token string) (auth.GrantClaims, error)
	TTL() time.Duration
}

type ArtifactStore interface {
	Exists(storagePath string) (bool, error)
	Open(storagePath string) (io.ReadCloser, error)
	Delete(storagePath string) error
}

// ProofService owns proof custody: view limits, expiry and short-lived
// access grants.
type ProofService struct {
	txRunner  db.TxRunner
	proofs    ProofStore
	grants    GrantIssuer
	artifacts ArtifactStore
	rules     config.ProofRules
	now       func() time.Time
}

type CreateProofInput struct {
	ContestID       string
	ArtifactRef     string
	MediaKind       string
	CaptureMetadata json.RawMessage
	ViewOnce        bool
	SubmittedAt     time.Time
}

// ProofGrant is what a viewer receives. Token is empty for legacy URLs,
// which are returned unchanged.
type ProofGrant struct {
	ProofID        string    `json:"proof_id"`
	Token          string    `json:"token,omitempty"`
	URL            string    `json:"url"`
	Legacy         bool      `json:"legacy"`
	ExpiresAt      time.Time `json:"expires_at"`
	ViewsRemaining int       `json:"views_remaining"`
	Destroyed      bool      `json:"destroyed"`
}

func NewProofService(txRunner db.TxRunner, proofs ProofStore, grants GrantIssuer, artifacts ArtifactStore, rules config.ProofRules) *ProofService {
	return &ProofService{
		txRunner:  txRunner,
		proofs:    proofs,
		grants:    grants,
		artifacts: artifacts,
		rules:     rules,
		now:       time.Now,
	}
}

// CreateProof parses the reference once and stores the proof with its
// custody limits. New proofs must point at an uploaded artifact; legacy URLs
// are only read back from rows that already hold one.
func (p *ProofService) CreateProof(ctx context.Context, tx store.Execer, input CreateProofInput) (models.Proof, error) {
	ref, err := artifact.ParseRef(input.ArtifactRef)
	if err != nil {
		return models.Proof{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if !ref.IsStoragePath() {
		return models.Proof{}, fmt.Errorf("%w: proof must reference an uploaded artifact", ErrValidation)
	}
	exists, err := p.artifacts.Exists(ref.Value)
	if err != nil {
		return models.Proof{}, fmt.Errorf("check artifact %s: %w", ref.Value, err)
	}
	if !exists {
		return models.Proof{}, fmt.Errorf("%w: artifact %s has not been uploaded", ErrValidation, ref.Value)
	}
	maxViews := p.rules.UnlimitedViews
	if input.ViewOnce {
		maxViews = 1
	}
	proof := models.Proof{
		ID:                uuid.NewString(),
		ContestID:         input.ContestID,
		RefKind:           ref.Kind,
		Ref:               ref.Value,
		MediaKind:         input.MediaKind,
		CaptureMetadata:   input.CaptureMetadata,
		ViewDurationHours: p.rules.ViewDurationHours,
		MaxViews:          maxViews,
		SubmittedAt:       input.SubmittedAt,
		ExpiresAt:         input.SubmittedAt.Add(time.Duration(p.rules.ViewDurationHours) * time.Hour),
	}
	if err := p.proofs.Create(ctx, tx, proof); err != nil {
		return models.Proof{}, err
	}
	return proof, nil
}

// GrantView spends one view and issues a fresh grant. Destroyed or expired
// proofs are Unavailable and nothing changes.
func (p *ProofService) GrantView(ctx context.Context, proofID, viewerID string) (ProofGrant, error) {
	now := p.now()
	var proof models.Proof
	err := p.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		proof, err = p.proofs.GrantView(ctx, tx, proofID, now)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUnavailable
		}
		return err
	})
	if err != nil {
		return ProofGrant{}, err
	}
	grant := ProofGrant{
		ProofID:        proof.ID,
		ViewsRemaining: proof.MaxViews - proof.ViewCount,
		Destroyed:      proof.Destroyed,
		ExpiresAt:      proof.ExpiresAt,
	}
	if proof.RefKind == models.RefLegacyURL {
		grant.URL = proof.Ref
		grant.Legacy = true
		return grant, nil
	}
	token, expires, err := p.grants.Issue(proof.ID, viewerID, now)
	if err != nil {
		return ProofGrant{}, err
	}
	grant.Token = token
	grant.URL = "/proof-grants/" + token
	grant.ExpiresAt = expires
	return grant, nil
}

// Destroy reports whether this call destroyed the proof.
func (p *ProofService) Destroy(ctx context.Context, proofID string) (bool, error) {
	var destroyed bool
	err := p.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		updated, err := p.proofs.Destroy(ctx, tx, proofID, p.now())
		destroyed = updated == 1
		return err
	})
	return destroyed, err
}

// OpenGrant validates a grant token and opens the artifact bytes.
func (p *ProofService) OpenGrant(ctx context.Context, token string) (io.ReadCloser, models.Proof, error) {
	claims, err := p.grants.Verify(token)
	if err != nil {
		return nil, models.Proof{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	proof, err := p.proofs.GetByID(ctx, claims.ProofID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.Proof{}, ErrUnavailable
	}
	if err != nil {
		return nil, models.Proof{}, err
	}
	if proof.RefKind != models.RefStoragePath || proof.ArtifactPurged {
		return nil, models.Proof{}, ErrUnavailable
	}
	body, err := p.artifacts.Open(proof.Ref)
	if errors.Is(err, artifact.ErrNotFound) {
		return nil, models.Proof{}, ErrUnavailable
	}
	if err != nil {
		return nil, models.Proof{}, err
	}
	return body, proof, nil
}

// CleanupExpiredProofs destroys proofs past expiry and purges stored bytes of
// destroyed proofs once every grant issued for them has lapsed.
func (p *ProofService) CleanupExpiredProofs(ctx context.Context, now time.Time) (int, error) {
	ids, err := p.proofs.ListExpired(ctx, now, sweepBatch)
	if err != nil {
		return 0, err
	}
	changed := 0
	var errs []error
	for _, id := range ids {
		var updated int64
		err := p.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
			var err error
			updated, err = p.proofs.Destroy(ctx, tx, id, now)
			return err
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("destroy proof %s: %w", id, err))
			continue
		}
		changed += int(updated)
	}
	purgeable, err := p.proofs.ListPurgeable(ctx, now.Add(-p.grants.TTL()), sweepBatch)
	if err != nil {
		return changed, errors.Join(append(errs, err)...)
	}
	for _, proof := range purgeable {
		if err := p.artifacts.Delete(proof.Ref); err != nil {
			errs = append(errs, fmt.Errorf("purge proof %s: %w", proof.ID, err))
			continue
		}
		if err := p.proofs.MarkPurged(ctx, proof.ID); err != nil {
			errs = append(errs, fmt.Errorf("mark proof %s purged: %w", proof.ID, err))
			continue
		}
		changed++
	}
	return changed, errors.Join(errs...)
}
