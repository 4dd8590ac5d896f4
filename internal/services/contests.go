package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"wager/internal/db"
	"wager/internal/models"
	"wager/internal/store"
	"wager/internal/validator"
)

type ContestService struct {
	txRunner    db.TxRunner
	contests    ContestStore
	outbox      OutboxStore
	transitions TransitionStore
	ledger      *LedgerService
	proofs      *ProofService
	now         func() time.Time
}

type SubmitProofRequest struct {
	ContestID       string
	ProverID        string
	ArtifactRef     string
	MediaKind       string
	CaptureMetadata json.RawMessage
	ViewOnce        bool
}

type ResolveRequest struct {
	ContestID     string
	ResolverID    string
	ProofAccepted bool
	// Reviewer marks a resolution made through the admin API by someone who
	// is not a participant.
	Reviewer bool
}

var resolvable = map[models.ContestStatus]bool{
	models.ContestProofSubmitted: true,
	models.ContestReviewing:      true,
	models.ContestDisputed:       true,
}

func NewContestService(txRunner db.TxRunner, stores Stores, ledger *LedgerService, proofs *ProofService) *ContestService {
	return &ContestService{
		txRunner:    txRunner,
		contests:    stores.Contests,
		outbox:      stores.Outbox,
		transitions: stores.Transitions,
		ledger:      ledger,
		proofs:      proofs,
		now:         time.Now,
	}
}

func (c *ContestService) Get(ctx context.Context, contestID string) (models.Contest, error) {
	contest, err := c.contests.GetByID(ctx, contestID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Contest{}, fmt.Errorf("contest %s: %w", contestID, ErrNotFound)
	}
	return contest, err
}

func (c *ContestService) SubmitProof(ctx context.Context, req SubmitProofRequest) (models.Proof, error) {
	if err := validator.ValidateMediaKind(req.MediaKind); err != nil {
		return models.Proof{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if len(req.CaptureMetadata) > 0 && !json.Valid(req.CaptureMetadata) {
		return models.Proof{}, fmt.Errorf("%w: capture metadata must be JSON", ErrValidation)
	}
	var proof models.Proof
	err := c.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		contest, err := c.lock(ctx, tx, req.ContestID)
		if err != nil {
			return err
		}
		if req.ProverID != contest.ProverID {
			return ErrNotAParticipant
		}
		if contest.Status != models.ContestPendingProof {
			return fmt.Errorf("%w: contest is %s", ErrInvalidStateTransition, contest.Status)
		}
		now := c.now()
		if !now.Before(contest.ProofDeadline) {
			return ErrExpired
		}
		proof, err = c.proofs.CreateProof(ctx, tx, CreateProofInput{
			ContestID:       contest.ID,
			ArtifactRef:     req.ArtifactRef,
			MediaKind:       req.MediaKind,
			CaptureMetadata: req.CaptureMetadata,
			ViewOnce:        req.ViewOnce,
			SubmittedAt:     now,
		})
		if err != nil {
			return err
		}
		if err := c.transition(ctx, tx, contest, models.ContestPendingProof, store.ContestChange{
			Status:  models.ContestProofSubmitted,
			ProofID: &proof.ID,
		}); err != nil {
			return err
		}
		return emit(ctx, tx, c.outbox, EventProofSubmitted, []string{contest.CounterpartID}, ProofSubmitted{
			ContestID: contest.ID,
			ProofID:   proof.ID,
			ViewOnce:  req.ViewOnce,
		})
	})
	if err != nil {
		return models.Proof{}, err
	}
	return proof, nil
}

// ViewProof hands a participant a fresh, short-lived grant for the proof.
// The contest status does not change.
func (c *ContestService) ViewProof(ctx context.Context, contestID, viewerID string) (ProofGrant, error) {
	contest, err := c.Get(ctx, contestID)
	if err != nil {
		return ProofGrant{}, err
	}
	if !contest.IsParticipant(viewerID) {
		return ProofGrant{}, ErrNotAParticipant
	}
	if contest.ProofID == nil {
		return ProofGrant{}, ErrUnavailable
	}
	return c.proofs.GrantView(ctx, *contest.ProofID, viewerID)
}

// StartReview lets the counterpart acknowledge the submitted proof.
func (c *ContestService) StartReview(ctx context.Context, contestID, participantID string) (models.Contest, error) {
	return c.mutate(ctx, contestID, func(tx store.Tx, contest models.Contest) (models.Contest, error) {
		if !contest.IsParticipant(participantID) {
			return contest, ErrNotAParticipant
		}
		if participantID != contest.CounterpartID {
			return contest, fmt.Errorf("%w: only the counterpart reviews", ErrInvalidStateTransition)
		}
		if contest.Status != models.ContestProofSubmitted {
			return contest, fmt.Errorf("%w: contest is %s", ErrInvalidStateTransition, contest.Status)
		}
		if err := c.transition(ctx, tx, contest, models.ContestProofSubmitted, store.ContestChange{Status: models.ContestReviewing}); err != nil {
			return contest, err
		}
		contest.Status = models.ContestReviewing
		return contest, nil
	})
}

// Dispute parks a contest for manual handling; sweeps leave disputed
// contests alone.
func (c *ContestService) Dispute(ctx context.Context, contestID, disputerID, reason string) (models.Contest, error) {
	if err := validator.ValidateReason(reason); err != nil {
		return models.Contest{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	reason = strings.TrimSpace(reason)
	return c.mutate(ctx, contestID, func(tx store.Tx, contest models.Contest) (models.Contest, error) {
		if !contest.IsParticipant(disputerID) {
			return contest, ErrNotAParticipant
		}
		if contest.Status != models.ContestProofSubmitted {
			return contest, fmt.Errorf("%w: contest is %s", ErrInvalidStateTransition, contest.Status)
		}
		now := c.now()
		if err := c.transition(ctx, tx, contest, models.ContestProofSubmitted, store.ContestChange{
			Status:        models.ContestDisputed,
			DisputedBy:    &disputerID,
			DisputeReason: &reason,
			DisputedAt:    &now,
		}); err != nil {
			return contest, err
		}
		contest.Status = models.ContestDisputed
		contest.DisputedBy = &disputerID
		contest.DisputeReason = &reason
		contest.DisputedAt = &now
		return contest, emit(ctx, tx, c.outbox, EventContestDisputed, []string{contest.ProverID, contest.CounterpartID}, ContestDisputed{
			ContestID:  contest.ID,
			DisputedBy: disputerID,
			Reason:     reason,
		})
	})
}

// Resolve settles a contest once proof exists. An accepted proof means the
// prover wins; the winner always takes the whole pot.
func (c *ContestService) Resolve(ctx context.Context, req ResolveRequest) (models.Contest, error) {
	return c.mutate(ctx, req.ContestID, func(tx store.Tx, contest models.Contest) (models.Contest, error) {
		if !req.Reviewer && !contest.IsParticipant(req.ResolverID) {
			return contest, ErrNotAParticipant
		}
		if !resolvable[contest.Status] {
			return contest, fmt.Errorf("%w: contest is %s", ErrInvalidStateTransition, contest.Status)
		}
		winner, loser := contest.CounterpartID, contest.ProverID
		if req.ProofAccepted {
			winner, loser = contest.ProverID, contest.CounterpartID
		}
		return c.settle(ctx, tx, contest, models.ContestCompleted, winner, loser, req.ResolverID)
	})
}

// Forfeit lets a participant concede. The other side takes the pot.
func (c *ContestService) Forfeit(ctx context.Context, contestID, participantID string) (models.Contest, error) {
	return c.mutate(ctx, contestID, func(tx store.Tx, contest models.Contest) (models.Contest, error) {
		if !contest.IsParticipant(participantID) {
			return contest, ErrNotAParticipant
		}
		if contest.Status.Terminal() || contest.Status == models.ContestDisputed {
			return contest, fmt.Errorf("%w: contest is %s", ErrInvalidStateTransition, contest.Status)
		}
		return c.settle(ctx, tx, contest, models.ContestForfeited, contest.Other(participantID), participantID, participantID)
	})
}

// ExpireOverdueContests pays the counterpart of every contest whose prover
// missed the proof deadline. Each contest settles in its own transaction, and
// a failing contest does not hold up the rest of the batch.
func (c *ContestService) ExpireOverdueContests(ctx context.Context, now time.Time) (int, error) {
	ids, err := c.contests.ListOverdue(ctx, now, sweepBatch)
	if err != nil {
		return 0, err
	}
	expired := 0
	var errs []error
	for _, id := range ids {
		changed := false
		err := c.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
			changed = false
			contest, err := c.lock(ctx, tx, id)
			if err != nil {
				return err
			}
			if contest.Status != models.ContestPendingProof || now.Before(contest.ProofDeadline) {
				return nil
			}
			if _, err := c.settle(ctx, tx, contest, models.ContestExpired, contest.CounterpartID, contest.ProverID, "system"); err != nil {
				return err
			}
			changed = true
			return nil
		})
		if errors.Is(err, ErrStaleState) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("expire contest %s: %w", id, err))
			continue
		}
		if changed {
			expired++
		}
	}
	return expired, errors.Join(errs...)
}

// settle is the single path to a terminal contest state: status CAS,
// idempotency key, payout and event in one transaction.
func (c *ContestService) settle(ctx context.Context, tx store.Tx, contest models.Contest, status models.ContestStatus, winner, loser, actor string) (models.Contest, error) {
	now := c.now()
	change := store.ContestChange{
		Status:     status,
		WinnerID:   &winner,
		LoserID:    &loser,
		ResolvedBy: &actor,
		ResolvedAt: &now,
	}
	if err := c.transition(ctx, tx, contest, contest.Status, change); err != nil {
		return contest, err
	}
	if err := recordTransition(ctx, tx, c.transitions, "contest", contest.ID, "settled", actor, map[string]string{
		"status": string(status),
		"winner": winner,
	}); err != nil {
		return contest, err
	}
	ref := models.Ref{Type: models.RefContest, ID: contest.ID}
	if err := c.ledger.Payout(ctx, tx, winner, loser, contest.Pot, ref); err != nil {
		return contest, err
	}
	contest.Status = status
	contest.WinnerID = &winner
	contest.LoserID = &loser
	contest.ResolvedBy = &actor
	contest.ResolvedAt = &now
	return contest, emit(ctx, tx, c.outbox, EventContestResolved, []string{contest.ProverID, contest.CounterpartID}, ContestResolved{
		ContestID: contest.ID,
		Status:    status,
		WinnerID:  winner,
		LoserID:   loser,
		Pot:       contest.Pot,
	})
}

func (c *ContestService) mutate(ctx context.Context, contestID string, fn func(tx store.Tx, contest models.Contest) (models.Contest, error)) (models.Contest, error) {
	var result models.Contest
	err := c.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		contest, err := c.lock(ctx, tx, contestID)
		if err != nil {
			return err
		}
		result, err = fn(tx, contest)
		return err
	})
	if err != nil {
		return models.Contest{}, err
	}
	return result, nil
}

func (c *ContestService) lock(ctx context.Context, tx store.Getter, contestID string) (models.Contest, error) {
	contest, err := c.contests.GetForUpdate(ctx, tx, contestID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Contest{}, fmt.Errorf("contest %s: %w", contestID, ErrNotFound)
	}
	return contest, err
}

func (c *ContestService) transition(ctx context.Context, tx store.Execer, contest models.Contest, from models.ContestStatus, change store.ContestChange) error {
	updated, err := c.contests.Transition(ctx, tx, contest.ID, from, change)
	if err != nil {
		return err
	}
	if updated == 0 {
		return ErrStaleState
	}
	return nil
}
