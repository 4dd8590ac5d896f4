package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"wager/internal/config"
	"wager/internal/db"
	"wager/internal/models"
	"wager/internal/store"
	"wager/internal/validator"
)

type MatcherService struct {
	txRunner     db.TxRunner
	propositions PropositionStore
	contests     ContestStore
	accounts     AccountStore
	outbox       OutboxStore
	transitions  TransitionStore
	ledger       *LedgerService
	rules        config.ContestRules
	now          func() time.Time
}

type CreatePropositionRequest struct {
	Text         string
	Stake        int64
	Participants []string
	ExpiresAt    time.Time
}

// MatchResult describes a proposition after a vote or an evaluation.
type MatchResult struct {
	PropositionID string                   `json:"proposition_id"`
	Status        models.PropositionStatus `json:"status"`
	ContestID     string                   `json:"contest_id,omitempty"`
}

func NewMatcherService(txRunner db.TxRunner, stores Stores, ledger *LedgerService, rules config.ContestRules) *MatcherService {
	return &MatcherService{
		txRunner:     txRunner,
		propositions: stores.Propositions,
		contests:     stores.Contests,
		accounts:     stores.Accounts,
		outbox:       stores.Outbox,
		transitions:  stores.Transitions,
		ledger:       ledger,
		rules:        rules,
		now:          time.Now,
	}
}

// CreateProposition opens a proposition and locks the stake from every
// participant. Nobody is charged unless everyone can cover it.
func (m *MatcherService) CreateProposition(ctx context.Context, req CreatePropositionRequest) (models.Proposition, error) {
	if err := validator.ValidatePropositionText(req.Text); err != nil {
		return models.Proposition{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if req.Stake <= 0 {
		return models.Proposition{}, fmt.Errorf("%w: stake must be positive", ErrValidation)
	}
	participants, err := distinctParticipants(req.Participants)
	if err != nil {
		return models.Proposition{}, err
	}
	now := m.now()
	if !req.ExpiresAt.After(now) {
		return models.Proposition{}, fmt.Errorf("%w: expiry must be in the future", ErrValidation)
	}
	proposition := models.Proposition{
		ID:        uuid.NewString(),
		Text:      strings.TrimSpace(req.Text),
		Stake:     req.Stake,
		Status:    models.PropositionOpen,
		ExpiresAt: req.ExpiresAt,
		CreatedAt: now,
	}
	ref := models.Ref{Type: models.RefProposition, ID: proposition.ID}
	err = m.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := m.propositions.Create(ctx, tx, proposition, participants); err != nil {
			return err
		}
		if err := m.ledger.LockStakes(ctx, tx, participants, proposition.Stake, ref); err != nil {
			return err
		}
		return emit(ctx, tx, m.outbox, EventPropositionCreated, participants, PropositionCreated{
			PropositionID: proposition.ID,
			Stake:         proposition.Stake,
			ExpiresAt:     proposition.ExpiresAt,
		})
	})
	if err != nil {
		return models.Proposition{}, err
	}
	return proposition, nil
}

// CastVote records a participant's single vote and runs the match check in
// the same transaction.
func (m *MatcherService) CastVote(ctx context.Context, propositionID, participantID string, vote models.Vote) (MatchResult, error) {
	if !vote.Valid() {
		return MatchResult{}, fmt.Errorf("%w: vote must be yes or no", ErrValidation)
	}
	var result MatchResult
	err := m.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		proposition, err := m.lockProposition(ctx, tx, propositionID)
		if err != nil {
			return err
		}
		now := m.now()
		if proposition.Status != models.PropositionOpen {
			return fmt.Errorf("%w: proposition is %s", ErrInvalidStateTransition, proposition.Status)
		}
		if !now.Before(proposition.ExpiresAt) {
			return ErrExpired
		}
		participants, err := m.propositions.Participants(ctx, tx, propositionID)
		if err != nil {
			return err
		}
		index := -1
		for i, participant := range participants {
			if participant.AccountID == participantID {
				index = i
				break
			}
		}
		if index < 0 {
			return ErrNotAParticipant
		}
		if participants[index].Vote != models.VoteUnset {
			return fmt.Errorf("%w: already voted", ErrInvalidStateTransition)
		}
		updated, err := m.propositions.SetVote(ctx, tx, propositionID, participantID, vote, now)
		if err != nil {
			return err
		}
		if updated == 0 {
			return ErrStaleState
		}
		participants[index].Vote = vote
		participants[index].VotedAt = &now
		result, err = m.evaluate(ctx, tx, proposition, participants)
		return err
	})
	if err != nil {
		return MatchResult{}, err
	}
	return result, nil
}

// EvaluateProposition re-runs the match check. Running it again after a
// contest was spawned changes nothing.
func (m *MatcherService) EvaluateProposition(ctx context.Context, propositionID string) (MatchResult, error) {
	var result MatchResult
	err := m.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		proposition, err := m.lockProposition(ctx, tx, propositionID)
		if err != nil {
			return err
		}
		participants, err := m.propositions.Participants(ctx, tx, propositionID)
		if err != nil {
			return err
		}
		result, err = m.evaluate(ctx, tx, proposition, participants)
		return err
	})
	if err != nil {
		return MatchResult{}, err
	}
	return result, nil
}

// ExpireOverduePropositions closes open propositions past expiry. Stakes of
// participants who never voted go to the house; voters get theirs back.
func (m *MatcherService) ExpireOverduePropositions(ctx context.Context, now time.Time) (int, error) {
	ids, err := m.propositions.ListOverdue(ctx, now, sweepBatch)
	if err != nil {
		return 0, err
	}
	expired := 0
	var errs []error
	for _, id := range ids {
		changed := false
		err := m.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
			changed = false
			proposition, err := m.lockProposition(ctx, tx, id)
			if err != nil {
				return err
			}
			if proposition.Status != models.PropositionOpen || now.Before(proposition.ExpiresAt) {
				return nil
			}
			participants, err := m.propositions.Participants(ctx, tx, id)
			if err != nil {
				return err
			}
			updated, err := m.propositions.TransitionStatus(ctx, tx, id, models.PropositionOpen, models.PropositionExpired)
			if err != nil || updated == 0 {
				return err
			}
			house, err := m.accounts.HouseAccount(ctx, tx)
			if err != nil {
				return fmt.Errorf("house account: %w", err)
			}
			ref := models.Ref{Type: models.RefProposition, ID: id}
			forfeited := 0
			for _, participant := range participants {
				if participant.Vote.Valid() {
					if _, err := m.ledger.Credit(ctx, tx, participant.AccountID, proposition.Stake, models.KindStakeRelease, ref); err != nil {
						return err
					}
					continue
				}
				if err := m.ledger.Note(ctx, tx, participant.AccountID, models.KindStakeForfeit, ref); err != nil {
					return err
				}
				if _, err := m.ledger.Credit(ctx, tx, house, proposition.Stake, models.KindHouseCredit, ref); err != nil {
					return err
				}
				forfeited++
			}
			if err := recordTransition(ctx, tx, m.transitions, "proposition", id, string(models.PropositionExpired), "system", map[string]int{"forfeited": forfeited}); err != nil {
				return err
			}
			changed = true
			return nil
		})
		if errors.Is(err, ErrStaleState) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("expire proposition %s: %w", id, err))
			continue
		}
		if changed {
			expired++
		}
	}
	return expired, errors.Join(errs...)
}

func (m *MatcherService) lockProposition(ctx context.Context, tx store.Getter, propositionID string) (models.Proposition, error) {
	proposition, err := m.propositions.GetForUpdate(ctx, tx, propositionID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Proposition{}, fmt.Errorf("proposition %s: %w", propositionID, ErrNotFound)
	}
	return proposition, err
}

// evaluate spawns at most one contest once every participant has voted.
// Participants arrive ordered by id; the first opposing pair wins the match.
func (m *MatcherService) evaluate(ctx context.Context, tx store.Tx, proposition models.Proposition, participants []models.Participant) (MatchResult, error) {
	result := MatchResult{PropositionID: proposition.ID, Status: proposition.Status}
	if proposition.Status != models.PropositionOpen {
		return result, nil
	}
	for _, participant := range participants {
		if !participant.Vote.Valid() {
			return result, nil
		}
	}
	ref := models.Ref{Type: models.RefProposition, ID: proposition.ID}
	prover, counterpart, matched := firstOpposingPair(participants)
	if !matched {
		updated, err := m.propositions.TransitionStatus(ctx, tx, proposition.ID, models.PropositionOpen, models.PropositionNullResult)
		if err != nil {
			return result, err
		}
		if updated == 0 {
			return result, ErrStaleState
		}
		for _, participant := range participants {
			if _, err := m.ledger.Credit(ctx, tx, participant.AccountID, proposition.Stake, models.KindStakeRelease, ref); err != nil {
				return result, err
			}
		}
		if err := recordTransition(ctx, tx, m.transitions, "proposition", proposition.ID, string(models.PropositionNullResult), "system", nil); err != nil {
			return result, err
		}
		result.Status = models.PropositionNullResult
		return result, nil
	}

	updated, err := m.propositions.TransitionStatus(ctx, tx, proposition.ID, models.PropositionOpen, models.PropositionContested)
	if err != nil {
		return result, err
	}
	if updated == 0 {
		return result, ErrStaleState
	}
	now := m.now()
	contest := models.Contest{
		ID:               uuid.NewString(),
		PropositionID:    proposition.ID,
		ProverID:         prover,
		CounterpartID:    counterpart,
		ProverStake:      proposition.Stake,
		CounterpartStake: proposition.Stake,
		Pot:              2 * proposition.Stake,
		Status:           models.ContestPendingProof,
		ProofDeadline:    now.Add(m.rules.ProofWindow),
		CreatedAt:        now,
	}
	if err := m.contests.Create(ctx, tx, contest); err != nil {
		if db.IsUniqueViolation(err) {
			return result, ErrStaleState
		}
		return result, err
	}
	for _, participant := range participants {
		if participant.AccountID == prover || participant.AccountID == counterpart {
			continue
		}
		if _, err := m.ledger.Credit(ctx, tx, participant.AccountID, proposition.Stake, models.KindStakeRelease, ref); err != nil {
			return result, err
		}
	}
	if err := recordTransition(ctx, tx, m.transitions, "proposition", proposition.ID, string(models.PropositionContested), "system", map[string]string{"contest_id": contest.ID}); err != nil {
		return result, err
	}
	if err := emit(ctx, tx, m.outbox, EventContestCreated, []string{prover, counterpart}, ContestCreated{
		ContestID:     contest.ID,
		PropositionID: proposition.ID,
		ProverID:      prover,
		CounterpartID: counterpart,
		Pot:           contest.Pot,
		ProofDeadline: contest.ProofDeadline,
	}); err != nil {
		return result, err
	}
	result.Status = models.PropositionContested
	result.ContestID = contest.ID
	return result, nil
}

// firstOpposingPair scans pairs (i, j), i < j, in order. The yes voter
// becomes the prover.
func firstOpposingPair(participants []models.Participant) (string, string, bool) {
	for i := 0; i < len(participants); i++ {
		for j := i + 1; j < len(participants); j++ {
			a, b := participants[i], participants[j]
			if !a.Vote.Opposes(b.Vote) {
				continue
			}
			if a.Vote == models.VoteYes {
				return a.AccountID, b.AccountID, true
			}
			return b.AccountID, a.AccountID, true
		}
	}
	return "", "", false
}

func distinctParticipants(ids []string) ([]string, error) {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if err := validator.ValidateAccountID(id); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	if len(out) < 2 {
		return nil, fmt.Errorf("%w: at least two distinct participants required", ErrValidation)
	}
	return out, nil
}
