package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"wager/internal/config"
	"wager/internal/db"
	"wager/internal/models"
	"wager/internal/money"
	"wager/internal/store"
)

// StealInput is everything a StealPolicy may look at.
type StealInput struct {
	Attacker models.Account
	Target   models.Account
	History  store.StealHistory
	Now      time.Time
}

// StealPolicy picks the percentage of the target's balance at stake.
type StealPolicy interface {
	Percentage(input StealInput) int64
}

// DefaultStealPolicy is deterministic: trusted attackers and a clean record
// earn more, being defended costs, and late-night attempts get a bonus.
type DefaultStealPolicy struct {
	Rules config.StealRules
}

func (p DefaultStealPolicy) Percentage(input StealInput) int64 {
	pct := p.Rules.BasePercent
	pct += int64(input.Attacker.TrustScore-50) / 10
	pct += int64(input.History.Successes)
	pct -= 2 * int64(input.History.Defended)
	if hour := input.Now.UTC().Hour(); hour < 6 {
		pct += 5
	}
	return money.Clamp(pct, p.Rules.MinPercent, p.Rules.MaxPercent)
}

type StealService struct {
	txRunner    db.TxRunner
	steals      StealStore
	accounts    AccountStore
	outbox      OutboxStore
	transitions TransitionStore
	ledger      *LedgerService
	policy      StealPolicy
	rules       config.StealRules
}

func NewStealService(txRunner db.TxRunner, stores Stores, ledger *LedgerService, policy StealPolicy, rules config.StealRules) *StealService {
	if policy == nil {
		policy = DefaultStealPolicy{Rules: rules}
	}
	return &StealService{
		txRunner:    txRunner,
		steals:      stores.Steals,
		accounts:    stores.Accounts,
		outbox:      stores.Outbox,
		transitions: stores.Transitions,
		ledger:      ledger,
		policy:      policy,
		rules:       rules,
	}
}

func (s *StealService) Get(ctx context.Context, stealID string) (models.StealAttempt, error) {
	attempt, err := s.steals.GetByID(ctx, stealID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.StealAttempt{}, fmt.Errorf("steal %s: %w", stealID, ErrNotFound)
	}
	return attempt, err
}

// InitiateSteal opens an attempt. An online target gets a defense window
// starting now; an offline target is settled by the minigame alone.
func (s *StealService) InitiateSteal(ctx context.Context, attackerID, targetID string, now time.Time) (models.StealAttempt, error) {
	if attackerID == targetID {
		return models.StealAttempt{}, fmt.Errorf("%w: cannot steal from yourself", ErrValidation)
	}
	var attempt models.StealAttempt
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		attacker, target, err := lockTwoAccounts(ctx, tx, s.accounts, attackerID, targetID)
		if err != nil {
			return err
		}
		if target.IsSystem || !target.IsActive {
			return fmt.Errorf("%w: target cannot be stolen from", ErrValidation)
		}
		if target.Balance < s.rules.MinTargetBalance {
			return fmt.Errorf("%w: target balance below %d", ErrValidation, s.rules.MinTargetBalance)
		}
		history, err := s.steals.History(ctx, tx, attackerID)
		if err != nil {
			return err
		}
		pct := s.policy.Percentage(StealInput{Attacker: attacker, Target: target, History: history, Now: now})
		attempt = models.StealAttempt{
			ID:              uuid.NewString(),
			AttackerID:      attackerID,
			TargetID:        targetID,
			Percentage:      pct,
			PotentialAmount: money.PercentOf(target.Balance, pct),
			TargetOnline:    target.IsRecentlyActive(now, s.rules.OnlineWindow),
			Status:          models.StealInProgress,
			CreatedAt:       now,
		}
		if attempt.TargetOnline {
			start := now
			end := now.Add(s.rules.DefenseWindow)
			attempt.WindowStart = &start
			attempt.WindowEnd = &end
		}
		if err := s.steals.Create(ctx, tx, attempt); err != nil {
			return err
		}
		if !attempt.TargetOnline {
			return nil
		}
		return emit(ctx, tx, s.outbox, EventStealAlertOpened, []string{targetID}, StealAlertOpened{
			StealID:         attempt.ID,
			AttackerID:      attackerID,
			PotentialAmount: attempt.PotentialAmount,
			WindowEnd:       *attempt.WindowEnd,
		})
	})
	if err != nil {
		return models.StealAttempt{}, err
	}
	return attempt, nil
}

// CompleteMinigame records the attacker's minigame result. A failed game ends
// the attempt; a passed game against an offline target succeeds at once.
func (s *StealService) CompleteMinigame(ctx context.Context, stealID, attackerID string, passed bool, now time.Time) (models.StealAttempt, error) {
	var attempt models.StealAttempt
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		attempt, err = s.lock(ctx, tx, stealID)
		if err != nil {
			return err
		}
		if attempt.AttackerID != attackerID {
			return ErrNotAParticipant
		}
		if attempt.Status != models.StealInProgress || attempt.MinigamePassed != nil {
			return fmt.Errorf("%w: steal is %s", ErrInvalidStateTransition, attempt.Status)
		}
		updated, err := s.steals.RecordMinigame(ctx, tx, stealID, passed)
		if err != nil {
			return err
		}
		if updated == 0 {
			return ErrStaleState
		}
		attempt.MinigamePassed = &passed
		switch {
		case !passed:
			attempt, err = s.finish(ctx, tx, attempt, store.StealOutcome{Status: models.StealFailed, ResolvedAt: now})
			return err
		case !attempt.TargetOnline, !attempt.WindowOpen(now):
			attempt, err = s.succeed(ctx, tx, attempt, now)
			return err
		}
		return nil
	})
	if err != nil {
		return models.StealAttempt{}, err
	}
	return attempt, nil
}

// Defend succeeds only for the target and only while now is before the
// window end. A late defense settles the attempt and reports WindowClosed.
func (s *StealService) Defend(ctx context.Context, stealID, defenderID string, now time.Time) (models.StealAttempt, error) {
	var attempt models.StealAttempt
	late := false
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		late = false
		var err error
		attempt, err = s.lock(ctx, tx, stealID)
		if err != nil {
			return err
		}
		if attempt.TargetID != defenderID {
			return ErrNotAParticipant
		}
		if attempt.Status != models.StealInProgress || attempt.WindowEnd == nil {
			return fmt.Errorf("%w: steal is %s", ErrInvalidStateTransition, attempt.Status)
		}
		if !attempt.WindowOpen(now) {
			late = true
			return nil
		}
		attacker, err := s.accounts.GetForUpdate(ctx, tx, attempt.AttackerID)
		if err != nil {
			return err
		}
		penalty := money.Min(s.rules.PenaltyMultiplier*attempt.PotentialAmount, attacker.Balance)
		ref := models.Ref{Type: models.RefSteal, ID: attempt.ID}
		if penalty > 0 {
			if _, err := s.ledger.Collect(ctx, tx, attempt.AttackerID, penalty, models.KindStealPenalty, ref); err != nil {
				return err
			}
			house, err := s.accounts.HouseAccount(ctx, tx)
			if err != nil {
				return fmt.Errorf("house account: %w", err)
			}
			if _, err := s.ledger.Credit(ctx, tx, house, penalty, models.KindHouseCredit, ref); err != nil {
				return err
			}
		}
		if s.rules.DefendBonus > 0 {
			if _, err := s.ledger.Credit(ctx, tx, defenderID, s.rules.DefendBonus, models.KindDefendBonus, ref); err != nil {
				return err
			}
		}
		attempt, err = s.finish(ctx, tx, attempt, store.StealOutcome{
			Status:         models.StealDefended,
			WasDefended:    true,
			PenaltyApplied: penalty,
			ResolvedAt:     now,
		})
		return err
	})
	if err != nil {
		return models.StealAttempt{}, err
	}
	if late {
		if _, err := s.ResolveSteal(ctx, stealID, now); err != nil && !errors.Is(err, ErrInvalidStateTransition) && !errors.Is(err, ErrStaleState) {
			return models.StealAttempt{}, err
		}
		return models.StealAttempt{}, ErrWindowClosed
	}
	return attempt, nil
}

// ResolveSteal settles an attempt whose window has closed without a defense.
func (s *StealService) ResolveSteal(ctx context.Context, stealID string, now time.Time) (models.StealAttempt, error) {
	var attempt models.StealAttempt
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		attempt, err = s.lock(ctx, tx, stealID)
		if err != nil {
			return err
		}
		if attempt.Status != models.StealInProgress {
			return fmt.Errorf("%w: steal already %s", ErrInvalidStateTransition, attempt.Status)
		}
		if attempt.WindowEnd == nil || attempt.WindowOpen(now) {
			return fmt.Errorf("%w: steal is not ready to resolve", ErrInvalidStateTransition)
		}
		attempt, err = s.succeed(ctx, tx, attempt, now)
		return err
	})
	if err != nil {
		return models.StealAttempt{}, err
	}
	return attempt, nil
}

// AbandonSteal fails an offline attempt whose minigame was not played within
// the minigame timeout. Nothing moves between accounts.
func (s *StealService) AbandonSteal(ctx context.Context, stealID string, now time.Time) (models.StealAttempt, error) {
	var attempt models.StealAttempt
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		attempt, err = s.lock(ctx, tx, stealID)
		if err != nil {
			return err
		}
		if attempt.Status != models.StealInProgress || attempt.WindowEnd != nil || attempt.MinigamePassed != nil {
			return fmt.Errorf("%w: steal is not awaiting its minigame", ErrInvalidStateTransition)
		}
		if now.Before(attempt.CreatedAt.Add(s.rules.MinigameTimeout)) {
			return fmt.Errorf("%w: minigame still has time", ErrInvalidStateTransition)
		}
		attempt, err = s.finish(ctx, tx, attempt, store.StealOutcome{Status: models.StealFailed, ResolvedAt: now})
		return err
	})
	if err != nil {
		return models.StealAttempt{}, err
	}
	return attempt, nil
}

// ResolveExpiredSteals settles attempts whose defense window closed and
// fails offline attempts left without a minigame result.
func (s *StealService) ResolveExpiredSteals(ctx context.Context, now time.Time) (int, error) {
	expired, err := s.steals.ListExpired(ctx, now, sweepBatch)
	if err != nil {
		return 0, err
	}
	abandoned, err := s.steals.ListAbandoned(ctx, now.Add(-s.rules.MinigameTimeout), sweepBatch)
	if err != nil {
		return 0, err
	}
	resolved := 0
	var errs []error
	settle := func(id, action string, fn func(context.Context, string, time.Time) (models.StealAttempt, error)) {
		_, err := fn(ctx, id, now)
		if errors.Is(err, ErrInvalidStateTransition) || errors.Is(err, ErrStaleState) {
			return
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s steal %s: %w", action, id, err))
			return
		}
		resolved++
	}
	for _, id := range expired {
		settle(id, "resolve", s.ResolveSteal)
	}
	for _, id := range abandoned {
		settle(id, "abandon", s.AbandonSteal)
	}
	return resolved, errors.Join(errs...)
}

// succeed moves min(potential, current target balance) to the attacker.
func (s *StealService) succeed(ctx context.Context, tx store.Tx, attempt models.StealAttempt, now time.Time) (models.StealAttempt, error) {
	_, target, err := lockTwoAccounts(ctx, tx, s.accounts, attempt.AttackerID, attempt.TargetID)
	if err != nil {
		return attempt, err
	}
	amount := money.Min(attempt.PotentialAmount, target.Balance)
	if amount > 0 {
		ref := models.Ref{Type: models.RefSteal, ID: attempt.ID}
		if _, err := s.ledger.Collect(ctx, tx, attempt.TargetID, amount, models.KindStealVictim, ref); err != nil {
			return attempt, err
		}
		if _, err := s.ledger.Credit(ctx, tx, attempt.AttackerID, amount, models.KindStealSuccess, ref); err != nil {
			return attempt, err
		}
	}
	return s.finish(ctx, tx, attempt, store.StealOutcome{Status: models.StealSuccess, AmountTaken: amount, ResolvedAt: now})
}

func (s *StealService) finish(ctx context.Context, tx store.Tx, attempt models.StealAttempt, outcome store.StealOutcome) (models.StealAttempt, error) {
	updated, err := s.steals.Resolve(ctx, tx, attempt.ID, outcome)
	if err != nil {
		return attempt, err
	}
	if updated == 0 {
		return attempt, ErrStaleState
	}
	if err := recordTransition(ctx, tx, s.transitions, "steal", attempt.ID, "resolved", attempt.AttackerID, map[string]any{
		"status": outcome.Status,
		"amount": outcome.AmountTaken,
	}); err != nil {
		return attempt, err
	}
	resolvedAt := outcome.ResolvedAt
	attempt.Status = outcome.Status
	attempt.WasDefended = outcome.WasDefended
	attempt.AmountTaken = outcome.AmountTaken
	attempt.PenaltyApplied = outcome.PenaltyApplied
	attempt.ResolvedAt = &resolvedAt
	return attempt, emit(ctx, tx, s.outbox, EventStealResolved, []string{attempt.AttackerID, attempt.TargetID}, StealResolved{
		StealID:     attempt.ID,
		Status:      outcome.Status,
		AmountTaken: outcome.AmountTaken,
		Penalty:     outcome.PenaltyApplied,
	})
}

func (s *StealService) lock(ctx context.Context, tx store.Getter, stealID string) (models.StealAttempt, error) {
	attempt, err := s.steals.GetForUpdate(ctx, tx, stealID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.StealAttempt{}, fmt.Errorf("steal %s: %w", stealID, ErrNotFound)
	}
	return attempt, err
}

// lockTwoAccounts takes row locks in ascending id order and hands the rows
// back in argument order.
func lockTwoAccounts(ctx context.Context, tx store.Getter, accounts AccountStore, firstID, secondID string) (models.Account, models.Account, error) {
	leftID, rightID := orderedIDs(firstID, secondID)
	left, err := accounts.GetForUpdate(ctx, tx, leftID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Account{}, models.Account{}, fmt.Errorf("account %s: %w", leftID, ErrNotFound)
	}
	if err != nil {
		return models.Account{}, models.Account{}, err
	}
	right, err := accounts.GetForUpdate(ctx, tx, rightID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Account{}, models.Account{}, fmt.Errorf("account %s: %w", rightID, ErrNotFound)
	}
	if err != nil {
		return models.Account{}, models.Account{}, err
	}
	if firstID == leftID {
		return left, right, nil
	}
	return right, left, nil
}

func orderedIDs(firstID, secondID string) (string, string) {
	if firstID <= secondID {
		return firstID, secondID
	}
	return secondID, firstID
}
