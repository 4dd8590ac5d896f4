package handlers

import (
	"context"
	"io"
	"time"

	"wager/internal/models"
	"wager/internal/services"
	"wager/internal/store"
)

type Ledger interface {
	Account(ctx context.Context, accountID string) (models.Account, error)
	Replay(ctx context.Context, accountID string) (services.ReplayResult, error)
	Reconcile(ctx context.Context) ([]store.BalanceDrift, error)
	GrantAllowance(ctx context.Context, accountID string, amount int64) (int64, error)
	Touch(ctx context.Context, accountID string, now time.Time) error
}

type TransactionStore interface {
	ListByAccount(ctx context.Context, accountID, kind string, limit, offset int) ([]models.Transaction, error)
}

type Matcher interface {
	CreateProposition(ctx context.Context, req services.CreatePropositionRequest) (models.Proposition, error)
	CastVote(ctx context.Context, propositionID, participantID string, vote models.Vote) (services.MatchResult, error)
}

type Contests interface {
	SubmitProof(ctx context.Context, req services.SubmitProofRequest) (models.Proof, error)
	ViewProof(ctx context.Context, contestID, viewerID string) (services.ProofGrant, error)
	StartReview(ctx context.Context, contestID, participantID string) (models.Contest, error)
	Dispute(ctx context.Context, contestID, disputerID, reason string) (models.Contest, error)
	Resolve(ctx context.Context, req services.ResolveRequest) (models.Contest, error)
	Forfeit(ctx context.Context, contestID, participantID string) (models.Contest, error)
}

type Proofs interface {
	OpenGrant(ctx context.Context, token string) (io.ReadCloser, models.Proof, error)
}

type Steals interface {
	Get(ctx context.Context, stealID string) (models.StealAttempt, error)
	InitiateSteal(ctx context.Context, attackerID, targetID string, now time.Time) (models.StealAttempt, error)
	CompleteMinigame(ctx context.Context, stealID, attackerID string, passed bool, now time.Time) (models.StealAttempt, error)
	Defend(ctx context.Context, stealID, defenderID string, now time.Time) (models.StealAttempt, error)
	ResolveSteal(ctx context.Context, stealID string, now time.Time) (models.StealAttempt, error)
}

type Debts interface {
	Borrow(ctx context.Context, borrowerID string, amount int64, now time.Time) (models.Debt, error)
	Repay(ctx context.Context, debtID, borrowerID string, amount int64) (models.Debt, error)
}

type Sweeps interface {
	Run(ctx context.Context, name string) (int, error)
	Names() []string
}

type AdminStore interface {
	IsAdmin(ctx context.Context, accountID string) (bool, bool, error)
	HasRole(ctx context.Context, accountID, role string) (bool, error)
	CreateAdmin(ctx context.Context, tx store.Execer, accountID string, isSuper bool, createdBy *string) error
	GrantRole(ctx context.Context, tx store.Execer, adminAccountID, role string) error
}

type TransitionStore interface {
	Record(ctx context.Context, tx store.Execer, entry store.Transition) (bool, error)
	List(ctx context.Context, limit, offset int) ([]store.Transition, error)
}
