package services

import (
	"context"
	"time"

	"wager/internal/models"
	"wager/internal/store"
)

type AccountStore interface {
	GetByID(ctx context.Context, accountID string) (models.Account, error)
	GetForUpdate(ctx context.Context, tx store.Getter, accountID string) (models.Account, error)
	Debit(ctx context.Context, tx store.Getter, accountID string, amount int64) (int64, error)
	Collect(ctx context.Context, tx store.Getter, accountID string, amount int64) (int64, error)
	Credit(ctx context.Context, tx store.Getter, accountID string, amount int64) (int64, error)
	AdjustTrust(ctx context.Context, tx store.Execer, accountID string, delta int) error
	RecordOutcome(ctx context.Context, tx store.Execer, winnerID, loserID string) error
	Touch(ctx context.Context, accountID string, now time.Time) error
	HouseAccount(ctx context.Context, tx store.Getter) (string, error)
}

type TransactionStore interface {
	Append(ctx context.Context, tx store.Execer, entry models.Transaction) error
}

type LedgerStore interface {
	SumByAccount(ctx context.Context, accountID string) (int64, error)
	Reconcile(ctx context.Context) ([]store.BalanceDrift, error)
}

type PropositionStore interface {
	Create(ctx context.Context, tx store.Execer, proposition models.Proposition, participantIDs []string) error
	GetForUpdate(ctx context.Context, tx store.Getter, propositionID string) (models.Proposition, error)
	Participants(ctx context.Context, tx store.Selecter, propositionID string) ([]models.Participant, error)
	SetVote(ctx context.Context, tx store.Execer, propositionID, accountID string, vote models.Vote, now time.Time) (int64, error)
	TransitionStatus(ctx context.Context, tx store.Execer, propositionID string, from, to models.PropositionStatus) (int64, error)
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]string, error)
}

type ContestStore interface {
	Create(ctx context.Context, tx store.Execer, contest models.Contest) error
	GetByID(ctx context.Context, contestID string) (models.Contest, error)
	GetForUpdate(ctx context.Context, tx store.Getter, contestID string) (models.Contest, error)
	Transition(ctx context.Context, tx store.Execer, contestID string, from models.ContestStatus, change store.ContestChange) (int64, error)
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]string, error)
}

type ProofStore interface {
	Create(ctx context.Context, tx store.Execer, proof models.Proof) error
	GetByID(ctx context.Context, proofID string) (models.Proof, error)
	GrantView(ctx context.Context, tx store.Getter, proofID string, now time.Time) (models.Proof, error)
	Destroy(ctx context.Context, tx store.Execer, proofID string, now time.Time) (int64, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]string, error)
	ListPurgeable(ctx context.Context, destroyedBefore time.Time, limit int) ([]models.Proof, error)
	MarkPurged(ctx context.Context, proofID string) error
}

type StealStore interface {
	Create(ctx context.Context, tx store.Execer, attempt models.StealAttempt) error
	GetByID(ctx context.Context, stealID string) (models.StealAttempt, error)
	GetForUpdate(ctx context.Context, tx store.Getter, stealID string) (models.StealAttempt, error)
	RecordMinigame(ctx context.Context, tx store.Execer, stealID string, passed bool) (int64, error)
	Resolve(ctx context.Context, tx store.Execer, stealID string, outcome store.StealOutcome) (int64, error)
	History(ctx context.Context, tx store.Getter, attackerID string) (store.StealHistory, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]string, error)
	ListAbandoned(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
}

type DebtStore interface {
	Create(ctx context.Context, tx store.Execer, debt models.Debt) error
	GetByID(ctx context.Context, debtID string) (models.Debt, error)
	GetForUpdate(ctx context.Context, tx store.Getter, debtID string) (models.Debt, error)
	Outstanding(ctx context.Context, tx store.Getter, borrowerID string) (int64, error)
	SaveAccrual(ctx context.Context, tx store.Execer, debtID string, interest int64, previous, accruedAt time.Time) (int64, error)
	MarkDefaulted(ctx context.Context, tx store.Execer, debtID string) (int64, error)
	ApplyRepayment(ctx context.Context, tx store.Execer, debtID string, amount int64) (int64, error)
	ListRepoTriggered(ctx context.Context, tx store.Selecter, borrowerID string) ([]models.Debt, error)
	ListOpen(ctx context.Context, limit int) ([]string, error)
}

type OutboxStore interface {
	Enqueue(ctx context.Context, tx store.Execer, event models.OutboxEvent) error
}

type TransitionStore interface {
	Record(ctx context.Context, tx store.Execer, entry store.Transition) (bool, error)
}

// Stores groups the persistence each service draws from.
type Stores struct {
	Accounts     AccountStore
	Transactions TransactionStore
	Ledger       LedgerStore
	Propositions PropositionStore
	Contests     ContestStore
	Proofs       ProofStore
	Steals       StealStore
	Debts        DebtStore
	Outbox       OutboxStore
	Transitions  TransitionStore
}

const sweepBatch = 200
