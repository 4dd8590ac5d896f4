package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type Account struct {
	ID           string     `db:"id" json:"id"`
	Balance      int64      `db:"balance" json:"balance"`
	TrustScore   int        `db:"trust_score" json:"trust_score"`
	Wins         int        `db:"wins" json:"wins"`
	Losses       int        `db:"losses" json:"losses"`
	Streak       int        `db:"streak" json:"streak"`
	IsSystem     bool       `db:"is_system" json:"is_system"`
	IsActive     bool       `db:"is_active" json:"is_active"`
	LastActiveAt *time.Time `db:"last_active_at" json:"last_active_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// IsRecentlyActive reports whether the account was seen within window of now.
func (a Account) IsRecentlyActive(now time.Time, window time.Duration) bool {
	return a.LastActiveAt != nil && now.Sub(*a.LastActiveAt) <= window
}

type TransactionKind string

const (
	KindAllowance    TransactionKind = "allowance"
	KindStakeLock    TransactionKind = "stake_lock"
	KindStakeRelease TransactionKind = "stake_release"
	KindStakeForfeit TransactionKind = "stake_forfeit"
	KindHouseCredit  TransactionKind = "house_credit"
	KindContestWin   TransactionKind = "contest_win"
	KindContestLoss  TransactionKind = "contest_loss"
	KindStealSuccess TransactionKind = "steal_success"
	KindStealVictim  TransactionKind = "steal_victim"
	KindStealPenalty TransactionKind = "steal_penalty"
	KindDefendBonus  TransactionKind = "defend_bonus"
	KindBorrow       TransactionKind = "borrow"
	KindRepay        TransactionKind = "repay"
	KindInterest     TransactionKind = "interest"
	KindRepoSeizure  TransactionKind = "repo_seizure"
)

type RefType string

const (
	RefNone        RefType = ""
	RefProposition RefType = "proposition"
	RefContest     RefType = "contest"
	RefSteal       RefType = "steal"
	RefDebt        RefType = "debt"
)

// Ref points a Transaction at the entity that caused it.
type Ref struct {
	Type RefType
	ID   string
}

type Transaction struct {
	ID           string          `db:"id" json:"id"`
	Seq          int64           `db:"seq" json:"seq"`
	AccountID    string          `db:"account_id" json:"account_id"`
	Amount       int64           `db:"amount" json:"amount"`
	BalanceAfter int64           `db:"balance_after" json:"balance_after"`
	Kind         TransactionKind `db:"kind" json:"kind"`
	RefType      *string         `db:"ref_type" json:"ref_type,omitempty"`
	RefID        *string         `db:"ref_id" json:"ref_id,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

type Vote string

const (
	VoteUnset Vote = ""
	VoteYes   Vote = "yes"
	VoteNo    Vote = "no"
)

func (v Vote) Valid() bool {
	return v == VoteYes || v == VoteNo
}

func (v Vote) Opposes(other Vote) bool {
	return v.Valid() && other.Valid() && v != other
}

type PropositionStatus string

const (
	PropositionOpen       PropositionStatus = "open"
	PropositionContested  PropositionStatus = "contested"
	PropositionNullResult PropositionStatus = "null_result"
	PropositionExpired    PropositionStatus = "expired"
)

type Proposition struct {
	ID        string            `db:"id" json:"id"`
	Text      string            `db:"text" json:"text"`
	Stake     int64             `db:"stake" json:"stake"`
	Status    PropositionStatus `db:"status" json:"status"`
	ExpiresAt time.Time         `db:"expires_at" json:"expires_at"`
	CreatedAt time.Time         `db:"created_at" json:"created_at"`
}

type Participant struct {
	PropositionID string     `db:"proposition_id" json:"proposition_id"`
	AccountID     string     `db:"account_id" json:"account_id"`
	Vote          Vote       `db:"vote" json:"vote"`
	VotedAt       *time.Time `db:"voted_at" json:"voted_at,omitempty"`
}

type ContestStatus string

const (
	ContestPendingProof   ContestStatus = "pending_proof"
	ContestProofSubmitted ContestStatus = "proof_submitted"
	ContestReviewing      ContestStatus = "reviewing"
	ContestDisputed       ContestStatus = "disputed"
	ContestCompleted      ContestStatus = "completed"
	ContestExpired        ContestStatus = "expired"
	ContestForfeited      ContestStatus = "forfeited"
)

func (s ContestStatus) Terminal() bool {
	return s == ContestCompleted || s == ContestExpired || s == ContestForfeited
}

type Contest struct {
	ID               string        `db:"id" json:"id"`
	PropositionID    string        `db:"proposition_id" json:"proposition_id"`
	ProverID         string        `db:"prover_id" json:"prover_id"`
	CounterpartID    string        `db:"counterpart_id" json:"counterpart_id"`
	ProverStake      int64         `db:"prover_stake" json:"prover_stake"`
	CounterpartStake int64         `db:"counterpart_stake" json:"counterpart_stake"`
	Pot              int64         `db:"pot" json:"pot"`
	Status           ContestStatus `db:"status" json:"status"`
	ProofID          *string       `db:"proof_id" json:"proof_id,omitempty"`
	ProofDeadline    time.Time     `db:"proof_deadline" json:"proof_deadline"`
	WinnerID         *string       `db:"winner_id" json:"winner_id,omitempty"`
	LoserID          *string       `db:"loser_id" json:"loser_id,omitempty"`
	DisputedBy       *string       `db:"disputed_by" json:"disputed_by,omitempty"`
	DisputeReason    *string       `db:"dispute_reason" json:"dispute_reason,omitempty"`
	DisputedAt       *time.Time    `db:"disputed_at" json:"disputed_at,omitempty"`
	ResolvedBy       *string       `db:"resolved_by" json:"resolved_by,omitempty"`
	ResolvedAt       *time.Time    `db:"resolved_at" json:"resolved_at,omitempty"`
	CreatedAt        time.Time     `db:"created_at" json:"created_at"`
}

func (c Contest) IsParticipant(accountID string) bool {
	return accountID != "" && (accountID == c.ProverID || accountID == c.CounterpartID)
}

// Other returns the opposing participant.
func (c Contest) Other(accountID string) string {
	if accountID == c.ProverID {
		return c.CounterpartID
	}
	return c.ProverID
}

type ProofRefKind string

const (
	RefStoragePath ProofRefKind = "storage_path"
	RefLegacyURL   ProofRefKind = "legacy_url"
)

type Proof struct {
	ID                string          `db:"id" json:"id"`
	ContestID         string          `db:"contest_id" json:"contest_id"`
	RefKind           ProofRefKind    `db:"ref_kind" json:"ref_kind"`
	Ref               string          `db:"ref" json:"-"`
	MediaKind         string          `db:"media_kind" json:"media_kind"`
	CaptureMetadata   json.RawMessage `db:"capture_metadata" json:"capture_metadata,omitempty"`
	ViewDurationHours int             `db:"view_duration_hours" json:"view_duration_hours"`
	MaxViews          int             `db:"max_views" json:"max_views"`
	ViewCount         int             `db:"view_count" json:"view_count"`
	FirstViewedAt     *time.Time      `db:"first_viewed_at" json:"first_viewed_at,omitempty"`
	SubmittedAt       time.Time       `db:"submitted_at" json:"submitted_at"`
	ExpiresAt         time.Time       `db:"expires_at" json:"expires_at"`
	Destroyed         bool            `db:"destroyed" json:"destroyed"`
	DestroyedAt       *time.Time      `db:"destroyed_at" json:"destroyed_at,omitempty"`
	ArtifactPurged    bool            `db:"artifact_purged" json:"artifact_purged"`
}

type StealStatus string

const (
	StealInProgress StealStatus = "in_progress"
	StealSuccess    StealStatus = "success"
	StealDefended   StealStatus = "defended"
	StealFailed     StealStatus = "failed"
)

type StealAttempt struct {
	ID              string      `db:"id" json:"id"`
	AttackerID      string      `db:"attacker_id" json:"attacker_id"`
	TargetID        string      `db:"target_id" json:"target_id"`
	Percentage      int64       `db:"percentage" json:"percentage"`
	PotentialAmount int64       `db:"potential_amount" json:"potential_amount"`
	TargetOnline    bool        `db:"target_online" json:"target_online"`
	WindowStart     *time.Time  `db:"window_start" json:"window_start,omitempty"`
	WindowEnd       *time.Time  `db:"window_end" json:"window_end,omitempty"`
	WasDefended     bool        `db:"was_defended" json:"was_defended"`
	MinigamePassed  *bool       `db:"minigame_passed" json:"minigame_passed,omitempty"`
	Status          StealStatus `db:"status" json:"status"`
	AmountTaken     int64       `db:"amount_taken" json:"amount_taken"`
	PenaltyApplied  int64       `db:"penalty_applied" json:"penalty_applied"`
	CreatedAt       time.Time   `db:"created_at" json:"created_at"`
	ResolvedAt      *time.Time  `db:"resolved_at" json:"resolved_at,omitempty"`
}

// WindowOpen reports whether a defense is still accepted at now. The end
// instant itself is already closed.
func (s StealAttempt) WindowOpen(now time.Time) bool {
	return s.WindowEnd != nil && now.Before(*s.WindowEnd)
}

type DebtStatus string

const (
	DebtActive    DebtStatus = "active"
	DebtRepaid    DebtStatus = "repaid"
	DebtDefaulted DebtStatus = "defaulted"
)

type Debt struct {
	ID              string          `db:"id" json:"id"`
	BorrowerID      string          `db:"borrower_id" json:"borrower_id"`
	Principal       int64           `db:"principal" json:"principal"`
	InterestRate    decimal.Decimal `db:"interest_rate" json:"interest_rate"`
	AccruedInterest int64           `db:"accrued_interest" json:"accrued_interest"`
	AmountRepaid    int64           `db:"amount_repaid" json:"amount_repaid"`
	Status          DebtStatus      `db:"status" json:"status"`
	RepoTriggered   bool            `db:"repo_triggered" json:"repo_triggered"`
	DueAt           time.Time       `db:"due_at" json:"due_at"`
	LastAccruedAt   time.Time       `db:"last_accrued_at" json:"last_accrued_at"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}

// Outstanding is principal plus accrued interest minus repayments.
func (d Debt) Outstanding() int64 {
	return d.Principal + d.AccruedInterest - d.AmountRepaid
}

type OutboxEvent struct {
	ID          string          `db:"id" json:"id"`
	Kind        string          `db:"kind" json:"kind"`
	Recipients  []string        `db:"-" json:"recipients"`
	Payload     json.RawMessage `db:"payload" json:"payload"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	PublishedAt *time.Time      `db:"published_at" json:"published_at,omitempty"`
}
