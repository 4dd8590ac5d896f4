package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"wager/internal/metrics"
	"wager/internal/models"
	"wager/internal/store"
)

const (
	EventPropositionCreated = "PropositionCreated"
	EventContestCreated     = "ContestCreated"
	EventProofSubmitted     = "ProofSubmitted"
	EventContestDisputed    = "ContestDisputed"
	EventContestResolved    = "ContestResolved"
	EventStealAlertOpened   = "StealAlertOpened"
	EventStealResolved      = "StealResolved"
	EventDebtOverdue        = "DebtOverdue"
)

type PropositionCreated struct {
	PropositionID string    `json:"proposition_id"`
	Stake         int64     `json:"stake"`
	ExpiresAt     time.Time `json:"expires_at"`
}

type ContestCreated struct {
	ContestID     string    `json:"contest_id"`
	PropositionID string    `json:"proposition_id"`
	ProverID      string    `json:"prover_id"`
	CounterpartID string    `json:"counterpart_id"`
	Pot           int64     `json:"pot"`
	ProofDeadline time.Time `json:"proof_deadline"`
}

type ProofSubmitted struct {
	ContestID string `json:"contest_id"`
	ProofID   string `json:"proof_id"`
	ViewOnce  bool   `json:"view_once"`
}

type ContestDisputed struct {
	ContestID  string `json:"contest_id"`
	DisputedBy string `json:"disputed_by"`
	Reason     string `json:"reason"`
}

type ContestResolved struct {
	ContestID string               `json:"contest_id"`
	Status    models.ContestStatus `json:"status"`
	WinnerID  string               `json:"winner_id"`
	LoserID   string               `json:"loser_id"`
	Pot       int64                `json:"pot"`
}

type StealAlertOpened struct {
	StealID         string    `json:"steal_id"`
	AttackerID      string    `json:"attacker_id"`
	PotentialAmount int64     `json:"potential_amount"`
	WindowEnd       time.Time `json:"window_end"`
}

type StealResolved struct {
	StealID     string             `json:"steal_id"`
	Status      models.StealStatus `json:"status"`
	AmountTaken int64              `json:"amount_taken"`
	Penalty     int64              `json:"penalty"`
}

type DebtOverdue struct {
	DebtID      string    `json:"debt_id"`
	Outstanding int64     `json:"outstanding"`
	DueAt       time.Time `json:"due_at"`
}

// emit writes the event into the outbox inside the caller's transaction.
func emit(ctx context.Context, tx store.Execer, outbox OutboxStore, kind string, recipients []string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", kind, err)
	}
	return outbox.Enqueue(ctx, tx, models.OutboxEvent{
		ID:         uuid.NewString(),
		Kind:       kind,
		Recipients: recipients,
		Payload:    body,
	})
}

// recordTransition stores the idempotency key for a terminal transition. A
// key that already exists means another writer completed it.
func recordTransition(ctx context.Context, tx store.Execer, transitions TransitionStore, entityType, entityID, transition, actorID string, data any) error {
	encoded := "{}"
	if data != nil {
		body, err := json.Marshal(data)
		if err != nil {
			return err
		}
		encoded = string(body)
	}
	inserted, err := transitions.Record(ctx, tx, store.Transition{
		EntityType: entityType,
		EntityID:   entityID,
		Transition: transition,
		ActorID:    actorID,
		Data:       encoded,
	})
	if err != nil {
		return err
	}
	if !inserted {
		return ErrStaleState
	}
	metrics.Transitions.WithLabelValues(entityType, transition).Inc()
	return nil
}
