package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"wager/internal/auth"
	"wager/internal/config"
	"wager/internal/models"
)

const houseID = "house"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

type fixedStealPolicy struct {
	pct int64
}

func (p fixedStealPolicy) Percentage(StealInput) int64 {
	return p.pct
}

type harness struct {
	t         *testing.T
	ctx       context.Context
	store     *memStore
	clock     *testClock
	policy    config.Policy
	artifacts *memArtifacts
	ledger    *LedgerService
	matcher   *MatcherService
	contests  *ContestService
	proofs    *ProofService
	steals    *StealService
	debts     *DebtService
	sweeper   *Sweeper
}

// newHarness wires every service over one in-memory store. The clock starts
// at the real current time so signed grants verify.
func newHarness(t *testing.T) *harness {
	t.Helper()
	mem := newMemStore()
	mem.addAccount(models.Account{ID: houseID, IsSystem: true})

	clock := &testClock{now: time.Now().UTC().Truncate(time.Second)}
	policy := config.DefaultPolicy()
	runner := memTxRunner{store: mem}
	stores := mem.stores()

	signer, err := auth.NewGrantSigner("test-secret", time.Minute)
	require.NoError(t, err)
	artifacts := newMemArtifacts()

	ledger := NewLedgerService(runner, stores.Accounts, stores.Transactions, stores.Ledger)
	ledger.SetSeizurePolicy(NewRepoSeizurePolicy(stores.Debts, ledger, policy.Debt))

	proofs := NewProofService(runner, stores.Proofs, signer, artifacts, policy.Proof)
	proofs.now = clock.Now
	matcher := NewMatcherService(runner, stores, ledger, policy.Contest)
	matcher.now = clock.Now
	contests := NewContestService(runner, stores, ledger, proofs)
	contests.now = clock.Now
	steals := NewStealService(runner, stores, ledger, fixedStealPolicy{pct: 10}, policy.Steal)
	debts := NewDebtService(runner, stores, ledger, policy.Debt)

	sweeper := NewSweeper(slog.New(slog.NewTextHandler(io.Discard, nil)), matcher, contests, proofs, steals, debts)
	sweeper.now = clock.Now

	return &harness{
		t:         t,
		ctx:       context.Background(),
		store:     mem,
		clock:     clock,
		policy:    policy,
		artifacts: artifacts,
		ledger:    ledger,
		matcher:   matcher,
		contests:  contests,
		proofs:    proofs,
		steals:    steals,
		debts:     debts,
		sweeper:   sweeper,
	}
}

func (h *harness) account(id string, balance int64) {
	h.store.addAccount(models.Account{ID: id, CreatedAt: h.clock.Now()})
	if balance > 0 {
		h.store.seed(id, balance)
	}
}

// requireLedgerConsistent checks the replay invariant for every account.
func (h *harness) requireLedgerConsistent() {
	h.t.Helper()
	drifts, err := h.ledger.Reconcile(h.ctx)
	require.NoError(h.t, err)
	require.Empty(h.t, drifts)
	for id, account := range h.store.snapshot().accounts {
		require.GreaterOrEqual(h.t, account.Balance, int64(0), "account %s went negative", id)
	}
}

func (h *harness) proposition(stake int64, participants ...string) models.Proposition {
	h.t.Helper()
	proposition, err := h.matcher.CreateProposition(h.ctx, CreatePropositionRequest{
		Text:         "Sam eats the whole pizza",
		Stake:        stake,
		Participants: participants,
		ExpiresAt:    h.clock.Now().Add(time.Hour),
	})
	require.NoError(h.t, err)
	return proposition
}

// contest creates a two-party proposition and votes it into a contest with
// prover voting yes.
func (h *harness) contest(prover, counterpart string, stake int64) models.Contest {
	h.t.Helper()
	proposition := h.proposition(stake, prover, counterpart)
	_, err := h.matcher.CastVote(h.ctx, proposition.ID, prover, models.VoteYes)
	require.NoError(h.t, err)
	result, err := h.matcher.CastVote(h.ctx, proposition.ID, counterpart, models.VoteNo)
	require.NoError(h.t, err)
	require.Equal(h.t, models.PropositionContested, result.Status)
	contest, err := h.contests.Get(h.ctx, result.ContestID)
	require.NoError(h.t, err)
	return contest
}

// submitProof uploads placeholder bytes under ref unless they are already
// there, then submits them for contest.
func (h *harness) submitProof(contest models.Contest, ref string, viewOnce bool) models.Proof {
	h.t.Helper()
	if !h.artifacts.has(ref) {
		h.artifacts.put(ref, []byte("proof"))
	}
	proof, err := h.contests.SubmitProof(h.ctx, SubmitProofRequest{
		ContestID:   contest.ID,
		ProverID:    contest.ProverID,
		ArtifactRef: ref,
		MediaKind:   "image",
		ViewOnce:    viewOnce,
	})
	require.NoError(h.t, err)
	return proof
}
