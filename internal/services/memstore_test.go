package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"wager/internal/artifact"
	"wager/internal/models"
	"wager/internal/store"
)

// memState is the whole fake database. It is copied before every
// transaction so a failing unit of work leaves no trace.
type memState struct {
	accounts     map[string]models.Account
	transactions []models.Transaction
	propositions map[string]models.Proposition
	participants map[string][]models.Participant
	contests     map[string]models.Contest
	proofs       map[string]models.Proof
	steals       map[string]models.StealAttempt
	debts        map[string]models.Debt
	outbox       []models.OutboxEvent
	transitions  map[string]store.Transition
	seq          int64
}

func newMemState() memState {
	return memState{
		accounts:     map[string]models.Account{},
		propositions: map[string]models.Proposition{},
		participants: map[string][]models.Participant{},
		contests:     map[string]models.Contest{},
		proofs:       map[string]models.Proof{},
		steals:       map[string]models.StealAttempt{},
		debts:        map[string]models.Debt{},
		transitions:  map[string]store.Transition{},
	}
}

func (s memState) clone() memState {
	out := newMemState()
	for k, v := range s.accounts {
		out.accounts[k] = v
	}
	out.transactions = append([]models.Transaction(nil), s.transactions...)
	for k, v := range s.propositions {
		out.propositions[k] = v
	}
	for k, v := range s.participants {
		out.participants[k] = append([]models.Participant(nil), v...)
	}
	for k, v := range s.contests {
		out.contests[k] = v
	}
	for k, v := range s.proofs {
		out.proofs[k] = v
	}
	for k, v := range s.steals {
		out.steals[k] = v
	}
	for k, v := range s.debts {
		out.debts[k] = v
	}
	out.outbox = append([]models.OutboxEvent(nil), s.outbox...)
	for k, v := range s.transitions {
		out.transitions[k] = v
	}
	out.seq = s.seq
	return out
}

// memStore serializes transactions with txMu, which stands in for
// SERIALIZABLE isolation, and guards individual reads with mu.
type memStore struct {
	txMu  sync.Mutex
	mu    sync.Mutex
	state memState

	// appendErr, when set, can fail a ledger append to exercise rollback.
	appendErr func(models.Transaction) error
}

func newMemStore() *memStore {
	return &memStore{state: newMemState()}
}

func (m *memStore) stores() Stores {
	return Stores{
		Accounts:     memAccounts{m},
		Transactions: memTransactions{m},
		Ledger:       memLedger{m},
		Propositions: memPropositions{m},
		Contests:     memContests{m},
		Proofs:       memProofs{m},
		Steals:       memSteals{m},
		Debts:        memDebts{m},
		Outbox:       memOutbox{m},
		Transitions:  memTransitions{m},
	}
}

func (m *memStore) snapshot() memState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

func (m *memStore) addAccount(account models.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if account.TrustScore == 0 {
		account.TrustScore = 50
	}
	account.IsActive = true
	m.state.accounts[account.ID] = account
}

// seed gives an account an opening balance through an allowance entry so
// the replay invariant holds from the start.
func (m *memStore) seed(accountID string, balance int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account := m.state.accounts[accountID]
	account.Balance += balance
	m.state.accounts[accountID] = account
	m.state.seq++
	m.state.transactions = append(m.state.transactions, models.Transaction{
		ID:           "seed-" + accountID,
		Seq:          m.state.seq,
		AccountID:    accountID,
		Amount:       balance,
		BalanceAfter: account.Balance,
		Kind:         models.KindAllowance,
	})
}

func (m *memStore) deactivate(accountID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account := m.state.accounts[accountID]
	account.IsActive = false
	m.state.accounts[accountID] = account
}

func (m *memStore) balance(accountID string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.accounts[accountID].Balance
}

func (m *memStore) account(accountID string) models.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.accounts[accountID]
}

func (m *memStore) totalCoins() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total int64
	for _, account := range m.state.accounts {
		total += account.Balance
	}
	return total
}

func (m *memStore) events(kind string) []models.OutboxEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.OutboxEvent
	for _, event := range m.state.outbox {
		if event.Kind == kind {
			out = append(out, event)
		}
	}
	return out
}

func (m *memStore) entries(accountID string, kind models.TransactionKind) []models.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Transaction
	for _, entry := range m.state.transactions {
		if entry.AccountID == accountID && (kind == "" || entry.Kind == kind) {
			out = append(out, entry)
		}
	}
	return out
}

type memTxRunner struct {
	store *memStore
}

func (r memTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	r.store.txMu.Lock()
	defer r.store.txMu.Unlock()
	before := r.store.snapshot()
	if err := fn(nil); err != nil {
		r.store.mu.Lock()
		r.store.state = before
		r.store.mu.Unlock()
		return err
	}
	return nil
}

func uniqueViolation() error {
	return &pq.Error{Code: "23505"}
}

type memAccounts struct{ m *memStore }

func (a memAccounts) GetByID(ctx context.Context, accountID string) (models.Account, error) {
	a.m.mu.Lock()
	defer a.m.mu.Unlock()
	account, ok := a.m.state.accounts[accountID]
	if !ok {
		return models.Account{}, sql.ErrNoRows
	}
	return account, nil
}

func (a memAccounts) GetForUpdate(ctx context.Context, tx store.Getter, accountID string) (models.Account, error) {
	return a.GetByID(ctx, accountID)
}

func (a memAccounts) Debit(ctx context.Context, tx store.Getter, accountID string, amount int64) (int64, error) {
	a.m.mu.Lock()
	defer a.m.mu.Unlock()
	account, ok := a.m.state.accounts[accountID]
	if !ok || !account.IsActive || account.Balance < amount {
		return 0, sql.ErrNoRows
	}
	account.Balance -= amount
	a.m.state.accounts[accountID] = account
	return account.Balance, nil
}

func (a memAccounts) Collect(ctx context.Context, tx store.Getter, accountID string, amount int64) (int64, error) {
	a.m.mu.Lock()
	defer a.m.mu.Unlock()
	account, ok := a.m.state.accounts[accountID]
	if !ok || account.Balance < amount {
		return 0, sql.ErrNoRows
	}
	account.Balance -= amount
	a.m.state.accounts[accountID] = account
	return account.Balance, nil
}

func (a memAccounts) Credit(ctx context.Context, tx store.Getter, accountID string, amount int64) (int64, error) {
	a.m.mu.Lock()
	defer a.m.mu.Unlock()
	account, ok := a.m.state.accounts[accountID]
	if !ok {
		return 0, sql.ErrNoRows
	}
	account.Balance += amount
	a.m.state.accounts[accountID] = account
	return account.Balance, nil
}

func (a memAccounts) AdjustTrust(ctx context.Context, tx store.Execer, accountID string, delta int) error {
	a.m.mu.Lock()
	defer a.m.mu.Unlock()
	account := a.m.state.accounts[accountID]
	account.TrustScore += delta
	if account.TrustScore < 0 {
		account.TrustScore = 0
	}
	if account.TrustScore > 100 {
		account.TrustScore = 100
	}
	a.m.state.accounts[accountID] = account
	return nil
}

func (a memAccounts) RecordOutcome(ctx context.Context, tx store.Execer, winnerID, loserID string) error {
	a.m.mu.Lock()
	defer a.m.mu.Unlock()
	winner := a.m.state.accounts[winnerID]
	winner.Wins++
	if winner.Streak > 0 {
		winner.Streak++
	} else {
		winner.Streak = 1
	}
	a.m.state.accounts[winnerID] = winner
	loser := a.m.state.accounts[loserID]
	loser.Losses++
	if loser.Streak < 0 {
		loser.Streak--
	} else {
		loser.Streak = -1
	}
	a.m.state.accounts[loserID] = loser
	return nil
}

func (a memAccounts) Touch(ctx context.Context, accountID string, now time.Time) error {
	a.m.mu.Lock()
	defer a.m.mu.Unlock()
	account, ok := a.m.state.accounts[accountID]
	if !ok {
		return nil
	}
	if account.LastActiveAt == nil || now.After(*account.LastActiveAt) {
		stamp := now
		account.LastActiveAt = &stamp
	}
	a.m.state.accounts[accountID] = account
	return nil
}

func (a memAccounts) HouseAccount(ctx context.Context, tx store.Getter) (string, error) {
	a.m.mu.Lock()
	defer a.m.mu.Unlock()
	var ids []string
	for id, account := range a.m.state.accounts {
		if account.IsSystem {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return "", sql.ErrNoRows
	}
	sort.Strings(ids)
	return ids[0], nil
}

type memTransactions struct{ m *memStore }

func (t memTransactions) Append(ctx context.Context, tx store.Execer, entry models.Transaction) error {
	if t.m.appendErr != nil {
		if err := t.m.appendErr(entry); err != nil {
			return err
		}
	}
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	t.m.state.seq++
	entry.Seq = t.m.state.seq
	t.m.state.transactions = append(t.m.state.transactions, entry)
	return nil
}

type memLedger struct{ m *memStore }

func (l memLedger) SumByAccount(ctx context.Context, accountID string) (int64, error) {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	var sum int64
	for _, entry := range l.m.state.transactions {
		if entry.AccountID == accountID {
			sum += entry.Amount
		}
	}
	return sum, nil
}

func (l memLedger) Reconcile(ctx context.Context) ([]store.BalanceDrift, error) {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	sums := map[string]int64{}
	for _, entry := range l.m.state.transactions {
		sums[entry.AccountID] += entry.Amount
	}
	var drifts []store.BalanceDrift
	for id, account := range l.m.state.accounts {
		if sums[id] != account.Balance {
			drifts = append(drifts, store.BalanceDrift{
				AccountID:         id,
				StoredBalance:     account.Balance,
				CalculatedBalance: sums[id],
				Difference:        account.Balance - sums[id],
				IsSystem:          account.IsSystem,
			})
		}
	}
	sort.Slice(drifts, func(i, j int) bool { return drifts[i].AccountID < drifts[j].AccountID })
	return drifts, nil
}

type memPropositions struct{ m *memStore }

func (p memPropositions) Create(ctx context.Context, tx store.Execer, proposition models.Proposition, participantIDs []string) error {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	if _, ok := p.m.state.propositions[proposition.ID]; ok {
		return uniqueViolation()
	}
	p.m.state.propositions[proposition.ID] = proposition
	participants := make([]models.Participant, 0, len(participantIDs))
	for _, id := range participantIDs {
		participants = append(participants, models.Participant{PropositionID: proposition.ID, AccountID: id})
	}
	sort.Slice(participants, func(i, j int) bool { return participants[i].AccountID < participants[j].AccountID })
	p.m.state.participants[proposition.ID] = participants
	return nil
}

func (p memPropositions) GetForUpdate(ctx context.Context, tx store.Getter, propositionID string) (models.Proposition, error) {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	proposition, ok := p.m.state.propositions[propositionID]
	if !ok {
		return models.Proposition{}, sql.ErrNoRows
	}
	return proposition, nil
}

func (p memPropositions) Participants(ctx context.Context, tx store.Selecter, propositionID string) ([]models.Participant, error) {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	return append([]models.Participant(nil), p.m.state.participants[propositionID]...), nil
}

func (p memPropositions) SetVote(ctx context.Context, tx store.Execer, propositionID, accountID string, vote models.Vote, now time.Time) (int64, error) {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	participants := p.m.state.participants[propositionID]
	for i := range participants {
		if participants[i].AccountID == accountID && participants[i].Vote == models.VoteUnset {
			stamp := now
			participants[i].Vote = vote
			participants[i].VotedAt = &stamp
			return 1, nil
		}
	}
	return 0, nil
}

func (p memPropositions) TransitionStatus(ctx context.Context, tx store.Execer, propositionID string, from, to models.PropositionStatus) (int64, error) {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	proposition, ok := p.m.state.propositions[propositionID]
	if !ok || proposition.Status != from {
		return 0, nil
	}
	proposition.Status = to
	p.m.state.propositions[propositionID] = proposition
	return 1, nil
}

func (p memPropositions) ListOverdue(ctx context.Context, now time.Time, limit int) ([]string, error) {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	var ids []string
	for id, proposition := range p.m.state.propositions {
		if proposition.Status == models.PropositionOpen && !proposition.ExpiresAt.After(now) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

type memContests struct{ m *memStore }

func (c memContests) Create(ctx context.Context, tx store.Execer, contest models.Contest) error {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	for _, existing := range c.m.state.contests {
		if existing.PropositionID == contest.PropositionID {
			return uniqueViolation()
		}
	}
	c.m.state.contests[contest.ID] = contest
	return nil
}

func (c memContests) GetByID(ctx context.Context, contestID string) (models.Contest, error) {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	contest, ok := c.m.state.contests[contestID]
	if !ok {
		return models.Contest{}, sql.ErrNoRows
	}
	return contest, nil
}

func (c memContests) GetForUpdate(ctx context.Context, tx store.Getter, contestID string) (models.Contest, error) {
	return c.GetByID(ctx, contestID)
}

func (c memContests) Transition(ctx context.Context, tx store.Execer, contestID string, from models.ContestStatus, change store.ContestChange) (int64, error) {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	contest, ok := c.m.state.contests[contestID]
	if !ok || contest.Status != from {
		return 0, nil
	}
	contest.Status = change.Status
	if change.ProofID != nil {
		contest.ProofID = change.ProofID
	}
	if change.WinnerID != nil {
		contest.WinnerID = change.WinnerID
	}
	if change.LoserID != nil {
		contest.LoserID = change.LoserID
	}
	if change.DisputedBy != nil {
		contest.DisputedBy = change.DisputedBy
		contest.DisputeReason = change.DisputeReason
		contest.DisputedAt = change.DisputedAt
	}
	if change.ResolvedBy != nil {
		contest.ResolvedBy = change.ResolvedBy
		contest.ResolvedAt = change.ResolvedAt
	}
	c.m.state.contests[contestID] = contest
	return 1, nil
}

func (c memContests) ListOverdue(ctx context.Context, now time.Time, limit int) ([]string, error) {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	var ids []string
	for id, contest := range c.m.state.contests {
		if contest.Status == models.ContestPendingProof && !contest.ProofDeadline.After(now) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

type memProofs struct{ m *memStore }

func (p memProofs) Create(ctx context.Context, tx store.Execer, proof models.Proof) error {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	if len(proof.CaptureMetadata) == 0 {
		proof.CaptureMetadata = json.RawMessage("{}")
	}
	p.m.state.proofs[proof.ID] = proof
	return nil
}

func (p memProofs) GetByID(ctx context.Context, proofID string) (models.Proof, error) {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	proof, ok := p.m.state.proofs[proofID]
	if !ok {
		return models.Proof{}, sql.ErrNoRows
	}
	return proof, nil
}

func (p memProofs) GrantView(ctx context.Context, tx store.Getter, proofID string, now time.Time) (models.Proof, error) {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	proof, ok := p.m.state.proofs[proofID]
	if !ok || proof.Destroyed || !proof.ExpiresAt.After(now) || proof.ViewCount >= proof.MaxViews {
		return models.Proof{}, sql.ErrNoRows
	}
	proof.ViewCount++
	if proof.ViewCount >= proof.MaxViews {
		stamp := now
		proof.Destroyed = true
		proof.DestroyedAt = &stamp
	}
	if proof.FirstViewedAt == nil {
		stamp := now
		proof.FirstViewedAt = &stamp
	}
	p.m.state.proofs[proofID] = proof
	return proof, nil
}

func (p memProofs) Destroy(ctx context.Context, tx store.Execer, proofID string, now time.Time) (int64, error) {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	proof, ok := p.m.state.proofs[proofID]
	if !ok || proof.Destroyed {
		return 0, nil
	}
	stamp := now
	proof.Destroyed = true
	proof.DestroyedAt = &stamp
	p.m.state.proofs[proofID] = proof
	return 1, nil
}

func (p memProofs) ListExpired(ctx context.Context, now time.Time, limit int) ([]string, error) {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	var ids []string
	for id, proof := range p.m.state.proofs {
		if !proof.Destroyed && !proof.ExpiresAt.After(now) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (p memProofs) ListPurgeable(ctx context.Context, destroyedBefore time.Time, limit int) ([]models.Proof, error) {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	var out []models.Proof
	for _, proof := range p.m.state.proofs {
		if proof.Destroyed && !proof.ArtifactPurged && proof.RefKind == models.RefStoragePath &&
			proof.DestroyedAt != nil && !proof.DestroyedAt.After(destroyedBefore) {
			out = append(out, proof)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (p memProofs) MarkPurged(ctx context.Context, proofID string) error {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	proof := p.m.state.proofs[proofID]
	proof.ArtifactPurged = true
	p.m.state.proofs[proofID] = proof
	return nil
}

type memSteals struct{ m *memStore }

func (s memSteals) Create(ctx context.Context, tx store.Execer, attempt models.StealAttempt) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	s.m.state.steals[attempt.ID] = attempt
	return nil
}

func (s memSteals) GetByID(ctx context.Context, stealID string) (models.StealAttempt, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	attempt, ok := s.m.state.steals[stealID]
	if !ok {
		return models.StealAttempt{}, sql.ErrNoRows
	}
	return attempt, nil
}

func (s memSteals) GetForUpdate(ctx context.Context, tx store.Getter, stealID string) (models.StealAttempt, error) {
	return s.GetByID(ctx, stealID)
}

func (s memSteals) RecordMinigame(ctx context.Context, tx store.Execer, stealID string, passed bool) (int64, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	attempt, ok := s.m.state.steals[stealID]
	if !ok || attempt.Status != models.StealInProgress || attempt.MinigamePassed != nil {
		return 0, nil
	}
	attempt.MinigamePassed = &passed
	s.m.state.steals[stealID] = attempt
	return 1, nil
}

func (s memSteals) Resolve(ctx context.Context, tx store.Execer, stealID string, outcome store.StealOutcome) (int64, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	attempt, ok := s.m.state.steals[stealID]
	if !ok || attempt.Status != models.StealInProgress {
		return 0, nil
	}
	resolvedAt := outcome.ResolvedAt
	attempt.Status = outcome.Status
	attempt.WasDefended = outcome.WasDefended
	attempt.AmountTaken = outcome.AmountTaken
	attempt.PenaltyApplied = outcome.PenaltyApplied
	attempt.ResolvedAt = &resolvedAt
	s.m.state.steals[stealID] = attempt
	return 1, nil
}

func (s memSteals) History(ctx context.Context, tx store.Getter, attackerID string) (store.StealHistory, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var history store.StealHistory
	for _, attempt := range s.m.state.steals {
		if attempt.AttackerID != attackerID {
			continue
		}
		switch attempt.Status {
		case models.StealSuccess:
			history.Successes++
		case models.StealDefended:
			history.Defended++
		}
	}
	return history, nil
}

func (s memSteals) ListExpired(ctx context.Context, now time.Time, limit int) ([]string, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var ids []string
	for id, attempt := range s.m.state.steals {
		if attempt.Status == models.StealInProgress && attempt.WindowEnd != nil && !attempt.WindowEnd.After(now) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s memSteals) ListAbandoned(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var ids []string
	for id, attempt := range s.m.state.steals {
		if attempt.Status == models.StealInProgress && attempt.WindowEnd == nil && attempt.MinigamePassed == nil && !attempt.CreatedAt.After(cutoff) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

type memDebts struct{ m *memStore }

func debtOpen(debt models.Debt) bool {
	return debt.Status == models.DebtActive || debt.Status == models.DebtDefaulted
}

func (d memDebts) Create(ctx context.Context, tx store.Execer, debt models.Debt) error {
	d.m.mu.Lock()
	defer d.m.mu.Unlock()
	d.m.state.debts[debt.ID] = debt
	return nil
}

func (d memDebts) GetByID(ctx context.Context, debtID string) (models.Debt, error) {
	d.m.mu.Lock()
	defer d.m.mu.Unlock()
	debt, ok := d.m.state.debts[debtID]
	if !ok {
		return models.Debt{}, sql.ErrNoRows
	}
	return debt, nil
}

func (d memDebts) GetForUpdate(ctx context.Context, tx store.Getter, debtID string) (models.Debt, error) {
	return d.GetByID(ctx, debtID)
}

func (d memDebts) Outstanding(ctx context.Context, tx store.Getter, borrowerID string) (int64, error) {
	d.m.mu.Lock()
	defer d.m.mu.Unlock()
	var total int64
	for _, debt := range d.m.state.debts {
		if debt.BorrowerID == borrowerID && debtOpen(debt) {
			total += debt.Outstanding()
		}
	}
	return total, nil
}

func (d memDebts) SaveAccrual(ctx context.Context, tx store.Execer, debtID string, interest int64, previous, accruedAt time.Time) (int64, error) {
	d.m.mu.Lock()
	defer d.m.mu.Unlock()
	debt, ok := d.m.state.debts[debtID]
	if !ok || !debtOpen(debt) || !debt.LastAccruedAt.Equal(previous) {
		return 0, nil
	}
	debt.AccruedInterest += interest
	debt.LastAccruedAt = accruedAt
	d.m.state.debts[debtID] = debt
	return 1, nil
}

func (d memDebts) MarkDefaulted(ctx context.Context, tx store.Execer, debtID string) (int64, error) {
	d.m.mu.Lock()
	defer d.m.mu.Unlock()
	debt, ok := d.m.state.debts[debtID]
	if !ok || debt.Status != models.DebtActive || debt.RepoTriggered {
		return 0, nil
	}
	debt.Status = models.DebtDefaulted
	debt.RepoTriggered = true
	d.m.state.debts[debtID] = debt
	return 1, nil
}

func (d memDebts) ApplyRepayment(ctx context.Context, tx store.Execer, debtID string, amount int64) (int64, error) {
	d.m.mu.Lock()
	defer d.m.mu.Unlock()
	debt, ok := d.m.state.debts[debtID]
	if !ok || !debtOpen(debt) || debt.Outstanding() < amount {
		return 0, nil
	}
	debt.AmountRepaid += amount
	if debt.Outstanding() == 0 {
		debt.Status = models.DebtRepaid
		debt.RepoTriggered = false
	}
	d.m.state.debts[debtID] = debt
	return 1, nil
}

func (d memDebts) ListRepoTriggered(ctx context.Context, tx store.Selecter, borrowerID string) ([]models.Debt, error) {
	d.m.mu.Lock()
	defer d.m.mu.Unlock()
	var out []models.Debt
	for _, debt := range d.m.state.debts {
		if debt.BorrowerID == borrowerID && debt.RepoTriggered && debtOpen(debt) {
			out = append(out, debt)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (d memDebts) ListOpen(ctx context.Context, limit int) ([]string, error) {
	d.m.mu.Lock()
	defer d.m.mu.Unlock()
	var ids []string
	for id, debt := range d.m.state.debts {
		if debtOpen(debt) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

type memOutbox struct{ m *memStore }

func (o memOutbox) Enqueue(ctx context.Context, tx store.Execer, event models.OutboxEvent) error {
	o.m.mu.Lock()
	defer o.m.mu.Unlock()
	o.m.state.outbox = append(o.m.state.outbox, event)
	return nil
}

type memTransitions struct{ m *memStore }

func (t memTransitions) Record(ctx context.Context, tx store.Execer, entry store.Transition) (bool, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	key := entry.EntityType + "/" + entry.EntityID + "/" + entry.Transition
	if _, ok := t.m.state.transitions[key]; ok {
		return false, nil
	}
	t.m.state.transitions[key] = entry
	return true, nil
}

type memArtifacts struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemArtifacts() *memArtifacts {
	return &memArtifacts{objects: map[string][]byte{}}
}

func (a *memArtifacts) put(path string, body []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.objects[path] = body
}

func (a *memArtifacts) has(path string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.objects[path]
	return ok
}

func (a *memArtifacts) Exists(path string) (bool, error) {
	return a.has(path), nil
}

func (a *memArtifacts) Open(path string) (io.ReadCloser, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	body, ok := a.objects[path]
	if !ok {
		return nil, artifact.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}

func (a *memArtifacts) Delete(path string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.objects, path)
	return nil
}

var errInjected = errors.New("injected failure")
