package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"wager/internal/db"
	"wager/internal/metrics"
	"wager/internal/models"
	"wager/internal/store"
)

// SeizurePolicy runs after a payout credits winnings to an account.
type SeizurePolicy interface {
	Seize(ctx context.Context, tx store.Tx, accountID string, winnings int64, ref models.Ref) error
}

// LedgerService is the only writer of balances. Every balance change is a
// guarded single-statement update followed by an appended Transaction in the
// same database transaction.
type LedgerService struct {
	txRunner db.TxRunner
	accounts AccountStore
	txs      TransactionStore
	ledger   LedgerStore
	seizure  SeizurePolicy
}

type ReplayResult struct {
	AccountID  string `json:"account_id"`
	Stored     int64  `json:"stored_balance"`
	Replayed   int64  `json:"replayed_balance"`
	Consistent bool   `json:"consistent"`
}

func NewLedgerService(txRunner db.TxRunner, accounts AccountStore, txs TransactionStore, ledger LedgerStore) *LedgerService {
	return &LedgerService{txRunner: txRunner, accounts: accounts, txs: txs, ledger: ledger}
}

func (l *LedgerService) SetSeizurePolicy(policy SeizurePolicy) {
	l.seizure = policy
}

func (l *LedgerService) Debit(ctx context.Context, tx store.Tx, accountID string, amount int64, kind models.TransactionKind, ref models.Ref) (int64, error) {
	return l.debit(ctx, tx, accountID, amount, kind, ref, l.accounts.Debit, true)
}

// Collect takes coins the system is owed, such as seizures and penalties.
// Unlike Debit it still applies to deactivated accounts.
func (l *LedgerService) Collect(ctx context.Context, tx store.Tx, accountID string, amount int64, kind models.TransactionKind, ref models.Ref) (int64, error) {
	return l.debit(ctx, tx, accountID, amount, kind, ref, l.accounts.Collect, false)
}

type guardedDebit func(ctx context.Context, tx store.Getter, accountID string, amount int64) (int64, error)

func (l *LedgerService) debit(ctx context.Context, tx store.Tx, accountID string, amount int64, kind models.TransactionKind, ref models.Ref, update guardedDebit, requireActive bool) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: debit amount must be positive", ErrValidation)
	}
	balance, err := update(ctx, tx, accountID, amount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, l.debitFailure(ctx, tx, accountID, requireActive)
	}
	if err != nil {
		return 0, err
	}
	if err := l.append(ctx, tx, accountID, -amount, balance, kind, ref); err != nil {
		return 0, err
	}
	return balance, nil
}

// debitFailure explains why a guarded debit matched no row.
func (l *LedgerService) debitFailure(ctx context.Context, tx store.Tx, accountID string, requireActive bool) error {
	account, err := l.accounts.GetForUpdate(ctx, tx, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("account %s: %w", accountID, ErrNotFound)
	}
	if err != nil {
		return err
	}
	if requireActive && !account.IsActive {
		return fmt.Errorf("account %s: %w", accountID, ErrAccountInactive)
	}
	metrics.InsufficientFunds.Inc()
	return ErrInsufficientFunds
}

func (l *LedgerService) Credit(ctx context.Context, tx store.Tx, accountID string, amount int64, kind models.TransactionKind, ref models.Ref) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: credit amount must be positive", ErrValidation)
	}
	balance, err := l.accounts.Credit(ctx, tx, accountID, amount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("account %s: %w", accountID, ErrNotFound)
	}
	if err != nil {
		return 0, err
	}
	if err := l.append(ctx, tx, accountID, amount, balance, kind, ref); err != nil {
		return 0, err
	}
	return balance, nil
}

// Note appends a zero-amount informational row.
func (l *LedgerService) Note(ctx context.Context, tx store.Tx, accountID string, kind models.TransactionKind, ref models.Ref) error {
	account, err := l.accounts.GetForUpdate(ctx, tx, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("account %s: %w", accountID, ErrNotFound)
	}
	if err != nil {
		return err
	}
	return l.append(ctx, tx, accountID, 0, account.Balance, kind, ref)
}

// Payout hands the whole pot to the winner. Stakes were debited when they
// were locked, so only the credit side moves coins here.
func (l *LedgerService) Payout(ctx context.Context, tx store.Tx, winnerID, loserID string, pot int64, ref models.Ref) error {
	if winnerID == loserID {
		return fmt.Errorf("%w: winner and loser must differ", ErrValidation)
	}
	if _, err := l.Credit(ctx, tx, winnerID, pot, models.KindContestWin, ref); err != nil {
		return err
	}
	if err := l.Note(ctx, tx, loserID, models.KindContestLoss, ref); err != nil {
		return err
	}
	if err := l.accounts.RecordOutcome(ctx, tx, winnerID, loserID); err != nil {
		return err
	}
	if l.seizure != nil {
		return l.seizure.Seize(ctx, tx, winnerID, pot, ref)
	}
	return nil
}

// LockStakes debits stake from every account in ascending id order.
func (l *LedgerService) LockStakes(ctx context.Context, tx store.Tx, accountIDs []string, stake int64, ref models.Ref) error {
	ordered := append([]string(nil), accountIDs...)
	sort.Strings(ordered)
	for _, id := range ordered {
		if _, err := l.Debit(ctx, tx, id, stake, models.KindStakeLock, ref); err != nil {
			return fmt.Errorf("lock stake for %s: %w", id, err)
		}
	}
	return nil
}

func (l *LedgerService) GrantAllowance(ctx context.Context, accountID string, amount int64) (int64, error) {
	var balance int64
	err := l.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		balance, err = l.Credit(ctx, tx, accountID, amount, models.KindAllowance, models.Ref{})
		return err
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// Replay compares the stored balance with the sum of the account's ledger.
func (l *LedgerService) Replay(ctx context.Context, accountID string) (ReplayResult, error) {
	account, err := l.accounts.GetByID(ctx, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return ReplayResult{}, ErrNotFound
	}
	if err != nil {
		return ReplayResult{}, err
	}
	sum, err := l.ledger.SumByAccount(ctx, accountID)
	if err != nil {
		return ReplayResult{}, err
	}
	return ReplayResult{
		AccountID:  accountID,
		Stored:     account.Balance,
		Replayed:   sum,
		Consistent: sum == account.Balance,
	}, nil
}

func (l *LedgerService) Reconcile(ctx context.Context) ([]store.BalanceDrift, error) {
	return l.ledger.Reconcile(ctx)
}

// Touch records recent activity for the steal online check.
func (l *LedgerService) Touch(ctx context.Context, accountID string, now time.Time) error {
	return l.accounts.Touch(ctx, accountID, now)
}

func (l *LedgerService) Account(ctx context.Context, accountID string) (models.Account, error) {
	account, err := l.accounts.GetByID(ctx, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Account{}, ErrNotFound
	}
	return account, err
}

func (l *LedgerService) append(ctx context.Context, tx store.Tx, accountID string, amount, balanceAfter int64, kind models.TransactionKind, ref models.Ref) error {
	entry := models.Transaction{
		ID:           uuid.NewString(),
		AccountID:    accountID,
		Amount:       amount,
		BalanceAfter: balanceAfter,
		Kind:         kind,
	}
	if ref.Type != models.RefNone {
		refType := string(ref.Type)
		refID := ref.ID
		entry.RefType = &refType
		entry.RefID = &refID
	}
	if err := l.txs.Append(ctx, tx, entry); err != nil {
		return err
	}
	metrics.LedgerEntries.WithLabelValues(string(kind)).Inc()
	if amount < 0 {
		amount = -amount
	}
	metrics.LedgerCoins.WithLabelValues(string(kind)).Add(float64(amount))
	return nil
}
