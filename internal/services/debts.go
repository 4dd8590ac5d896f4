package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"wager/internal/config"
	"wager/internal/db"
	"wager/internal/models"
	"wager/internal/money"
	"wager/internal/store"
)

type DebtService struct {
	txRunner    db.TxRunner
	debts       DebtStore
	accounts    AccountStore
	outbox      OutboxStore
	transitions TransitionStore
	ledger      *LedgerService
	rules       config.DebtRules
}

func NewDebtService(txRunner db.TxRunner, stores Stores, ledger *LedgerService, rules config.DebtRules) *DebtService {
	return &DebtService{
		txRunner:    txRunner,
		debts:       stores.Debts,
		accounts:    stores.Accounts,
		outbox:      stores.Outbox,
		transitions: stores.Transitions,
		ledger:      ledger,
		rules:       rules,
	}
}

func (d *DebtService) Get(ctx context.Context, debtID string) (models.Debt, error) {
	debt, err := d.debts.GetByID(ctx, debtID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Debt{}, fmt.Errorf("debt %s: %w", debtID, ErrNotFound)
	}
	return debt, err
}

// CanBorrow reports whether borrowerID may take amount more credit.
func (d *DebtService) CanBorrow(ctx context.Context, borrowerID string, amount int64) error {
	return d.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		_, err := d.checkBorrow(ctx, tx, borrowerID, amount)
		return err
	})
}

func (d *DebtService) Borrow(ctx context.Context, borrowerID string, amount int64, now time.Time) (models.Debt, error) {
	var debt models.Debt
	err := d.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := d.checkBorrow(ctx, tx, borrowerID, amount); err != nil {
			return err
		}
		debt = models.Debt{
			ID:            uuid.NewString(),
			BorrowerID:    borrowerID,
			Principal:     amount,
			InterestRate:  d.rules.DailyRate,
			Status:        models.DebtActive,
			DueAt:         now.Add(d.rules.Term),
			LastAccruedAt: now,
			CreatedAt:     now,
		}
		if err := d.debts.Create(ctx, tx, debt); err != nil {
			return err
		}
		_, err := d.ledger.Credit(ctx, tx, borrowerID, amount, models.KindBorrow, models.Ref{Type: models.RefDebt, ID: debt.ID})
		return err
	})
	if err != nil {
		return models.Debt{}, err
	}
	return debt, nil
}

// AccrueInterest compounds one charge per full accrual interval elapsed since
// the last accrual and defaults the debt once it is past due.
func (d *DebtService) AccrueInterest(ctx context.Context, debtID string, now time.Time) (models.Debt, error) {
	var debt models.Debt
	err := d.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		debt, err = d.debts.GetForUpdate(ctx, tx, debtID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("debt %s: %w", debtID, ErrNotFound)
		}
		if err != nil {
			return err
		}
		if debt.Status == models.DebtRepaid {
			return nil
		}
		if err := d.accrue(ctx, tx, &debt, now); err != nil {
			return err
		}
		return d.markOverdue(ctx, tx, &debt, now)
	})
	if err != nil {
		return models.Debt{}, err
	}
	return debt, nil
}

func (d *DebtService) AccrueAllInterest(ctx context.Context, now time.Time) (int, error) {
	ids, err := d.debts.ListOpen(ctx, sweepBatch)
	if err != nil {
		return 0, err
	}
	processed := 0
	var errs []error
	for _, id := range ids {
		_, err := d.AccrueInterest(ctx, id, now)
		if errors.Is(err, ErrStaleState) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("accrue debt %s: %w", id, err))
			continue
		}
		processed++
	}
	return processed, errors.Join(errs...)
}

// Repay debits the borrower and applies the amount to the debt. Paying more
// than is owed is rejected.
func (d *DebtService) Repay(ctx context.Context, debtID, borrowerID string, amount int64) (models.Debt, error) {
	if amount <= 0 {
		return models.Debt{}, fmt.Errorf("%w: repayment must be positive", ErrValidation)
	}
	var debt models.Debt
	err := d.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		debt, err = d.debts.GetForUpdate(ctx, tx, debtID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("debt %s: %w", debtID, ErrNotFound)
		}
		if err != nil {
			return err
		}
		if debt.BorrowerID != borrowerID {
			return ErrNotAParticipant
		}
		if debt.Status == models.DebtRepaid {
			return fmt.Errorf("%w: debt already repaid", ErrInvalidStateTransition)
		}
		if amount > debt.Outstanding() {
			return fmt.Errorf("%w: repayment %d exceeds outstanding %d", ErrValidation, amount, debt.Outstanding())
		}
		if _, err := d.ledger.Debit(ctx, tx, borrowerID, amount, models.KindRepay, models.Ref{Type: models.RefDebt, ID: debtID}); err != nil {
			return err
		}
		if err := applyRepayment(ctx, tx, d.debts, debtID, amount); err != nil {
			return err
		}
		debt.AmountRepaid += amount
		if debt.Outstanding() == 0 {
			debt.Status = models.DebtRepaid
			debt.RepoTriggered = false
		}
		return nil
	})
	if err != nil {
		return models.Debt{}, err
	}
	return debt, nil
}

func (d *DebtService) checkBorrow(ctx context.Context, tx store.Getter, borrowerID string, amount int64) (models.Account, error) {
	if amount <= 0 {
		return models.Account{}, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	account, err := d.accounts.GetForUpdate(ctx, tx, borrowerID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Account{}, fmt.Errorf("account %s: %w", borrowerID, ErrNotFound)
	}
	if err != nil {
		return models.Account{}, err
	}
	if account.TrustScore < d.rules.MinTrustScore {
		return account, fmt.Errorf("%w: trust score %d below %d", ErrBorrowDenied, account.TrustScore, d.rules.MinTrustScore)
	}
	outstanding, err := d.debts.Outstanding(ctx, tx, borrowerID)
	if err != nil {
		return account, err
	}
	limit := d.rules.MaxDebtMultiple.Mul(decimal.NewFromInt(account.Balance))
	if decimal.NewFromInt(outstanding + amount).GreaterThan(limit) {
		return account, fmt.Errorf("%w: %d outstanding plus %d exceeds limit %s", ErrBorrowDenied, outstanding, amount, limit.StringFixed(0))
	}
	return account, nil
}

func (d *DebtService) accrue(ctx context.Context, tx store.Tx, debt *models.Debt, now time.Time) error {
	interval := d.rules.AccrualInterval
	if interval <= 0 || now.Sub(debt.LastAccruedAt) < interval {
		return nil
	}
	periods := int(now.Sub(debt.LastAccruedAt) / interval)
	owed := debt.Outstanding()
	var interest int64
	for i := 0; i < periods; i++ {
		charge := money.ApplyRate(owed, debt.InterestRate, money.Rounding(d.rules.Rounding))
		interest += charge
		owed += charge
	}
	accruedAt := debt.LastAccruedAt.Add(time.Duration(periods) * interval)
	updated, err := d.debts.SaveAccrual(ctx, tx, debt.ID, interest, debt.LastAccruedAt, accruedAt)
	if err != nil {
		return err
	}
	if updated == 0 {
		return ErrStaleState
	}
	debt.AccruedInterest += interest
	debt.LastAccruedAt = accruedAt
	if interest == 0 {
		return nil
	}
	return d.ledger.Note(ctx, tx, debt.BorrowerID, models.KindInterest, models.Ref{Type: models.RefDebt, ID: debt.ID})
}

// markOverdue defaults an active debt past its due date exactly once.
func (d *DebtService) markOverdue(ctx context.Context, tx store.Tx, debt *models.Debt, now time.Time) error {
	if debt.Status != models.DebtActive || now.Before(debt.DueAt) {
		return nil
	}
	updated, err := d.debts.MarkDefaulted(ctx, tx, debt.ID)
	if err != nil {
		return err
	}
	if updated == 0 {
		return nil
	}
	if err := recordTransition(ctx, tx, d.transitions, "debt", debt.ID, "defaulted", "system", map[string]int64{
		"outstanding": debt.Outstanding(),
	}); err != nil {
		return err
	}
	if err := d.accounts.AdjustTrust(ctx, tx, debt.BorrowerID, -d.rules.OverdueTrustPenalty); err != nil {
		return err
	}
	debt.Status = models.DebtDefaulted
	debt.RepoTriggered = true
	return emit(ctx, tx, d.outbox, EventDebtOverdue, []string{debt.BorrowerID}, DebtOverdue{
		DebtID:      debt.ID,
		Outstanding: debt.Outstanding(),
		DueAt:       debt.DueAt,
	})
}

func applyRepayment(ctx context.Context, tx store.Execer, debts DebtStore, debtID string, amount int64) error {
	updated, err := debts.ApplyRepayment(ctx, tx, debtID, amount)
	if err != nil {
		return err
	}
	if updated == 0 {
		return ErrStaleState
	}
	return nil
}

// RepoSeizurePolicy takes a fraction of a winner's payout while they have
// repo-triggered debts and applies it to those debts, oldest first.
type RepoSeizurePolicy struct {
	debts    DebtStore
	ledger   *LedgerService
	fraction decimal.Decimal
}

func NewRepoSeizurePolicy(debts DebtStore, ledger *LedgerService, rules config.DebtRules) *RepoSeizurePolicy {
	return &RepoSeizurePolicy{debts: debts, ledger: ledger, fraction: rules.SeizureFraction}
}

func (r *RepoSeizurePolicy) Seize(ctx context.Context, tx store.Tx, accountID string, winnings int64, _ models.Ref) error {
	debts, err := r.debts.ListRepoTriggered(ctx, tx, accountID)
	if err != nil {
		return err
	}
	remaining := money.ApplyRate(winnings, r.fraction, money.RoundFloor)
	for _, debt := range debts {
		if remaining <= 0 {
			break
		}
		amount := money.Min(remaining, debt.Outstanding())
		if amount <= 0 {
			continue
		}
		if _, err := r.ledger.Collect(ctx, tx, accountID, amount, models.KindRepoSeizure, models.Ref{Type: models.RefDebt, ID: debt.ID}); err != nil {
			return fmt.Errorf("seize for debt %s: %w", debt.ID, err)
		}
		if err := applyRepayment(ctx, tx, r.debts, debt.ID, amount); err != nil {
			return err
		}
		remaining -= amount
	}
	return nil
}
