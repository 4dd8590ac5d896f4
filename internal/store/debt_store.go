package store

import (
	"context"
	"time"

	"wager/internal/models"
)

type DebtStore struct {
	db DB
}

const debtColumns = `id, borrower_id, principal, interest_rate, accrued_interest, amount_repaid, status, repo_triggered,
	due_at, last_accrued_at, created_at`

func NewDebtStore(db DB) *DebtStore {
	return &DebtStore{db: db}
}

func (s *DebtStore) Create(ctx context.Context, tx Execer, debt models.Debt) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO debts (id, borrower_id, principal, interest_rate, status, due_at, last_accrued_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, debt.ID, debt.BorrowerID, debt.Principal, debt.InterestRate.String(), string(debt.Status), debt.DueAt, debt.LastAccruedAt, debt.CreatedAt)
	return err
}

func (s *DebtStore) GetByID(ctx context.Context, debtID string) (models.Debt, error) {
	var row models.Debt
	err := s.db.GetContext(ctx, &row, `SELECT `+debtColumns+` FROM debts WHERE id = $1`, debtID)
	if err != nil {
		return models.Debt{}, err
	}
	return row, nil
}

func (s *DebtStore) GetForUpdate(ctx context.Context, tx Getter, debtID string) (models.Debt, error) {
	var row models.Debt
	err := tx.GetContext(ctx, &row, `SELECT `+debtColumns+` FROM debts WHERE id = $1 FOR UPDATE`, debtID)
	if err != nil {
		return models.Debt{}, err
	}
	return row, nil
}

// Outstanding sums what the borrower still owes across open debts.
func (s *DebtStore) Outstanding(ctx context.Context, tx Getter, borrowerID string) (int64, error) {
	var total int64
	err := tx.GetContext(ctx, &total, `
		SELECT COALESCE(SUM(principal + accrued_interest - amount_repaid), 0)
		FROM debts
		WHERE borrower_id = $1 AND status IN ('active', 'defaulted')
	`, borrowerID)
	return total, err
}

// SaveAccrual is guarded on the previous accrual stamp so a concurrent
// accrual cannot double-charge.
func (s *DebtStore) SaveAccrual(ctx context.Context, tx Execer, debtID string, interest int64, previous, accruedAt time.Time) (int64, error) {
	return rowsAffected(tx.ExecContext(ctx, `
		UPDATE debts
		SET accrued_interest = accrued_interest + $2, last_accrued_at = $4
		WHERE id = $1 AND last_accrued_at = $3 AND status IN ('active', 'defaulted')
	`, debtID, interest, previous, accruedAt))
}

func (s *DebtStore) MarkDefaulted(ctx context.Context, tx Execer, debtID string) (int64, error) {
	return rowsAffected(tx.ExecContext(ctx, `
		UPDATE debts
		SET status = 'defaulted', repo_triggered = TRUE
		WHERE id = $1 AND status = 'active' AND repo_triggered = FALSE
	`, debtID))
}

// ApplyRepayment adds amount to amount_repaid without letting it pass what is
// owed. A fully repaid debt leaves repo.
func (s *DebtStore) ApplyRepayment(ctx context.Context, tx Execer, debtID string, amount int64) (int64, error) {
	return rowsAffected(tx.ExecContext(ctx, `
		UPDATE debts
		SET amount_repaid = amount_repaid + $2,
		    status = CASE WHEN principal + accrued_interest - amount_repaid - $2 = 0 THEN 'repaid' ELSE status END,
		    repo_triggered = CASE WHEN principal + accrued_interest - amount_repaid - $2 = 0 THEN FALSE ELSE repo_triggered END
		WHERE id = $1 AND status IN ('active', 'defaulted') AND principal + accrued_interest - amount_repaid >= $2
	`, debtID, amount))
}

// ListRepoTriggered returns the borrower's seizable debts, oldest first.
func (s *DebtStore) ListRepoTriggered(ctx context.Context, tx Selecter, borrowerID string) ([]models.Debt, error) {
	var rows []models.Debt
	err := tx.SelectContext(ctx, &rows, `
		SELECT `+debtColumns+`
		FROM debts
		WHERE borrower_id = $1 AND repo_triggered = TRUE AND status IN ('active', 'defaulted')
		ORDER BY created_at, id
		FOR UPDATE
	`, borrowerID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *DebtStore) ListOpen(ctx context.Context, limit int) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, `
		SELECT id
		FROM debts
		WHERE status IN ('active', 'defaulted')
		ORDER BY last_accrued_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *DebtStore) ListByBorrower(ctx context.Context, borrowerID string) ([]models.Debt, error) {
	var rows []models.Debt
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+debtColumns+`
		FROM debts
		WHERE borrower_id = $1
		ORDER BY created_at DESC
	`, borrowerID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
