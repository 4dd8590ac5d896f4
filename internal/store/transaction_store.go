package store

import (
	"context"
	"fmt"

	"wager/internal/models"
)

type TransactionStore struct {
	db DB
}

func NewTransactionStore(db DB) *TransactionStore {
	return &TransactionStore{db: db}
}

// Append writes one ledger row; seq is assigned by the database.
func (s *TransactionStore) Append(ctx context.Context, tx Execer, entry models.Transaction) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (id, account_id, amount, balance_after, kind, ref_type, ref_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, entry.ID, entry.AccountID, entry.Amount, entry.BalanceAfter, string(entry.Kind), entry.RefType, entry.RefID)
	return err
}

func (s *TransactionStore) ListByAccount(ctx context.Context, accountID, kind string, limit, offset int) ([]models.Transaction, error) {
	var rows []models.Transaction
	query := `
		SELECT id, seq, account_id, amount, balance_after, kind, ref_type, ref_id, created_at
		FROM transactions
		WHERE account_id = $1
	`
	args := []any{accountID}
	param := 2
	if kind != "" {
		query += " AND kind = $2"
		args = append(args, kind)
		param = 3
	}
	query += " ORDER BY seq DESC LIMIT $" + itoa(param) + " OFFSET $" + itoa(param+1)
	args = append(args, limit, offset)
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *TransactionStore) ListByRef(ctx context.Context, refType, refID string) ([]models.Transaction, error) {
	var rows []models.Transaction
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, seq, account_id, amount, balance_after, kind, ref_type, ref_id, created_at
		FROM transactions
		WHERE ref_type = $1 AND ref_id = $2
		ORDER BY seq
	`, refType, refID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func itoa(value int) string {
	return fmt.Sprintf("%d", value)
}
