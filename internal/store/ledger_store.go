package store

import "context"

// LedgerStore answers questions about the ledger as a whole: replayed sums and
// drift between the balance projection and the transaction log.
type LedgerStore struct {
	db DB
}

type BalanceDrift struct {
	AccountID         string `db:"id" json:"account_id"`
	StoredBalance     int64  `db:"stored_balance" json:"stored_balance"`
	CalculatedBalance int64  `db:"calculated_balance" json:"calculated_balance"`
	Difference        int64  `db:"difference" json:"difference"`
	IsSystem          bool   `db:"is_system" json:"is_system"`
}

func NewLedgerStore(db DB) *LedgerStore {
	return &LedgerStore{db: db}
}

func (s *LedgerStore) SumByAccount(ctx context.Context, accountID string) (int64, error) {
	var sum int64
	err := s.db.GetContext(ctx, &sum, `
		SELECT COALESCE(SUM(amount), 0)
		FROM transactions
		WHERE account_id = $1
	`, accountID)
	return sum, err
}

// Reconcile lists every account whose stored balance disagrees with the
// replayed transaction log.
func (s *LedgerStore) Reconcile(ctx context.Context) ([]BalanceDrift, error) {
	var rows []BalanceDrift
	err := s.db.SelectContext(ctx, &rows, `
		SELECT a.id,
		       a.balance AS stored_balance,
		       COALESCE(SUM(t.amount), 0) AS calculated_balance,
		       (a.balance - COALESCE(SUM(t.amount), 0)) AS difference,
		       a.is_system
		FROM accounts a
		LEFT JOIN transactions t ON t.account_id = a.id
		GROUP BY a.id, a.balance, a.is_system
		HAVING a.balance <> COALESCE(SUM(t.amount), 0)
		ORDER BY a.id
	`)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
