package store

import (
	"context"
	"time"

	"wager/internal/models"
)

type AccountStore struct {
	db DB
}

const accountColumns = `id, balance, trust_score, wins, losses, streak, is_system, is_active, last_active_at, created_at`

func NewAccountStore(db DB) *AccountStore {
	return &AccountStore{db: db}
}

func (s *AccountStore) Create(ctx context.Context, tx Execer, account models.Account) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO accounts (id, balance, trust_score, is_system, is_active)
		VALUES ($1, 0, $2, $3, TRUE)
	`, account.ID, account.TrustScore, account.IsSystem)
	return err
}

func (s *AccountStore) GetByID(ctx context.Context, accountID string) (models.Account, error) {
	var row models.Account
	err := s.db.GetContext(ctx, &row, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, accountID)
	if err != nil {
		return models.Account{}, err
	}
	return row, nil
}

func (s *AccountStore) GetForUpdate(ctx context.Context, tx Getter, accountID string) (models.Account, error) {
	var row models.Account
	err := tx.GetContext(ctx, &row, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, accountID)
	if err != nil {
		return models.Account{}, err
	}
	return row, nil
}

// Debit subtracts amount only when the balance covers it. A failed guard
// surfaces as sql.ErrNoRows.
func (s *AccountStore) Debit(ctx context.Context, tx Getter, accountID string, amount int64) (int64, error) {
	var balance int64
	err := tx.GetContext(ctx, &balance, `
		UPDATE accounts
		SET balance = balance - $1, updated_at = NOW()
		WHERE id = $2 AND is_active AND balance >= $1
		RETURNING balance
	`, amount, accountID)
	return balance, err
}

// Collect is Debit without the is_active guard. It backs debits the system
// imposes, such as seizures and penalties, which deactivation must not block.
func (s *AccountStore) Collect(ctx context.Context, tx Getter, accountID string, amount int64) (int64, error) {
	var balance int64
	err := tx.GetContext(ctx, &balance, `
		UPDATE accounts
		SET balance = balance - $1, updated_at = NOW()
		WHERE id = $2 AND balance >= $1
		RETURNING balance
	`, amount, accountID)
	return balance, err
}

func (s *AccountStore) Credit(ctx context.Context, tx Getter, accountID string, amount int64) (int64, error) {
	var balance int64
	err := tx.GetContext(ctx, &balance, `
		UPDATE accounts
		SET balance = balance + $1, updated_at = NOW()
		WHERE id = $2
		RETURNING balance
	`, amount, accountID)
	return balance, err
}

func (s *AccountStore) AdjustTrust(ctx context.Context, tx Execer, accountID string, delta int) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET trust_score = GREATEST(0, LEAST(100, trust_score + $1)), updated_at = NOW()
		WHERE id = $2
	`, delta, accountID)
	return err
}

// RecordOutcome bumps win/loss totals. Streak is positive while winning and
// negative while losing.
func (s *AccountStore) RecordOutcome(ctx context.Context, tx Execer, winnerID, loserID string) error {
	if _, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET wins = wins + 1,
		    streak = CASE WHEN streak > 0 THEN streak + 1 ELSE 1 END,
		    updated_at = NOW()
		WHERE id = $1
	`, winnerID); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET losses = losses + 1,
		    streak = CASE WHEN streak < 0 THEN streak - 1 ELSE -1 END,
		    updated_at = NOW()
		WHERE id = $1
	`, loserID)
	return err
}

func (s *AccountStore) Touch(ctx context.Context, accountID string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE accounts
		SET last_active_at = GREATEST(COALESCE(last_active_at, $2), $2)
		WHERE id = $1
	`, accountID, now)
	return err
}

func (s *AccountStore) Deactivate(ctx context.Context, accountID string) (int64, error) {
	return rowsAffected(s.db.ExecContext(ctx, `
		UPDATE accounts SET is_active = FALSE, updated_at = NOW()
		WHERE id = $1 AND is_system = FALSE
	`, accountID))
}

// HouseAccount returns the oldest system account; it receives forfeits and
// penalties.
func (s *AccountStore) HouseAccount(ctx context.Context, tx Getter) (string, error) {
	var id string
	err := tx.GetContext(ctx, &id, `
		SELECT id
		FROM accounts
		WHERE is_system = TRUE
		ORDER BY created_at
		LIMIT 1
	`)
	return id, err
}

func (s *AccountStore) ListAll(ctx context.Context, limit, offset int) ([]models.Account, error) {
	var rows []models.Account
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+accountColumns+`
		FROM accounts
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
