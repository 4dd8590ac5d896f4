package db

import (
	"context"
	"database/sql"
	"errors"
	"math/rand"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var ErrRetryLimit = errors.New("transaction retry limit exceeded")

const maxAttempts = 5

type TxRunner interface {
	WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error
}

// SQLXTxRunner runs every unit of work in a SERIALIZABLE transaction. OnRetry,
// when set, is told about each serialization failure that is retried.
type SQLXTxRunner struct {
	db      *sqlx.DB
	OnRetry func(attempt int, err error)
}

func NewTxRunner(db *sqlx.DB) *SQLXTxRunner {
	return &SQLXTxRunner{db: db}
}

func (r *SQLXTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	return withTx(ctx, r.db, fn, r.OnRetry)
}

func Connect(databaseURL string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetMaxIdleConns(5)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func WithTx(ctx context.Context, db *sqlx.DB, fn func(*sqlx.Tx) error) error {
	return withTx(ctx, db, fn, nil)
}

func withTx(ctx context.Context, db *sqlx.DB, fn func(*sqlx.Tx) error, onRetry func(int, error)) error {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		tx, err := db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
		if err != nil {
			return err
		}
		err = fn(tx)
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		if attempt == maxAttempts {
			break
		}
		if onRetry != nil {
			onRetry(attempt, err)
		}
		if err := sleepWithBackoff(ctx, attempt); err != nil {
			return err
		}
	}
	return ErrRetryLimit
}

// IsRetryable reports serialization failures and deadlocks.
func IsRetryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "40001" || pqErr.Code == "40P01"
}

// IsUniqueViolation reports a 23505 from Postgres.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "23505"
}

func sleepWithBackoff(ctx context.Context, attempt int) error {
	base := 20 * time.Millisecond
	backoff := time.Duration(attempt*attempt) * base
	jitter := time.Duration(rand.Int63n(int64(10 * time.Millisecond)))
	timer := time.NewTimer(backoff + jitter)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
