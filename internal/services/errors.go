package services

import (
	"context"
	"errors"

	"wager/internal/metrics"
)

var (
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrAccountInactive        = errors.New("account inactive")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrNotAParticipant        = errors.New("not a participant")
	ErrStaleState             = errors.New("state changed concurrently")
	ErrExpired                = errors.New("expired")
	ErrUnavailable            = errors.New("proof unavailable")
	ErrValidation             = errors.New("validation failed")
	ErrWindowClosed           = errors.New("defense window closed")
	ErrNotFound               = errors.New("not found")
	ErrBorrowDenied           = errors.New("borrow not allowed")
)

const staleAttempts = 3

// RetryStale reruns fn while it loses a status compare-and-swap, up to three
// attempts in total.
func RetryStale(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= staleAttempts; attempt++ {
		err = fn()
		if !errors.Is(err, ErrStaleState) {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
		if attempt < staleAttempts {
			metrics.StaleRetries.Inc()
		}
	}
	return err
}
