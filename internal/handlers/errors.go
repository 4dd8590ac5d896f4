package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"wager/internal/services"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{services.ErrNotFound, http.StatusNotFound, "not_found"},
	{services.ErrNotAParticipant, http.StatusForbidden, "not_a_participant"},
	{services.ErrInvalidStateTransition, http.StatusConflict, "invalid_state_transition"},
	{services.ErrStaleState, http.StatusConflict, "stale_state"},
	{services.ErrInsufficientFunds, http.StatusBadRequest, "insufficient_funds"},
	{services.ErrAccountInactive, http.StatusForbidden, "account_inactive"},
	{services.ErrExpired, http.StatusGone, "expired"},
	{services.ErrUnavailable, http.StatusGone, "unavailable"},
	{services.ErrWindowClosed, http.StatusGone, "window_closed"},
	{services.ErrValidation, http.StatusUnprocessableEntity, "validation_failed"},
	{services.ErrBorrowDenied, http.StatusUnprocessableEntity, "borrow_denied"},
}

func statusFor(err error) (int, string) {
	for _, mapping := range errorMappings {
		if errors.Is(err, mapping.err) {
			return mapping.status, mapping.code
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	respondError(w, status, code)
}

// retry reruns a service call that lost a compare-and-swap.
func retry[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var result T
	err := services.RetryStale(ctx, func() error {
		var err error
		result, err = fn()
		return err
	})
	return result, err
}
