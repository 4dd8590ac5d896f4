package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

type Toucher interface {
	Touch(ctx context.Context, accountID string, now time.Time) error
}

// Activity stamps the caller's last_active_at so steals can tell whether a
// target is online. A failed stamp never fails the request.
func Activity(toucher Toucher, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if accountID, ok := AccountIDFromContext(r.Context()); ok {
				if err := toucher.Touch(r.Context(), accountID, time.Now().UTC()); err != nil {
					logger.Warn("touch failed", "account_id", accountID, "error", err)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
