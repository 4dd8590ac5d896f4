package handlers

import (
	"net/http"

	"wager/internal/auth"
	"wager/internal/middleware"
	"wager/internal/websocket"
)

// WSEvents streams the caller's domain events. Browsers cannot set headers
// on a websocket handshake, so the token may also come as ?token=.
func (h *Handler) WSEvents(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token, _ = middleware.BearerToken(r)
	}
	if token == "" {
		respondError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	claims, err := auth.ParseToken(h.cfg.JWTSecret, token)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid_token")
		return
	}
	if err := h.ledger.Touch(r.Context(), claims.UserID, h.now()); err != nil {
		h.logger.WarnContext(r.Context(), "touch failed", "account_id", claims.UserID, "error", err)
	}
	websocket.ServeWS(w, r, websocket.Upgrader(h.cfg.Origins()), h.hub, claims.UserID)
}
