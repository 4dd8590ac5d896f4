package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"wager/internal/middleware"
)

const maxBodyBytes = 1 << 20

var errInvalidPayload = errors.New("invalid payload")

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, code string) {
	respondJSON(w, status, map[string]string{"error": code})
}

// decodeJSON reads a single JSON object. An empty body decodes to the zero
// value so bodiless POSTs work.
func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil && !errors.Is(err, io.EOF) {
		return errInvalidPayload
	}
	return nil
}

func callerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	accountID, ok := middleware.AccountIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
	}
	return accountID, ok
}

func parseInt(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func pagination(r *http.Request) (limit, offset int) {
	query := r.URL.Query()
	limit = parseInt(query.Get("limit"), 50)
	if limit > 200 {
		limit = 200
	}
	page := parseInt(query.Get("page"), 1)
	return limit, (page - 1) * limit
}
