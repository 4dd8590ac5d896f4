package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"wager/internal/models"
	"wager/internal/services"
)

type voteRequest struct {
	Vote models.Vote `json:"vote"`
}

func (h *Handler) CastVote(w http.ResponseWriter, r *http.Request) {
	accountID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req voteRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_payload")
		return
	}
	propositionID := chi.URLParam(r, "id")
	result, err := retry(r.Context(), func() (services.MatchResult, error) {
		return h.matcher.CastVote(r.Context(), propositionID, accountID, req.Vote)
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

type createPropositionRequest struct {
	Text         string    `json:"text"`
	Stake        int64     `json:"stake"`
	Participants []string  `json:"participants"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func (h *Handler) AdminCreateProposition(w http.ResponseWriter, r *http.Request) {
	var req createPropositionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_payload")
		return
	}
	proposition, err := h.matcher.CreateProposition(r.Context(), services.CreatePropositionRequest{
		Text:         req.Text,
		Stake:        req.Stake,
		Participants: req.Participants,
		ExpiresAt:    req.ExpiresAt,
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, proposition)
}
