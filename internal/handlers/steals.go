package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"wager/internal/models"
	"wager/internal/services"
)

type stealRequest struct {
	TargetID string `json:"target_id"`
}

func (h *Handler) InitiateSteal(w http.ResponseWriter, r *http.Request) {
	accountID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req stealRequest
	if err := decodeJSON(r, &req); err != nil || req.TargetID == "" {
		respondError(w, http.StatusBadRequest, "invalid_payload")
		return
	}
	attempt, err := h.steals.InitiateSteal(r.Context(), accountID, req.TargetID, h.now())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, attempt)
}

type minigameRequest struct {
	Passed bool `json:"passed"`
}

func (h *Handler) CompleteMinigame(w http.ResponseWriter, r *http.Request) {
	var req minigameRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_payload")
		return
	}
	h.stealAction(w, r, func(stealID, accountID string) (models.StealAttempt, error) {
		return h.steals.CompleteMinigame(r.Context(), stealID, accountID, req.Passed, h.now())
	})
}

func (h *Handler) Defend(w http.ResponseWriter, r *http.Request) {
	h.stealAction(w, r, func(stealID, accountID string) (models.StealAttempt, error) {
		return h.steals.Defend(r.Context(), stealID, accountID, h.now())
	})
}

// ResolveSteal lets either side settle an attempt whose window has closed
// without waiting for the sweep.
func (h *Handler) ResolveSteal(w http.ResponseWriter, r *http.Request) {
	h.stealAction(w, r, func(stealID, accountID string) (models.StealAttempt, error) {
		attempt, err := h.steals.Get(r.Context(), stealID)
		if err != nil {
			return attempt, err
		}
		if attempt.AttackerID != accountID && attempt.TargetID != accountID {
			return models.StealAttempt{}, services.ErrNotAParticipant
		}
		return h.steals.ResolveSteal(r.Context(), stealID, h.now())
	})
}

func (h *Handler) stealAction(w http.ResponseWriter, r *http.Request, fn func(stealID, accountID string) (models.StealAttempt, error)) {
	accountID, ok := callerID(w, r)
	if !ok {
		return
	}
	stealID := chi.URLParam(r, "id")
	attempt, err := retry(r.Context(), func() (models.StealAttempt, error) {
		return fn(stealID, accountID)
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, attempt)
}
