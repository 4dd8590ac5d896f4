package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"wager/internal/models"
)

type amountRequest struct {
	Amount int64 `json:"amount"`
}

func (h *Handler) Borrow(w http.ResponseWriter, r *http.Request) {
	accountID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_payload")
		return
	}
	debt, err := h.debts.Borrow(r.Context(), accountID, req.Amount, h.now())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, debt)
}

func (h *Handler) Repay(w http.ResponseWriter, r *http.Request) {
	accountID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_payload")
		return
	}
	debtID := chi.URLParam(r, "id")
	debt, err := retry(r.Context(), func() (models.Debt, error) {
		return h.debts.Repay(r.Context(), debtID, accountID, req.Amount)
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, debt)
}
