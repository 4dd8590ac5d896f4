package handlers

import (
	"net/http"

	"wager/internal/models"
)

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	accountID, ok := callerID(w, r)
	if !ok {
		return
	}
	account, err := h.ledger.Account(r.Context(), accountID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, account)
}

func (h *Handler) MyTransactions(w http.ResponseWriter, r *http.Request) {
	accountID, ok := callerID(w, r)
	if !ok {
		return
	}
	limit, offset := pagination(r)
	rows, err := h.transactions.ListByAccount(r.Context(), accountID, r.URL.Query().Get("kind"), limit, offset)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	if rows == nil {
		rows = []models.Transaction{}
	}
	respondJSON(w, http.StatusOK, rows)
}

// SelfCheck replays the caller's ledger against the stored balance.
func (h *Handler) SelfCheck(w http.ResponseWriter, r *http.Request) {
	accountID, ok := callerID(w, r)
	if !ok {
		return
	}
	result, err := h.ledger.Replay(r.Context(), accountID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}
