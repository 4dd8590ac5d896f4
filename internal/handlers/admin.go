package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"

	"wager/internal/store"
	"wager/internal/validator"
)

type allowanceRequest struct {
	AccountID string `json:"account_id"`
	Amount    int64  `json:"amount"`
}

func (h *Handler) GrantAllowance(w http.ResponseWriter, r *http.Request) {
	var req allowanceRequest
	if err := decodeJSON(r, &req); err != nil || validator.ValidateAccountID(req.AccountID) != nil {
		respondError(w, http.StatusBadRequest, "invalid_payload")
		return
	}
	balance, err := h.ledger.GrantAllowance(r.Context(), req.AccountID, req.Amount)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"account_id": req.AccountID,
		"balance":    balance,
	})
}

func (h *Handler) RunSweep(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	changed, err := h.sweeps.Run(r.Context(), name)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"sweep":   name,
		"changed": changed,
	})
}

// Reconcile lists every account whose stored balance disagrees with its
// ledger. An empty list means the books balance.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	drifts, err := h.ledger.Reconcile(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	if drifts == nil {
		drifts = []store.BalanceDrift{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"consistent": len(drifts) == 0,
		"drifts":     drifts,
	})
}

func (h *Handler) ListTransitions(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	rows, err := h.transitions.List(r.Context(), limit, offset)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	if rows == nil {
		rows = []store.Transition{}
	}
	respondJSON(w, http.StatusOK, rows)
}

type promoteRequest struct {
	AccountID string `json:"account_id"`
}

func (h *Handler) PromoteAdmin(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.requireSuper(w, r)
	if !ok {
		return
	}
	var req promoteRequest
	if err := decodeJSON(r, &req); err != nil || validator.ValidateAccountID(req.AccountID) != nil {
		respondError(w, http.StatusBadRequest, "invalid_payload")
		return
	}
	if _, err := h.ledger.Account(r.Context(), req.AccountID); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	err := h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		if err := h.admin.CreateAdmin(r.Context(), tx, req.AccountID, false, &actorID); err != nil {
			return err
		}
		return h.audit(r, tx, actorID, req.AccountID, "promoted", nil)
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"status": "promoted"})
}

type grantRoleRequest struct {
	AccountID string `json:"account_id"`
	Role      string `json:"role"`
}

func (h *Handler) GrantRole(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.requireSuper(w, r)
	if !ok {
		return
	}
	var req grantRoleRequest
	if err := decodeJSON(r, &req); err != nil || req.AccountID == "" || validator.ValidateRole(req.Role, store.Roles) != nil {
		respondError(w, http.StatusBadRequest, "invalid_payload")
		return
	}
	isAdmin, isSuper, err := h.admin.IsAdmin(r.Context(), req.AccountID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	if !isAdmin {
		respondError(w, http.StatusBadRequest, "target_not_admin")
		return
	}
	if isSuper {
		respondError(w, http.StatusBadRequest, "target_is_super_admin")
		return
	}
	err = h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		if err := h.admin.GrantRole(r.Context(), tx, req.AccountID, req.Role); err != nil {
			return err
		}
		return h.audit(r, tx, actorID, req.AccountID, "role:"+req.Role, map[string]string{"role": req.Role})
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"status": "role_granted"})
}

func (h *Handler) requireSuper(w http.ResponseWriter, r *http.Request) (string, bool) {
	actorID, ok := callerID(w, r)
	if !ok {
		return "", false
	}
	_, isSuper, err := h.admin.IsAdmin(r.Context(), actorID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return "", false
	}
	if !isSuper {
		respondError(w, http.StatusForbidden, "super_admin_required")
		return "", false
	}
	return actorID, true
}

func (h *Handler) audit(r *http.Request, tx store.Execer, actorID, targetID, transition string, data any) error {
	encoded := "{}"
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return err
		}
		encoded = string(raw)
	}
	_, err := h.transitions.Record(r.Context(), tx, store.Transition{
		EntityType: "admin",
		EntityID:   targetID,
		Transition: transition,
		ActorID:    actorID,
		Data:       encoded,
	})
	return err
}
