package handlers

import (
	"bufio"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"wager/internal/models"
	"wager/internal/services"
)

type submitProofRequest struct {
	ArtifactRef     string          `json:"artifact_ref"`
	MediaKind       string          `json:"media_kind"`
	CaptureMetadata json.RawMessage `json:"capture_metadata"`
	ViewOnce        bool            `json:"view_once"`
}

func (h *Handler) SubmitProof(w http.ResponseWriter, r *http.Request) {
	accountID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req submitProofRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_payload")
		return
	}
	proof, err := retry(r.Context(), func() (models.Proof, error) {
		return h.contests.SubmitProof(r.Context(), services.SubmitProofRequest{
			ContestID:       chi.URLParam(r, "id"),
			ProverID:        accountID,
			ArtifactRef:     req.ArtifactRef,
			MediaKind:       req.MediaKind,
			CaptureMetadata: req.CaptureMetadata,
			ViewOnce:        req.ViewOnce,
		})
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, proof)
}

func (h *Handler) ViewProof(w http.ResponseWriter, r *http.Request) {
	accountID, ok := callerID(w, r)
	if !ok {
		return
	}
	grant, err := h.contests.ViewProof(r.Context(), chi.URLParam(r, "id"), accountID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	respondJSON(w, http.StatusOK, grant)
}

func (h *Handler) StartReview(w http.ResponseWriter, r *http.Request) {
	h.contestAction(w, r, func(contestID, accountID string) (models.Contest, error) {
		return h.contests.StartReview(r.Context(), contestID, accountID)
	})
}

type disputeRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) Dispute(w http.ResponseWriter, r *http.Request) {
	var req disputeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_payload")
		return
	}
	h.contestAction(w, r, func(contestID, accountID string) (models.Contest, error) {
		return h.contests.Dispute(r.Context(), contestID, accountID, req.Reason)
	})
}

type resolveRequest struct {
	ProofAccepted bool `json:"proof_accepted"`
}

func (h *Handler) ResolveContest(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_payload")
		return
	}
	h.contestAction(w, r, func(contestID, accountID string) (models.Contest, error) {
		return h.contests.Resolve(r.Context(), services.ResolveRequest{
			ContestID:     contestID,
			ResolverID:    accountID,
			ProofAccepted: req.ProofAccepted,
		})
	})
}

// AdminResolveContest settles a contest as a reviewer, typically a dispute.
func (h *Handler) AdminResolveContest(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_payload")
		return
	}
	h.contestAction(w, r, func(contestID, accountID string) (models.Contest, error) {
		return h.contests.Resolve(r.Context(), services.ResolveRequest{
			ContestID:     contestID,
			ResolverID:    accountID,
			ProofAccepted: req.ProofAccepted,
			Reviewer:      true,
		})
	})
}

func (h *Handler) Forfeit(w http.ResponseWriter, r *http.Request) {
	h.contestAction(w, r, func(contestID, accountID string) (models.Contest, error) {
		return h.contests.Forfeit(r.Context(), contestID, accountID)
	})
}

func (h *Handler) contestAction(w http.ResponseWriter, r *http.Request, fn func(contestID, accountID string) (models.Contest, error)) {
	accountID, ok := callerID(w, r)
	if !ok {
		return
	}
	contestID := chi.URLParam(r, "id")
	contest, err := retry(r.Context(), func() (models.Contest, error) {
		return fn(contestID, accountID)
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, contest)
}

// OpenProofGrant streams the artifact behind a view grant. The token is
// the only credential.
func (h *Handler) OpenProofGrant(w http.ResponseWriter, r *http.Request) {
	body, proof, err := h.proofs.OpenGrant(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	defer body.Close()

	reader := bufio.NewReader(body)
	head, _ := reader.Peek(512)
	w.Header().Set("Content-Type", http.DetectContentType(head))
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, reader); err != nil {
		h.logger.WarnContext(r.Context(), "proof stream interrupted", "proof_id", proof.ID, "error", err)
	}
}
