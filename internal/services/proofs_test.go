package services

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"wager/internal/models"
)

func TestViewOnceProofIsDestroyedAfterFirstView(t *testing.T) {
	h := newHarness(t)
	h.account("a", 100)
	h.account("b", 100)
	contest := h.contest("a", "b", 10)
	proof := h.submitProof(contest, "contests/once.jpg", true)
	require.Equal(t, 1, proof.MaxViews)

	grant, err := h.proofs.GrantView(h.ctx, proof.ID, "b")
	require.NoError(t, err)
	require.True(t, grant.Destroyed)
	require.Zero(t, grant.ViewsRemaining)
	require.Equal(t, "/proof-grants/"+grant.Token, grant.URL)

	_, err = h.proofs.GrantView(h.ctx, proof.ID, "b")
	require.ErrorIs(t, err, ErrUnavailable)

	stored := h.store.snapshot().proofs[proof.ID]
	require.Equal(t, 1, stored.ViewCount)
	require.NotNil(t, stored.FirstViewedAt)
}

func TestEveryGrantIsFresh(t *testing.T) {
	h := newHarness(t)
	h.account("a", 100)
	h.account("b", 100)
	contest := h.contest("a", "b", 10)
	proof := h.submitProof(contest, "contests/many.jpg", false)

	first, err := h.proofs.GrantView(h.ctx, proof.ID, "b")
	require.NoError(t, err)
	second, err := h.proofs.GrantView(h.ctx, proof.ID, "b")
	require.NoError(t, err)

	require.NotEqual(t, first.Token, second.Token)
	require.False(t, second.Destroyed)
	require.Equal(t, 2, h.store.snapshot().proofs[proof.ID].ViewCount)
}

func TestExpiredProofIsUnavailable(t *testing.T) {
	h := newHarness(t)
	h.account("a", 100)
	h.account("b", 100)
	contest := h.contest("a", "b", 10)
	proof := h.submitProof(contest, "contests/old.jpg", false)

	h.clock.Advance(time.Duration(h.policy.Proof.ViewDurationHours) * time.Hour)
	_, err := h.proofs.GrantView(h.ctx, proof.ID, "b")
	require.ErrorIs(t, err, ErrUnavailable)
	require.Zero(t, h.store.snapshot().proofs[proof.ID].ViewCount)
}

func TestNewProofsMustBeUploaded(t *testing.T) {
	h := newHarness(t)
	h.account("a", 100)
	h.account("b", 100)
	contest := h.contest("a", "b", 10)

	for _, ref := range []string{"https://cdn.example.com/p/1.jpg", "contests/never-uploaded.jpg"} {
		_, err := h.contests.SubmitProof(h.ctx, SubmitProofRequest{ContestID: contest.ID, ProverID: "a", ArtifactRef: ref, MediaKind: "image"})
		require.ErrorIs(t, err, ErrValidation, ref)
	}
	require.Empty(t, h.store.snapshot().proofs)

	stored, err := h.contests.Get(h.ctx, contest.ID)
	require.NoError(t, err)
	require.Equal(t, models.ContestPendingProof, stored.Status)
}

func TestStoredLegacyURLReturnedUnchanged(t *testing.T) {
	h := newHarness(t)
	proof := models.Proof{
		ID:        "legacy-1",
		ContestID: "contest-legacy",
		RefKind:   models.RefLegacyURL,
		Ref:       "https://cdn.example.com/p/1.jpg",
		MaxViews:  h.policy.Proof.UnlimitedViews,
		ExpiresAt: h.clock.Now().Add(time.Hour),
	}
	h.store.mu.Lock()
	h.store.state.proofs[proof.ID] = proof
	h.store.mu.Unlock()

	grant, err := h.proofs.GrantView(h.ctx, proof.ID, "b")
	require.NoError(t, err)
	require.True(t, grant.Legacy)
	require.Empty(t, grant.Token)
	require.Equal(t, "https://cdn.example.com/p/1.jpg", grant.URL)
}

func TestOpenGrantReadsArtifact(t *testing.T) {
	h := newHarness(t)
	h.account("a", 100)
	h.account("b", 100)
	h.artifacts.put("contests/bytes.jpg", []byte("jpeg-bytes"))
	contest := h.contest("a", "b", 10)
	proof := h.submitProof(contest, "contests/bytes.jpg", false)

	grant, err := h.proofs.GrantView(h.ctx, proof.ID, "b")
	require.NoError(t, err)

	body, opened, err := h.proofs.OpenGrant(h.ctx, grant.Token)
	require.NoError(t, err)
	defer body.Close()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	require.Equal(t, "jpeg-bytes", string(data))
	require.Equal(t, proof.ID, opened.ID)

	_, _, err = h.proofs.OpenGrant(h.ctx, "not-a-token")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestDestroyIsCompareAndSwap(t *testing.T) {
	h := newHarness(t)
	h.account("a", 100)
	h.account("b", 100)
	contest := h.contest("a", "b", 10)
	proof := h.submitProof(contest, "contests/x.jpg", false)

	destroyed, err := h.proofs.Destroy(h.ctx, proof.ID)
	require.NoError(t, err)
	require.True(t, destroyed)
	destroyed, err = h.proofs.Destroy(h.ctx, proof.ID)
	require.NoError(t, err)
	require.False(t, destroyed)

	_, err = h.proofs.GrantView(h.ctx, proof.ID, "b")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestCleanupExpiredProofsDestroysThenPurges(t *testing.T) {
	h := newHarness(t)
	h.account("a", 100)
	h.account("b", 100)
	h.artifacts.put("contests/sweep.jpg", []byte("x"))
	contest := h.contest("a", "b", 10)
	proof := h.submitProof(contest, "contests/sweep.jpg", false)

	now := h.clock.Advance(time.Duration(h.policy.Proof.ViewDurationHours) * time.Hour)
	changed, err := h.proofs.CleanupExpiredProofs(h.ctx, now)
	require.NoError(t, err)
	require.Equal(t, 1, changed)
	require.True(t, h.store.snapshot().proofs[proof.ID].Destroyed)
	require.True(t, h.artifacts.has("contests/sweep.jpg"))

	now = h.clock.Advance(2 * time.Minute)
	changed, err = h.proofs.CleanupExpiredProofs(h.ctx, now)
	require.NoError(t, err)
	require.Equal(t, 1, changed)
	require.True(t, h.store.snapshot().proofs[proof.ID].ArtifactPurged)
	require.False(t, h.artifacts.has("contests/sweep.jpg"))

	changed, err = h.proofs.CleanupExpiredProofs(h.ctx, now)
	require.NoError(t, err)
	require.Zero(t, changed)
}
