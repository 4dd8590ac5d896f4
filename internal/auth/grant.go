package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// GrantClaims scope a single proof view to one viewer for a short time.
type GrantClaims struct {
	ProofID  string `json:"prf"`
	ViewerID string `json:"vwr"`
	Purpose  string `json:"pur"`
	jwt.RegisteredClaims
}

type GrantSigner struct {
	key []byte
	ttl time.Duration
}

func NewGrantSigner(secret string, ttl time.Duration) (*GrantSigner, error) {
	key, err := DeriveKey(secret, PurposeProofView)
	if err != nil {
		return nil, err
	}
	return &GrantSigner{key: key, ttl: ttl}, nil
}

func (g *GrantSigner) TTL() time.Duration {
	return g.ttl
}

// Issue returns a fresh token and its expiry. Every call yields a distinct
// token.
func (g *GrantSigner) Issue(proofID, viewerID string, now time.Time) (string, time.Time, error) {
	expires := now.Add(g.ttl)
	claims := GrantClaims{
		ProofID:  proofID,
		ViewerID: viewerID,
		Purpose:  PurposeProofView,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   viewerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.key)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expires, nil
}

func (g *GrantSigner) Verify(token string) (GrantClaims, error) {
	var claims GrantClaims
	if err := parse(token, g.key, &claims); err != nil {
		return GrantClaims{}, err
	}
	if claims.Purpose != PurposeProofView || claims.ProofID == "" {
		return GrantClaims{}, ErrWrongPurpose
	}
	return claims, nil
}
