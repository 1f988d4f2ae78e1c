package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/osservatorio-istat/platform/internal/apperr"
	"github.com/osservatorio-istat/platform/internal/metadatastore"
)

const (
	tokenIssuer   = "osservatorio-istat"
	tokenAudience = "osservatorio-api"

	// ScopeAdmin implies every other scope (§4.E).
	ScopeAdmin      = "admin"
	ScopeRead       = "read"
	ScopeWrite      = "write"
	ScopeAnalytics  = "analytics"
	ScopePowerBI    = "powerbi"
	ScopeTableau    = "tableau"
)

// Claims is the bearer-token payload shape (§4.E/§6.1).
type Claims struct {
	APIKeyID   int64  `json:"sub_id"`
	Scope      string `json:"scope"`
	APIKeyName string `json:"api_key_name"`
	jwt.RegisteredClaims
}

// Scopes splits the space-joined scope claim into a slice.
func (c *Claims) Scopes() []string {
	if c.Scope == "" {
		return nil
	}
	return strings.Fields(c.Scope)
}

// HasScope reports whether the token authorizes required, honoring
// admin's implies-all rule.
func (c *Claims) HasScope(required string) bool {
	return HasScope(c.Scopes(), required)
}

// HasScope reports whether scopes authorizes required, honoring admin's
// implies-all rule (§4.E). Shared by bearer-token claims and the decrypted
// scope list attached to a raw API-key request.
func HasScope(scopes []string, required string) bool {
	for _, s := range scopes {
		if s == ScopeAdmin || s == required {
			return true
		}
	}
	return false
}

// validScopes enumerates the allowed key scopes (§3.1).
var validScopes = map[string]bool{
	ScopeRead:      true,
	ScopeWrite:     true,
	ScopeAdmin:     true,
	ScopeAnalytics: true,
	ScopePowerBI:   true,
	ScopeTableau:   true,
}

// ValidScope reports whether scope is one of the enumerated key scopes.
func ValidScope(scope string) bool {
	return validScopes[scope]
}

// TokenMinter mints and verifies bearer tokens and tracks revocations.
// Revoked jtis are held in an in-process set for the fast path; the
// persistent token_revocations table survives process restarts.
type TokenMinter struct {
	secret []byte
	ttl    time.Duration

	revocations *metadatastore.RevocationRepo

	mu       sync.RWMutex
	revoked  map[string]time.Time // jti -> original expiry, mirrors the persistent table
}

// NewTokenMinter builds a minter signing with secret and minting tokens
// with the given lifetime.
func NewTokenMinter(secret []byte, ttl time.Duration, revocations *metadatastore.RevocationRepo) *TokenMinter {
	return &TokenMinter{
		secret:      secret,
		ttl:         ttl,
		revocations: revocations,
		revoked:     make(map[string]time.Time),
	}
}

// Mint issues a signed token for the given API key and scopes.
func (m *TokenMinter) Mint(apiKeyID int64, apiKeyName string, scopes []string) (string, error) {
	now := time.Now()
	claims := &Claims{
		APIKeyID:   apiKeyID,
		Scope:      strings.Join(scopes, " "),
		APIKeyName: apiKeyName,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Audience:  jwt.ClaimStrings{tokenAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Verify checks a token's signature, expiry, issuer, and revocation
// status. Audience is intentionally not enforced — see the decision
// recorded for this in the grounding ledger. A revoked or expired jti,
// an invalid signature, or an unrecognized issuer all collapse to the
// same Unauthorized error, never distinguishing which check failed.
func (m *TokenMinter) Verify(ctx context.Context, rawToken string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(rawToken, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithIssuer(tokenIssuer))
	if err != nil || !token.Valid {
		return nil, apperr.Unauthorized("invalid or expired token")
	}

	revoked, err := m.isRevoked(ctx, claims.ID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "revocation check failed", err)
	}
	if revoked {
		return nil, apperr.Unauthorized("invalid or expired token")
	}

	return claims, nil
}

// Revoke marks jti revoked until expiresAt, in both the in-process set
// and the persistent table.
func (m *TokenMinter) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	m.mu.Lock()
	m.revoked[jti] = expiresAt
	m.mu.Unlock()

	if m.revocations == nil {
		return nil
	}
	if err := m.revocations.Revoke(ctx, jti, expiresAt); err != nil {
		return fmt.Errorf("auth: persist revocation: %w", err)
	}
	return nil
}

func (m *TokenMinter) isRevoked(ctx context.Context, jti string) (bool, error) {
	m.mu.RLock()
	_, inMemory := m.revoked[jti]
	m.mu.RUnlock()
	if inMemory {
		return true, nil
	}

	if m.revocations == nil {
		return false, nil
	}
	return m.revocations.IsRevoked(ctx, jti)
}
