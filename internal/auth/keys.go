// Package auth implements API-key issuance/verification and bearer-token
// minting/verification (§4.E). Key material is hashed with bcrypt the way
// the corpus's credential-handling code does it — never compared or
// stored in the clear — and tokens are signed HS256 JWTs carrying scope
// claims the HTTP layer authorizes against.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/osservatorio-istat/platform/internal/apperr"
	"github.com/osservatorio-istat/platform/internal/metadatastore"
)

const keyNamespace = "osv_"

// IssuedKey is the one-time plaintext key material returned at issuance.
// The caller must display or transmit Plaintext immediately — it is never
// recoverable afterward.
type IssuedKey struct {
	Plaintext string
	Prefix    string
	Hash      string
}

// IssueKey generates a 32-byte URL-safe random suffix, prefixes it with
// the namespace, and bcrypt-hashes the full key for storage. The prefix
// used for lookup is the first 12 characters of the plaintext key,
// including the namespace — long enough to narrow a lookup without
// leaking meaningful entropy.
func IssueKey() (*IssuedKey, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("auth: generate key material: %w", err)
	}
	suffix := base64.RawURLEncoding.EncodeToString(buf)
	plaintext := keyNamespace + suffix

	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth: hash key: %w", err)
	}

	prefix := plaintext
	if len(prefix) > 12 {
		prefix = prefix[:12]
	}

	return &IssuedKey{Plaintext: plaintext, Prefix: prefix, Hash: string(hash)}, nil
}

// KeyPrefix derives the lookup prefix for an already-known plaintext key,
// used by VerifyKey to narrow the candidate set before a constant-time
// hash comparison.
func KeyPrefix(plaintext string) string {
	if len(plaintext) > 12 {
		return plaintext[:12]
	}
	return plaintext
}

// VerifyKey checks plaintext against the given candidate rows, which the
// caller has already narrowed by prefix, is_active, and expiry. It never
// reveals which specific check failed, per §4.E's "fails with
// Unauthorized" contract.
func VerifyKey(plaintext string, candidates []*metadatastore.APIKey, now time.Time) (*metadatastore.APIKey, error) {
	if !strings.HasPrefix(plaintext, keyNamespace) {
		return nil, apperr.Unauthorized("invalid API key")
	}
	for _, k := range candidates {
		if k.ExpiresAt.Valid && now.After(k.ExpiresAt.Time) {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(k.KeyHash), []byte(plaintext)) == nil {
			return k, nil
		}
	}
	return nil, apperr.Unauthorized("invalid API key")
}
