package metadatastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// APIKey is the relational counterpart of the API-key entity (§3.1). The
// raw key material never round-trips through this struct — only its bcrypt
// hash and an encrypted scopes blob are persisted; see internal/auth/keys.go
// for issuance and verification.
type APIKey struct {
	ID         int64        `db:"id" json:"id"`
	Name       string       `db:"name" json:"name"`
	KeyHash    string       `db:"key_hash" json:"-"`
	KeyPrefix  string       `db:"key_prefix" json:"key_prefix"`
	ScopesEnc  []byte       `db:"scopes_enc" json:"-"`
	RateLimit  int          `db:"rate_limit" json:"rate_limit"`
	IsActive   bool         `db:"is_active" json:"is_active"`
	ExpiresAt  sql.NullTime `db:"expires_at" json:"-"`
	LastUsed   sql.NullTime `db:"last_used" json:"-"`
	UsageCount int64        `db:"usage_count" json:"usage_count"`
	CreatedAt  time.Time    `db:"created_at" json:"created_at"`
}

// APIKeyRepo persists APIKey rows.
type APIKeyRepo struct {
	store *Store
}

// NewAPIKeyRepo constructs an APIKeyRepo bound to store.
func NewAPIKeyRepo(store *Store) *APIKeyRepo {
	return &APIKeyRepo{store: store}
}

// Insert creates a new API key row, returning the generated id.
func (r *APIKeyRepo) Insert(ctx context.Context, k *APIKey) (int64, error) {
	const q = `
		INSERT INTO api_keys (name, key_hash, key_prefix, scopes_enc, rate_limit, is_active, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`
	row := r.store.db.QueryRowxContext(ctx, q, k.Name, k.KeyHash, k.KeyPrefix, k.ScopesEnc, k.RateLimit, k.IsActive, k.ExpiresAt)
	if err := row.Scan(&k.ID, &k.CreatedAt); err != nil {
		return 0, fmt.Errorf("metadatastore: insert api key: %w", err)
	}
	return k.ID, nil
}

// GetByPrefix looks up candidate keys sharing a prefix; the caller compares
// the full bcrypt hash against each candidate since prefixes are not unique
// enough on their own to trust (§4.E).
func (r *APIKeyRepo) GetByPrefix(ctx context.Context, prefix string) ([]*APIKey, error) {
	const q = `SELECT * FROM api_keys WHERE key_prefix = $1 AND is_active = true`
	var rows []*APIKey
	if err := r.store.db.SelectContext(ctx, &rows, q, prefix); err != nil {
		return nil, fmt.Errorf("metadatastore: get api keys by prefix: %w", err)
	}
	return rows, nil
}

// ListActive returns every active key ordered by creation time, most
// recent first. Callers never see KeyHash or ScopesEnc (json:"-").
func (r *APIKeyRepo) ListActive(ctx context.Context) ([]*APIKey, error) {
	const q = `SELECT * FROM api_keys WHERE is_active = true ORDER BY created_at DESC`
	var rows []*APIKey
	if err := r.store.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, fmt.Errorf("metadatastore: list active api keys: %w", err)
	}
	return rows, nil
}

// Get fetches a single API key by id.
func (r *APIKeyRepo) Get(ctx context.Context, id int64) (*APIKey, error) {
	const q = `SELECT * FROM api_keys WHERE id = $1`
	var k APIKey
	if err := r.store.db.GetContext(ctx, &k, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &NotFoundError{Resource: "api_key", ID: fmt.Sprint(id)}
		}
		return nil, fmt.Errorf("metadatastore: get api key: %w", err)
	}
	return &k, nil
}

// RecordUsage bumps last_used and usage_count after a successful request.
func (r *APIKeyRepo) RecordUsage(ctx context.Context, id int64, at time.Time) error {
	const q = `UPDATE api_keys SET last_used = $2, usage_count = usage_count + 1 WHERE id = $1`
	if _, err := r.store.db.ExecContext(ctx, q, id, at); err != nil {
		return fmt.Errorf("metadatastore: record api key usage: %w", err)
	}
	return nil
}

// Revoke marks an API key inactive. Revocation is immediate: the next
// lookup excludes it regardless of expires_at.
func (r *APIKeyRepo) Revoke(ctx context.Context, id int64) error {
	res, err := r.store.db.ExecContext(ctx, `UPDATE api_keys SET is_active = false WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("metadatastore: revoke api key: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &NotFoundError{Resource: "api_key", ID: fmt.Sprint(id)}
	}
	return nil
}
