package metadatastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UserPreference is the relational counterpart of the user-preference
// entity (§3.1): a single typed value keyed by (user_id, key).
type UserPreference struct {
	UserID    string    `db:"user_id"`
	Key       string    `db:"key"`
	ValueKind string    `db:"value_kind"`
	Value     string    `db:"value"`
	UpdatedAt time.Time `db:"updated_at"`
}

// PreferenceRepo persists UserPreference rows.
type PreferenceRepo struct {
	store *Store
}

// NewPreferenceRepo constructs a PreferenceRepo bound to store.
func NewPreferenceRepo(store *Store) *PreferenceRepo {
	return &PreferenceRepo{store: store}
}

// Set upserts a preference value.
func (r *PreferenceRepo) Set(ctx context.Context, p *UserPreference) error {
	const q = `
		INSERT INTO user_preferences (user_id, key, value_kind, value)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, key) DO UPDATE
		SET value_kind = EXCLUDED.value_kind, value = EXCLUDED.value, updated_at = now()
		RETURNING updated_at`
	row := r.store.db.QueryRowxContext(ctx, q, p.UserID, p.Key, p.ValueKind, p.Value)
	if err := row.Scan(&p.UpdatedAt); err != nil {
		return fmt.Errorf("metadatastore: set user preference: %w", err)
	}
	return nil
}

// Get fetches one preference value.
func (r *PreferenceRepo) Get(ctx context.Context, userID, key string) (*UserPreference, error) {
	const q = `SELECT * FROM user_preferences WHERE user_id = $1 AND key = $2`
	var p UserPreference
	if err := r.store.db.GetContext(ctx, &p, q, userID, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &NotFoundError{Resource: "user_preference", ID: userID + "/" + key}
		}
		return nil, fmt.Errorf("metadatastore: get user preference: %w", err)
	}
	return &p, nil
}

// List returns every preference set for a user.
func (r *PreferenceRepo) List(ctx context.Context, userID string) ([]*UserPreference, error) {
	const q = `SELECT * FROM user_preferences WHERE user_id = $1 ORDER BY key`
	var rows []*UserPreference
	if err := r.store.db.SelectContext(ctx, &rows, q, userID); err != nil {
		return nil, fmt.Errorf("metadatastore: list user preferences: %w", err)
	}
	return rows, nil
}

// Delete removes a single preference value.
func (r *PreferenceRepo) Delete(ctx context.Context, userID, key string) error {
	res, err := r.store.db.ExecContext(ctx, `DELETE FROM user_preferences WHERE user_id = $1 AND key = $2`, userID, key)
	if err != nil {
		return fmt.Errorf("metadatastore: delete user preference: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &NotFoundError{Resource: "user_preference", ID: userID + "/" + key}
	}
	return nil
}
