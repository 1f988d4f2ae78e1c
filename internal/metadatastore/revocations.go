package metadatastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// RevocationRepo persists revoked bearer-token jtis (§4.E, §6.1). A jti
// remains recorded only until its original expiry — past that point the
// token could never have verified anyway, so Prune deletes such rows
// whenever it is called.
type RevocationRepo struct {
	store *Store
}

// NewRevocationRepo constructs a RevocationRepo bound to store.
func NewRevocationRepo(store *Store) *RevocationRepo {
	return &RevocationRepo{store: store}
}

// Revoke records a jti as revoked until its token's natural expiry.
func (r *RevocationRepo) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	const q = `
		INSERT INTO token_revocations (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING`
	if _, err := r.store.db.ExecContext(ctx, q, jti, expiresAt); err != nil {
		return fmt.Errorf("metadatastore: revoke token: %w", err)
	}
	return nil
}

// IsRevoked reports whether jti has been revoked.
func (r *RevocationRepo) IsRevoked(ctx context.Context, jti string) (bool, error) {
	const q = `SELECT 1 FROM token_revocations WHERE jti = $1`
	var dummy int
	err := r.store.db.GetContext(ctx, &dummy, q, jti)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("metadatastore: check token revocation: %w", err)
	}
	return true, nil
}

// Prune deletes revocation rows whose underlying token has already expired.
func (r *RevocationRepo) Prune(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.store.db.ExecContext(ctx, `DELETE FROM token_revocations WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("metadatastore: prune token revocations: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
