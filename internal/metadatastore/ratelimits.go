package metadatastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// RateLimitWindow is the relational counterpart of the sliding-window
// counter entity (§3.1, §4.F). internal/ratelimit owns the in-process
// limit decision; the HTTP rate-limit middleware also records each admitted
// request here via Increment. The limiter never reads this table back, so
// counts are not restored after a restart or shared between instances.
type RateLimitWindow struct {
	APIKeyID     int64     `db:"api_key_id"`
	Endpoint     string    `db:"endpoint"`
	WindowStart  time.Time `db:"window_start"`
	WindowEnd    time.Time `db:"window_end"`
	RequestCount int       `db:"request_count"`
}

// RateLimitRepo persists RateLimitWindow rows.
type RateLimitRepo struct {
	store *Store
}

// NewRateLimitRepo constructs a RateLimitRepo bound to store.
func NewRateLimitRepo(store *Store) *RateLimitRepo {
	return &RateLimitRepo{store: store}
}

// Increment upserts the window for (api_key_id, endpoint, window_start),
// incrementing request_count. A fresh window_start starts the row at 1.
func (r *RateLimitRepo) Increment(ctx context.Context, apiKeyID int64, endpoint string, windowStart, windowEnd time.Time) (int, error) {
	const q = `
		INSERT INTO rate_limits (api_key_id, endpoint, window_start, window_end, request_count)
		VALUES ($1, $2, $3, $4, 1)
		ON CONFLICT (api_key_id, endpoint, window_start)
		DO UPDATE SET request_count = rate_limits.request_count + 1
		RETURNING request_count`
	var count int
	row := r.store.db.QueryRowxContext(ctx, q, apiKeyID, endpoint, windowStart, windowEnd)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("metadatastore: increment rate limit window: %w", err)
	}
	return count, nil
}

// Get returns the current count for a window, or zero if none exists yet.
func (r *RateLimitRepo) Get(ctx context.Context, apiKeyID int64, endpoint string, windowStart time.Time) (int, error) {
	const q = `SELECT request_count FROM rate_limits WHERE api_key_id = $1 AND endpoint = $2 AND window_start = $3`
	var count int
	err := r.store.db.GetContext(ctx, &count, q, apiKeyID, endpoint, windowStart)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("metadatastore: get rate limit window: %w", err)
	}
	return count, nil
}

// Prune deletes windows that ended before olderThan, keeping the table from
// growing unbounded. The sliding-window limiter does not call it.
func (r *RateLimitRepo) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := r.store.db.ExecContext(ctx, `DELETE FROM rate_limits WHERE window_end < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("metadatastore: prune rate limit windows: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
