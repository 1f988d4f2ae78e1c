// Package metadatastore is the transactional, row-oriented store for
// datasets, API keys, audit entries, rate-limit windows, and categorization
// rules (§4.A). It wraps sqlx/lib-pq the way the teacher's
// internal/persistence/postgres package wraps postgres for trade and regime
// data: context-scoped queries, a pinned-connection transaction scope, and
// typed errors instead of raw driver errors leaking upward.
package metadatastore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// Store is the metadata store handle. One Store is constructed at process
// start and passed explicitly to every repository and to the repository
// facade (internal/repository) — no package-level singleton.
type Store struct {
	db      *sqlx.DB
	timeout time.Duration
}

// Open connects to the metadata database and verifies it is reachable.
// Connection pooling is left to sqlx/database-sql defaults; each
// Transaction pins one pooled connection for its scope.
func Open(ctx context.Context, dsn string, timeout time.Duration) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("metadatastore: connect: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db, timeout: timeout}
	return s, nil
}

// NewFromDB wraps an already-open sqlx handle, for callers that manage
// their own connection lifecycle and for repository tests backed by a
// mock driver.
func NewFromDB(db *sqlx.DB, timeout time.Duration) *Store {
	return &Store{db: db, timeout: timeout}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

// Migrate applies the additive schema for every table this store owns.
// Migrations are idempotent: CREATE TABLE IF NOT EXISTS plus tolerated
// additive ALTER TABLE ADD COLUMN, per §4.A.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("metadatastore: migrate: %w", err)
		}
	}
	return nil
}

// Transaction runs fn with a pinned connection and serializable-equivalent
// isolation for writes to the same key, committing on success and rolling
// back on any error — including a panic, which is re-raised after rollback.
func (s *Store) Transaction(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("metadatastore: begin: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error().Err(rbErr).Msg("metadatastore: rollback failed")
		}
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("metadatastore: commit: %w", err)
	}
	return nil
}

// DB exposes the underlying handle for read-only queries outside a
// transaction (e.g. list endpoints).
func (s *Store) DB() *sqlx.DB { return s.db }

// Status reports basic store health for get_system_status().
func (s *Store) Status(ctx context.Context) (healthy bool, detail string) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		return false, err.Error()
	}
	return true, "ok"
}

// asConstraintError classifies a pq uniqueness violation (code 23505).
func asConstraintError(constraint string, err error) error {
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
		return &ConstraintError{Constraint: constraint, Err: err}
	}
	return err
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS datasets (
		dataset_id   TEXT PRIMARY KEY,
		name         TEXT NOT NULL,
		category     TEXT NOT NULL,
		description  TEXT NOT NULL DEFAULT '',
		agency       TEXT NOT NULL DEFAULT '',
		priority     INTEGER NOT NULL DEFAULT 5,
		status       TEXT NOT NULL DEFAULT 'active',
		metadata     JSONB NOT NULL DEFAULT '{}',
		records_synced BIGINT NOT NULL DEFAULT 0,
		last_sync_at TIMESTAMPTZ,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS api_keys (
		id           BIGSERIAL PRIMARY KEY,
		name         TEXT NOT NULL,
		key_hash     TEXT NOT NULL,
		key_prefix   TEXT NOT NULL,
		scopes_enc   BYTEA NOT NULL,
		rate_limit   INTEGER NOT NULL,
		is_active    BOOLEAN NOT NULL DEFAULT true,
		expires_at   TIMESTAMPTZ,
		last_used    TIMESTAMPTZ,
		usage_count  BIGINT NOT NULL DEFAULT 0,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_api_keys_prefix ON api_keys (key_prefix)`,
	`CREATE TABLE IF NOT EXISTS user_preferences (
		user_id      TEXT NOT NULL,
		key          TEXT NOT NULL,
		value_kind   TEXT NOT NULL,
		value        TEXT NOT NULL,
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (user_id, key)
	)`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		id               BIGSERIAL PRIMARY KEY,
		ts               TIMESTAMPTZ NOT NULL DEFAULT now(),
		user_id          TEXT NOT NULL DEFAULT '',
		action           TEXT NOT NULL,
		resource_type    TEXT NOT NULL,
		resource_id      TEXT NOT NULL DEFAULT '',
		details          JSONB NOT NULL DEFAULT '{}',
		success          BOOLEAN NOT NULL,
		error_message    TEXT NOT NULL DEFAULT '',
		execution_time_ms DOUBLE PRECISION NOT NULL DEFAULT 0,
		client_ip        TEXT NOT NULL DEFAULT '',
		user_agent       TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS rate_limits (
		api_key_id    BIGINT NOT NULL,
		endpoint      TEXT NOT NULL,
		window_start  TIMESTAMPTZ NOT NULL,
		window_end    TIMESTAMPTZ NOT NULL,
		request_count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (api_key_id, endpoint, window_start)
	)`,
	`CREATE TABLE IF NOT EXISTS categorization_rules (
		rule_id      TEXT PRIMARY KEY,
		category     TEXT NOT NULL,
		keywords     JSONB NOT NULL,
		priority     INTEGER NOT NULL,
		is_active    BOOLEAN NOT NULL DEFAULT true,
		description  TEXT NOT NULL DEFAULT '',
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS token_revocations (
		jti        TEXT PRIMARY KEY,
		expires_at TIMESTAMPTZ NOT NULL
	)`,
}
