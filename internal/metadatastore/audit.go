package metadatastore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// AuditEntry is the append-only audit log entity (§3.1). AuditRepo stores
// entries as given. Writes made through repository.Repository.Audit pass
// Details through internal/auditlog's redactor first; other callers, such
// as the HTTP audit middleware, insert through AuditRepo directly.
type AuditEntry struct {
	ID              int64                  `db:"id" json:"id"`
	Timestamp       time.Time              `db:"ts" json:"timestamp"`
	UserID          string                 `db:"user_id" json:"user_id"`
	Action          string                 `db:"action" json:"action"`
	ResourceType    string                 `db:"resource_type" json:"resource_type"`
	ResourceID      string                 `db:"resource_id" json:"resource_id"`
	DetailsJSON     []byte                 `db:"details" json:"-"`
	Details         map[string]interface{} `db:"-" json:"details"`
	Success         bool                   `db:"success" json:"success"`
	ErrorMessage    string                 `db:"error_message" json:"error_message,omitempty"`
	ExecutionTimeMs float64                `db:"execution_time_ms" json:"execution_time_ms"`
	ClientIP        string                 `db:"client_ip" json:"client_ip"`
	UserAgent       string                 `db:"user_agent" json:"user_agent"`
}

// AuditRepo appends AuditEntry rows. Entries are never updated or deleted
// by the application; retention is an operator concern outside this store.
type AuditRepo struct {
	store *Store
}

// NewAuditRepo constructs an AuditRepo bound to store.
func NewAuditRepo(store *Store) *AuditRepo {
	return &AuditRepo{store: store}
}

// Insert appends an entry, optionally inside the same transaction as the
// write it documents so both commit or roll back together.
func (r *AuditRepo) Insert(ctx context.Context, tx *sqlx.Tx, e *AuditEntry) error {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return fmt.Errorf("metadatastore: marshal audit details: %w", err)
	}

	const q = `
		INSERT INTO audit_log (user_id, action, resource_type, resource_id, details, success, error_message, execution_time_ms, client_ip, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, ts`

	args := []interface{}{e.UserID, e.Action, e.ResourceType, e.ResourceID, details, e.Success, e.ErrorMessage, e.ExecutionTimeMs, e.ClientIP, e.UserAgent}

	var row *sqlx.Row
	if tx != nil {
		row = tx.QueryRowxContext(ctx, q, args...)
	} else {
		row = r.store.db.QueryRowxContext(ctx, q, args...)
	}
	if err := row.Scan(&e.ID, &e.Timestamp); err != nil {
		return fmt.Errorf("metadatastore: insert audit entry: %w", err)
	}
	return nil
}

// List returns recent audit entries, most recent first, bounded by limit.
func (r *AuditRepo) List(ctx context.Context, userID string, limit int) ([]*AuditEntry, error) {
	q := `SELECT * FROM audit_log`
	args := []interface{}{}
	if userID != "" {
		q += ` WHERE user_id = $1`
		args = append(args, userID)
	}
	q += fmt.Sprintf(` ORDER BY ts DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	var rows []*AuditEntry
	if err := r.store.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("metadatastore: list audit entries: %w", err)
	}
	for _, e := range rows {
		_ = json.Unmarshal(e.DetailsJSON, &e.Details)
	}
	return rows, nil
}
