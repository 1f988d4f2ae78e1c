package metadatastore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// Dataset is the relational Dataset entity (§3.1).
type Dataset struct {
	DatasetID     string                 `db:"dataset_id" json:"dataset_id"`
	Name          string                 `db:"name" json:"name"`
	Category      string                 `db:"category" json:"category"`
	Description   string                 `db:"description" json:"description"`
	Agency        string                 `db:"agency" json:"agency"`
	Priority      int                    `db:"priority" json:"priority"`
	Status        string                 `db:"status" json:"status"`
	MetadataJSON  []byte                 `db:"metadata" json:"-"`
	Metadata      map[string]interface{} `db:"-" json:"metadata"`
	RecordsSynced int64                  `db:"records_synced" json:"records_synced"`
	LastSyncAt    sql.NullTime           `db:"last_sync_at" json:"-"`
	CreatedAt     time.Time              `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time              `db:"updated_at" json:"updated_at"`
}

// DatasetStatus enumerates the allowed status values.
const (
	DatasetStatusActive     = "active"
	DatasetStatusInactive   = "inactive"
	DatasetStatusProcessing = "processing"
	DatasetStatusError      = "error"
)

var datasetIDPattern = regexp.MustCompile(`^[A-Za-z0-9]+([_-][A-Za-z0-9]+)*$`)

// ValidateDatasetID enforces §3.1's dataset_id format: alphanumeric with
// `_`/`-`, 3-50 chars, no leading/trailing/consecutive separators.
func ValidateDatasetID(id string) error {
	if len(id) < 3 || len(id) > 50 {
		return fmt.Errorf("dataset_id must be 3-50 characters, got %d", len(id))
	}
	if !datasetIDPattern.MatchString(id) {
		return fmt.Errorf("dataset_id %q has an invalid format", id)
	}
	return nil
}

// SuggestDatasetID cleans up a malformed candidate into the canonical
// shape: uppercase, spaces/invalid runes collapsed to underscores, leading/
// trailing/consecutive separators stripped.
func SuggestDatasetID(raw string) string {
	upper := strings.ToUpper(strings.TrimSpace(raw))
	var b strings.Builder
	lastSep := true // treat leading boundary as a separator to drop it
	for _, r := range upper {
		switch {
		case (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastSep = false
		case r == '_' || r == '-':
			if !lastSep {
				b.WriteRune(r)
				lastSep = true
			}
		default:
			if !lastSep {
				b.WriteRune('_')
				lastSep = true
			}
		}
	}
	out := strings.Trim(b.String(), "_-")
	if out == "" {
		out = "DATASET"
	}
	return out
}

// DatasetRepo persists Dataset rows.
type DatasetRepo struct {
	store *Store
}

// NewDatasetRepo constructs a DatasetRepo bound to store.
func NewDatasetRepo(store *Store) *DatasetRepo {
	return &DatasetRepo{store: store}
}

// Insert creates a new dataset row within an existing transaction.
func (r *DatasetRepo) Insert(ctx context.Context, tx *sqlx.Tx, d *Dataset) error {
	meta, err := json.Marshal(d.Metadata)
	if err != nil {
		return fmt.Errorf("metadatastore: marshal dataset metadata: %w", err)
	}
	if d.Status == "" {
		d.Status = DatasetStatusActive
	}

	const q = `
		INSERT INTO datasets (dataset_id, name, category, description, agency, priority, status, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`
	row := tx.QueryRowxContext(ctx, q, d.DatasetID, d.Name, d.Category, d.Description, d.Agency, d.Priority, d.Status, meta)
	if err := row.Scan(&d.CreatedAt, &d.UpdatedAt); err != nil {
		return asConstraintError("datasets_pkey", err)
	}
	return nil
}

// Get fetches a dataset by id, outside any transaction.
func (r *DatasetRepo) Get(ctx context.Context, datasetID string) (*Dataset, error) {
	const q = `SELECT * FROM datasets WHERE dataset_id = $1`
	var d Dataset
	if err := r.store.db.GetContext(ctx, &d, q, datasetID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &NotFoundError{Resource: "dataset", ID: datasetID}
		}
		return nil, fmt.Errorf("metadatastore: get dataset: %w", err)
	}
	_ = json.Unmarshal(d.MetadataJSON, &d.Metadata)
	return &d, nil
}

// List returns datasets, optionally filtered by category.
func (r *DatasetRepo) List(ctx context.Context, category string) ([]*Dataset, error) {
	q := `SELECT * FROM datasets`
	args := []interface{}{}
	if category != "" {
		q += ` WHERE category = $1`
		args = append(args, category)
	}
	q += ` ORDER BY dataset_id`

	var rows []*Dataset
	if err := r.store.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("metadatastore: list datasets: %w", err)
	}
	for _, d := range rows {
		_ = json.Unmarshal(d.MetadataJSON, &d.Metadata)
	}
	return rows, nil
}

// Delete removes a dataset row within an existing transaction. Per §3.2,
// callers must ensure observations are deleted in the same logical
// operation; this repo never cascades into the analytics store itself.
func (r *DatasetRepo) Delete(ctx context.Context, tx *sqlx.Tx, datasetID string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM datasets WHERE dataset_id = $1`, datasetID)
	if err != nil {
		return fmt.Errorf("metadatastore: delete dataset: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &NotFoundError{Resource: "dataset", ID: datasetID}
	}
	return nil
}

// UpdateSyncStats applies sync_to_repository's metadata-counter update
// (§4.G): records_synced, last_sync_at, updated_at.
func (r *DatasetRepo) UpdateSyncStats(ctx context.Context, tx *sqlx.Tx, datasetID string, recordsSynced int64, syncTime time.Time) error {
	const q = `
		UPDATE datasets
		SET records_synced = $2, last_sync_at = $3, updated_at = now()
		WHERE dataset_id = $1`
	res, err := tx.ExecContext(ctx, q, datasetID, recordsSynced, syncTime)
	if err != nil {
		return fmt.Errorf("metadatastore: update sync stats: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &NotFoundError{Resource: "dataset", ID: datasetID}
	}
	return nil
}
