// Package rules persists the keyword categorization rules consumed by the
// dataflow analysis service (§4.I). CRUD shape is grounded on the teacher's
// internal/persistence/postgres/regime_repo.go: a single sqlx-backed repo
// over one table, scan helpers, and JSON columns for list-typed fields.
package rules

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/osservatorio-istat/platform/internal/metadatastore"
)

// Category enumerates the allowed categorization buckets (§3.1).
const (
	CategoryPopolazione = "popolazione"
	CategoryEconomia    = "economia"
	CategoryLavoro      = "lavoro"
	CategoryTerritorio  = "territorio"
	CategoryIstruzione  = "istruzione"
	CategorySalute      = "salute"
	CategoryAltri       = "altri"
)

// Rule is the CategorizationRule entity.
type Rule struct {
	RuleID       string   `db:"rule_id" json:"rule_id"`
	Category     string   `db:"category" json:"category"`
	KeywordsJSON []byte   `db:"keywords" json:"-"`
	Keywords     []string `db:"-" json:"keywords"`
	Priority     int      `db:"priority" json:"priority"`
	IsActive     bool     `db:"is_active" json:"is_active"`
	Description  string   `db:"description" json:"description,omitempty"`
}

// NotFoundError reports a missing rule_id.
type NotFoundError struct{ RuleID string }

func (e *NotFoundError) Error() string { return fmt.Sprintf("rules: rule %q not found", e.RuleID) }

// NormalizeKeywords lowercases, trims, and drops empty/duplicate tokens, per
// §4.I's "keywords are normalized to lowercase trimmed non-empty tokens".
func NormalizeKeywords(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, k := range raw {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

// Repo persists Rule rows via the shared metadata store.
type Repo struct {
	store *metadatastore.Store
}

// NewRepo constructs a Repo bound to store.
func NewRepo(store *metadatastore.Store) *Repo {
	return &Repo{store: store}
}

// Insert creates a rule. rule_id is opaque and immutable once created.
func (r *Repo) Insert(ctx context.Context, rule *Rule) error {
	rule.Keywords = NormalizeKeywords(rule.Keywords)
	keywords, err := json.Marshal(rule.Keywords)
	if err != nil {
		return fmt.Errorf("rules: marshal keywords: %w", err)
	}

	const q = `
		INSERT INTO categorization_rules (rule_id, category, keywords, priority, is_active, description)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err = r.store.DB().ExecContext(ctx, q, rule.RuleID, rule.Category, keywords, rule.Priority, rule.IsActive, rule.Description)
	if err != nil {
		return fmt.Errorf("rules: insert: %w", err)
	}
	return nil
}

const ruleColumns = `rule_id, category, keywords, priority, is_active, description`

// Get fetches one rule by id.
func (r *Repo) Get(ctx context.Context, ruleID string) (*Rule, error) {
	const q = `SELECT ` + ruleColumns + ` FROM categorization_rules WHERE rule_id = $1`
	var rule Rule
	if err := r.store.DB().GetContext(ctx, &rule, q, ruleID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &NotFoundError{RuleID: ruleID}
		}
		return nil, fmt.Errorf("rules: get: %w", err)
	}
	_ = json.Unmarshal(rule.KeywordsJSON, &rule.Keywords)
	return &rule, nil
}

// List returns every rule (only active ones when activeOnly is true)
// ordered by descending priority, ties
// broken by ascending rule_id, matching §4.J step 2's matching order.
func (r *Repo) List(ctx context.Context, activeOnly bool) ([]*Rule, error) {
	q := `SELECT ` + ruleColumns + ` FROM categorization_rules`
	if activeOnly {
		q += ` WHERE is_active = true`
	}

	var rows []*Rule
	if err := r.store.DB().SelectContext(ctx, &rows, q); err != nil {
		return nil, fmt.Errorf("rules: list: %w", err)
	}
	for _, rule := range rows {
		_ = json.Unmarshal(rule.KeywordsJSON, &rule.Keywords)
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Priority != rows[j].Priority {
			return rows[i].Priority > rows[j].Priority
		}
		return rows[i].RuleID < rows[j].RuleID
	})
	return rows, nil
}

// Update replaces a rule's mutable fields (everything but rule_id).
func (r *Repo) Update(ctx context.Context, rule *Rule) error {
	rule.Keywords = NormalizeKeywords(rule.Keywords)
	keywords, err := json.Marshal(rule.Keywords)
	if err != nil {
		return fmt.Errorf("rules: marshal keywords: %w", err)
	}

	const q = `
		UPDATE categorization_rules
		SET category = $2, keywords = $3, priority = $4, is_active = $5, description = $6
		WHERE rule_id = $1`
	res, err := r.store.DB().ExecContext(ctx, q, rule.RuleID, rule.Category, keywords, rule.Priority, rule.IsActive, rule.Description)
	if err != nil {
		return fmt.Errorf("rules: update: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &NotFoundError{RuleID: rule.RuleID}
	}
	return nil
}

// Delete hard-deletes a rule.
func (r *Repo) Delete(ctx context.Context, ruleID string) error {
	res, err := r.store.DB().ExecContext(ctx, `DELETE FROM categorization_rules WHERE rule_id = $1`, ruleID)
	if err != nil {
		return fmt.Errorf("rules: delete: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &NotFoundError{RuleID: ruleID}
	}
	return nil
}
