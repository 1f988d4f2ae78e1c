package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/osservatorio-istat/platform/internal/apperr"
	"github.com/osservatorio-istat/platform/internal/rules"
)

// RuleRequest is the /api/analysis/rules create/update body (§4.I).
type RuleRequest struct {
	Category    string   `json:"category"`
	Keywords    []string `json:"keywords"`
	Priority    int      `json:"priority"`
	IsActive    bool     `json:"is_active"`
	Description string   `json:"description"`
}

// ListRules returns every categorization rule, ordered by descending
// priority with rule_id as the tiebreaker (§4.I).
func (h *Handlers) ListRules(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active_only") == "true"
	list, err := h.rules.List(r.Context(), activeOnly)
	if err != nil {
		writeError(w, r, apperr.Wrap(apperr.KindInternal, "list rules failed", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"rules": list, "count": len(list)})
}

// CreateRule inserts a new rule with a server-generated, immutable
// rule_id (§4.I: "rule_id is opaque and immutable after creation").
func (h *Handlers) CreateRule(w http.ResponseWriter, r *http.Request) {
	var req RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, validationError("malformed request body", map[string]interface{}{"provided": err.Error()}))
		return
	}
	if req.Category == "" || len(req.Keywords) == 0 || req.Priority <= 0 {
		writeError(w, r, validationError("category, keywords, and a positive priority are required", map[string]interface{}{"provided": req}))
		return
	}

	rule := &rules.Rule{
		RuleID:      uuid.NewString(),
		Category:    req.Category,
		Keywords:    req.Keywords,
		Priority:    req.Priority,
		IsActive:    req.IsActive,
		Description: req.Description,
	}
	if err := h.rules.Insert(r.Context(), rule); err != nil {
		writeError(w, r, apperr.Wrap(apperr.KindInternal, "create rule failed", err))
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

// UpdateRule replaces a rule's mutable fields. rule_id itself is taken
// only from the path and never overwritten.
func (h *Handlers) UpdateRule(w http.ResponseWriter, r *http.Request) {
	ruleID := mux.Vars(r)["rule_id"]

	var req RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, validationError("malformed request body", map[string]interface{}{"provided": err.Error()}))
		return
	}
	if req.Category == "" || len(req.Keywords) == 0 || req.Priority <= 0 {
		writeError(w, r, validationError("category, keywords, and a positive priority are required", map[string]interface{}{"provided": req}))
		return
	}

	rule := &rules.Rule{
		RuleID:      ruleID,
		Category:    req.Category,
		Keywords:    req.Keywords,
		Priority:    req.Priority,
		IsActive:    req.IsActive,
		Description: req.Description,
	}
	if err := h.rules.Update(r.Context(), rule); err != nil {
		writeError(w, r, ruleError(err))
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// DeleteRule hard-deletes a rule (§4.I: "Deletion is hard").
func (h *Handlers) DeleteRule(w http.ResponseWriter, r *http.Request) {
	ruleID := mux.Vars(r)["rule_id"]
	if err := h.rules.Delete(r.Context(), ruleID); err != nil {
		writeError(w, r, ruleError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func ruleError(err error) error {
	var notFound *rules.NotFoundError
	if errors.As(err, &notFound) {
		return apperr.NotFound("rule", notFound.RuleID)
	}
	return apperr.Wrap(apperr.KindInternal, "rule operation failed", err)
}
