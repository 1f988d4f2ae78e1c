package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/osservatorio-istat/platform/internal/apperr"
	"github.com/osservatorio-istat/platform/internal/auth"
	"github.com/osservatorio-istat/platform/internal/metadatastore"
)

// CreateTokenRequest is the /auth/token request body: issue a fresh API
// key, encrypt its scopes, and mint a bearer token for it in one call.
type CreateTokenRequest struct {
	Name          string   `json:"name"`
	Scopes        []string `json:"scopes"`
	RateLimit     int      `json:"rate_limit"`
	ExpiresInDays int      `json:"expires_in_days"`
}

// CreateToken issues a new API key plus a signed bearer token for it,
// per §4.E/§4.H. Only a caller holding the admin scope reaches this
// handler (enforced upstream by requireScope).
func (h *Handlers) CreateToken(w http.ResponseWriter, r *http.Request) {
	var req CreateTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, validationError("malformed request body", map[string]interface{}{"provided": err.Error()}))
		return
	}
	if req.Name == "" || len(req.Scopes) == 0 {
		writeError(w, r, validationError("name and scopes are required", map[string]interface{}{
			"provided": req,
			"examples": []string{`{"name":"dashboard-reader","scopes":["read"]}`},
		}))
		return
	}
	for _, scope := range req.Scopes {
		if !auth.ValidScope(scope) {
			writeError(w, r, validationError("unknown scope", map[string]interface{}{
				"provided": scope,
				"expected_format": "one of read, write, admin, analytics, powerbi, tableau",
			}))
			return
		}
	}
	if req.RateLimit <= 0 {
		req.RateLimit = 1000
	}

	issued, err := auth.IssueKey()
	if err != nil {
		writeError(w, r, apperr.Wrap(apperr.KindInternal, "issue api key failed", err))
		return
	}

	scopesEnc, err := h.scopeCrypt.Encrypt(req.Scopes)
	if err != nil {
		writeError(w, r, apperr.Wrap(apperr.KindInternal, "encrypt scopes failed", err))
		return
	}

	key := &metadatastore.APIKey{
		Name:      req.Name,
		KeyHash:   issued.Hash,
		KeyPrefix: issued.Prefix,
		ScopesEnc: scopesEnc,
		RateLimit: req.RateLimit,
		IsActive:  true,
	}
	if req.ExpiresInDays > 0 {
		key.ExpiresAt.Valid = true
		key.ExpiresAt.Time = time.Now().AddDate(0, 0, req.ExpiresInDays)
	}

	id, err := h.apiKeys.Insert(r.Context(), key)
	if err != nil {
		writeError(w, r, apperr.Wrap(apperr.KindInternal, "persist api key failed", err))
		return
	}

	token, err := h.minter.Mint(id, req.Name, req.Scopes)
	if err != nil {
		writeError(w, r, apperr.Wrap(apperr.KindInternal, "mint token failed", err))
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"api_key_id": id,
		"api_key":    issued.Plaintext,
		"token":      token,
		"scopes":     req.Scopes,
		"rate_limit": key.RateLimit,
	})
}

// ListKeys returns every active API key's metadata (revoked keys are not
// listed), never the hash or plaintext,
// per §4.H's "list keys (no plaintext)" contract.
func (h *Handlers) ListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.apiKeys.ListActive(r.Context())
	if err != nil {
		writeError(w, r, apperr.Wrap(apperr.KindInternal, "list api keys failed", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"keys": keys, "count": len(keys)})
}

// UsageAnalytics surfaces recent audit activity for operational review.
func (h *Handlers) UsageAnalytics(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := parseYearParam(raw, limit); err == nil && n > 0 {
			limit = n
		}
	}

	entries, err := h.audit.List(r.Context(), "", limit)
	if err != nil {
		writeError(w, r, apperr.Wrap(apperr.KindInternal, "list audit entries failed", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries, "count": len(entries)})
}
