package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/osservatorio-istat/platform/internal/apperr"
	"github.com/osservatorio-istat/platform/internal/auth"
	"github.com/osservatorio-istat/platform/internal/ingestion"
	"github.com/osservatorio-istat/platform/internal/metadatastore"
	"github.com/osservatorio-istat/platform/internal/metrics"
	"github.com/osservatorio-istat/platform/internal/ratelimit"
	"github.com/osservatorio-istat/platform/internal/repository"
	"github.com/osservatorio-istat/platform/internal/rules"
)

// Handlers owns every route's business logic, holding just the
// dependencies it was constructed with (§4.H).
type Handlers struct {
	repo       *repository.Repository
	apiKeys    *metadatastore.APIKeyRepo
	rateLimits *metadatastore.RateLimitRepo
	audit      *metadatastore.AuditRepo
	minter     *auth.TokenMinter
	scopeCrypt *auth.ScopeCipher
	limiter    *ratelimit.Limiter
	rules      *rules.Repo
	ingestion  *ingestion.Client
	metrics    *metrics.Registry
}

// NewHandlers wires deps into a Handlers instance.
func NewHandlers(deps Deps) *Handlers {
	return &Handlers{
		repo:       deps.Repo,
		apiKeys:    deps.APIKeys,
		rateLimits: deps.RateLimits,
		audit:      deps.Audit,
		minter:     deps.Minter,
		scopeCrypt: deps.ScopeCrypt,
		limiter:    deps.Limiter,
		rules:      deps.Rules,
		ingestion:  deps.Ingestion,
		metrics:    deps.Metrics,
	}
}

// recordCategory reports one categorization outcome, if a metrics
// registry is wired.
func (h *Handlers) recordCategory(category string) {
	if h.metrics != nil {
		h.metrics.RecordDataflowCategory(category)
	}
}

// Health reports liveness plus per-component status: both stores, the
// query cache, and the ingestion client's resilience state (§4.H).
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	status := h.repo.GetSystemStatus(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"metadata":  status.Metadata,
		"analytics": status.Analytics,
		"cache":     status.Cache,
		"ingestion": h.ingestion.GetStatus(),
		"timestamp": status.Timestamp,
	})
}

// NotFound handles every unmatched route.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, apperr.NotFound("route", r.URL.Path))
}

// parsePagination validates the page/page_size query parameters per §4.H's
// pagination contract: page >= 1, 1 <= page_size <= 1000, out-of-range is a
// 422 rather than a silently clamped value.
func parsePagination(q map[string][]string) (page, pageSize int, err error) {
	page, pageSize = 1, 100
	if raw := firstOf(q, "page"); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil || page < 1 {
			return 0, 0, validationErr("page must be an integer >= 1", raw)
		}
	}
	if raw := firstOf(q, "page_size"); raw != "" {
		pageSize, err = strconv.Atoi(raw)
		if err != nil || pageSize < 1 || pageSize > 1000 {
			return 0, 0, validationErr("page_size must be an integer between 1 and 1000", raw)
		}
	}
	return page, pageSize, nil
}

func firstOf(q map[string][]string, key string) string {
	if v, ok := q[key]; ok && len(v) > 0 {
		return v[0]
	}
	return ""
}

func validationErr(message, provided string) error {
	return &unprocessableEntity{err: validationError(message, map[string]interface{}{"provided": provided})}
}

func paginate(views []*repository.DatasetView, page, pageSize int) ([]*repository.DatasetView, int) {
	total := len(views)
	start := (page - 1) * pageSize
	if start >= total {
		return []*repository.DatasetView{}, total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return views[start:end], total
}

// ListDatasets supports ?category=, ?with_analytics=, and ?page=/?page_size=
// filters.
func (h *Handlers) ListDatasets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	category := q.Get("category")

	var withAnalytics *bool
	if raw := q.Get("with_analytics"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, r, validationError("with_analytics must be a boolean", map[string]interface{}{"provided": raw}))
			return
		}
		withAnalytics = &v
	}

	page, pageSize, err := parsePagination(q)
	if err != nil {
		writeError(w, r, err)
		return
	}

	views, err := h.repo.ListDatasetsComplete(r.Context(), category, withAnalytics)
	if err != nil {
		writeError(w, r, err)
		return
	}

	paged, total := paginate(views, page, pageSize)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"datasets":  paged,
		"count":     len(paged),
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// GetDataset returns the joined metadata+analytics view for one dataset.
func (h *Handlers) GetDataset(w http.ResponseWriter, r *http.Request) {
	datasetID := mux.Vars(r)["id"]
	if err := metadatastore.ValidateDatasetID(datasetID); err != nil {
		writeError(w, r, validationError(err.Error(), map[string]interface{}{
			"provided":             datasetID,
			"expected_format":      "3-50 alphanumeric characters with single _/- separators",
			"corrected_suggestion": metadatastore.SuggestDatasetID(datasetID),
		}))
		return
	}

	view, err := h.repo.GetDatasetComplete(r.Context(), datasetID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if r.URL.Query().Get("include_data") == "true" {
		obs, err := h.repo.GetDatasetTimeSeries(r.Context(), datasetID, "", "", 0, 0)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"dataset":      view,
			"observations": obs,
			"count":        len(obs),
		})
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// GetTimeSeries returns an ordered observation sequence filtered by the
// optional territory/measure/start_year/end_year query parameters.
func (h *Handlers) GetTimeSeries(w http.ResponseWriter, r *http.Request) {
	datasetID := mux.Vars(r)["id"]
	q := r.URL.Query()

	startYear, err := parseYearParam(q.Get("start_year"), 0)
	if err != nil {
		writeError(w, r, validationError("start_year must be an integer", map[string]interface{}{"provided": q.Get("start_year")}))
		return
	}
	endYear, err := parseYearParam(q.Get("end_year"), 9999)
	if err != nil {
		writeError(w, r, validationError("end_year must be an integer", map[string]interface{}{"provided": q.Get("end_year")}))
		return
	}

	obs, err := h.repo.GetDatasetTimeSeries(r.Context(), datasetID, q.Get("territory"), q.Get("measure"), startYear, endYear)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"dataset_id": datasetID, "observations": obs, "count": len(obs)})
}

func parseYearParam(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
