package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/osservatorio-istat/platform/internal/apperr"
	"github.com/osservatorio-istat/platform/internal/dataflow"
	"github.com/osservatorio-istat/platform/internal/ingestion"
	"github.com/osservatorio-istat/platform/internal/metadatastore"
	"github.com/osservatorio-istat/platform/internal/rules"
)

// AnalyzeDataflowRequest is the /api/analysis/dataflow body: a single
// already-known dataflow, categorized against the active rule set.
type AnalyzeDataflowRequest struct {
	ID          string `json:"id"`
	NameIT      string `json:"name_it"`
	NameEN      string `json:"name_en"`
	Description string `json:"description"`
	DataURL     string `json:"data_url"`
	ProbeAccess bool   `json:"probe_access"`
}

func (h *Handlers) activeRules(r *http.Request) ([]*rules.Rule, error) {
	active, err := h.rules.List(r.Context(), true)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "list active rules failed", err)
	}
	return active, nil
}

// AnalyzeDataflow categorizes one caller-supplied dataflow, optionally
// probing its data URL for Tableau-readiness.
func (h *Handlers) AnalyzeDataflow(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeDataflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, validationError("malformed request body", map[string]interface{}{"provided": err.Error()}))
		return
	}
	if req.ID == "" {
		writeError(w, r, validationError("id is required", nil))
		return
	}

	active, err := h.activeRules(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	df := ingestion.Dataflow{ID: req.ID, NameIT: req.NameIT, NameEN: req.NameEN, Description: req.Description}
	analyzed := dataflow.Categorize(df, active)
	h.recordCategory(analyzed.Category)

	if req.ProbeAccess && req.DataURL != "" {
		probe := dataflow.RunProbe(r.Context(), http.DefaultClient, req.ID, req.DataURL)
		analyzed.Probe = &probe
		analyzed.TableauReady = dataflow.TableauReady(probe)
		analyzed.ConnectionType = dataflow.ConnectionType(probe.SizeBytes)
		analyzed.RefreshFreq = dataflow.RefreshFrequency(analyzed.Category)
	}

	writeJSON(w, http.StatusOK, analyzed)
}

// AnalyzeDataflowUpload accepts a raw SDMX dataflow-list document, parses
// every entry, and categorizes each against the active rule set.
func (h *Handlers) AnalyzeDataflowUpload(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	parsed, err := dataflow.ParseDataflows(r.Body)
	if err != nil {
		writeError(w, r, validationError("could not parse uploaded document", map[string]interface{}{"provided": err.Error()}))
		return
	}

	active, err := h.activeRules(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	analyzed := make([]dataflow.AnalyzedDataflow, 0, len(parsed))
	for _, df := range parsed {
		one := dataflow.Categorize(df, active)
		h.recordCategory(one.Category)
		analyzed = append(analyzed, one)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"dataflows": analyzed, "count": len(analyzed)})
}

// AnalyzeDataflowBulkRequest is the /api/analysis/dataflow/bulk body: a
// batch of already-known dataflows, optionally probed concurrently.
type AnalyzeDataflowBulkRequest struct {
	Dataflows     []AnalyzeDataflowRequest `json:"dataflows"`
	IncludeTests  bool                     `json:"include_tests"`
	MaxConcurrent int                      `json:"max_concurrent"`
}

// AnalyzeDataflowBulk runs bounded-concurrency categorization (and,
// optionally, access probing) over a batch of dataflows, per §4.J /
// §5's concurrency model.
func (h *Handlers) AnalyzeDataflowBulk(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeDataflowBulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, validationError("malformed request body", map[string]interface{}{"provided": err.Error()}))
		return
	}
	if len(req.Dataflows) == 0 {
		writeError(w, r, validationError("dataflows must be non-empty", nil))
		return
	}

	active, err := h.activeRules(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	requests := make([]dataflow.BulkRequest, 0, len(req.Dataflows))
	for _, item := range req.Dataflows {
		requests = append(requests, dataflow.BulkRequest{
			Dataflow: ingestion.Dataflow{ID: item.ID, NameIT: item.NameIT, NameEN: item.NameEN, Description: item.Description},
			DataURL:  item.DataURL,
		})
	}

	results := dataflow.AnalyzeBulk(r.Context(), http.DefaultClient, requests, active, req.IncludeTests, req.MaxConcurrent)
	for _, result := range results {
		h.recordCategory(result.Category)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"dataflows": results, "count": len(results)})
}

// UpstreamDataflows lists dataflows as published by ISTAT's SDMX catalog,
// going through the resilient ingestion client rather than talking to the
// upstream directly.
func (h *Handlers) UpstreamDataflows(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := parseYearParam(raw, 0)
		if err != nil || n < 0 || n > 100 {
			writeError(w, r, validationError("limit must be an integer between 0 and 100", map[string]interface{}{"provided": raw}))
			return
		}
		limit = n
	}

	dataflows, source, err := h.ingestion.FetchDataflows(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"dataflows": dataflows, "count": len(dataflows), "source": source})
}

// UpstreamStatus reports the ingestion client's breaker/retry/rate-limiter
// state (§4.G's get_status()).
func (h *Handlers) UpstreamStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ingestion.GetStatus())
}

// UpstreamDataset fetches one dataset directly from the upstream SDMX
// endpoint, bypassing the local stores, per §4.H's `/api/istat/dataset/{id}`.
func (h *Handlers) UpstreamDataset(w http.ResponseWriter, r *http.Request) {
	datasetID := mux.Vars(r)["id"]
	if err := metadatastore.ValidateDatasetID(datasetID); err != nil {
		writeError(w, r, validationError(err.Error(), map[string]interface{}{
			"provided":             datasetID,
			"expected_format":      "3-50 alphanumeric characters with single _/- separators",
			"corrected_suggestion": metadatastore.SuggestDatasetID(datasetID),
		}))
		return
	}

	includeData := r.URL.Query().Get("include_data") == "true"
	observations, source, err := h.ingestion.FetchDataset(r.Context(), datasetID, includeData)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"dataset_id":   datasetID,
		"observations": observations,
		"count":        len(observations),
		"source":       source,
	})
}

// UpstreamSync pulls one dataset's observations from upstream (with quality
// validation) and writes them through into the local stores, per §4.G's
// sync_to_repository.
func (h *Handlers) UpstreamSync(w http.ResponseWriter, r *http.Request) {
	datasetID := mux.Vars(r)["id"]
	if err := metadatastore.ValidateDatasetID(datasetID); err != nil {
		writeError(w, r, validationError(err.Error(), map[string]interface{}{
			"provided":             datasetID,
			"expected_format":      "3-50 alphanumeric characters with single _/- separators",
			"corrected_suggestion": metadatastore.SuggestDatasetID(datasetID),
		}))
		return
	}

	observations, quality, source, err := h.ingestion.FetchWithQualityValidation(r.Context(), datasetID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.ingestion.SyncToRepository(r.Context(), datasetID, observations); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"dataset_id":     datasetID,
		"records_synced": len(observations),
		"quality":        quality,
		"source":         source,
	})
}
