package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/osservatorio-istat/platform/internal/apperr"
	"github.com/osservatorio-istat/platform/internal/odata"
)

// ODataServiceDocument serves the mandatory OData v4 service document.
func (h *Handlers) ODataServiceDocument(w http.ResponseWriter, r *http.Request) {
	baseURL := fmt.Sprintf("%s://%s", schemeOf(r), r.Host)
	writeJSON(w, http.StatusOK, odata.ServiceDocument(baseURL))
}

// ODataMetadata serves the mandatory CSDL $metadata document as XML,
// the one response on this surface that isn't JSON (§6.1).
func (h *Handlers) ODataMetadata(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(odata.MetadataXML()))
}

func schemeOf(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

// toMaps round-trips v through JSON to get a []map[string]interface{}
// odata.Apply can filter/sort/select/paginate generically.
func toMaps(v interface{}) ([]map[string]interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var rows []map[string]interface{}
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func writeODataCollection(w http.ResponseWriter, r *http.Request, entitySet string, rows []map[string]interface{}, total int, opts odata.QueryOptions) {
	resp := map[string]interface{}{
		"@odata.context": fmt.Sprintf("%s://%s/odata/$metadata#%s", schemeOf(r), r.Host, entitySet),
		"value":          rows,
	}
	if opts.Count {
		resp["@odata.count"] = total
	}
	writeJSON(w, http.StatusOK, resp)
}

// ODataDatasets serves the Datasets entity set.
func (h *Handlers) ODataDatasets(w http.ResponseWriter, r *http.Request) {
	opts, err := odata.ParseQueryOptions(r.URL.Query())
	if err != nil {
		writeError(w, r, validationError(err.Error(), nil))
		return
	}

	views, err := h.repo.ListDatasetsComplete(r.Context(), "", nil)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rows, err := toMaps(views)
	if err != nil {
		writeError(w, r, apperr.Wrap(apperr.KindInternal, "marshal datasets failed", err))
		return
	}

	page, total := odata.Apply(rows, opts)
	writeODataCollection(w, r, "Datasets", page, total, opts)
}

// ODataObservations serves the Observations entity set. §6.2 requires a
// top-level `DatasetId eq '...'` filter; its absence is a 400, not an
// unbounded table scan.
func (h *Handlers) ODataObservations(w http.ResponseWriter, r *http.Request) {
	opts, err := odata.ParseQueryOptions(r.URL.Query())
	if err != nil {
		writeError(w, r, validationError(err.Error(), nil))
		return
	}

	datasetID, ok := odata.FindEquals(opts.Filter, "DatasetId")
	if !ok {
		writeError(w, r, validationError(
			"Observations requires a top-level $filter=DatasetId eq '...'",
			map[string]interface{}{"provided": opts.Filter, "examples": []string{"$filter=DatasetId eq 'POPRES1'"}},
		))
		return
	}

	opts.Clauses = odata.RemoveEquals(opts.Clauses, "DatasetId")

	obs, err := h.repo.GetDatasetTimeSeries(r.Context(), datasetID, "", "", 0, 9999)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rows, err := toMaps(obs)
	if err != nil {
		writeError(w, r, apperr.Wrap(apperr.KindInternal, "marshal observations failed", err))
		return
	}

	page, total := odata.Apply(rows, opts)
	writeODataCollection(w, r, "Observations", page, total, opts)
}

// ODataTerritories serves the Territories entity set.
func (h *Handlers) ODataTerritories(w http.ResponseWriter, r *http.Request) {
	opts, err := odata.ParseQueryOptions(r.URL.Query())
	if err != nil {
		writeError(w, r, validationError(err.Error(), nil))
		return
	}

	rows, err := h.repo.ListTerritories(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	page, total := odata.Apply(rows, opts)
	writeODataCollection(w, r, "Territories", page, total, opts)
}

// ODataMeasures serves the Measures entity set.
func (h *Handlers) ODataMeasures(w http.ResponseWriter, r *http.Request) {
	opts, err := odata.ParseQueryOptions(r.URL.Query())
	if err != nil {
		writeError(w, r, validationError(err.Error(), nil))
		return
	}

	rows, err := h.repo.ListMeasures(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	page, total := odata.Apply(rows, opts)
	writeODataCollection(w, r, "Measures", page, total, opts)
}
