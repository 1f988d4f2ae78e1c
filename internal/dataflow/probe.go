package dataflow

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/osservatorio-istat/platform/internal/ingestion"
)

// probeTimeout bounds a single access probe, independent of the ingestion
// client's own resilience stack — a probe is a best-effort diagnostic, not
// a resilient fetch, so it gets a short fixed budget instead of retries.
const probeTimeout = 5 * time.Second

// Probe is the result of an access-probe request against a dataflow's
// upstream data URL (§4.J step 3).
type Probe struct {
	StatusCode        int  `json:"status_code"`
	SizeBytes         int64 `json:"size_bytes"`
	ObservationsCount int  `json:"observations_count"`
	ParseError        bool `json:"parse_error"`
	DataAccessSuccess bool `json:"data_access_success"`
}

// RunProbe issues a GET against dataURL with a short timeout, capturing
// status, size, and a best-effort observation count (reusing the SDMX
// observations parser; a parse failure sets ParseError without failing the
// probe itself). datasetID is only used to tag parsed observations, not to
// validate the response.
func RunProbe(ctx context.Context, client *http.Client, datasetID, dataURL string) Probe {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, dataURL, nil)
	if err != nil {
		return Probe{}
	}

	resp, err := client.Do(req)
	if err != nil {
		return Probe{}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUploadBytes))
	probe := Probe{
		StatusCode:        resp.StatusCode,
		SizeBytes:         int64(len(body)),
		DataAccessSuccess: resp.StatusCode >= 200 && resp.StatusCode < 300,
	}
	if err != nil || !probe.DataAccessSuccess {
		return probe
	}

	observations, parseErr := ingestion.ParseObservations(bytes.NewReader(body), datasetID, maxUploadBytes)
	if parseErr != nil {
		probe.ParseError = true
		return probe
	}
	probe.ObservationsCount = len(observations)
	return probe
}

// TableauReady implements §4.J step 4's combined readiness check.
func TableauReady(p Probe) bool {
	return p.DataAccessSuccess && !p.ParseError
}

