package dataflow

import (
	"context"
	"net/http"
	"sync"

	"github.com/osservatorio-istat/platform/internal/ingestion"
	"github.com/osservatorio-istat/platform/internal/rules"
)

// maxBulkIDs is §4.J's "≤ 50 per bulk call" cap.
const maxBulkIDs = 50

// BulkRequest describes one dataflow to analyze, paired with the data URL
// a probe (if requested) should hit.
type BulkRequest struct {
	Dataflow ingestion.Dataflow
	DataURL  string
}

// AnalyzeBulk runs Categorize (and, if includeTests, RunProbe) over each
// request concurrently, bounded by maxConcurrent (clamped to [1,10]) — the
// same channel-semaphore idiom as internal/ingestion/retry.go, generalized
// from request pacing to a fixed-size worker pool.
func AnalyzeBulk(ctx context.Context, client *http.Client, requests []BulkRequest, activeRules []*rules.Rule, includeTests bool, maxConcurrent int) []AnalyzedDataflow {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if maxConcurrent > 10 {
		maxConcurrent = 10
	}
	if len(requests) > maxBulkIDs {
		requests = requests[:maxBulkIDs]
	}

	results := make([]AnalyzedDataflow, len(requests))
	sem := make(chan struct{}, maxConcurrent)
	var wg sync.WaitGroup

	for i, req := range requests {
		wg.Add(1)
		go func(i int, req BulkRequest) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			analyzed := Categorize(req.Dataflow, activeRules)
			if includeTests && req.DataURL != "" {
				probe := RunProbe(ctx, client, req.Dataflow.ID, req.DataURL)
				analyzed.Probe = &probe
				analyzed.TableauReady = TableauReady(probe)
				analyzed.ConnectionType = ConnectionType(probe.SizeBytes)
				analyzed.RefreshFreq = RefreshFrequency(analyzed.Category)
			}
			results[i] = analyzed
		}(i, req)
	}

	wg.Wait()
	return results
}
