package ingestion

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/osservatorio-istat/platform/internal/analyticsstore"
	"github.com/osservatorio-istat/platform/internal/apperr"
	"github.com/osservatorio-istat/platform/internal/config"
	"github.com/osservatorio-istat/platform/internal/metadatastore"
	"github.com/osservatorio-istat/platform/internal/metrics"
	"github.com/osservatorio-istat/platform/internal/repository"
)

// maxSDMXBytes bounds every XML document this client will decode, per §5's
// streaming-parser redesign flag.
const maxSDMXBytes = 32 << 20 // 32 MiB

// cachedPayload is the last-known-good response kept for cache fallback
// when upstream is unavailable.
type cachedPayload struct {
	dataflows    []Dataflow
	observations []analyticsstore.Observation
	cachedAt     time.Time
}

// Status reports the ingestion client's current health, matching
// get_status()'s contract: breaker state plus request counters.
type Status struct {
	BreakerState string                          `json:"breaker_state"`
	RetryStats   RetryStats                      `json:"retry"`
	RateLimiter  map[string]UpstreamLimiterStats `json:"rate_limiter"`
}

// Client composes retry, circuit breaker, and upstream rate limiting around
// calls to the ISTAT SDMX endpoint. From the inside out: retry/backoff (each
// HTTP attempt bounded by the retrying client's RequestTimeout), then a
// timeout bounding the whole retry sequence, then the circuit breaker, then
// upstream rate-limiter admission at the outermost layer. This mirrors
// the teacher's Wrapper.RoundTrip composition, generalized to a named
// Client rather than an http.RoundTripper, since fetch/sync need typed
// SDMX results, not raw bytes.
type Client struct {
	baseURL string
	retry   *RetryingClient
	breaker *Breaker
	limiter *UpstreamLimiter
	timeout time.Duration
	repo    *repository.Repository
	metrics *metrics.Registry

	mu    sync.RWMutex
	cache map[string]*cachedPayload
}

// NewClient builds an ingestion client wired to repo, whose resilience
// parameters come from cfg. reg may be nil; when set, retries, cache
// fallbacks, and breaker transitions are recorded against it.
func NewClient(cfg *config.Config, repo *repository.Repository, reg *metrics.Registry) *Client {
	retry := NewRetryingClient(RetryConfig{
		MaxConcurrency: cfg.UpstreamMaxConcurrent,
		RequestTimeout: cfg.UpstreamTimeout(),
		JitterRangeMS:  [2]int{10, 100},
		MaxRetries:     cfg.RetryMaxAttempts,
		BackoffBase:    200 * time.Millisecond,
		BackoffMax:     5 * time.Second,
		UserAgent:      "osservatorio-istat-platform/1.0",
	})
	host := hostOf(cfg.UpstreamBaseURL)
	if reg != nil {
		retry.onRetry = func() { reg.IngestionRetries.WithLabelValues(host).Inc() }
	}

	return &Client{
		baseURL: cfg.UpstreamBaseURL,
		retry:   retry,
		breaker: NewBreaker(BreakerConfig{
			Name:             "istat-upstream",
			MaxRequests:      1,
			Interval:         0,
			Timeout:          time.Duration(cfg.CircuitBreakerCooldownS) * time.Second,
			FailureThreshold: uint32(cfg.CircuitBreakerThreshold),
		}, reg),
		limiter: NewUpstreamLimiter(cfg.UpstreamRatePerSecond, cfg.UpstreamBurst),
		timeout: cfg.UpstreamTimeout(),
		repo:    repo,
		metrics: reg,
		cache:   make(map[string]*cachedPayload),
	}
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Host
}

func (c *Client) upstreamHost() string {
	return hostOf(c.baseURL)
}

// call executes fn (an HTTP round trip) under the full resilience stack:
// rate limiter admission, circuit breaker, and retry/backoff innermost,
// with c.timeout bounding everything inside the breaker, all retry
// attempts together.
func (c *Client) call(ctx context.Context, fn func(ctx context.Context) (*http.Response, error)) (*http.Response, error) {
	if err := c.limiter.Wait(ctx, c.upstreamHost()); err != nil {
		return nil, err
	}

	result, err := c.breaker.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		return fn(attemptCtx)
	})
	if err != nil {
		return nil, err
	}
	return result.(*http.Response), nil
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	u := c.baseURL + path
	return c.call(ctx, func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		return c.retry.Do(ctx, req)
	})
}

// FetchDataflows retrieves the upstream dataflow catalog, optionally capped
// at limit entries. Falls back to the last cached catalog with
// source="cache_fallback" when upstream is unreachable.
func (c *Client) FetchDataflows(ctx context.Context, limit int) ([]Dataflow, string, error) {
	resp, err := c.get(ctx, "/dataflow/IT1")
	if err != nil {
		if cached := c.cachedDataflows(); cached != nil {
			log.Warn().Err(err).Msg("ingestion: upstream unavailable, serving cached dataflows")
			if c.metrics != nil {
				c.metrics.RecordCacheFallback("dataflows")
			}
			return limitDataflows(cached, limit), "cache_fallback", nil
		}
		return nil, "", apperr.Wrap(apperr.KindUpstreamUnavailable, "fetch dataflows failed", err)
	}
	defer resp.Body.Close()

	dataflows, err := ParseDataflows(resp.Body, maxSDMXBytes)
	if err != nil {
		return nil, "", apperr.Wrap(apperr.KindInternal, "parse dataflows failed", err)
	}

	c.mu.Lock()
	c.cache["dataflows"] = &cachedPayload{dataflows: dataflows, cachedAt: time.Now()}
	c.mu.Unlock()

	return limitDataflows(dataflows, limit), "upstream", nil
}

func limitDataflows(dataflows []Dataflow, limit int) []Dataflow {
	if limit <= 0 || limit >= len(dataflows) {
		return dataflows
	}
	return dataflows[:limit]
}

func (c *Client) cachedDataflows() []Dataflow {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if p, ok := c.cache["dataflows"]; ok {
		return p.dataflows
	}
	return nil
}

// FetchDataset retrieves one dataset's SDMX data document, optionally
// including the parsed observation rows.
func (c *Client) FetchDataset(ctx context.Context, datasetID string, includeData bool) ([]analyticsstore.Observation, string, error) {
	if !includeData {
		return nil, "upstream", nil
	}

	resp, err := c.get(ctx, fmt.Sprintf("/data/%s", datasetID))
	if err != nil {
		if cached := c.cachedObservations(datasetID); cached != nil {
			log.Warn().Err(err).Str("dataset_id", datasetID).Msg("ingestion: upstream unavailable, serving cached observations")
			if c.metrics != nil {
				c.metrics.RecordCacheFallback(datasetID)
			}
			return cached, "cache_fallback", nil
		}
		return nil, "", apperr.Wrap(apperr.KindUpstreamUnavailable, "fetch dataset failed", err)
	}
	defer resp.Body.Close()

	observations, err := ParseObservations(resp.Body, datasetID, maxSDMXBytes)
	if err != nil {
		return nil, "", apperr.Wrap(apperr.KindInternal, "parse observations failed", err)
	}

	c.mu.Lock()
	c.cache[datasetID] = &cachedPayload{observations: observations, cachedAt: time.Now()}
	c.mu.Unlock()

	return observations, "upstream", nil
}

func (c *Client) cachedObservations(datasetID string) []analyticsstore.Observation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if p, ok := c.cache[datasetID]; ok {
		return p.observations
	}
	return nil
}

// FetchWithQualityValidation fetches a dataset's data and runs quality
// validation over the result.
func (c *Client) FetchWithQualityValidation(ctx context.Context, datasetID string) ([]analyticsstore.Observation, *QualityResult, string, error) {
	observations, source, err := c.FetchDataset(ctx, datasetID, true)
	if err != nil {
		return nil, nil, source, err
	}
	return observations, ValidateObservations(observations), source, nil
}

// SyncToRepository writes a fetched batch of observations into the
// analytics store, updates the dataset's sync metadata, and emits one
// audit entry for the sync — the write-through half of §4.G.
func (c *Client) SyncToRepository(ctx context.Context, datasetID string, observations []analyticsstore.Observation) error {
	if err := c.repo.BulkInsertObservations(ctx, observations); err != nil {
		return apperr.Wrap(apperr.KindAnalyticsUnavailable, "sync observations failed", err)
	}

	if err := c.repo.RecordSync(ctx, datasetID, len(observations)); err != nil {
		return apperr.Wrap(apperr.KindConflict, "record sync metadata failed", err)
	}

	if err := c.repo.Audit(ctx, &metadatastore.AuditEntry{
		UserID:       "ingestion-client",
		Action:       "sync_to_repository",
		ResourceType: "dataset",
		ResourceID:   datasetID,
		Success:      true,
		Details:      map[string]interface{}{"records_synced": len(observations)},
	}); err != nil {
		log.Error().Err(err).Str("dataset_id", datasetID).Msg("ingestion: audit entry for sync failed")
	}

	return nil
}

// GetStatus reports the client's current resilience-layer state.
func (c *Client) GetStatus() Status {
	return Status{
		BreakerState: c.breaker.State(),
		RetryStats:   c.retry.Stats(),
		RateLimiter:  c.limiter.Stats(),
	}
}

// HealthCheck reports whether the upstream endpoint is currently reachable,
// without tripping the breaker's failure count on a deliberate probe.
func (c *Client) HealthCheck(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, c.baseURL+"/dataflow/IT1", nil)
	if err != nil {
		return err
	}
	resp, err := c.retry.Do(probeCtx, req)
	if err != nil {
		return apperr.Wrap(apperr.KindUpstreamUnavailable, "upstream health check failed", err)
	}
	defer resp.Body.Close()
	return nil
}
