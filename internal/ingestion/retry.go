// Package ingestion is the resilient client fetching SDMX data from the
// upstream ISTAT service and syncing it into the repository (§4.G). Its
// resilience layers compose in the same order as the teacher's
// net/client.Wrapper: a bounded-concurrency pool wraps each request with
// jittered pacing and exponential backoff retry, which the breaker/rate
// limiter layers in this package then wrap again around the whole
// request.
package ingestion

import (
	"context"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// RetryConfig configures the bounded-concurrency retrying transport.
type RetryConfig struct {
	MaxConcurrency int
	RequestTimeout time.Duration
	JitterRangeMS  [2]int
	MaxRetries     int
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	UserAgent      string
}

// RetryStats mirrors the teacher's ClientStats counters.
type RetryStats struct {
	TotalRequests   int64 `json:"total_requests"`
	SuccessRequests int64 `json:"success_requests"`
	FailedRequests  int64 `json:"failed_requests"`
	RetriedRequests int64 `json:"retried_requests"`
}

// RetryingClient bounds concurrency with a semaphore channel and retries
// failed or retryable-status requests with jittered exponential backoff —
// the same shape as the teacher's ClientPool, generalized to any
// *http.Client rather than one fixed to a single provider.
type RetryingClient struct {
	config    RetryConfig
	semaphore chan struct{}
	client    *http.Client
	onRetry   func()

	mu    sync.Mutex
	stats RetryStats
}

// NewRetryingClient builds a client bounding concurrency at
// config.MaxConcurrency and retrying per config.MaxRetries.
func NewRetryingClient(config RetryConfig) *RetryingClient {
	return &RetryingClient{
		config:    config,
		semaphore: make(chan struct{}, config.MaxConcurrency),
		client:    &http.Client{Timeout: config.RequestTimeout},
	}
}

// Do issues req, applying the concurrency bound, jitter, and retry policy.
func (rc *RetryingClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	select {
	case rc.semaphore <- struct{}{}:
		defer func() { <-rc.semaphore }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if rc.config.UserAgent != "" {
		req.Header.Set("User-Agent", rc.config.UserAgent)
	}

	if err := rc.applyJitter(ctx); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= rc.config.MaxRetries; attempt++ {
		if attempt > 0 {
			rc.incrementStat("retried")
			if rc.onRetry != nil {
				rc.onRetry()
			}
			backoff := rc.calculateBackoff(attempt)
			log.Debug().Dur("backoff", backoff).Int("attempt", attempt).Str("url", req.URL.String()).Msg("ingestion: retrying request")

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		resp, err := rc.client.Do(req.WithContext(ctx))
		if err != nil {
			lastErr = err
			rc.incrementStat("failed")
			if isRetryableError(err) {
				continue
			}
			break
		}

		if isRetryableStatus(resp.StatusCode) && attempt < rc.config.MaxRetries {
			resp.Body.Close()
			lastErr = &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
			continue
		}

		rc.incrementStat("success")
		return resp, nil
	}

	rc.incrementStat("failed")
	return nil, lastErr
}

// StatusError reports a retryable HTTP status that was never recovered.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return "ingestion: HTTP " + e.Status
}

func (rc *RetryingClient) applyJitter(ctx context.Context) error {
	lo, hi := rc.config.JitterRangeMS[0], rc.config.JitterRangeMS[1]
	if lo >= hi {
		return nil
	}
	jitter := time.Duration(rand.Intn(hi-lo)+lo) * time.Millisecond
	select {
	case <-time.After(jitter):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (rc *RetryingClient) calculateBackoff(attempt int) time.Duration {
	backoff := rc.config.BackoffBase * time.Duration(uint(1)<<uint(attempt))
	if backoff > rc.config.BackoffMax {
		backoff = rc.config.BackoffMax
	}
	jitter := time.Duration(rand.Float64() * 0.1 * float64(backoff))
	return backoff + jitter
}

func (rc *RetryingClient) incrementStat(kind string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.stats.TotalRequests++
	switch kind {
	case "success":
		rc.stats.SuccessRequests++
	case "failed":
		rc.stats.FailedRequests++
	case "retried":
		rc.stats.RetriedRequests++
	}
}

// Stats returns a snapshot of request counters.
func (rc *RetryingClient) Stats() RetryStats {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.stats
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, substr := range []string{"timeout", "connection refused", "connection reset", "temporary failure", "network is unreachable", "no such host"} {
		if strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}

func isRetryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}
