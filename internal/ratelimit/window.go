// Package ratelimit implements the inbound sliding-window limiter keyed by
// (api_key_id, endpoint) (§4.F). It generalizes the teacher's daily-quota
// Tracker — a fixed limit, atomic usage counter, and reset-time
// calculation — from a once-a-day reset to a continuously sliding
// 1-hour window with second granularity, and from a single global
// tracker to one tracker per (api_key_id, endpoint) pair.
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// Window is 1 hour, per §4.F.
const Window = time.Hour

// ExceededError reports that a caller exhausted its window budget.
type ExceededError struct {
	APIKeyID int64
	Endpoint string
	Limit    int
	Used     int
	ResetAt  time.Time
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("ratelimit: %d/%d requests used for key %d on %s, resets at %s",
		e.Used, e.Limit, e.APIKeyID, e.Endpoint, e.ResetAt.Format(time.RFC3339))
}

// bucket holds per-second counts for one (api_key_id, endpoint) pair
// across the trailing window, evicting seconds older than Window as they
// age out — the sliding-window counter approach, rather than a single
// fixed-bucket reset.
type bucket struct {
	mu     sync.Mutex
	counts map[int64]int // unix-second -> count
}

func newBucket() *bucket {
	return &bucket{counts: make(map[int64]int)}
}

func (b *bucket) prune(now time.Time) {
	cutoff := now.Add(-Window).Unix()
	for sec := range b.counts {
		if sec < cutoff {
			delete(b.counts, sec)
		}
	}
}

func (b *bucket) total() int {
	total := 0
	for _, c := range b.counts {
		total += c
	}
	return total
}

// Limiter tracks sliding windows for every (api_key_id, endpoint) pair
// seen by the process.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

// NewLimiter builds an empty limiter.
func NewLimiter() *Limiter {
	return &Limiter{buckets: make(map[string]*bucket)}
}

func bucketKey(apiKeyID int64, endpoint string) string {
	return fmt.Sprintf("%d:%s", apiKeyID, endpoint)
}

// Allow checks whether one more request is permitted within limit for the
// trailing hour, without consuming a slot — used for pre-flight checks
// that shouldn't count against the budget themselves.
func (l *Limiter) Allow(apiKeyID int64, endpoint string, limit int) error {
	b := l.bucketFor(apiKeyID, endpoint)
	now := time.Now()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.prune(now)

	if used := b.total(); used >= limit {
		return &ExceededError{APIKeyID: apiKeyID, Endpoint: endpoint, Limit: limit, Used: used, ResetAt: now.Add(Window)}
	}
	return nil
}

// Consume records one request against the window, returning an
// ExceededError if this request pushes usage past limit. The request
// that exceeds the limit is still counted — callers check Allow first if
// they want to reject before consuming.
func (l *Limiter) Consume(apiKeyID int64, endpoint string, limit int) error {
	b := l.bucketFor(apiKeyID, endpoint)
	now := time.Now()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.prune(now)

	b.counts[now.Unix()]++
	used := b.total()
	if used > limit {
		return &ExceededError{APIKeyID: apiKeyID, Endpoint: endpoint, Limit: limit, Used: used, ResetAt: now.Add(Window)}
	}
	return nil
}

// Usage reports the current count and remaining budget for a key/endpoint
// pair without mutating state.
func (l *Limiter) Usage(apiKeyID int64, endpoint string, limit int) (used, remaining int) {
	b := l.bucketFor(apiKeyID, endpoint)
	now := time.Now()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.prune(now)

	used = b.total()
	remaining = limit - used
	if remaining < 0 {
		remaining = 0
	}
	return used, remaining
}

func (l *Limiter) bucketFor(apiKeyID int64, endpoint string) *bucket {
	key := bucketKey(apiKeyID, endpoint)

	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		b = newBucket()
		l.buckets[key] = b
	}
	return b
}
