package ingestion

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// UpstreamLimiter paces outbound calls to the ISTAT SDMX endpoint,
// per-host like the teacher's net/ratelimit.Limiter, narrowed to the
// single upstream host this service talks to.
type UpstreamLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	rps      float64
	burst    int
}

// NewUpstreamLimiter builds a limiter allowing rps sustained requests per
// second per host, with burst capacity for short spikes.
func NewUpstreamLimiter(rps float64, burst int) *UpstreamLimiter {
	return &UpstreamLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rps,
		burst:    burst,
	}
}

func (l *UpstreamLimiter) getLimiter(host string) *rate.Limiter {
	l.mu.RLock()
	limiter, exists := l.limiters[host]
	l.mu.RUnlock()
	if exists {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if limiter, exists := l.limiters[host]; exists {
		return limiter
	}
	limiter = rate.NewLimiter(rate.Limit(l.rps), l.burst)
	l.limiters[host] = limiter
	return limiter
}

// Wait blocks until a request to host is permitted or ctx is cancelled.
func (l *UpstreamLimiter) Wait(ctx context.Context, host string) error {
	return l.getLimiter(host).Wait(ctx)
}

// Allow reports whether a request to host is permitted right now, without
// blocking or consuming the token if not.
func (l *UpstreamLimiter) Allow(host string) bool {
	return l.getLimiter(host).Allow()
}

// UpstreamLimiterStats reports the current throttling state of one host.
type UpstreamLimiterStats struct {
	Host            string    `json:"host"`
	RPS             float64   `json:"rps"`
	Burst           int       `json:"burst"`
	TokensAvailable float64   `json:"tokens_available"`
	NextAllowedAt   time.Time `json:"next_allowed_at"`
}

// Stats reports current state for every host the limiter has seen.
func (l *UpstreamLimiter) Stats() map[string]UpstreamLimiterStats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := make(map[string]UpstreamLimiterStats, len(l.limiters))
	now := time.Now()
	for host, limiter := range l.limiters {
		reservation := limiter.Reserve()
		delay := reservation.Delay()
		reservation.Cancel()

		stats[host] = UpstreamLimiterStats{
			Host:            host,
			RPS:             float64(limiter.Limit()),
			Burst:           limiter.Burst(),
			TokensAvailable: limiter.Tokens(),
			NextAllowedAt:   now.Add(delay),
		}
	}
	return stats
}
