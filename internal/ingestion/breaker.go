package ingestion

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/osservatorio-istat/platform/internal/apperr"
	"github.com/osservatorio-istat/platform/internal/metrics"
)

// BreakerConfig configures the upstream circuit breaker.
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// Breaker wraps gobreaker.CircuitBreaker around upstream calls. The
// teacher's internal/net/circuit breaker lets every request through while
// half-open, so a brief spike of retries can re-trip a barely-recovered
// upstream; gobreaker's MaxRequests bound admits exactly that many probes
// before deciding, which is what half-open is supposed to mean.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// NewBreaker builds a breaker that opens after FailureThreshold consecutive
// failures and allows MaxRequests probe calls while half-open. reg may be
// nil, in which case state changes are only logged, not recorded.
func NewBreaker(cfg BreakerConfig, reg *metrics.Registry) *Breaker {
	st := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("ingestion: circuit breaker state change")
			if reg != nil {
				reg.SetBreakerState(name, float64(to))
			}
		},
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(st)}
}

// Execute runs fn under the breaker, translating gobreaker's own errors
// into the apperr sum type so callers never need to import gobreaker.
// Per §6.3, a breaker that refuses the call (open, or half-open with its
// probe quota spent) is CIRCUIT_OPEN; a call gobreaker let through that
// then failed against the real upstream is UPSTREAM_UNAVAILABLE — fn's own
// error is returned unchanged so that distinction stays with its caller.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return fn(ctx)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return nil, apperr.New(apperr.KindCircuitOpen, "upstream circuit open").WithDetails(map[string]interface{}{
			"breaker_state": b.cb.State().String(),
		})
	}
	return result, err
}

// State reports the current breaker state for health/status endpoints.
func (b *Breaker) State() string {
	return b.cb.State().String()
}
