package ingestion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osservatorio-istat/platform/internal/apperr"
)

func newTestBreaker() *Breaker {
	return NewBreaker(BreakerConfig{
		Name:             "test",
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		FailureThreshold: 1,
	}, nil)
}

func TestBreakerExecutePassesThroughUpstreamFailures(t *testing.T) {
	b := newTestBreaker()
	wantErr := apperr.Wrap(apperr.KindUpstreamUnavailable, "fetch failed", errors.New("connection reset"))

	_, err := b.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return nil, wantErr
	})

	require.Error(t, err)
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.KindUpstreamUnavailable, appErr.Kind)
}

func TestBreakerExecuteReportsCircuitOpen(t *testing.T) {
	b := newTestBreaker()

	// Trip the breaker with one failure (FailureThreshold: 1).
	_, _ = b.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("boom")
	})
	require.Equal(t, "open", b.State())

	_, err := b.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		t.Fatal("fn must not run while the breaker is open")
		return nil, nil
	})

	require.Error(t, err)
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.KindCircuitOpen, appErr.Kind)
}
