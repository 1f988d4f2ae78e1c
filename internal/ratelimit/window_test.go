package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsumeWithinLimitSucceeds(t *testing.T) {
	l := NewLimiter()
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Consume(1, "/datasets", 5))
	}
}

func TestConsumePastLimitReturnsExceeded(t *testing.T) {
	l := NewLimiter()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Consume(1, "/datasets", 3))
	}
	err := l.Consume(1, "/datasets", 3)
	require.Error(t, err)
	var exceeded *ExceededError
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, 3, exceeded.Limit)
}

func TestDifferentEndpointsTrackedIndependently(t *testing.T) {
	l := NewLimiter()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Consume(1, "/datasets", 3))
	}
	require.NoError(t, l.Consume(1, "/observations", 3))
}

func TestDifferentKeysTrackedIndependently(t *testing.T) {
	l := NewLimiter()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Consume(1, "/datasets", 3))
	}
	require.NoError(t, l.Consume(2, "/datasets", 3))
}

func TestUsageReportsRemainingBudget(t *testing.T) {
	l := NewLimiter()
	l.Consume(1, "/datasets", 10)
	l.Consume(1, "/datasets", 10)

	used, remaining := l.Usage(1, "/datasets", 10)
	assert.Equal(t, 2, used)
	assert.Equal(t, 8, remaining)
}

func TestAllowDoesNotConsume(t *testing.T) {
	l := NewLimiter()
	require.NoError(t, l.Allow(1, "/datasets", 1))
	require.NoError(t, l.Allow(1, "/datasets", 1)) // still allowed, Allow never consumes
	used, _ := l.Usage(1, "/datasets", 1)
	assert.Equal(t, 0, used)
}
