package analyticsstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatusReportsUnreachableBackend(t *testing.T) {
	// No ClickHouse listens on this address; Status must degrade to an
	// unhealthy report rather than returning an error or blocking.
	store := New([]string{"127.0.0.1:1"}, "istat_test", 200*time.Millisecond)

	healthy, detail := store.Status(context.Background())
	assert.False(t, healthy)
	assert.NotEmpty(t, detail)
}

func TestConnectionFailureIsCached(t *testing.T) {
	store := New([]string{"127.0.0.1:1"}, "istat_test", 200*time.Millisecond)

	ctx := context.Background()
	_, err1 := store.connection(ctx)
	_, err2 := store.connection(ctx)

	assert.Error(t, err1)
	assert.Same(t, err1, err2)
}

func TestBulkInsertNoopOnEmptySlice(t *testing.T) {
	store := New([]string{"127.0.0.1:1"}, "istat_test", 200*time.Millisecond)
	err := store.BulkInsert(context.Background(), nil)
	assert.NoError(t, err)
}
