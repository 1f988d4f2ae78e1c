package metadatastore

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimitRepoIncrementUpserts(t *testing.T) {
	store, mock := newMockStore(t)
	repo := NewRateLimitRepo(store)

	start := time.Now().Truncate(time.Hour)
	end := start.Add(time.Hour)
	mock.ExpectQuery(`INSERT INTO rate_limits`).
		WithArgs(int64(1), "/datasets", start, end).
		WillReturnRows(sqlmock.NewRows([]string{"request_count"}).AddRow(1))

	count, err := repo.Increment(context.Background(), 1, "/datasets", start, end)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimitRepoPrune(t *testing.T) {
	store, mock := newMockStore(t)
	repo := NewRateLimitRepo(store)

	cutoff := time.Now()
	mock.ExpectExec(`DELETE FROM rate_limits WHERE window_end < \$1`).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.Prune(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
