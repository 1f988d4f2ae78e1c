package metadatastore

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	sqlxDB := sqlx.NewDb(mockDB, "postgres")
	return &Store{db: sqlxDB, timeout: 5 * time.Second}, mock
}

func TestAPIKeyRepoInsert(t *testing.T) {
	store, mock := newMockStore(t)
	repo := NewAPIKeyRepo(store)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(42), now)
	mock.ExpectQuery(`INSERT INTO api_keys`).
		WithArgs("ingestion-bot", "hash", "istat_ab", []byte("scopes"), 100, true, sqlmock.AnyArg()).
		WillReturnRows(rows)

	key := &APIKey{
		Name:      "ingestion-bot",
		KeyHash:   "hash",
		KeyPrefix: "istat_ab",
		ScopesEnc: []byte("scopes"),
		RateLimit: 100,
		IsActive:  true,
	}
	id, err := repo.Insert(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, now, key.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAPIKeyRepoGetByPrefixExcludesInactive(t *testing.T) {
	store, mock := newMockStore(t)
	repo := NewAPIKeyRepo(store)

	cols := []string{"id", "name", "key_hash", "key_prefix", "scopes_enc", "rate_limit", "is_active", "expires_at", "last_used", "usage_count", "created_at"}
	rows := sqlmock.NewRows(cols).AddRow(1, "bot", "h1", "istat_ab", []byte("{}"), 100, true, nil, nil, 0, time.Now())
	mock.ExpectQuery(`SELECT \* FROM api_keys WHERE key_prefix = \$1 AND is_active = true`).
		WithArgs("istat_ab").
		WillReturnRows(rows)

	keys, err := repo.GetByPrefix(context.Background(), "istat_ab")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "bot", keys[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAPIKeyRepoRevokeNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	repo := NewAPIKeyRepo(store)

	mock.ExpectExec(`UPDATE api_keys SET is_active = false WHERE id = \$1`).
		WithArgs(int64(99)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Revoke(context.Background(), 99)
	require.Error(t, err)
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAPIKeyRepoRecordUsage(t *testing.T) {
	store, mock := newMockStore(t)
	repo := NewAPIKeyRepo(store)

	now := time.Now()
	mock.ExpectExec(`UPDATE api_keys SET last_used = \$2, usage_count = usage_count \+ 1 WHERE id = \$1`).
		WithArgs(int64(7), now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.RecordUsage(context.Background(), 7, now)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
