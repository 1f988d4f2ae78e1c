package metadatastore

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionCommitsOnSuccess(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectCommit()

	err := store.Transaction(context.Background(), func(tx *sqlx.Tx) error {
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRollsBackOnError(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	wantErr := errors.New("boom")
	err := store.Transaction(context.Background(), func(tx *sqlx.Tx) error {
		return wantErr
	})
	require.ErrorIs(t, err, wantErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRollsBackOnPanic(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	defer func() {
		r := recover()
		assert.Equal(t, "kaboom", r)
		assert.NoError(t, mock.ExpectationsWereMet())
	}()

	_ = store.Transaction(context.Background(), func(tx *sqlx.Tx) error {
		panic("kaboom")
	})
}

func TestStatusReportsPingFailure(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectPing().WillReturnError(sqlmock.ErrCancelled)

	healthy, detail := store.Status(context.Background())
	assert.False(t, healthy)
	assert.NotEmpty(t, detail)
}

func TestStatusReportsHealthy(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectPing()

	healthy, detail := store.Status(context.Background())
	assert.True(t, healthy)
	assert.Equal(t, "ok", detail)
}
