package metadatastore

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreferenceRepoSet(t *testing.T) {
	store, mock := newMockStore(t)
	repo := NewPreferenceRepo(store)

	now := time.Now()
	mock.ExpectQuery(`INSERT INTO user_preferences`).
		WithArgs("user-1", "default_format", "string", "json").
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(now))

	pref := &UserPreference{UserID: "user-1", Key: "default_format", ValueKind: "string", Value: "json"}
	err := repo.Set(context.Background(), pref)
	require.NoError(t, err)
	assert.Equal(t, now, pref.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPreferenceRepoDeleteNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	repo := NewPreferenceRepo(store)

	mock.ExpectExec(`DELETE FROM user_preferences WHERE user_id = \$1 AND key = \$2`).
		WithArgs("user-1", "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "user-1", "missing")
	require.Error(t, err)
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}
