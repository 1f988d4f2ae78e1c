package rules

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osservatorio-istat/platform/internal/metadatastore"
)

func newMockRepo(t *testing.T) (*Repo, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	store := metadatastore.NewFromDB(sqlx.NewDb(mockDB, "postgres"), 5*time.Second)
	return NewRepo(store), mock
}

func TestNormalizeKeywordsLowercasesTrimsDedupes(t *testing.T) {
	got := NormalizeKeywords([]string{" Popolazione ", "popolazione", "", "  ", "Censimento"})
	want := []string{"popolazione", "censimento"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestListOrdersByPriorityThenRuleID(t *testing.T) {
	repo, mock := newMockRepo(t)

	cols := []string{"rule_id", "category", "keywords", "priority", "is_active", "description"}
	rows := sqlmock.NewRows(cols).
		AddRow("b_rule", CategoryEconomia, []byte(`["pil"]`), 5, true, "").
		AddRow("a_rule", CategoryLavoro, []byte(`["lavoro"]`), 5, true, "").
		AddRow("c_rule", CategoryPopolazione, []byte(`["popolazione"]`), 10, true, "")
	mock.ExpectQuery(`SELECT rule_id, category, keywords, priority, is_active, description FROM categorization_rules`).
		WillReturnRows(rows)

	list, err := repo.List(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "c_rule", list[0].RuleID) // highest priority first
	assert.Equal(t, "a_rule", list[1].RuleID) // tie broken lexicographically
	assert.Equal(t, "b_rule", list[2].RuleID)
	assert.Equal(t, []string{"popolazione"}, list[0].Keywords)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertNormalizesKeywords(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`INSERT INTO categorization_rules`).
		WithArgs("r1", CategorySalute, []byte(`["salute","ospedali"]`), 3, true, "").
		WillReturnResult(sqlmock.NewResult(0, 1))

	rule := &Rule{RuleID: "r1", Category: CategorySalute, Keywords: []string{" Salute ", "OSPEDALI", "salute"}, Priority: 3, IsActive: true}
	require.NoError(t, repo.Insert(context.Background(), rule))
	assert.Equal(t, []string{"salute", "ospedali"}, rule.Keywords)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteMissingRuleReturnsNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`DELETE FROM categorization_rules WHERE rule_id = \$1`).
		WithArgs("missing_rule").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "missing_rule")
	require.Error(t, err)
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
	assert.Equal(t, "missing_rule", nf.RuleID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotFoundErrorMessage(t *testing.T) {
	err := &NotFoundError{RuleID: "missing_rule"}
	if err.Error() == "" {
		t.Fatal("expected non-empty error message")
	}
}
