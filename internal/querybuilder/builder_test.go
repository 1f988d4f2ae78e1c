package querybuilder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderRendersParameterizedSQL(t *testing.T) {
	b := Select("dataset_id", "year").
		From("observations").
		Where("dataset_id", "=", "DCCN_POPRES1").
		Where("year", ">=", 2020).
		OrderBy("year", "ASC").
		Limit(10)

	query, args, err := b.ToSQL()
	require.NoError(t, err)
	assert.Contains(t, query, "SELECT dataset_id, year FROM observations")
	assert.Contains(t, query, "ORDER BY year ASC")
	assert.Contains(t, query, "LIMIT 10")
	assert.Equal(t, []interface{}{"DCCN_POPRES1", 2020}, args)
}

func TestBuilderRejectsUnsafeIdentifier(t *testing.T) {
	b := Select("dataset_id; DROP TABLE observations").From("observations")
	_, _, err := b.ToSQL()
	require.Error(t, err)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestWhereInRequiresNonEmptyValues(t *testing.T) {
	b := Select("dataset_id").From("observations").WhereIn("territory_code", nil)
	_, _, err := b.ToSQL()
	require.Error(t, err)
}

func TestCountStripsOrderAndLimit(t *testing.T) {
	b := Select("dataset_id").
		From("observations").
		Where("dataset_id", "=", "X").
		OrderBy("year", "DESC").
		Limit(5)

	query, args, err := b.Count().ToSQL()
	require.NoError(t, err)
	assert.Contains(t, query, "SELECT COUNT(*) FROM observations")
	assert.NotContains(t, query, "ORDER BY")
	assert.NotContains(t, query, "LIMIT")
	assert.Equal(t, []interface{}{"X"}, args)
}

func TestFirstAppendsLimitOne(t *testing.T) {
	b := Select("dataset_id").From("observations").First()
	query, _, err := b.ToSQL()
	require.NoError(t, err)
	assert.Contains(t, query, "LIMIT 1")
}

func TestWhereBetweenRequiresTwoBounds(t *testing.T) {
	b := Select("year").From("observations").WhereBetween("year", [2]interface{}{2015, 2020})
	query, args, err := b.ToSQL()
	require.NoError(t, err)
	assert.Contains(t, query, "year BETWEEN")
	assert.Equal(t, []interface{}{2015, 2020}, args)
}

func TestSelectTimeSeriesOrdersChronologically(t *testing.T) {
	query, args, err := SelectTimeSeries("DCCN_POPRES1").ToSQL()
	require.NoError(t, err)
	assert.Contains(t, query, "FROM observations")
	assert.Contains(t, query, "ORDER BY year ASC, time_period ASC")
	assert.Equal(t, []interface{}{"DCCN_POPRES1"}, args)
}

func TestKeyIsStableForSameInput(t *testing.T) {
	k1 := Key("SELECT 1", []interface{}{"a", 1})
	k2 := Key("SELECT 1", []interface{}{"a", 1})
	k3 := Key("SELECT 1", []interface{}{"a", 2})
	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
}
