package odata

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRows() []map[string]interface{} {
	return []map[string]interface{}{
		{"territory_code": "IT", "territory_name": "Italy", "obs_value": 59000000.0},
		{"territory_code": "FR", "territory_name": "France", "obs_value": 67000000.0},
		{"territory_code": "DE", "territory_name": "Germany", "obs_value": 83000000.0},
	}
}

func TestParseFilterEqAndContains(t *testing.T) {
	clauses, err := ParseFilter(`territory_code eq 'IT' and contains(territory_name,'Ital')`)
	require.NoError(t, err)
	require.Len(t, clauses, 2)
	assert.Equal(t, OpEq, clauses[0].Op)
	assert.Equal(t, OpContains, clauses[1].Op)
}

func TestFindEqualsLocatesTopLevelClause(t *testing.T) {
	value, ok := FindEquals(`DatasetId eq 'POPRES1'`, "DatasetId")
	require.True(t, ok)
	assert.Equal(t, "POPRES1", value)
}

func TestFindEqualsMissesWhenAbsent(t *testing.T) {
	_, ok := FindEquals(`territory_code eq 'IT'`, "DatasetId")
	assert.False(t, ok)
}

func TestApplyFiltersOrdersAndPaginates(t *testing.T) {
	opts := QueryOptions{
		Clauses:  []Clause{{Property: "obs_value", Op: OpGt, Value: "60000000"}},
		OrderBy:  "obs_value",
		OrderDir: "desc",
	}
	page, total := Apply(sampleRows(), opts)
	require.Equal(t, 2, total)
	require.Len(t, page, 2)
	assert.Equal(t, "DE", page[0]["territory_code"])
}

func TestApplyRespectsTopAndSkip(t *testing.T) {
	top := 1
	skip := 1
	opts := QueryOptions{Top: &top, Skip: &skip, OrderBy: "territory_code"}
	page, total := Apply(sampleRows(), opts)
	assert.Equal(t, 3, total)
	require.Len(t, page, 1)
	assert.Equal(t, "FR", page[0]["territory_code"])
}

func TestApplyProjectsSelectedFields(t *testing.T) {
	opts := QueryOptions{Select: []string{"territory_code"}}
	page, _ := Apply(sampleRows(), opts)
	for _, row := range page {
		_, hasName := row["territory_name"]
		assert.False(t, hasName)
		_, hasCode := row["territory_code"]
		assert.True(t, hasCode)
	}
}

func TestApplyResolvesPascalCaseProperties(t *testing.T) {
	// The CSDL advertises PascalCase properties while rows carry the
	// stores' snake_case JSON keys; both spellings must resolve.
	opts := QueryOptions{
		Clauses: []Clause{{Property: "TerritoryCode", Op: OpEq, Value: "IT"}},
		Select:  []string{"TerritoryName"},
	}
	page, total := Apply(sampleRows(), opts)
	require.Equal(t, 1, total)
	require.Len(t, page, 1)
	assert.Equal(t, "Italy", page[0]["TerritoryName"])
}

func TestApplyOrdersByPascalCaseProperty(t *testing.T) {
	opts := QueryOptions{OrderBy: "TerritoryCode", OrderDir: "desc"}
	page, _ := Apply(sampleRows(), opts)
	require.Len(t, page, 3)
	assert.Equal(t, "IT", page[0]["territory_code"])
}

func TestParseQueryOptionsRejectsNegativeTop(t *testing.T) {
	q := url.Values{"$top": {"-1"}}
	_, err := ParseQueryOptions(q)
	assert.Error(t, err)
}
