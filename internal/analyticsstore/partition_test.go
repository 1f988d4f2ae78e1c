package analyticsstore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPartitionExprByYear(t *testing.T) {
	assert.Equal(t, "year", partitionExpr(PartitionByYear))
}

func TestPartitionExprByTerritory(t *testing.T) {
	assert.Equal(t, "territory_code", partitionExpr(PartitionByTerritory))
}

func TestPartitionExprHybridGroupsByDecade(t *testing.T) {
	expr := partitionExpr(PartitionHybrid)
	assert.Contains(t, expr, "intDiv(year, 10)")
	assert.Contains(t, expr, "territory_code")
}

func TestPartitionExprUnknownDefaultsToHybrid(t *testing.T) {
	assert.Equal(t, partitionExpr(PartitionHybrid), partitionExpr(PartitionStrategy("bogus")))
}

func TestObservationsSchemaEmbedsPartitionExpr(t *testing.T) {
	ddl := observationsSchema(PartitionByYear)
	assert.True(t, strings.Contains(ddl, "PARTITION BY year"))
	assert.True(t, strings.Contains(ddl, "ReplacingMergeTree"))
}
