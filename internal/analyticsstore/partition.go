package analyticsstore

import "fmt"

// PartitionStrategy names one of the ClickHouse PARTITION BY expressions
// below, the Go-native counterpart of the year/territory/hybrid logical
// partitioning strategies the original Python analytics layer kept in
// per-partition DuckDB tables: ClickHouse computes and prunes partitions natively from the
// expression, so there is no separate partition-key/view-per-partition
// bookkeeping to maintain in application code.
type PartitionStrategy string

const (
	// PartitionByYear groups observations by their year column alone,
	// favoring time-range queries across every territory.
	PartitionByYear PartitionStrategy = "year"
	// PartitionByTerritory groups by territory_code alone, favoring
	// cross-year queries scoped to one or a few territories.
	PartitionByTerritory PartitionStrategy = "territory"
	// PartitionHybrid groups by a year decade and territory_code, the
	// default: it bounds partition count (one per decade, not per year)
	// while still letting territory-scoped queries prune.
	PartitionHybrid PartitionStrategy = "hybrid"
)

// partitionExpr returns the ClickHouse PARTITION BY expression for
// strategy, defaulting to PartitionHybrid for an unrecognized or empty
// value rather than failing startup over a bad config string.
func partitionExpr(strategy PartitionStrategy) string {
	switch strategy {
	case PartitionByYear:
		return "year"
	case PartitionByTerritory:
		return "territory_code"
	case PartitionHybrid:
		return "(intDiv(year, 10), territory_code)"
	default:
		return "(intDiv(year, 10), territory_code)"
	}
}

func observationsSchema(strategy PartitionStrategy) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS observations (
		dataset_id     String,
		year           UInt16,
		time_period    String,
		territory_code String,
		territory_name String,
		measure_code   String,
		measure_name   String,
		obs_value      Nullable(Float64),
		obs_status     String,
		inserted_at    DateTime DEFAULT now()
	) ENGINE = ReplacingMergeTree(inserted_at)
	PARTITION BY %s
	ORDER BY (dataset_id, time_period, territory_code, measure_code)`, partitionExpr(strategy))
}
