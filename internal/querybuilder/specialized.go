package querybuilder

// SelectTimeSeries builds the query backing get_dataset_time_series:
// every observation for one dataset, ordered chronologically.
func SelectTimeSeries(datasetID string) *Builder {
	return Select("year", "time_period", "territory_code", "territory_name",
		"measure_code", "measure_name", "obs_value", "obs_status").
		From("observations").
		Where("dataset_id", "=", datasetID).
		OrderBy("year", "ASC").
		OrderBy("time_period", "ASC")
}

// SelectTerritoryComparison builds a query comparing every territory's
// value for one measure in one year.
func SelectTerritoryComparison(measureCode string, year int) *Builder {
	return Select("territory_code", "territory_name", "obs_value", "obs_status").
		From("observations").
		Where("measure_code", "=", measureCode).
		Where("year", "=", year).
		OrderBy("territory_code", "ASC")
}

// SelectCategoryTrends builds a query over every dataset tagged with a
// category, aggregated by year. Category isn't itself an observations
// column; callers join against the metadata store's datasets table (or
// pre-resolve a list of dataset_ids) before calling WhereIn("dataset_id",
// ...) on the result.
func SelectCategoryTrends(datasetIDs []interface{}) *Builder {
	return Select("dataset_id", "year", "count(*)", "avg(obs_value)").
		From("observations").
		WhereIn("dataset_id", datasetIDs).
		GroupBy("dataset_id", "year").
		OrderBy("year", "ASC")
}

// YearRange applies a year BETWEEN a AND b filter to an existing builder.
func YearRange(b *Builder, start, end int) *Builder {
	return b.WhereBetween("year", [2]interface{}{start, end})
}

// SelectDistinctTerritories builds a query listing every distinct
// territory seen across all observations, for the OData Territories
// entity set.
func SelectDistinctTerritories() *Builder {
	return Select("territory_code", "territory_name").
		From("observations").
		Distinct().
		OrderBy("territory_code", "ASC")
}

// SelectDistinctMeasures builds a query listing every distinct measure
// seen across all observations, for the OData Measures entity set.
func SelectDistinctMeasures() *Builder {
	return Select("measure_code", "measure_name").
		From("observations").
		Distinct().
		OrderBy("measure_code", "ASC")
}

// Territories applies a territory_code IN (...) filter to an existing
// builder.
func Territories(b *Builder, codes []string) *Builder {
	values := make([]interface{}, len(codes))
	for i, c := range codes {
		values[i] = c
	}
	return b.WhereIn("territory_code", values)
}
