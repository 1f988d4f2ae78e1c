package analyticsstore

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Observation is one measured value tied to a (dataset_id, time_period,
// territory_code, measure_code) key (§3.1). ReplacingMergeTree gives the
// natural-key upsert semantics §4.B expects: a later insert with the same
// ordering key wins once ClickHouse merges parts, without the store having
// to issue an explicit UPDATE.
type Observation struct {
	DatasetID     string   `ch:"dataset_id" json:"dataset_id"`
	Year          uint16   `ch:"year" json:"year"`
	TimePeriod    string   `ch:"time_period" json:"time_period"`
	TerritoryCode string   `ch:"territory_code" json:"territory_code"`
	TerritoryName string   `ch:"territory_name" json:"territory_name"`
	MeasureCode   string   `ch:"measure_code" json:"measure_code"`
	MeasureName   string   `ch:"measure_name" json:"measure_name"`
	ObsValue      *float64 `ch:"obs_value" json:"obs_value"`
	ObsStatus     string   `ch:"obs_status" json:"obs_status"`
}

// Stats is the derived DatasetAnalyticsStats view (§3.1), computed on
// demand rather than maintained incrementally.
type Stats struct {
	RecordCount    int64 `json:"record_count"`
	MinYear        int   `json:"min_year"`
	MaxYear        int   `json:"max_year"`
	TerritoryCount int   `json:"territory_count"`
	MeasureCount   int   `json:"measure_count"`
}

// BulkInsert appends observations in a single batch insert, the shape
// ClickHouse's client library is built around: one Prepared Batch per
// call, rather than row-at-a-time inserts.
func (s *Store) BulkInsert(ctx context.Context, observations []Observation) error {
	if len(observations) == 0 {
		return nil
	}
	conn, err := s.connection(ctx)
	if err != nil {
		return err
	}

	batch, err := conn.PrepareBatch(ctx, `INSERT INTO observations (
		dataset_id, year, time_period, territory_code, territory_name,
		measure_code, measure_name, obs_value, obs_status
	)`)
	if err != nil {
		return fmt.Errorf("analyticsstore: prepare batch: %w", err)
	}

	for _, o := range observations {
		if err := batch.Append(
			o.DatasetID, o.Year, o.TimePeriod, o.TerritoryCode, o.TerritoryName,
			o.MeasureCode, o.MeasureName, o.ObsValue, o.ObsStatus,
		); err != nil {
			return fmt.Errorf("analyticsstore: append row: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("analyticsstore: send batch: %w", err)
	}
	log.Debug().Str("dataset_id", observations[0].DatasetID).Int("rows", len(observations)).Msg("analyticsstore: bulk insert complete")
	return nil
}

// TimeSeries implements get_dataset_time_series's analytics half: an
// ordered sequence of observations for a dataset, AND-filtered by the
// optional territory/measure/year-range arguments.
func (s *Store) TimeSeries(ctx context.Context, datasetID, territory, measure string, startYear, endYear int) ([]Observation, error) {
	conn, err := s.connection(ctx)
	if err != nil {
		return nil, err
	}

	query := `SELECT dataset_id, year, time_period, territory_code, territory_name,
		measure_code, measure_name, obs_value, obs_status
		FROM observations FINAL WHERE dataset_id = ?`
	args := []interface{}{datasetID}

	if territory != "" {
		query += " AND territory_code = ?"
		args = append(args, territory)
	}
	if measure != "" {
		query += " AND measure_code = ?"
		args = append(args, measure)
	}
	if startYear > 0 {
		query += " AND year >= ?"
		args = append(args, startYear)
	}
	if endYear > 0 {
		query += " AND year <= ?"
		args = append(args, endYear)
	}
	query += " ORDER BY year, time_period"

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("analyticsstore: time series query: %w", err)
	}
	defer rows.Close()

	var out []Observation
	for rows.Next() {
		var o Observation
		if err := rows.Scan(&o.DatasetID, &o.Year, &o.TimePeriod, &o.TerritoryCode, &o.TerritoryName,
			&o.MeasureCode, &o.MeasureName, &o.ObsValue, &o.ObsStatus); err != nil {
			return nil, fmt.Errorf("analyticsstore: scan time series row: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// DatasetStats computes the DatasetAnalyticsStats view for one dataset.
func (s *Store) DatasetStats(ctx context.Context, datasetID string) (Stats, error) {
	conn, err := s.connection(ctx)
	if err != nil {
		return Stats{}, err
	}

	const q = `SELECT
		count(*),
		min(year),
		max(year),
		uniqExact(territory_code),
		uniqExact(measure_code)
		FROM observations FINAL WHERE dataset_id = ?`

	row := conn.QueryRow(ctx, q, datasetID)
	var st Stats
	if err := row.Scan(&st.RecordCount, &st.MinYear, &st.MaxYear, &st.TerritoryCount, &st.MeasureCount); err != nil {
		return Stats{}, fmt.Errorf("analyticsstore: dataset stats: %w", err)
	}
	return st, nil
}

// DeleteDataset removes every observation belonging to a dataset. Used
// only when a dataset's metadata row is also being deleted in the same
// logical operation (§3.2) — this store never cascades on its own.
func (s *Store) DeleteDataset(ctx context.Context, datasetID string) error {
	conn, err := s.connection(ctx)
	if err != nil {
		return err
	}
	if err := conn.Exec(ctx, `ALTER TABLE observations DELETE WHERE dataset_id = ?`, datasetID); err != nil {
		return fmt.Errorf("analyticsstore: delete dataset observations: %w", err)
	}
	return nil
}

// HasData reports whether a dataset has at least one observation, backing
// list_datasets_complete's with_analytics filter.
func (s *Store) HasData(ctx context.Context, datasetID string) (bool, error) {
	conn, err := s.connection(ctx)
	if err != nil {
		return false, err
	}
	const q = `SELECT count(*) FROM observations FINAL WHERE dataset_id = ? LIMIT 1`
	row := conn.QueryRow(ctx, q, datasetID)
	var count int64
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("analyticsstore: has data: %w", err)
	}
	return count > 0, nil
}
