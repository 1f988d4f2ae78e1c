// Package repository is the unified facade over the metadata store, the
// analytics store, and the query cache (§4.D). It composes three
// independently constructed managers the way the teacher's
// internal/net/client.Manager composes a rate limiter, a circuit breaker,
// and a budget tracker — each sub-store stays ignorant of the others, and
// this package is the only place that reasons about both stores at once.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/osservatorio-istat/platform/internal/analyticsstore"
	"github.com/osservatorio-istat/platform/internal/apperr"
	"github.com/osservatorio-istat/platform/internal/auditlog"
	"github.com/osservatorio-istat/platform/internal/metadatastore"
	"github.com/osservatorio-istat/platform/internal/querybuilder"
)

// Repository is the facade. One instance is constructed at process start
// and threaded into the HTTP handlers and the ingestion client.
type Repository struct {
	meta  *metadatastore.Store
	data  *analyticsstore.Store
	cache *querybuilder.QueryCache

	datasets     *metadatastore.DatasetRepo
	audit        *metadatastore.AuditRepo
	preferences  *metadatastore.PreferenceRepo

	prefCache *querybuilder.QueryCache
}

// New builds a Repository over already-constructed stores.
func New(meta *metadatastore.Store, data *analyticsstore.Store, cacheMaxSize int, cacheDefaultTTL time.Duration) *Repository {
	return &Repository{
		meta:        meta,
		data:        data,
		cache:       querybuilder.NewQueryCache(cacheMaxSize, cacheDefaultTTL),
		datasets:    metadatastore.NewDatasetRepo(meta),
		audit:       metadatastore.NewAuditRepo(meta),
		preferences: metadatastore.NewPreferenceRepo(meta),
		prefCache:   querybuilder.NewQueryCache(256, 5*time.Minute),
	}
}

// Close stops the facade's background cache sweeps. The underlying stores
// are owned by the caller and closed separately.
func (r *Repository) Close() {
	r.cache.Stop()
	r.prefCache.Stop()
}

// DatasetView is the joined metadata+analytics view get_dataset_complete
// and list_datasets_complete return.
type DatasetView struct {
	*metadatastore.Dataset
	HasAnalyticsData bool                  `json:"has_analytics_data"`
	Analytics        *analyticsstore.Stats `json:"analytics_stats,omitempty"`
}

// RegisterDatasetComplete writes metadata, ensures the analytics schema
// exists, and emits an audit entry, succeeding only if both stores accept
// the write. On analytics failure the metadata write is rolled back —
// registration is atomic across stores even though the stores themselves
// never share a transaction (§5).
func (r *Repository) RegisterDatasetComplete(ctx context.Context, d *metadatastore.Dataset, userID string) error {
	start := time.Now()

	txErr := r.meta.Transaction(ctx, func(tx *sqlx.Tx) error {
		if err := r.datasets.Insert(ctx, tx, d); err != nil {
			return err
		}
		return r.audit.Insert(ctx, tx, &metadatastore.AuditEntry{
			UserID:       userID,
			Action:       "register_dataset",
			ResourceType: "dataset",
			ResourceID:   d.DatasetID,
			Success:      true,
		})
	})
	if txErr != nil {
		return apperr.Wrap(apperr.KindConflict, "register dataset metadata failed", txErr)
	}

	if err := r.data.Migrate(ctx); err != nil {
		// Roll back the metadata write since the analytics side isn't ready.
		if delErr := r.meta.Transaction(ctx, func(tx *sqlx.Tx) error {
			return r.datasets.Delete(ctx, tx, d.DatasetID)
		}); delErr != nil {
			log.Error().Err(delErr).Str("dataset_id", d.DatasetID).Msg("repository: rollback of metadata write failed after analytics failure")
		}
		return apperr.Wrap(apperr.KindAnalyticsUnavailable, "analytics schema not ready", err)
	}

	log.Info().Str("dataset_id", d.DatasetID).Dur("elapsed", time.Since(start)).Msg("repository: dataset registered")
	return nil
}

// GetDatasetComplete joins metadata with analytics stats into a single
// view, returning apperr.KindNotFound if the dataset doesn't exist.
func (r *Repository) GetDatasetComplete(ctx context.Context, datasetID string) (*DatasetView, error) {
	d, err := r.datasets.Get(ctx, datasetID)
	if err != nil {
		var nf *metadatastore.NotFoundError
		if errors.As(err, &nf) {
			return nil, apperr.NotFound("dataset", datasetID)
		}
		return nil, apperr.Wrap(apperr.KindInternal, "get dataset metadata failed", err)
	}

	view := &DatasetView{Dataset: d}
	stats, err := r.data.DatasetStats(ctx, datasetID)
	if err != nil {
		log.Warn().Err(err).Str("dataset_id", datasetID).Msg("repository: analytics stats unavailable")
		return view, nil
	}
	view.Analytics = &stats
	view.HasAnalyticsData = stats.RecordCount > 0
	return view, nil
}

// ListDatasetsComplete lists datasets, optionally filtered by category and
// by analytics-presence. A dataset whose analytics lookup errors is
// excluded from a withAnalytics=true result, since its has_analytics_data
// can't be determined.
func (r *Repository) ListDatasetsComplete(ctx context.Context, category string, withAnalytics *bool) ([]*DatasetView, error) {
	datasets, err := r.datasets.List(ctx, category)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "list datasets failed", err)
	}

	views := make([]*DatasetView, 0, len(datasets))
	for _, d := range datasets {
		hasData, err := r.data.HasData(ctx, d.DatasetID)
		if err != nil {
			if withAnalytics != nil {
				log.Warn().Err(err).Str("dataset_id", d.DatasetID).Msg("repository: excluding dataset from with_analytics filter after lookup error")
				continue
			}
			views = append(views, &DatasetView{Dataset: d})
			continue
		}
		if withAnalytics != nil && *withAnalytics != hasData {
			continue
		}
		views = append(views, &DatasetView{Dataset: d, HasAnalyticsData: hasData})
	}
	return views, nil
}

// SetUserPreference writes through to the metadata store and invalidates
// any cached read for this key.
func (r *Repository) SetUserPreference(ctx context.Context, userID, key, value, valueKind string) error {
	pref := &metadatastore.UserPreference{UserID: userID, Key: key, ValueKind: valueKind, Value: value}
	if err := r.preferences.Set(ctx, pref); err != nil {
		return apperr.Wrap(apperr.KindInternal, "set user preference failed", err)
	}
	r.prefCache.Invalidate(preferenceCacheKey(userID, key))
	return nil
}

// GetUserPreference reads through an in-process TTL cache before falling
// back to the metadata store.
func (r *Repository) GetUserPreference(ctx context.Context, userID, key string, cacheTTL time.Duration) (*metadatastore.UserPreference, error) {
	cacheKey := preferenceCacheKey(userID, key)
	if cached, ok := r.prefCache.Get(cacheKey); ok {
		return cached.(*metadatastore.UserPreference), nil
	}

	pref, err := r.preferences.Get(ctx, userID, key)
	if err != nil {
		var nf *metadatastore.NotFoundError
		if errors.As(err, &nf) {
			return nil, apperr.NotFound("user_preference", userID+"/"+key)
		}
		return nil, apperr.Wrap(apperr.KindInternal, "get user preference failed", err)
	}
	r.prefCache.Set(cacheKey, pref, cacheTTL)
	return pref, nil
}

func preferenceCacheKey(userID, key string) string {
	return "pref:" + userID + ":" + key
}

// ExecuteAnalyticsQuery runs a query against the analytics store, caching
// results by content hash and recording an audit entry with the elapsed
// execution time. Failures are always logged with the error text before
// being returned, per §4.D.
func (r *Repository) ExecuteAnalyticsQuery(ctx context.Context, sql string, params []interface{}, userID string, useCache bool) ([]map[string]interface{}, error) {
	start := time.Now()
	key := querybuilder.Key(sql, params)

	if useCache {
		if cached, ok := r.cache.Get(key); ok {
			return cached.([]map[string]interface{}), nil
		}
	}

	rows, err := r.data.ExecuteQuery(ctx, sql, params...)
	elapsed := time.Since(start)

	auditErr := r.audit.Insert(ctx, nil, &metadatastore.AuditEntry{
		UserID:          userID,
		Action:          "execute_analytics_query",
		ResourceType:    "analytics_query",
		Success:         err == nil,
		ErrorMessage:    errString(err),
		ExecutionTimeMs: float64(elapsed.Microseconds()) / 1000.0,
	})
	if auditErr != nil {
		log.Error().Err(auditErr).Msg("repository: failed to audit analytics query")
	}

	if err != nil {
		log.Error().Err(err).Str("sql", sql).Msg("repository: analytics query failed")
		return nil, apperr.Wrap(apperr.KindAnalyticsUnavailable, "analytics query failed", err)
	}

	if useCache {
		r.cache.Set(key, rows, 0)
	}
	return rows, nil
}

// BulkInsertObservations writes a batch of observations straight to the
// analytics store, used by the ingestion client's sync_to_repository.
func (r *Repository) BulkInsertObservations(ctx context.Context, observations []analyticsstore.Observation) error {
	return r.data.BulkInsert(ctx, observations)
}

// RecordSync updates a dataset's records_synced/sync_time metadata after a
// successful ingestion sync.
func (r *Repository) RecordSync(ctx context.Context, datasetID string, recordCount int) error {
	return r.meta.Transaction(ctx, func(tx *sqlx.Tx) error {
		return r.datasets.UpdateSyncStats(ctx, tx, datasetID, int64(recordCount), time.Now())
	})
}

// Audit records a single audit entry outside of any metadata transaction,
// for callers (like the ingestion client) that aren't already inside one.
// Details passes through auditlog.Redact first so a leaked audit row never
// carries a plaintext secret.
func (r *Repository) Audit(ctx context.Context, entry *metadatastore.AuditEntry) error {
	entry.Details = auditlog.Redact(entry.Details)
	return r.audit.Insert(ctx, nil, entry)
}

// GetDatasetTimeSeries returns an ordered observation sequence for a
// dataset, AND-filtered by the optional arguments. An unknown dataset
// returns an empty slice rather than an error, per §4.D.
func (r *Repository) GetDatasetTimeSeries(ctx context.Context, datasetID, territory, measure string, startYear, endYear int) ([]analyticsstore.Observation, error) {
	if _, err := r.datasets.Get(ctx, datasetID); err != nil {
		return []analyticsstore.Observation{}, nil
	}
	rows, err := r.data.TimeSeries(ctx, datasetID, territory, measure, startYear, endYear)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindAnalyticsUnavailable, "time series query failed", err)
	}
	return rows, nil
}

// ListTerritories returns every distinct territory seen across all
// observations, for the OData Territories entity set.
func (r *Repository) ListTerritories(ctx context.Context) ([]map[string]interface{}, error) {
	sql, args, err := querybuilder.SelectDistinctTerritories().ToSQL()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "build territories query failed", err)
	}
	return r.ExecuteAnalyticsQuery(ctx, sql, args, "odata", true)
}

// ListMeasures returns every distinct measure seen across all
// observations, for the OData Measures entity set.
func (r *Repository) ListMeasures(ctx context.Context) ([]map[string]interface{}, error) {
	sql, args, err := querybuilder.SelectDistinctMeasures().ToSQL()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "build measures query failed", err)
	}
	return r.ExecuteAnalyticsQuery(ctx, sql, args, "odata", true)
}

// SystemStatus is the get_system_status() payload shape.
type SystemStatus struct {
	Metadata  StoreStatus            `json:"metadata"`
	Analytics StoreStatus            `json:"analytics"`
	Cache     querybuilder.CacheStats `json:"cache"`
	Timestamp time.Time              `json:"timestamp"`
}

// StoreStatus reports one store's health.
type StoreStatus struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// GetSystemStatus never raises: per-store failures are captured into the
// payload instead of propagated.
func (r *Repository) GetSystemStatus(ctx context.Context) SystemStatus {
	metaHealthy, metaDetail := r.meta.Status(ctx)
	dataHealthy, dataDetail := r.data.Status(ctx)

	status := func(healthy bool) string {
		if healthy {
			return "healthy"
		}
		return "unhealthy"
	}

	return SystemStatus{
		Metadata:  StoreStatus{Status: status(metaHealthy), Detail: metaDetail},
		Analytics: StoreStatus{Status: status(dataHealthy), Detail: dataDetail},
		Cache:     r.cache.Stats(),
		Timestamp: time.Now(),
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
