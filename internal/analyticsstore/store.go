// Package analyticsstore is the columnar, read-mostly store for
// Observation rows (§4.B). It wraps clickhouse-go/v2 the way the teacher's
// internal/infrastructure/db package wraps lib/pq for postgres: a lazily
// established connection, pool configuration up front, and a health
// checker that never panics when the backend is unreachable.
package analyticsstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/rs/zerolog/log"
)

// Store is the analytics store handle. Unlike metadatastore.Store, the
// ClickHouse connection is opened lazily on first use rather than at
// construction time, per §4.B's "lazy connection: established on first
// use" contract — a dataset registration or query can be attempted before
// the analytics backend has ever answered a ping.
type Store struct {
	addr      []string
	database  string
	timeout   time.Duration
	partition PartitionStrategy

	mu   sync.Mutex
	conn clickhouse.Conn
	err  error
}

// New builds a Store that will dial addr (one or more host:port pairs, for
// failover) the first time a query runs, partitioning the observations
// table with PartitionHybrid.
func New(addr []string, database string, timeout time.Duration) *Store {
	return &Store{addr: addr, database: database, timeout: timeout, partition: PartitionHybrid}
}

// NewWithPartitionStrategy is New with an explicit partitioning strategy,
// used when the operator's config overrides the hybrid default.
func NewWithPartitionStrategy(addr []string, database string, timeout time.Duration, strategy PartitionStrategy) *Store {
	return &Store{addr: addr, database: database, timeout: timeout, partition: strategy}
}

// connection returns the live ClickHouse connection, dialing on first call.
// A prior dial failure is cached and returned again rather than retried on
// every single call — callers needing a fresh attempt restart the process,
// matching the "lazy connection" contract's all-or-nothing failure mode.
func (s *Store) connection(ctx context.Context) (clickhouse.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		return s.conn, nil
	}
	if s.err != nil {
		return nil, s.err
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: s.addr,
		Auth: clickhouse.Auth{Database: s.database},
		DialTimeout: s.timeout,
		Settings: clickhouse.Settings{
			"max_execution_time": 30,
		},
	})
	if err != nil {
		s.err = fmt.Errorf("analyticsstore: open: %w", err)
		return nil, s.err
	}

	pingCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		s.err = fmt.Errorf("analyticsstore: ping: %w", err)
		return nil, s.err
	}

	s.conn = conn
	return conn, nil
}

// Migrate ensures the observations table exists; it creates no views.
// It is not run at process startup: repository.RegisterDatasetComplete
// calls it, so a down analytics backend fails that registration rather
// than the boot.
func (s *Store) Migrate(ctx context.Context) error {
	conn, err := s.connection(ctx)
	if err != nil {
		return err
	}
	for _, stmt := range []string{observationsSchema(s.partition)} {
		if err := conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("analyticsstore: migrate: %w", err)
		}
	}
	return nil
}

// Close releases the underlying connection, if one was ever established.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// Status reports basic store health for get_system_status(); a failed
// dial is reported as unhealthy rather than propagated as an error.
func (s *Store) Status(ctx context.Context) (healthy bool, detail string) {
	conn, err := s.connection(ctx)
	if err != nil {
		return false, err.Error()
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		return false, err.Error()
	}
	return true, "ok"
}

// ExecuteQuery runs an arbitrary parameterized query against the
// analytics store and returns rows as maps, used by
// repository.ExecuteAnalyticsQuery and by admin endpoints that need raw
// access beyond the specialized observation queries below.
func (s *Store) ExecuteQuery(ctx context.Context, query string, args ...interface{}) ([]map[string]interface{}, error) {
	conn, err := s.connection(ctx)
	if err != nil {
		log.Error().Err(err).Msg("analyticsstore: connection unavailable")
		return nil, err
	}

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("analyticsstore: query: %w", err)
	}
	defer rows.Close()

	cols := rows.Columns()
	var out []map[string]interface{}
	for rows.Next() {
		scanTargets := make([]interface{}, len(cols))
		raw := make([]interface{}, len(cols))
		for i := range raw {
			scanTargets[i] = &raw[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, fmt.Errorf("analyticsstore: scan: %w", err)
		}
		row := make(map[string]interface{}, len(cols))
		for i, c := range cols {
			row[c] = raw[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
