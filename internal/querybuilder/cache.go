package querybuilder

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CacheStats mirrors the counters §4.C requires: hits, misses, evictions,
// expired, size.
type CacheStats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Expired   int64 `json:"expired"`
	Size      int   `json:"size"`
}

type cacheEntry struct {
	value   interface{}
	expires time.Time
}

// QueryCache is a thread-safe, content-addressed cache for query results.
// Eviction at max_size uses golang-lru's accurate LRU tracking in place of
// a manual linear scan for the oldest access time; TTL expiry and the
// hit/miss/expired counters are tracked the way the teacher's TTLCache
// tracks them.
type QueryCache struct {
	mu      sync.Mutex
	entries *lru.Cache[string, *cacheEntry]

	defaultTTL time.Duration
	stats      CacheStats

	stopCh chan struct{}
	once   sync.Once
}

// NewQueryCache builds a cache with the given max size and default TTL.
// A background sweep removes expired entries every minute so memory isn't
// held by keys nobody accesses again; lazy removal on Get also applies.
func NewQueryCache(maxSize int, defaultTTL time.Duration) *QueryCache {
	qc := &QueryCache{defaultTTL: defaultTTL, stopCh: make(chan struct{})}
	entries, err := lru.New[string, *cacheEntry](maxSize)
	if err != nil {
		// maxSize <= 0 is a programmer error; fall back to a sane minimum
		// rather than letting a misconfigured cache panic at request time.
		entries, _ = lru.New[string, *cacheEntry](1)
	}
	qc.entries = entries
	go qc.sweep()
	return qc
}

// Key derives the cache's content-hash key for a (sql, params) pair.
func Key(sql string, params []interface{}) string {
	h := sha256.New()
	h.Write([]byte(sql))
	enc, _ := json.Marshal(params)
	h.Write(enc)
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns a cached value if present and unexpired. An expired entry is
// removed lazily, counted once as a miss and once as expired.
func (qc *QueryCache) Get(key string) (interface{}, bool) {
	qc.mu.Lock()
	defer qc.mu.Unlock()

	entry, ok := qc.entries.Get(key)
	if !ok {
		qc.stats.Misses++
		return nil, false
	}
	if time.Now().After(entry.expires) {
		qc.entries.Remove(key)
		qc.stats.Misses++
		qc.stats.Expired++
		return nil, false
	}
	qc.stats.Hits++
	return entry.value, true
}

// Set stores value under key with ttl, or the cache's default TTL if
// ttl <= 0. Evictions counts only capacity-triggered removals here —
// TTL expiries are counted under Expired, and explicit invalidations are
// not counted at all.
func (qc *QueryCache) Set(key string, value interface{}, ttl time.Duration) {
	if ttl <= 0 {
		ttl = qc.defaultTTL
	}
	qc.mu.Lock()
	defer qc.mu.Unlock()
	if evicted := qc.entries.Add(key, &cacheEntry{value: value, expires: time.Now().Add(ttl)}); evicted {
		qc.stats.Evictions++
	}
}

// Invalidate removes a single key, used when a write makes a cached
// result stale (e.g. a new sync invalidates that dataset's time series).
func (qc *QueryCache) Invalidate(key string) {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	qc.entries.Remove(key)
}

// Clear empties the cache and resets counters.
func (qc *QueryCache) Clear() {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	qc.entries.Purge()
	qc.stats = CacheStats{}
}

// Stats returns a snapshot of the cache's counters.
func (qc *QueryCache) Stats() CacheStats {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	s := qc.stats
	s.Size = qc.entries.Len()
	return s
}

// Stop shuts down the background sweep goroutine. Safe to call more than
// once.
func (qc *QueryCache) Stop() {
	qc.once.Do(func() { close(qc.stopCh) })
}

func (qc *QueryCache) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-qc.stopCh:
			return
		case <-ticker.C:
			qc.removeExpired()
		}
	}
}

func (qc *QueryCache) removeExpired() {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	now := time.Now()
	for _, key := range qc.entries.Keys() {
		entry, ok := qc.entries.Peek(key)
		if ok && now.After(entry.expires) {
			qc.entries.Remove(key)
			qc.stats.Expired++
		}
	}
}
