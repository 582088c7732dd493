// Package cache implements the two-tier response cache of spec.md §4.4:
// an in-process LRU for SELECT memoisation and a persistent per-path
// response cache, kept consistent by a version-polling invalidation loop.
package cache

import (
	"encoding/json"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultL1Size = 1000

type l1Entry struct {
	value      json.RawMessage
	insertedAt time.Time
	ttl        time.Duration
}

func (e l1Entry) expired(now time.Time) bool {
	return now.Sub(e.insertedAt) >= e.ttl
}

// L1 memoises sqlite.query SELECT results keyed by (db, sql, params, ttl).
// It is a single process-wide structure, internally thread-safe via the
// underlying LRU's own locking (spec.md §5).
type L1 struct {
	cache *lru.Cache[string, l1Entry]
}

// NewL1 builds the bounded LRU; size<=0 uses the spec's suggested ~1000.
func NewL1(size int) (*L1, error) {
	if size <= 0 {
		size = defaultL1Size
	}
	c, err := lru.New[string, l1Entry](size)
	if err != nil {
		return nil, fmt.Errorf("new L1 cache: %w", err)
	}
	return &L1{cache: c}, nil
}

// Key builds the memoisation key for one (db, sql, params, ttl) tuple.
func Key(db, sqlText string, paramsJSON []byte, ttlMs int64) string {
	return fmt.Sprintf("%s\x00%s\x00%s\x00%d", db, sqlText, paramsJSON, ttlMs)
}

// Get returns the memoised value if present and not yet expired.
func (l *L1) Get(key string) (json.RawMessage, bool) {
	entry, ok := l.cache.Get(key)
	if !ok {
		return nil, false
	}
	if entry.expired(time.Now()) {
		l.cache.Remove(key)
		return nil, false
	}
	return entry.value, true
}

// Put stores value under key for ttl.
func (l *L1) Put(key string, value json.RawMessage, ttl time.Duration) {
	l.cache.Add(key, l1Entry{value: value, insertedAt: time.Now(), ttl: ttl})
}

// Clear drops every memoised entry; called by the invalidation loop when
// the version counter moves (spec.md §4.4).
func (l *L1) Clear() {
	l.cache.Purge()
}
