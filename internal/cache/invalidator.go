package cache

import (
	"context"
	"log"
	"time"

	"github.com/queryrun/server/internal/storage"
)

const defaultPollInterval = 250 * time.Millisecond

// Invalidator polls cache_invalidation.version and, on any observed change,
// truncates the L2 cache and clears the L1 hook — the background loop of
// spec.md §4.4, grounded on the teacher's ticker-goroutine idiom in
// pkg/services' health checker.
type Invalidator struct {
	invalDB  *storage.DB
	cacheDB  *storage.DB
	l1       *L1
	interval time.Duration
	lastSeen int64
}

// NewInvalidator wires the invalidation DB, the cache_function DB, and the
// L1 LRU hook together. An initial lastSeen is read synchronously so the
// first poll tick doesn't immediately (and uselessly) clear a cold cache.
func NewInvalidator(ctx context.Context, invalDB, cacheDB *storage.DB, l1 *L1) (*Invalidator, error) {
	version, err := storage.InvalidationVersion(ctx, invalDB)
	if err != nil {
		return nil, err
	}
	return &Invalidator{invalDB: invalDB, cacheDB: cacheDB, l1: l1, interval: defaultPollInterval, lastSeen: version}, nil
}

// Run polls until ctx is cancelled. Intended to run on its own goroutine
// started from cmd/server's bootstrap.
func (inv *Invalidator) Run(ctx context.Context) {
	ticker := time.NewTicker(inv.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			inv.tick(ctx)
		}
	}
}

func (inv *Invalidator) tick(ctx context.Context) {
	version, err := storage.InvalidationVersion(ctx, inv.invalDB)
	if err != nil {
		log.Printf("❌ invalidation poll: %v", err)
		return
	}
	if version == inv.lastSeen {
		return
	}

	if err := Truncate(ctx, inv.cacheDB); err != nil {
		log.Printf("❌ invalidation truncate: %v", err)
		return
	}
	inv.l1.Clear()
	inv.lastSeen = version
}
