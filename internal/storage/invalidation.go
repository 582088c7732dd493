package storage

import (
	"context"
	"fmt"
)

// InvalidationVersion reads the current monotonic version counter.
func InvalidationVersion(ctx context.Context, db *DB) (int64, error) {
	var version int64
	if err := db.GetContext(ctx, &version, "SELECT version FROM cache_invalidation LIMIT 1"); err != nil {
		return 0, fmt.Errorf("read invalidation version: %w", err)
	}
	return version, nil
}

// BumpInvalidation increments the version counter. Any write to the row
// triggers the schema's BEFORE UPDATE trigger, which bumps `version` and
// discards the caller's values (spec.md §3) — so the statement's own SET
// clause is irrelevant, only its side effect matters.
func BumpInvalidation(ctx context.Context, db *DB) error {
	if _, err := db.ExecContext(ctx, "UPDATE cache_invalidation SET version = version"); err != nil {
		return fmt.Errorf("bump invalidation version: %w", err)
	}
	return nil
}
