package storage

import (
	"context"
	"fmt"
)

// RunMigration executes query (which may be multiple statements) inside a
// single BEGIN IMMEDIATE/COMMIT transaction, so a failing statement leaves
// no partial commit. Grounded on
// original_source/crates/server/src/controllers/migration.rs.
func RunMigration(ctx context.Context, db *DB, query string) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return fmt.Errorf("begin immediate: %w", err)
	}
	if _, err := conn.ExecContext(ctx, query); err != nil {
		_, _ = conn.ExecContext(ctx, "ROLLBACK")
		return fmt.Errorf("migration failed: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	return nil
}
