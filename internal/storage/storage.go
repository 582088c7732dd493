// Package storage owns every SQLite connection the server opens: the
// pragma sequence and scalar-function registration all connections share
// (spec.md §4.8), the six system database schemas, and the branch/VACUUM
// INTO snapshot operations. User databases are opened by each call path
// that needs them (host calls, /_/query, migrations, branches) and closed
// afterwards; the six system databases are opened once at boot and the
// same handles are shared by every request. Each handle is limited to a
// single SQLite connection.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/jmoiron/sqlx"

	_ "modernc.org/sqlite"
)

// System database file names under the configured DBs directory, grounded
// on original_source/crates/server/src/env.rs's fixed file layout.
const (
	ConfigDB        = "query_config.sql"
	AssetDB         = "query_asset.sql"
	FunctionDB      = "query_function.sql"
	PluginDB        = "query_plugin.sql"
	CacheFunctionDB = "query_cache_function.sql"
	CacheInvalDB    = "query_cache_invalidation.sql"
)

// DB wraps a single SQLite connection handle the way the teacher's
// pkg/database.DB wraps *sqlx.DB, scoped to one database file and one
// connection.
type DB struct {
	*sqlx.DB
	path string
}

// attachLimit controls how many databases may be ATTACHed to a connection.
// System databases never ATTACH anything; branch creation and user-DB
// access need exactly one (the branch target, or a migration's companion
// database).
type attachLimit int

const (
	noAttach  attachLimit = 0
	oneAttach attachLimit = 1
)

// Open opens the SQLite file at dbsPath/name, applies the pragma sequence
// and attached-database limit of spec.md §4.8, and registers the custom
// scalar functions. secret is the HS256 signing key used by the token()
// scalar function.
func Open(ctx context.Context, dbsPath, name string, secret []byte) (*DB, error) {
	return open(ctx, filepath.Join(dbsPath, name), noAttach, secret)
}

// OpenUser opens an arbitrary user-owned database (or a branch file),
// which is allowed one attached database for branch/migration operations.
func OpenUser(ctx context.Context, dbsPath, name string, secret []byte) (*DB, error) {
	return open(ctx, filepath.Join(dbsPath, name), oneAttach, secret)
}

func open(ctx context.Context, path string, limit attachLimit, secret []byte) (*DB, error) {
	dsn := fmt.Sprintf("file:%s", path)
	sdb, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	sdb.SetMaxOpenConns(1)

	if err := applyPragmas(ctx, sdb.DB); err != nil {
		sdb.Close()
		return nil, fmt.Errorf("apply pragmas on %s: %w", path, err)
	}
	if err := setAttachedLimit(ctx, sdb.DB, int(limit)); err != nil {
		sdb.Close()
		return nil, fmt.Errorf("set attached-db limit on %s: %w", path, err)
	}
	if err := registerFunctions(ctx, sdb.DB, secret); err != nil {
		sdb.Close()
		return nil, fmt.Errorf("register scalar functions on %s: %w", path, err)
	}

	return &DB{DB: sdb, path: path}, nil
}

// pragmas applied, in order, to every connection: spec.md §4.8.
var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA temp_store=MEMORY",
	"PRAGMA foreign_keys=ON",
	"PRAGMA mmap_size=30000000000",
	"PRAGMA cache_size=-32000",
	"PRAGMA busy_timeout=5000",
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

// limiter is the capability a modernc.org/sqlite connection exposes for
// sqlite3_limit(SQLITE_LIMIT_ATTACHED, ...). Not every driver.Conn needs to
// implement it, so setAttachedLimit degrades to a no-op rather than failing
// hard when it's absent (e.g. under a test double).
type limiter interface {
	SetLimit(id, value int32) int32
}

const sqliteLimitAttached = 7 // SQLITE_LIMIT_ATTACHED, from sqlite3.h

func setAttachedLimit(ctx context.Context, db *sql.DB, n int) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	return conn.Raw(func(dc any) error {
		if l, ok := dc.(limiter); ok {
			l.SetLimit(sqliteLimitAttached, int32(n))
		}
		return nil
	})
}

// Path returns the filesystem path this handle was opened against.
func (d *DB) Path() string { return d.path }
