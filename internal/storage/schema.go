package storage

import (
	"context"
	"fmt"
)

// Schema SQL is adapted from original_source/crates/server/src/sqlite/create_*_db.rs,
// translated to the modernc.org/sqlite dialect (which already speaks the
// same SQLite STRICT/WITHOUT ROWID/trigger syntax the Rust source used).

const configSchema = `
CREATE TABLE IF NOT EXISTS _config_user (
	uuid TEXT PRIMARY KEY NOT NULL,
	email TEXT UNIQUE NOT NULL,
	password_hash TEXT NOT NULL,
	admin INTEGER NOT NULL DEFAULT 0,
	active INTEGER NOT NULL DEFAULT 1,
	created_at INTEGER NOT NULL DEFAULT (strftime('%s','now')),
	updated_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
) STRICT;

CREATE TABLE IF NOT EXISTS _config_user_token (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_uuid TEXT NOT NULL REFERENCES _config_user(uuid),
	token TEXT UNIQUE NOT NULL,
	expiration_date INTEGER NOT NULL,
	write INTEGER NOT NULL DEFAULT 0,
	active INTEGER NOT NULL DEFAULT 1,
	updated_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
) STRICT;
CREATE INDEX IF NOT EXISTS idx_config_user_token_user ON _config_user_token(user_uuid);

CREATE TABLE IF NOT EXISTS _config_token (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT UNIQUE NOT NULL,
	token TEXT NOT NULL,
	expiration_date INTEGER NOT NULL,
	write INTEGER NOT NULL DEFAULT 0,
	active INTEGER NOT NULL DEFAULT 1,
	updated_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
) STRICT;

CREATE TABLE IF NOT EXISTS _config_option (
	name TEXT UNIQUE NOT NULL,
	value TEXT NOT NULL
) STRICT;

CREATE TABLE IF NOT EXISTS _config_audit_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	actor_uuid TEXT,
	action TEXT NOT NULL,
	resource TEXT NOT NULL,
	created_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
) STRICT;
`

const assetSchema = `
CREATE TABLE IF NOT EXISTS asset (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	active INTEGER NOT NULL DEFAULT 1,
	data BLOB NOT NULL,
	name TEXT UNIQUE NOT NULL,
	name_hashed TEXT UNIQUE NOT NULL,
	mime_type TEXT NOT NULL,
	created_at INTEGER NOT NULL DEFAULT (strftime('%s','now')),
	updated_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
) STRICT;
CREATE INDEX IF NOT EXISTS idx_asset_name ON asset(name);

CREATE TRIGGER IF NOT EXISTS asset_updated_at AFTER UPDATE ON asset BEGIN
	UPDATE asset SET updated_at = strftime('%s','now') WHERE id = NEW.id;
END;
`

const functionSchema = `
CREATE TABLE IF NOT EXISTS function (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	active INTEGER NOT NULL DEFAULT 1,
	method TEXT NOT NULL CHECK (method REGEXP '^(GET|HEAD|POST|PUT|DELETE|CONNECT|OPTIONS|TRACE|PATCH)$'),
	path TEXT NOT NULL,
	function BLOB NOT NULL,
	created_at INTEGER NOT NULL DEFAULT (strftime('%s','now')),
	updated_at INTEGER NOT NULL DEFAULT (strftime('%s','now')),
	UNIQUE(method, path)
) STRICT;
CREATE INDEX IF NOT EXISTS idx_function_path ON function(path);

CREATE TRIGGER IF NOT EXISTS function_updated_at AFTER UPDATE ON function BEGIN
	UPDATE function SET updated_at = strftime('%s','now') WHERE id = NEW.id;
END;
`

const pluginSchema = `
CREATE TABLE IF NOT EXISTS plugin (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	data BLOB NOT NULL,
	name TEXT UNIQUE NOT NULL CHECK (name LIKE '%.wasm'),
	sha256 TEXT NOT NULL,
	created_at INTEGER NOT NULL DEFAULT (strftime('%s','now')),
	updated_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
) STRICT;
CREATE INDEX IF NOT EXISTS idx_plugin_name ON plugin(name);

CREATE TRIGGER IF NOT EXISTS plugin_updated_at AFTER UPDATE ON plugin BEGIN
	UPDATE plugin SET updated_at = strftime('%s','now') WHERE id = NEW.id;
END;
`

const cacheFunctionSchema = `
CREATE TABLE IF NOT EXISTS cache_function (
	path TEXT UNIQUE NOT NULL,
	body BLOB NOT NULL,
	headers TEXT NOT NULL,
	status INTEGER NOT NULL,
	version INTEGER NOT NULL,
	expires_at INTEGER NOT NULL,
	created_at INTEGER NOT NULL DEFAULT (strftime('%s','now')),
	updated_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
) STRICT;
CREATE INDEX IF NOT EXISTS idx_cache_function_path ON cache_function(path);

CREATE TRIGGER IF NOT EXISTS cache_function_updated_at AFTER UPDATE ON cache_function BEGIN
	UPDATE cache_function SET updated_at = strftime('%s','now') WHERE path = NEW.path;
END;
`

// cacheInvalidationSchema implements the monotonic counter of spec.md §3:
// only row 1 may exist; INSERT/UPDATE attempts are intercepted to bump
// `version` and then IGNOREd (the statement never actually writes the
// caller's values), and DELETE is rejected outright. This mirrors
// original_source/crates/server/src/sqlite/create_cache_invalidation_db.rs
// exactly; spec.md §9 calls out that an implementer must preserve this
// "UPDATE silently discarded but version still bumped" semantic.
const cacheInvalidationSchema = `
CREATE TABLE IF NOT EXISTS cache_invalidation (
	version INTEGER PRIMARY KEY NOT NULL DEFAULT 1
) STRICT, WITHOUT ROWID;

CREATE TRIGGER IF NOT EXISTS auto_update_cache_invalidation
BEFORE INSERT ON cache_invalidation
WHEN (SELECT COUNT(*) FROM cache_invalidation) > 0
BEGIN
	UPDATE cache_invalidation SET version = version + 1;
	SELECT RAISE(IGNORE);
END;

CREATE TRIGGER IF NOT EXISTS prevent_manual_update_cache_invalidation
BEFORE UPDATE ON cache_invalidation
BEGIN
	UPDATE cache_invalidation SET version = version + 1;
	SELECT RAISE(IGNORE);
END;

CREATE TRIGGER IF NOT EXISTS auto_avoid_delete_cache_invalidation
BEFORE DELETE ON cache_invalidation
BEGIN
	SELECT RAISE(FAIL, 'cache_invalidation rows cannot be deleted');
END;

INSERT OR IGNORE INTO cache_invalidation (version) VALUES (1);
`

// EnsureSchema runs the CREATE TABLE/TRIGGER statements for the given
// system database kind, idempotently.
func EnsureSchema(ctx context.Context, db *DB, name string) error {
	var ddl string
	switch name {
	case ConfigDB:
		ddl = configSchema
	case AssetDB:
		ddl = assetSchema
	case FunctionDB:
		ddl = functionSchema
	case PluginDB:
		ddl = pluginSchema
	case CacheFunctionDB:
		ddl = cacheFunctionSchema
	case CacheInvalDB:
		ddl = cacheInvalidationSchema
	default:
		return fmt.Errorf("ensure schema: unknown system database %q", name)
	}
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure schema %s: %w", name, err)
	}
	return nil
}
