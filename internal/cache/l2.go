package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/queryrun/server/internal/storage"
)

// Response is the whole-HTTP-response shape memoised in cache_function.
type Response struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers"`
	Body    []byte            `json:"-"`
}

type cacheFunctionRow struct {
	Path      string `db:"path"`
	Body      []byte `db:"body"`
	Headers   string `db:"headers"`
	Status    int    `db:"status"`
	Version   int64  `db:"version"`
	ExpiresAt int64  `db:"expires_at"`
}

// GetL2 returns the cached response for path if it hasn't expired and was
// stamped with currentVersion — a version mismatch means a write happened
// since the entry was stored, so it's treated as a miss even before the
// invalidation loop gets around to truncating the table (spec.md §4.4's
// "tie-break" note).
func GetL2(ctx context.Context, db *storage.DB, path string, currentVersion int64) (*Response, bool, error) {
	var row cacheFunctionRow
	err := db.GetContext(ctx, &row, "SELECT path, body, headers, status, version, expires_at FROM cache_function WHERE path = ?", path)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cache_function: %w", err)
	}

	if row.Version != currentVersion || row.ExpiresAt <= time.Now().Unix() {
		return nil, false, nil
	}

	var headers map[string]string
	if err := json.Unmarshal([]byte(row.Headers), &headers); err != nil {
		return nil, false, fmt.Errorf("decode cached headers: %w", err)
	}

	return &Response{Status: row.Status, Headers: headers, Body: row.Body}, true, nil
}

// PutL2 upserts the cached response for path, stamping it with version and
// a TTL-derived expiry.
func PutL2(ctx context.Context, db *storage.DB, path string, resp Response, ttl time.Duration, version int64) error {
	headers, err := json.Marshal(resp.Headers)
	if err != nil {
		return fmt.Errorf("encode headers: %w", err)
	}
	expiresAt := time.Now().Add(ttl).Unix()

	_, err = db.ExecContext(ctx, `
INSERT INTO cache_function (path, body, headers, status, version, expires_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(path) DO UPDATE SET
	body = excluded.body,
	headers = excluded.headers,
	status = excluded.status,
	version = excluded.version,
	expires_at = excluded.expires_at
`, path, resp.Body, string(headers), resp.Status, version, expiresAt)
	if err != nil {
		return fmt.Errorf("upsert cache_function: %w", err)
	}
	return nil
}

// Truncate empties the whole L2 table, the invalidation loop's response to
// an observed version bump.
func Truncate(ctx context.Context, db *storage.DB) error {
	if _, err := db.ExecContext(ctx, "DELETE FROM cache_function"); err != nil {
		return fmt.Errorf("truncate cache_function: %w", err)
	}
	return nil
}
