package authn

import (
	"context"
	"fmt"

	"github.com/queryrun/server/internal/storage"
)

// Principal is the authenticated identity behind a bearer token: enough to
// answer "is this an admin" and "can this write" without a second query.
type Principal struct {
	UserUUID string
	Admin    bool
	Write    bool
}

// Authenticate implements spec.md §4.6 end to end: decode the bearer JWT,
// then join it against the issuing table (_config_user_token for
// "user_token", _config_token for "token") requiring active rows on both
// sides and either a future expiration or the never-expires sentinel
// (expiration_date == updated_at). Grounded on
// original_source/crates/server/src/controllers/utils/validate_is_admin.rs.
func Authenticate(ctx context.Context, db *storage.DB, secret []byte, bearer string) (*Principal, error) {
	claims, err := ParseClaims(secret, bearer)
	if err != nil {
		return nil, fmt.Errorf("unauthorized: %w", err)
	}

	switch claims.Issuer {
	case IssuerUserToken:
		return authenticateUserToken(ctx, db, bearer, claims)
	case IssuerToken:
		return authenticateAPIToken(ctx, db, bearer, claims)
	default:
		return nil, fmt.Errorf("unauthorized: unrecognized issuer %q", claims.Issuer)
	}
}

type userTokenRow struct {
	UserUUID string `db:"user_uuid"`
	Admin    bool   `db:"admin"`
	Write    bool   `db:"write"`
}

func authenticateUserToken(ctx context.Context, db *storage.DB, bearer string, claims *Claims) (*Principal, error) {
	const q = `
SELECT ut.user_uuid AS user_uuid, u.admin AS admin, ut.write AS write
FROM _config_user_token ut
JOIN _config_user u ON u.uuid = ut.user_uuid
WHERE ut.token = ?
  AND ut.expiration_date = ?
  AND ut.updated_at = ?
  AND ut.active = 1
  AND u.active = 1
  AND (ut.expiration_date > strftime('%s','now') OR ut.expiration_date = ut.updated_at)
`
	var row userTokenRow
	if err := db.GetContext(ctx, &row, q, bearer, claims.ExpiresAt, claims.IssuedAt); err != nil {
		return nil, fmt.Errorf("unauthorized: token not recognized")
	}
	return &Principal{UserUUID: row.UserUUID, Admin: row.Admin, Write: row.Write}, nil
}

type apiTokenRow struct {
	Write bool `db:"write"`
}

func authenticateAPIToken(ctx context.Context, db *storage.DB, bearer string, claims *Claims) (*Principal, error) {
	const q = `
SELECT write FROM _config_token
WHERE token = ?
  AND expiration_date = ?
  AND updated_at = ?
  AND active = 1
  AND (expiration_date > strftime('%s','now') OR expiration_date = updated_at)
`
	var row apiTokenRow
	if err := db.GetContext(ctx, &row, q, bearer, claims.ExpiresAt, claims.IssuedAt); err != nil {
		return nil, fmt.Errorf("unauthorized: token not recognized")
	}
	return &Principal{Write: row.Write}, nil
}

// RequireAdmin reports whether p is an authenticated admin principal.
func (p *Principal) RequireAdmin() error {
	if p == nil || !p.Admin {
		return fmt.Errorf("unauthorized: admin required")
	}
	return nil
}

// RequireWrite reports whether p carries the write bit.
func (p *Principal) RequireWrite() error {
	if p == nil || !p.Write {
		return fmt.Errorf("unauthorized: write permission required")
	}
	return nil
}
