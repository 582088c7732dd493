package authn_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/queryrun/server/internal/authn"
	"github.com/queryrun/server/internal/storage"
)

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := authn.HashPassword("hunter2")
	require.NoError(t, err)
	require.NotEqual(t, "hunter2", hash)

	ok, err := authn.VerifyPassword("hunter2", hash)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = authn.VerifyPassword("wrong", hash)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestJWTMintAndParse(t *testing.T) {
	secret := []byte("sekret")
	iat := time.Now().Unix()
	exp := iat // never-expires sentinel

	signed, err := authn.MintToken(secret, authn.IssuerUserToken, exp, iat)
	require.NoError(t, err)

	claims, err := authn.ParseClaims(secret, signed)
	require.NoError(t, err)
	require.Equal(t, authn.IssuerUserToken, claims.Issuer)
	require.Equal(t, exp, claims.ExpiresAt)
	require.Equal(t, iat, claims.IssuedAt)
}

func TestJWTRejectsWrongSecret(t *testing.T) {
	signed, err := authn.MintToken([]byte("a"), authn.IssuerToken, 1, 1)
	require.NoError(t, err)

	_, err = authn.ParseClaims([]byte("b"), signed)
	require.Error(t, err)
}

func setupConfigDB(t *testing.T) (*storage.DB, []byte) {
	t.Helper()
	secret := []byte("sekret")
	dir := t.TempDir()
	ctx := context.Background()
	db, err := storage.Open(ctx, dir, storage.ConfigDB, secret)
	require.NoError(t, err)
	require.NoError(t, storage.EnsureSchema(ctx, db, storage.ConfigDB))
	t.Cleanup(func() { db.Close() })
	return db, secret
}

func TestAuthenticateUserTokenAdmin(t *testing.T) {
	db, secret := setupConfigDB(t)
	ctx := context.Background()

	userUUID := uuid.NewString()
	hash, err := authn.HashPassword("p")
	require.NoError(t, err)
	_, err = db.ExecContext(ctx,
		"INSERT INTO _config_user (uuid, email, password_hash, admin, active) VALUES (?, ?, ?, 1, 1)",
		userUUID, "a@a.com", hash)
	require.NoError(t, err)

	iat := time.Now().Unix()
	exp := iat // never expires
	signed, err := authn.MintToken(secret, authn.IssuerUserToken, exp, iat)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx,
		"INSERT INTO _config_user_token (user_uuid, token, expiration_date, write, active, updated_at) VALUES (?, ?, ?, 1, 1, ?)",
		userUUID, signed, exp, iat)
	require.NoError(t, err)

	principal, err := authn.Authenticate(ctx, db, secret, signed)
	require.NoError(t, err)
	require.Equal(t, userUUID, principal.UserUUID)
	require.True(t, principal.Admin)
	require.True(t, principal.Write)
	require.NoError(t, principal.RequireAdmin())
	require.NoError(t, principal.RequireWrite())
}

func TestAuthenticateRejectsInactiveToken(t *testing.T) {
	db, secret := setupConfigDB(t)
	ctx := context.Background()

	userUUID := uuid.NewString()
	hash, _ := authn.HashPassword("p")
	_, err := db.ExecContext(ctx,
		"INSERT INTO _config_user (uuid, email, password_hash, admin, active) VALUES (?, ?, ?, 1, 1)",
		userUUID, "b@b.com", hash)
	require.NoError(t, err)

	iat := time.Now().Unix()
	signed, err := authn.MintToken(secret, authn.IssuerUserToken, iat, iat)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx,
		"INSERT INTO _config_user_token (user_uuid, token, expiration_date, write, active, updated_at) VALUES (?, ?, ?, 0, 0, ?)",
		userUUID, signed, iat, iat)
	require.NoError(t, err)

	_, err = authn.Authenticate(ctx, db, secret, signed)
	require.Error(t, err)
}
