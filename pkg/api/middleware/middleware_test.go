package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/queryrun/server/internal/authn"
	"github.com/queryrun/server/internal/storage"
	"github.com/queryrun/server/pkg/api/middleware"
)

func setupConfigDB(t *testing.T) *storage.DB {
	t.Helper()
	dir := t.TempDir()
	db, err := storage.Open(context.Background(), dir, storage.ConfigDB, []byte("s"))
	require.NoError(t, err)
	require.NoError(t, storage.EnsureSchema(context.Background(), db, storage.ConfigDB))
	return db
}

func TestAuthRejectsMissingToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := setupConfigDB(t)
	r := gin.New()
	r.Use(middleware.Auth(db, []byte("s")))
	r.GET("/_/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/_/x", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthAcceptsValidAdminToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	secret := []byte("s")
	db := setupConfigDB(t)

	now := time.Now().Unix()
	token, err := authn.MintToken(secret, authn.IssuerUserToken, now, now)
	require.NoError(t, err)
	_, err = db.ExecContext(context.Background(),
		"INSERT INTO _config_user (uuid, email, password_hash, admin) VALUES ('u1', 'a@b.com', 'x', 1)")
	require.NoError(t, err)
	_, err = db.ExecContext(context.Background(), `
INSERT INTO _config_user_token (user_uuid, token, expiration_date, write, updated_at) VALUES ('u1', ?, ?, 1, ?)
`, token, now, now)
	require.NoError(t, err)

	r := gin.New()
	r.Use(middleware.Auth(db, secret))
	r.Use(middleware.RequireAdmin())
	r.GET("/_/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/_/x", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireFeatureFlagGatesOnOption(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := setupConfigDB(t)

	r := gin.New()
	r.Use(middleware.RequireFeatureFlag(db, "create_user", "create_token"))
	r.POST("/_/user", func(c *gin.Context) { c.Status(http.StatusCreated) })

	req := httptest.NewRequest(http.MethodPost, "/_/user", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)

	_, err := db.ExecContext(context.Background(),
		"INSERT OR REPLACE INTO _config_option (name, value) VALUES ('create_user', '1')")
	require.NoError(t, err)

	req2 := httptest.NewRequest(http.MethodPost, "/_/user", nil)
	rec2 := httptest.NewRecorder()
	r.ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusCreated, rec2.Code)
}
