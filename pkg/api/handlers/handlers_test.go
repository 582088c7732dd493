package handlers_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/queryrun/server/internal/authn"
	"github.com/queryrun/server/internal/storage"
	"github.com/queryrun/server/pkg/api/handlers"
	"github.com/queryrun/server/pkg/api/middleware"
)

type testEnv struct {
	deps  *handlers.Deps
	token string
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	secret := []byte("s")
	ctx := context.Background()

	open := func(name string) *storage.DB {
		db, err := storage.Open(ctx, dir, name, secret)
		require.NoError(t, err)
		require.NoError(t, storage.EnsureSchema(ctx, db, name))
		return db
	}

	configDB := open(storage.ConfigDB)
	assetDB := open(storage.AssetDB)
	functionDB := open(storage.FunctionDB)
	pluginDB := open(storage.PluginDB)
	cacheDB := open(storage.CacheFunctionDB)
	invalDB := open(storage.CacheInvalDB)

	_, err := configDB.ExecContext(ctx,
		"INSERT INTO _config_user (uuid, email, password_hash, admin) VALUES ('u1', 'a@b.com', 'x', 1)")
	require.NoError(t, err)
	now := time.Now().Unix()
	token, err := authn.MintToken(secret, authn.IssuerUserToken, now, now)
	require.NoError(t, err)
	_, err = configDB.ExecContext(ctx, `
INSERT INTO _config_user_token (user_uuid, token, expiration_date, write, updated_at) VALUES ('u1', ?, ?, 1, ?)
`, token, now, now)
	require.NoError(t, err)

	return &testEnv{
		deps: &handlers.Deps{
			ConfigDB:   configDB,
			AssetDB:    assetDB,
			FunctionDB: functionDB,
			PluginDB:   pluginDB,
			CacheDB:    cacheDB,
			InvalDB:    invalDB,
			DBsPath:    dir,
			Secret:     secret,
		},
		token: token,
	}
}

func newAdminRouter(env *testEnv) *gin.Engine {
	r := gin.New()
	admin := r.Group("/_")
	admin.Use(middleware.Auth(env.deps.ConfigDB, env.deps.Secret))
	assetHandler := handlers.NewAssetHandler(env.deps)
	admin.GET("/asset/:name", assetHandler.Serve)
	admin.POST("/asset-builder", assetHandler.Build)
	return r
}

func TestAssetBuildAndServeRoundTrip(t *testing.T) {
	env := setup(t)
	r := newAdminRouter(env)

	data := base64.StdEncoding.EncodeToString([]byte("hello world"))
	body := `{"name":"greeting.txt","mime_type":"text/plain","data":"` + data + `"}`

	req := httptest.NewRequest(http.MethodPost, "/_/asset-builder", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+env.token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		NameHashed string `json:"nameHashed"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Contains(t, created.NameHashed, "greeting-")

	req2 := httptest.NewRequest(http.MethodGet, "/_/asset/"+created.NameHashed, nil)
	req2.Header.Set("Authorization", "Bearer "+env.token)
	rec2 := httptest.NewRecorder()
	r.ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusOK, rec2.Code)
	require.Equal(t, "hello world", rec2.Body.String())
}

func TestFunctionBuilderAndList(t *testing.T) {
	env := setup(t)
	r := gin.New()
	admin := r.Group("/_")
	admin.Use(middleware.Auth(env.deps.ConfigDB, env.deps.Secret))
	fh := handlers.NewFunctionHandler(env.deps)
	admin.POST("/function-builder", fh.Build)
	admin.GET("/function", fh.List)

	source := base64.StdEncoding.EncodeToString([]byte(`export default async () => ({status:200,headers:{},body:"hi"});`))
	body := `{"method":"GET","path":"/hello","function":"` + source + `"}`
	req := httptest.NewRequest(http.MethodPost, "/_/function-builder", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+env.token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	req2 := httptest.NewRequest(http.MethodGet, "/_/function", nil)
	req2.Header.Set("Authorization", "Bearer "+env.token)
	rec2 := httptest.NewRecorder()
	r.ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusOK, rec2.Code)
	require.Contains(t, rec2.Body.String(), "/hello")
}
