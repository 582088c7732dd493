package router_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/queryrun/server/internal/cache"
	"github.com/queryrun/server/internal/scripting"
	"github.com/queryrun/server/internal/storage"
	"github.com/queryrun/server/pkg/router"
)

func newTestGin(d *router.Dispatcher) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.NoRoute(d.Handle)
	return r
}

func TestDispatcherNotFoundWhenNoModesEnabled(t *testing.T) {
	dir := t.TempDir()
	secret := []byte("s")
	functionDB, err := storage.Open(context.Background(), dir, storage.FunctionDB, secret)
	require.NoError(t, err)
	cacheDB, err := storage.Open(context.Background(), dir, storage.CacheFunctionDB, secret)
	require.NoError(t, err)
	invalDB, err := storage.Open(context.Background(), dir, storage.CacheInvalDB, secret)
	require.NoError(t, err)

	require.NoError(t, storage.EnsureSchema(context.Background(), functionDB, storage.FunctionDB))
	require.NoError(t, storage.EnsureSchema(context.Background(), cacheDB, storage.CacheFunctionDB))
	require.NoError(t, storage.EnsureSchema(context.Background(), invalDB, storage.CacheInvalDB))

	d := router.New(false, 0, false, functionDB, cacheDB, invalDB, nil, nil)
	r := newTestGin(d)

	req := httptest.NewRequest(http.MethodGet, "/hello", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDispatcherServesStoredFunction(t *testing.T) {
	dir := t.TempDir()
	secret := []byte("s")
	functionDB, err := storage.Open(context.Background(), dir, storage.FunctionDB, secret)
	require.NoError(t, err)
	cacheDB, err := storage.Open(context.Background(), dir, storage.CacheFunctionDB, secret)
	require.NoError(t, err)
	invalDB, err := storage.Open(context.Background(), dir, storage.CacheInvalDB, secret)
	require.NoError(t, err)

	require.NoError(t, storage.EnsureSchema(context.Background(), functionDB, storage.FunctionDB))
	require.NoError(t, storage.EnsureSchema(context.Background(), cacheDB, storage.CacheFunctionDB))
	require.NoError(t, storage.EnsureSchema(context.Background(), invalDB, storage.CacheInvalDB))

	source := `export default async () => ({ status: 200, headers: {"content-type":"text/plain"}, body: "hello" });`
	_, err = functionDB.ExecContext(context.Background(),
		"INSERT INTO function (method, path, function) VALUES (?, ?, ?)", "GET", "/hello", source)
	require.NoError(t, err)

	l1, err := cache.NewL1(10)
	require.NoError(t, err)
	openDB := func(ctx context.Context, name string) (*storage.DB, error) {
		return storage.OpenUser(ctx, dir, name, secret)
	}
	engine := scripting.NewEngine(openDB, nil, l1, secret, 2)

	d := router.New(false, 0, true, functionDB, cacheDB, invalDB, engine, l1)
	r := newTestGin(d)

	req := httptest.NewRequest(http.MethodGet, "/hello", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "hello", rec.Body.String())
}

func TestDispatcherAppModeUnknownPath404s(t *testing.T) {
	dir := t.TempDir()
	secret := []byte("s")
	functionDB, err := storage.Open(context.Background(), dir, storage.FunctionDB, secret)
	require.NoError(t, err)
	cacheDB, err := storage.Open(context.Background(), dir, storage.CacheFunctionDB, secret)
	require.NoError(t, err)
	invalDB, err := storage.Open(context.Background(), dir, storage.CacheInvalDB, secret)
	require.NoError(t, err)

	require.NoError(t, storage.EnsureSchema(context.Background(), functionDB, storage.FunctionDB))
	require.NoError(t, storage.EnsureSchema(context.Background(), cacheDB, storage.CacheFunctionDB))
	require.NoError(t, storage.EnsureSchema(context.Background(), invalDB, storage.CacheInvalDB))

	l1, err := cache.NewL1(10)
	require.NoError(t, err)
	openDB := func(ctx context.Context, name string) (*storage.DB, error) {
		return storage.OpenUser(ctx, dir, name, secret)
	}
	engine := scripting.NewEngine(openDB, nil, l1, secret, 2)

	d := router.New(false, 0, true, functionDB, cacheDB, invalDB, engine, l1)
	r := newTestGin(d)

	req := httptest.NewRequest(http.MethodGet, "/missing", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}
