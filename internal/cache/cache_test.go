package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/queryrun/server/internal/cache"
	"github.com/queryrun/server/internal/storage"
)

func TestL1GetPutExpiry(t *testing.T) {
	l1, err := cache.NewL1(10)
	require.NoError(t, err)

	key := cache.Key("u.sql", "SELECT 1", []byte("[]"), 50)
	_, ok := l1.Get(key)
	require.False(t, ok)

	l1.Put(key, []byte(`[{"x":1}]`), 30*time.Millisecond)
	v, ok := l1.Get(key)
	require.True(t, ok)
	require.JSONEq(t, `[{"x":1}]`, string(v))

	time.Sleep(40 * time.Millisecond)
	_, ok = l1.Get(key)
	require.False(t, ok)
}

func TestL1Clear(t *testing.T) {
	l1, err := cache.NewL1(10)
	require.NoError(t, err)
	key := cache.Key("u.sql", "SELECT 1", nil, 1000)
	l1.Put(key, []byte("[]"), time.Second)
	l1.Clear()
	_, ok := l1.Get(key)
	require.False(t, ok)
}

func openCacheFunctionDB(t *testing.T) *storage.DB {
	t.Helper()
	dir := t.TempDir()
	ctx := context.Background()
	db, err := storage.Open(ctx, dir, storage.CacheFunctionDB, []byte("s"))
	require.NoError(t, err)
	require.NoError(t, storage.EnsureSchema(ctx, db, storage.CacheFunctionDB))
	t.Cleanup(func() { db.Close() })
	return db
}

func TestL2RoundTripAndVersionMismatch(t *testing.T) {
	db := openCacheFunctionDB(t)
	ctx := context.Background()

	resp := cache.Response{Status: 200, Headers: map[string]string{"content-type": "text/plain"}, Body: []byte("hi")}
	require.NoError(t, cache.PutL2(ctx, db, "/hello", resp, time.Minute, 1))

	got, ok, err := cache.GetL2(ctx, db, "/hello", 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "hi", string(got.Body))

	_, ok, err = cache.GetL2(ctx, db, "/hello", 2)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestL2Expiry(t *testing.T) {
	db := openCacheFunctionDB(t)
	ctx := context.Background()

	resp := cache.Response{Status: 200, Headers: map[string]string{}, Body: []byte("x")}
	require.NoError(t, cache.PutL2(ctx, db, "/p", resp, -time.Second, 1))

	_, ok, err := cache.GetL2(ctx, db, "/p", 1)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestInvalidatorTruncatesOnVersionChange(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	secret := []byte("s")

	invalDB, err := storage.Open(ctx, dir, storage.CacheInvalDB, secret)
	require.NoError(t, err)
	defer invalDB.Close()
	require.NoError(t, storage.EnsureSchema(ctx, invalDB, storage.CacheInvalDB))

	cacheDB, err := storage.Open(ctx, dir, storage.CacheFunctionDB, secret)
	require.NoError(t, err)
	defer cacheDB.Close()
	require.NoError(t, storage.EnsureSchema(ctx, cacheDB, storage.CacheFunctionDB))

	resp := cache.Response{Status: 200, Headers: map[string]string{}, Body: []byte("x")}
	require.NoError(t, cache.PutL2(ctx, cacheDB, "/p", resp, time.Minute, 1))

	l1, err := cache.NewL1(10)
	require.NoError(t, err)
	key := cache.Key("u.sql", "SELECT 1", nil, 1000)
	l1.Put(key, []byte("[]"), time.Minute)

	inv, err := cache.NewInvalidator(ctx, invalDB, cacheDB, l1)
	require.NoError(t, err)

	require.NoError(t, storage.BumpInvalidation(ctx, invalDB))

	runCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	go inv.Run(runCtx)
	<-runCtx.Done()

	_, ok := l1.Get(key)
	require.False(t, ok)

	_, ok, err = cache.GetL2(ctx, cacheDB, "/p", 2)
	require.NoError(t, err)
	require.False(t, ok)
}
