package scripting_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/queryrun/server/internal/cache"
	"github.com/queryrun/server/internal/scripting"
	"github.com/queryrun/server/internal/storage"
)

func openDBFunc(t *testing.T, dir string, secret []byte) scripting.DBOpener {
	t.Helper()
	return func(ctx context.Context, name string) (*storage.DB, error) {
		return storage.OpenUser(ctx, dir, name, secret)
	}
}

func TestInvokeSimpleResponse(t *testing.T) {
	dir := t.TempDir()
	secret := []byte("s")
	l1, err := cache.NewL1(10)
	require.NoError(t, err)

	engine := scripting.NewEngine(openDBFunc(t, dir, secret), nil, l1, secret, 2)

	source := `export default async () => ({ status: 200, headers: { "x-test": "1" }, body: "hi" });`
	resp, err := engine.Invoke(context.Background(), source, scripting.Request{Method: "GET", URL: "/hello"})
	require.NoError(t, err)
	require.Equal(t, 200, resp.Status)
	require.Equal(t, "hi", resp.Body)
	require.Equal(t, "1", resp.Headers["x-test"])
}

func TestInvokeSQLiteQuery(t *testing.T) {
	dir := t.TempDir()
	secret := []byte("s")
	l1, err := cache.NewL1(10)
	require.NoError(t, err)

	db, err := storage.OpenUser(context.Background(), dir, "u.sql", secret)
	require.NoError(t, err)
	_, err = db.ExecContext(context.Background(), "CREATE TABLE t (v INTEGER)")
	require.NoError(t, err)
	_, err = db.ExecContext(context.Background(), "INSERT INTO t VALUES (42)")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	engine := scripting.NewEngine(openDBFunc(t, dir, secret), nil, l1, secret, 2)

	source := `export default async (req) => {
		var rows = JSON.parse(sqlite.query("u.sql", "SELECT v FROM t", "[]", 0));
		return { status: 200, headers: {}, body: String(rows[0].v) };
	};`
	resp, err := engine.Invoke(context.Background(), source, scripting.Request{Method: "GET", URL: "/v"})
	require.NoError(t, err)
	require.Equal(t, "42", resp.Body)
}

func TestInvokeThrownError(t *testing.T) {
	dir := t.TempDir()
	secret := []byte("s")
	l1, err := cache.NewL1(10)
	require.NoError(t, err)

	engine := scripting.NewEngine(openDBFunc(t, dir, secret), nil, l1, secret, 2)

	source := `export default async () => { throw new Error("boom"); };`
	_, err = engine.Invoke(context.Background(), source, scripting.Request{Method: "GET", URL: "/x"})
	require.Error(t, err)
}
