package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestConfigDB(t *testing.T) (*DB, string) {
	t.Helper()
	dir := t.TempDir()
	ctx := context.Background()
	db, err := Open(ctx, dir, ConfigDB, []byte("test-secret"))
	require.NoError(t, err)
	require.NoError(t, EnsureSchema(ctx, db, ConfigDB))
	t.Cleanup(func() { db.Close() })
	return db, dir
}

func TestEnsureSchemaIdempotent(t *testing.T) {
	db, _ := openTestConfigDB(t)
	ctx := context.Background()
	require.NoError(t, EnsureSchema(ctx, db, ConfigDB))

	_, err := db.ExecContext(ctx, "INSERT INTO _config_user (uuid, email, password_hash) VALUES (?, ?, ?)",
		"u1", "a@a.com", "hash")
	require.NoError(t, err)
}

func TestScalarFunctions(t *testing.T) {
	db, _ := openTestConfigDB(t)
	ctx := context.Background()

	var encoded string
	require.NoError(t, db.GetContext(ctx, &encoded, "SELECT base64_encode('hi')"))
	require.NotEmpty(t, encoded)

	var decoded string
	require.NoError(t, db.GetContext(ctx, &decoded, "SELECT base64_decode(?)", encoded))
	require.Equal(t, "hi", decoded)

	var matched int
	require.NoError(t, db.GetContext(ctx, &matched, "SELECT regexp('^GET$', 'GET')"))
	require.Equal(t, 1, matched)

	var id string
	require.NoError(t, db.GetContext(ctx, &id, "SELECT uuid()"))
	require.Len(t, id, 36)

	var valid int
	require.NoError(t, db.GetContext(ctx, &valid, `SELECT valid_json('{"a":1}')`))
	require.Equal(t, 1, valid)

	require.NoError(t, db.GetContext(ctx, &valid, `SELECT valid_json('not json')`))
}

func TestCacheInvalidationTriggers(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	db, err := Open(ctx, dir, CacheInvalDB, []byte("s"))
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, EnsureSchema(ctx, db, CacheInvalDB))

	v0, err := InvalidationVersion(ctx, db)
	require.NoError(t, err)
	require.Equal(t, int64(1), v0)

	require.NoError(t, BumpInvalidation(ctx, db))
	v1, err := InvalidationVersion(ctx, db)
	require.NoError(t, err)
	require.Equal(t, v0+1, v1)

	_, err = db.ExecContext(ctx, "DELETE FROM cache_invalidation")
	require.Error(t, err)
}

func TestBranchLifecycle(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	secret := []byte("s")

	userDB, err := OpenUser(ctx, dir, "u.sql", secret)
	require.NoError(t, err)
	_, err = userDB.ExecContext(ctx, "CREATE TABLE t (v INTEGER)")
	require.NoError(t, err)
	_, err = userDB.ExecContext(ctx, "INSERT INTO t VALUES (1)")
	require.NoError(t, err)
	require.NoError(t, userDB.Close())

	branch, err := CreateBranch(ctx, dir, "u.sql", "exp", secret)
	require.NoError(t, err)
	require.Equal(t, "exp", branch.BranchName)

	_, err = CreateBranch(ctx, dir, "u.sql", "exp", secret)
	require.Error(t, err)

	branches, err := ListBranches(dir)
	require.NoError(t, err)
	require.Len(t, branches, 1)
	require.Equal(t, "u.sql", branches[0].DBName)

	branchFile := filepath.Join(dir, "u.exp.branch.sql")
	_, err = os.Stat(branchFile)
	require.NoError(t, err)

	require.Error(t, DeleteBranch(dir, "u.sql"))
	require.NoError(t, DeleteBranch(dir, "u.exp.branch.sql"))
}

func TestQueryParamBinding(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	db, err := OpenUser(ctx, dir, "bind.sql", []byte("s"))
	require.NoError(t, err)
	defer db.Close()

	named, err := Query(ctx, db, "SELECT :x AS x", []byte(`{":x":42}`))
	require.NoError(t, err)
	require.Equal(t, int64(42), named[0]["x"])

	positional, err := Query(ctx, db, "SELECT ? AS x", []byte(`[42]`))
	require.NoError(t, err)
	require.Equal(t, int64(42), positional[0]["x"])
}

func TestExecuteResultShapes(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	db, err := OpenUser(ctx, dir, "exec.sql", []byte("s"))
	require.NoError(t, err)
	defer db.Close()

	_, err = db.ExecContext(ctx, "CREATE TABLE t (id INTEGER PRIMARY KEY, v TEXT)")
	require.NoError(t, err)

	res, err := Execute(ctx, db, "INSERT INTO t (v) VALUES (?)", []byte(`["hello"]`))
	require.NoError(t, err)
	insertRes, ok := res.(ExecResult)
	require.True(t, ok)
	require.NotNil(t, insertRes.RowID)
	require.EqualValues(t, 1, *insertRes.RowID)

	res, err = Execute(ctx, db, "UPDATE t SET v = ? WHERE id = ?", []byte(`["bye",1]`))
	require.NoError(t, err)
	updateRes, ok := res.(ExecResult)
	require.True(t, ok)
	require.NotNil(t, updateRes.Changes)
	require.EqualValues(t, 1, *updateRes.Changes)
}

func TestRunMigrationAtomic(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	db, err := OpenUser(ctx, dir, "mig.sql", []byte("s"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, RunMigration(ctx, db, "CREATE TABLE t (v INTEGER); INSERT INTO t VALUES (1);"))

	var count int
	require.NoError(t, db.GetContext(ctx, &count, "SELECT COUNT(*) FROM t"))
	require.Equal(t, 1, count)

	err = RunMigration(ctx, db, "INSERT INTO t VALUES (2); INSERT INTO nonexistent VALUES (1);")
	require.Error(t, err)

	require.NoError(t, db.GetContext(ctx, &count, "SELECT COUNT(*) FROM t"))
	require.Equal(t, 1, count)
}
