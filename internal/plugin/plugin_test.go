package plugin_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/queryrun/server/internal/plugin"
	"github.com/queryrun/server/internal/storage"
)

func openPluginDB(t *testing.T) *storage.DB {
	t.Helper()
	dir := t.TempDir()
	ctx := context.Background()
	db, err := storage.Open(ctx, dir, storage.PluginDB, []byte("s"))
	require.NoError(t, err)
	require.NoError(t, storage.EnsureSchema(ctx, db, storage.PluginDB))
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCallUnknownPlugin(t *testing.T) {
	db := openPluginDB(t)
	ctx := context.Background()

	gate, err := plugin.NewGate(ctx, db)
	require.NoError(t, err)
	defer gate.Close(ctx)

	_, err = gate.Call(ctx, "missing.wasm", "run", "input", nil)
	require.Error(t, err)
}

func TestCallRejectsChecksumMismatch(t *testing.T) {
	db := openPluginDB(t)
	ctx := context.Background()

	_, err := db.ExecContext(ctx,
		"INSERT INTO plugin (data, name, sha256) VALUES (?, ?, ?)",
		[]byte("not actually wasm"), "bad.wasm", "deadbeef")
	require.NoError(t, err)

	gate, err := plugin.NewGate(ctx, db)
	require.NoError(t, err)
	defer gate.Close(ctx)

	_, err = gate.Call(ctx, "bad.wasm", "run", "input", nil)
	require.ErrorContains(t, err, "checksum mismatch")
}
