package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv(envTokenSecret, "secret")
	t.Setenv(envAdminEmail, "admin@admin.com")
	t.Setenv(envAdminPass, "abcdefg")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, defaultPort, cfg.Port)
	assert.Equal(t, defaultDBsPath, cfg.DBsPath)
	assert.False(t, cfg.ProxyEnabled)
	assert.False(t, cfg.AppEnabled)
}

func TestLoadEnvOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv(envPort, "9999")
	t.Setenv(envDBsPath, "/tmp/dbs")
	t.Setenv(envProxy, "true")
	t.Setenv(envProxyPort, "4001")
	t.Setenv(envApp, "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Port)
	assert.Equal(t, "/tmp/dbs", cfg.DBsPath)
	assert.True(t, cfg.ProxyEnabled)
	assert.Equal(t, 4001, cfg.ProxyPort)
	assert.True(t, cfg.AppEnabled)
}

func TestLoadMissingRequiredEnv(t *testing.T) {
	os.Unsetenv(envTokenSecret)
	os.Unsetenv(envAdminEmail)
	os.Unsetenv(envAdminPass)

	_, err := Load("")
	assert.Error(t, err)
}

func TestLoadYAMLFile(t *testing.T) {
	setRequiredEnv(t)

	dir := t.TempDir()
	path := dir + "/config.yaml"
	require.NoError(t, os.WriteFile(path, []byte("port: 5000\nlog:\n  level: debug\n  console: false\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.False(t, cfg.Log.Console)
}

func TestValidateInvalidPort(t *testing.T) {
	cfg := &Config{Port: 0, DBsPath: "/mnt/dbs", TokenSecret: "s", AdminEmail: "a", AdminPass: "p"}
	assert.Error(t, validate(cfg))
}

func TestValidateInvalidProxyPort(t *testing.T) {
	cfg := &Config{
		Port: 3000, DBsPath: "/mnt/dbs", TokenSecret: "s", AdminEmail: "a", AdminPass: "p",
		ProxyEnabled: true, ProxyPort: 0,
	}
	assert.Error(t, validate(cfg))
}
