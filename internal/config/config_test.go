// ABOUTME: Tests for configuration loading, env expansion, and validation.
// ABOUTME: Covers defaults, duration parsing, and rejection of bad values.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: ":9090"
storage:
  upload_dir: "/var/lib/muster/uploads"
  index_path: "/var/lib/muster/index.db"
sessions:
  ttl: "90s"
  sweep_interval: "15s"
  token_len: 12
auth:
  admin_secret: "0123456789abcdef0123456789abcdef"
logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.HTTPAddr)
	assert.Equal(t, "/var/lib/muster/uploads", cfg.Storage.UploadDir)
	assert.Equal(t, 90*time.Second, cfg.Sessions.TTL)
	assert.Equal(t, 15*time.Second, cfg.Sessions.SweepInterval)
	assert.Equal(t, 12, cfg.Sessions.TokenLen)
	assert.Equal(t, "0123456789abcdef0123456789abcdef", cfg.Auth.AdminSecret)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "server: {}\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
	assert.Equal(t, "uploads", cfg.Storage.UploadDir)
	assert.Equal(t, "uploads/index.db", cfg.Storage.IndexPath)
	assert.Equal(t, 60*time.Second, cfg.Sessions.TTL)
	assert.Equal(t, time.Duration(0), cfg.Sessions.SweepInterval)
	assert.Empty(t, cfg.Auth.AdminSecret)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("MUSTER_TEST_SECRET", "s3cret-from-env-0123456789abcdef")

	path := writeConfig(t, `
auth:
  admin_secret: "${MUSTER_TEST_SECRET}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "s3cret-from-env-0123456789abcdef", cfg.Auth.AdminSecret)
}

func TestLoad_BadDuration(t *testing.T) {
	path := writeConfig(t, `
sessions:
  ttl: "sixty seconds"
`)

	_, err := Load(path)
	assert.ErrorContains(t, err, "sessions.ttl")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_DefaultConfigParses(t *testing.T) {
	path := writeConfig(t, DefaultConfig)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
	assert.Equal(t, 60*time.Second, cfg.Sessions.TTL)
}

func TestValidate_NegativeTokenLen(t *testing.T) {
	path := writeConfig(t, `
sessions:
  token_len: -4
`)

	_, err := Load(path)
	assert.ErrorContains(t, err, "token_len")
}
