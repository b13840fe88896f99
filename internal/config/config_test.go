package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadline-dev/threadline/internal/config"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 7171, cfg.Server.Port)
	assert.Equal(t, "threadline", cfg.Server.Name)
	assert.Equal(t, "sqlite", cfg.Storage.Engine)
	assert.Equal(t, "./data", cfg.Storage.DataPath)
	assert.Equal(t, 4, cfg.Batch.Concurrency)
	assert.Equal(t, 20.0, cfg.Batch.StaggerPerSecond)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("THREADLINE_HOST", "0.0.0.0")
	t.Setenv("THREADLINE_PORT", "9999")
	t.Setenv("THREADLINE_STORAGE_ENGINE", "postgres")
	t.Setenv("THREADLINE_POSTGRES_DSN", "postgres://localhost/threadline")
	t.Setenv("THREADLINE_BATCH_CONCURRENCY", "8")
	t.Setenv("THREADLINE_BATCH_STAGGER", "50.5")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Storage.Engine)
	assert.Equal(t, "postgres://localhost/threadline", cfg.Storage.PostgresDSN)
	assert.Equal(t, 8, cfg.Batch.Concurrency)
	assert.Equal(t, 50.5, cfg.Batch.StaggerPerSecond)
}

func TestLoadConfig_InvalidEnvIntFallsBack(t *testing.T) {
	t.Setenv("THREADLINE_PORT", "not-a-number")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 7171, cfg.Server.Port)
}

func TestLoadConfig_YAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "threadline.yaml")
	data := []byte(`
server:
  port: 8081
storage:
  engine: postgres
  postgresDsn: postgres://db/threadline
batch:
  concurrency: 2
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	t.Setenv("THREADLINE_CONFIG", path)

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Storage.Engine)
	assert.Equal(t, "postgres://db/threadline", cfg.Storage.PostgresDSN)
	assert.Equal(t, 2, cfg.Batch.Concurrency)
	// Fields the file omits keep their defaults.
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
}

func TestLoadConfig_EnvWinsOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "threadline.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 8081\n"), 0o600))
	t.Setenv("THREADLINE_CONFIG", path)
	t.Setenv("THREADLINE_PORT", "9000")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
}

func TestLoadConfig_MissingExplicitFileIsAnError(t *testing.T) {
	t.Setenv("THREADLINE_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))

	_, err := config.LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "THREADLINE_CONFIG")
}
