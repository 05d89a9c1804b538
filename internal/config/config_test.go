package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV_FILE", "does-not-exist.env")
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("TASK_MAX_RETRIES", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.StoreBackend)
	assert.Equal(t, "local", cfg.BlobBackend)
	assert.Equal(t, 3, cfg.TaskMaxRetries)
	assert.Equal(t, ":8081", cfg.HTTPAddr)
}

func TestLoadRejectsUnknownStore(t *testing.T) {
	t.Setenv("ENV_FILE", "does-not-exist.env")
	t.Setenv("STORE_BACKEND", "cassandra")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadProductionGuards(t *testing.T) {
	t.Setenv("ENV_FILE", "does-not-exist.env")
	t.Setenv("APP_ENV", "production")
	t.Setenv("STORE_BACKEND", "redis")
	t.Setenv("LLM_PROVIDER", "fake")

	_, err := Load()
	assert.ErrorContains(t, err, "fake generation service")

	t.Setenv("LLM_PROVIDER", "gemini")
	t.Setenv("BLOB_BACKEND", "local")
	_, err = Load()
	assert.ErrorContains(t, err, "remote blob store")
}

func TestGetenvIntFallsBackOnGarbage(t *testing.T) {
	t.Setenv("WORKER_CONCURRENCY", "many")
	assert.Equal(t, 10, getenvInt("WORKER_CONCURRENCY", 10))
}

func TestLoadReadsEnvFile(t *testing.T) {
	path := t.TempDir() + "/test.env"
	require.NoError(t, writeFile(path, "WORKER_CONCURRENCY=7\n"))
	t.Setenv("ENV_FILE", path)
	t.Setenv("STORE_BACKEND", "memory")
	t.Cleanup(func() { _ = os.Unsetenv("WORKER_CONCURRENCY") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.WorkerConcurrency)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
