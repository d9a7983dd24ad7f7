package config

import (
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "STORE_BACKEND", "LOG_LEVEL", "CORS_ALLOWED_ORIGINS", "REALTIME_SCOPE_BY_OWNER"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.ServerPort)
	assert.Equal(t, StoreMemory, cfg.StoreBackend)
	assert.Equal(t, "todolist", cfg.MongoDatabase)
	assert.Equal(t, []string{"http://localhost:5173", "http://localhost:5174"}, cfg.CORSAllowedOrigins)
	assert.False(t, cfg.RealtimeScopeByOwner)
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "8081")
	t.Setenv("STORE_BACKEND", "mongo")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com")
	t.Setenv("REALTIME_SCOPE_BY_OWNER", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8081", cfg.ServerPort)
	assert.Equal(t, StoreMongo, cfg.StoreBackend)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.CORSAllowedOrigins)
	assert.True(t, cfg.RealtimeScopeByOwner)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("STORE_BACKEND", "sqlite")
	_, err := Load()
	assert.ErrorContains(t, err, "STORE_BACKEND")

	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("LOG_LEVEL", "loud")
	_, err = Load()
	assert.ErrorContains(t, err, "LOG_LEVEL")

	t.Setenv("LOG_LEVEL", "info")
	t.Setenv("REALTIME_SCOPE_BY_OWNER", "maybe")
	_, err = Load()
	assert.Error(t, err)
}
