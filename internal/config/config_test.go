package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allKeys = []string{
	"QUERYKIT_BACKEND", "QUERYKIT_DSN", "QUERYKIT_MONGO_URI", "QUERYKIT_MONGO_DATABASE",
	"QUERYKIT_MONGO_TIMEOUT", "QUERYKIT_SCHEMA_DIR", "QUERYKIT_LOG_LEVEL", "QUERYKIT_LOG_COLOR",
	"QUERYKIT_METRICS",
}

// clearEnv unsets every key for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Equal(t, Config{
		Backend:       BackendMemory,
		MongoURI:      "mongodb://localhost:27017",
		MongoDatabase: "querykit",
		MongoTimeout:  10 * time.Second,
		SchemaDir:     "schema",
		LogLevel:      "info",
		LogColor:      true,
	}, cfg)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Environment(t *testing.T) {
	clearEnv(t)
	t.Setenv("QUERYKIT_BACKEND", "sqlite")
	t.Setenv("QUERYKIT_DSN", "file:test.db")
	t.Setenv("QUERYKIT_MONGO_TIMEOUT", "2s")
	t.Setenv("QUERYKIT_LOG_COLOR", "false")
	t.Setenv("QUERYKIT_METRICS", "1")

	cfg := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Equal(t, BackendSQLite, cfg.Backend)
	assert.Equal(t, "file:test.db", cfg.DSN)
	assert.Equal(t, 2*time.Second, cfg.MongoTimeout)
	assert.False(t, cfg.LogColor)
	assert.True(t, cfg.Metrics)
}

func TestLoad_EnvFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("QUERYKIT_LOG_LEVEL", "warn")

	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("QUERYKIT_BACKEND=postgres\nQUERYKIT_DSN=postgres://localhost/db\nQUERYKIT_LOG_LEVEL=debug\n"), 0o600))

	cfg := Load(path)
	assert.Equal(t, BackendPostgres, cfg.Backend)
	assert.Equal(t, "postgres://localhost/db", cfg.DSN)
	assert.Equal(t, "warn", cfg.LogLevel, "the environment wins over the file")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"memory", Config{Backend: BackendMemory, LogLevel: "info"}, ""},
		{"sqlite needs dsn", Config{Backend: BackendSQLite, LogLevel: "info"}, "requires QUERYKIT_DSN"},
		{"postgres", Config{Backend: BackendPostgres, DSN: "postgres://x", LogLevel: "info"}, ""},
		{"mongo needs database", Config{Backend: BackendMongo, MongoURI: "mongodb://x", LogLevel: "info"}, "requires QUERYKIT_MONGO_URI"},
		{"unknown backend", Config{Backend: "redis", LogLevel: "info"}, `unknown backend "redis"`},
		{"bad level", Config{Backend: BackendMemory, LogLevel: "loud"}, "not a valid logrus Level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
