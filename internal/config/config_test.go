package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 256, cfg.EventBus.Buffer)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "sql", cfg.Activity.Store)
	assert.Equal(t, 1000, cfg.Activity.MemoryLimit)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rentledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
log:
  level: debug
  format: console
policy:
  file: /etc/rentledger/policy.cue
activity:
  store: memory
  memory_limit: 50
`), 0o600))
	t.Setenv("RENTLEDGER_SERVER_PORT", "9191")
	t.Setenv("RENTLEDGER_DATABASE_DRIVER", "postgres")
	t.Setenv("RENTLEDGER_DATABASE_DSN", "postgres://ledger@localhost/ledger?sslmode=disable")

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port, "env wins over file")
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "/etc/rentledger/policy.cue", cfg.Policy.File)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "memory", cfg.Activity.Store)
	assert.Equal(t, 50, cfg.Activity.MemoryLimit)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("RENTLEDGER_DATABASE_DRIVER", "mysql")
	_, err := Load(viper.New(), "")
	assert.ErrorContains(t, err, "database.driver")

	t.Setenv("RENTLEDGER_DATABASE_DRIVER", "postgres")
	_, err = Load(viper.New(), "")
	assert.ErrorContains(t, err, "database.dsn")

	t.Setenv("RENTLEDGER_DATABASE_DRIVER", "sqlite")
	t.Setenv("RENTLEDGER_ACTIVITY_STORE", "redis")
	_, err = Load(viper.New(), "")
	assert.ErrorContains(t, err, "activity.store")

	t.Setenv("RENTLEDGER_ACTIVITY_STORE", "memory")
	t.Setenv("RENTLEDGER_ACTIVITY_MEMORY_LIMIT", "-1")
	_, err = Load(viper.New(), "")
	assert.ErrorContains(t, err, "activity.memory_limit")

	_, err = Load(viper.New(), filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
