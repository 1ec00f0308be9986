package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "data/nextstop.db", cfg.Database.DSN)
	assert.Equal(t, 30*time.Second, cfg.GTFSRealtime.PollingInterval)
	assert.Zero(t, cfg.GTFSStatic.CheckInterval)
}

func TestLoadPostgresBuildsConnectionString(t *testing.T) {
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PASSWORD", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "host=db port=5432 user=postgres password=secret dbname=nextstop sslmode=disable", cfg.Database.DSN)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("DB_DRIVER", "mysql")

	_, err := Load()
	assert.Error(t, err)
}

func TestEnvParsingFallsBack(t *testing.T) {
	t.Setenv("REALTIME_POLL_INTERVAL", "soon")
	t.Setenv("STATIC_DOWNLOAD_RETRIES", "five")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.GTFSRealtime.PollingInterval)
	assert.EqualValues(t, 3, cfg.GTFSStatic.MaxRetries)
}
