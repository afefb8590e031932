package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.API.Addr)
	assert.EqualValues(t, 10, cfg.Database.MaxConns)
	assert.True(t, cfg.Database.Migrate)
	assert.Equal(t, "http://localhost:8088", cfg.Worker.URL)
	assert.Equal(t, 60*time.Second, cfg.Worker.RequestTimeout)
	assert.Equal(t, 2*time.Hour, cfg.Worker.StageTimeout)
	assert.Empty(t, cfg.RabbitMQ.URL)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlContent := `
api:
  addr: ":9000"
worker:
  url: "http://etl:8088"
  stage_timeout: 30m
warehouse:
  default_uri: "file:///data/warehouse"
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0o644))

	t.Setenv("API_ADDR", ":9100")
	t.Setenv("RUN_STAGE_TIMEOUT", "0s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9100", cfg.API.Addr)
	assert.Equal(t, "http://etl:8088", cfg.Worker.URL)
	assert.Equal(t, time.Duration(0), cfg.Worker.StageTimeout)
	assert.Equal(t, "file:///data/warehouse", cfg.Warehouse.DefaultURI)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		Database: DatabaseConfig{URL: "postgres://localhost/db"},
		Worker:   WorkerConfig{URL: "http://worker", StageTimeout: -time.Second},
		Log:      LogConfig{Format: "xml"},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stage_timeout")
	assert.Contains(t, err.Error(), "log.format")

	cfg.Worker.URL = ""
	assert.ErrorContains(t, cfg.Validate(), "ETL_WORKER_URL")
}
