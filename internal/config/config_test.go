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
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const minimalConfig = `
database:
  host: localhost
  user: newsbrief
  dbname: newsbrief
`

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, ":8090", cfg.Server.Address)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, "localhost:6379", cfg.Redis.Address)

	assert.Equal(t, 5*time.Second, cfg.Generation.PollInterval)
	assert.Equal(t, 5, cfg.Generation.BatchSize)
	assert.Equal(t, 3, cfg.Generation.MaxRetries)
	assert.Equal(t, 300*time.Second, cfg.Generation.JobTimeout)
	assert.Equal(t, 12*time.Hour, cfg.Generation.RecentContentWindow)
	assert.InDelta(t, 0.50, cfg.Generation.MaxCostPerJob, 1e-9)
	assert.Equal(t, 10*time.Minute, cfg.Generation.StaleRunningAge)

	assert.Equal(t, 5*time.Second, cfg.Delivery.PollInterval)
	assert.Equal(t, 25, cfg.Delivery.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.Delivery.DeliveryTimeout)
	assert.Equal(t, 7*24*time.Hour, cfg.Delivery.RetentionAge)

	assert.False(t, cfg.Scheduler.Enabled)
	assert.Equal(t, time.Minute, cfg.Scheduler.ReloadInterval)
}

func TestLoad_ExplicitValues(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
debug: true
server:
  address: ":9000"
database:
  host: db.internal
  port: 5433
  user: svc
  password: secret
  dbname: briefings
  sslmode: require
redis:
  address: redis.internal:6379
generation:
  poll_interval: 2s
  batch_size: 10
  recent_content_window: 6h
  max_cost_per_job: 1.25
delivery:
  batch_size: 50
scheduler:
  enabled: true
  reload_interval: 30s
  timezone: Europe/Berlin
`))
	require.NoError(t, err)

	assert.True(t, cfg.Debug)
	assert.Equal(t, ":9000", cfg.Server.Address)
	assert.Equal(t,
		"host=db.internal port=5433 user=svc password=secret dbname=briefings sslmode=require",
		cfg.Database.DSN())
	assert.Equal(t, 2*time.Second, cfg.Generation.PollInterval)
	assert.Equal(t, 10, cfg.Generation.BatchSize)
	assert.Equal(t, 6*time.Hour, cfg.Generation.RecentContentWindow)
	assert.InDelta(t, 1.25, cfg.Generation.MaxCostPerJob, 1e-9)
	assert.Equal(t, 50, cfg.Delivery.BatchSize)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, "Europe/Berlin", cfg.Scheduler.Timezone)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("APP_DEBUG", "yes")
	t.Setenv("DB_HOST", "env-host")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_PASSWORD", "env-secret")
	t.Setenv("REDIS_ADDRESS", "env-redis:6380")
	t.Setenv("SERVER_ADDRESS", ":7070")

	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.True(t, cfg.Debug)
	assert.Equal(t, "env-host", cfg.Database.Host)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, "env-secret", cfg.Database.Password)
	assert.Equal(t, "env-redis:6380", cfg.Redis.Address)
	assert.Equal(t, ":7070", cfg.Server.Address)
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing database host",
			content: "database:\n  user: u\n  dbname: d\n",
			wantErr: "database.host is required",
		},
		{
			name:    "missing database user",
			content: "database:\n  host: h\n  dbname: d\n",
			wantErr: "database.user is required",
		},
		{
			name:    "missing dbname",
			content: "database:\n  host: h\n  user: u\n",
			wantErr: "database.dbname is required",
		},
		{
			name:    "negative cost guard",
			content: minimalConfig + "generation:\n  max_cost_per_job: -0.1\n",
			wantErr: "generation.max_cost_per_job cannot be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	assert.Error(t, err)
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"true", true},
		{"TRUE", true},
		{"1", true},
		{"yes", true},
		{" yes ", true},
		{"false", false},
		{"0", false},
		{"", false},
		{"maybe", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseBool(tt.in), "input %q", tt.in)
	}
}
