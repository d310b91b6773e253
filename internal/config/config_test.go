package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1200*time.Millisecond, cfg.Rates.MinCallInterval.Duration)
	assert.Equal(t, "primary", cfg.Rates.Provider)
	assert.Equal(t, "USD", cfg.Rates.Currency)
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
store = "memory"
log_level = "debug"

[rates]
min_call_interval = "2s"
historical_url = "http://rates.local"

[engine]
commit_retries = 5
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	t.Setenv("BTCBASIS_RATES_LIVE_API_KEY", "demo-key")
	t.Setenv("BTCBASIS_SERVER_CORS_ORIGINS", "http://a.test, http://b.test,")
	t.Setenv("BTCBASIS_ENGINE_COMMIT_RETRIES", "not-a-number")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Store)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 2*time.Second, cfg.Rates.MinCallInterval.Duration)
	assert.Equal(t, "http://rates.local", cfg.Rates.HistoricalURL)
	assert.Equal(t, "demo-key", cfg.Rates.LiveAPIKey)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.CORSOrigins)
	// unparsable env values leave the file value in place
	assert.Equal(t, 5, cfg.Engine.CommitRetries)
	// untouched sections keep defaults
	assert.Equal(t, 10*time.Second, cfg.Rates.RequestTimeout.Duration)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestValidateCollectsErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   []string
	}{
		{
			name:   "bad log level and store",
			mutate: func(c *Config) { c.LogLevel = "loud"; c.Store = "sqlite" },
			want:   []string{"log_level", "unknown store"},
		},
		{
			name: "distributed features need redis",
			mutate: func(c *Config) {
				c.Rates.DistributedGate = true
				c.Engine.DistributedLock = true
			},
			want: []string{"distributed_gate requires redis", "distributed_lock requires redis"},
		},
		{
			name: "rates and engine bounds",
			mutate: func(c *Config) {
				c.Rates.RequestTimeout.Duration = 0
				c.Engine.CommitRetries = 0
				c.Rates.LiveURL = ""
			},
			want: []string{"request_timeout", "commit_retries", "live_url"},
		},
		{
			name:   "database pool",
			mutate: func(c *Config) { c.Database.PoolMinConns = 20 },
			want:   []string{"pool_min_conns must not exceed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			for _, w := range tt.want {
				assert.Contains(t, err.Error(), w)
			}
		})
	}
}

func TestMemoryStoreSkipsDatabaseChecks(t *testing.T) {
	cfg := Defaults()
	cfg.Store = "memory"
	cfg.Database.Host = ""
	assert.NoError(t, cfg.Validate())
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Database.Password = "hunter2"
	cfg.Server.APIKey = "k"
	cfg.Rates.LiveAPIKey = "cg"

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Database.Password)
	assert.Equal(t, "***", out.Server.APIKey)
	assert.Equal(t, "***", out.Rates.LiveAPIKey)
	assert.Empty(t, out.Redis.Password)
	assert.Equal(t, "hunter2", cfg.Database.Password)

	out.Notify.Events[0] = "changed"
	assert.NotEqual(t, "changed", cfg.Notify.Events[0])
}
