// Package config defines the top-level configuration for the btcbasis service
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by BTCBASIS_* environment variables.
type Config struct {
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Rates    RatesConfig    `toml:"rates"`
	Engine   EngineConfig   `toml:"engine"`
	Export   ExportConfig   `toml:"export"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	// Store selects the persistence backend: "postgres" or "memory".
	Store    string `toml:"store"`
	LogLevel string `toml:"log_level"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. Redis is optional; when
// disabled the service runs with in-process locks, gate and event bus.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters used for report
// export.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// RatesConfig holds exchange-rate provider endpoints and throttling.
type RatesConfig struct {
	Provider      string `toml:"provider"`
	Currency      string `toml:"currency"`
	LiveURL       string `toml:"live_url"`
	LiveAPIKey    string `toml:"live_api_key"`
	HistoricalURL string `toml:"historical_url"`
	// MinCallInterval is the minimum spacing between two outbound provider
	// calls, shared by the live and historical paths.
	MinCallInterval duration `toml:"min_call_interval"`
	RequestTimeout  duration `toml:"request_timeout"`
	// DistributedGate moves the call gate into Redis so every replica shares
	// one provider budget.
	DistributedGate bool `toml:"distributed_gate"`
}

// EngineConfig holds cost-basis engine parameters.
type EngineConfig struct {
	CommitRetries   int      `toml:"commit_retries"`
	LockTTL         duration `toml:"lock_ttl"`
	DistributedLock bool     `toml:"distributed_lock"`
}

// ExportConfig holds allocation report export parameters.
type ExportConfig struct {
	Prefix string `toml:"prefix"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	// RequestsPerSecond limits each client IP; zero disables the limit.
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Database: DatabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "btcbasis",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "btcbasis-reports",
			ForcePathStyle: true,
		},
		Rates: RatesConfig{
			Provider:        "primary",
			Currency:        "USD",
			LiveURL:         "https://api.coingecko.com/api/v3",
			HistoricalURL:   "https://api.coingecko.com/api/v3",
			MinCallInterval: duration{1200 * time.Millisecond},
			RequestTimeout:  duration{10 * time.Second},
		},
		Engine: EngineConfig{
			CommitRetries: 3,
			LockTTL:       duration{30 * time.Second},
		},
		Export: ExportConfig{
			Prefix: "allocations",
		},
		Server: ServerConfig{
			Port:              8000,
			CORSOrigins:       []string{"http://localhost:3000"},
			RequestsPerSecond: 10,
			Burst:             20,
		},
		Notify: NotifyConfig{
			Events: []string{"insufficient_inventory", "rate_fetch_failed"},
		},
		Store:    "postgres",
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validStores = map[string]bool{
	"postgres": true,
	"memory":   true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}
	if !validStores[strings.ToLower(c.Store)] {
		errs = append(errs, fmt.Sprintf("unknown store %q (valid: postgres, memory)", c.Store))
	}

	// Database
	if strings.EqualFold(c.Store, "postgres") {
		if strings.TrimSpace(c.Database.DSN) == "" {
			if c.Database.Host == "" {
				errs = append(errs, "database: host must not be empty (or set database.dsn)")
			}
			if c.Database.Port <= 0 || c.Database.Port > 65535 {
				errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
			}
			if c.Database.Database == "" {
				errs = append(errs, "database: database must not be empty")
			}
		}
		if c.Database.PoolMaxConns < 1 {
			errs = append(errs, "database: pool_max_conns must be >= 1")
		}
		if c.Database.PoolMinConns < 0 {
			errs = append(errs, "database: pool_min_conns must be >= 0")
		}
		if c.Database.PoolMinConns > c.Database.PoolMaxConns {
			errs = append(errs, "database: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}
	if c.Rates.DistributedGate && !c.Redis.Enabled {
		errs = append(errs, "rates: distributed_gate requires redis.enabled")
	}
	if c.Engine.DistributedLock && !c.Redis.Enabled {
		errs = append(errs, "engine: distributed_lock requires redis.enabled")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Rates
	if c.Rates.Provider == "" {
		errs = append(errs, "rates: provider must not be empty")
	}
	if c.Rates.Currency == "" {
		errs = append(errs, "rates: currency must not be empty")
	}
	if c.Rates.LiveURL == "" {
		errs = append(errs, "rates: live_url must not be empty")
	}
	if c.Rates.HistoricalURL == "" {
		errs = append(errs, "rates: historical_url must not be empty")
	}
	if c.Rates.MinCallInterval.Duration < 0 {
		errs = append(errs, "rates: min_call_interval must be >= 0")
	}
	if c.Rates.RequestTimeout.Duration <= 0 {
		errs = append(errs, "rates: request_timeout must be > 0")
	}

	// Engine
	if c.Engine.CommitRetries < 1 {
		errs = append(errs, "engine: commit_retries must be >= 1")
	}
	if c.Engine.DistributedLock && c.Engine.LockTTL.Duration <= 0 {
		errs = append(errs, "engine: lock_ttl must be > 0 when distributed_lock is set")
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.RequestsPerSecond < 0 || c.Server.Burst < 0 {
		errs = append(errs, "server: requests_per_second and burst must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
