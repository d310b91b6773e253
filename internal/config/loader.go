package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies BTCBASIS_* environment variable overrides, and
// returns the final Config. An empty path skips the file and starts from the
// defaults. The returned Config has NOT been validated; the caller should
// invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known BTCBASIS_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty).
func applyEnvOverrides(cfg *Config) {
	// ── Database ──
	setStr(&cfg.Database.DSN, "BTCBASIS_DATABASE_DSN")
	setStr(&cfg.Database.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Database.Host, "BTCBASIS_DATABASE_HOST")
	setInt(&cfg.Database.Port, "BTCBASIS_DATABASE_PORT")
	setStr(&cfg.Database.Database, "BTCBASIS_DATABASE_DATABASE")
	setStr(&cfg.Database.User, "BTCBASIS_DATABASE_USER")
	setStr(&cfg.Database.Password, "BTCBASIS_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "BTCBASIS_DATABASE_SSL_MODE")
	setInt(&cfg.Database.PoolMaxConns, "BTCBASIS_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "BTCBASIS_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "BTCBASIS_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "BTCBASIS_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "BTCBASIS_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "BTCBASIS_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "BTCBASIS_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "BTCBASIS_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "BTCBASIS_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "BTCBASIS_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "BTCBASIS_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "BTCBASIS_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "BTCBASIS_S3_REGION")
	setStr(&cfg.S3.Bucket, "BTCBASIS_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "BTCBASIS_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "BTCBASIS_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "BTCBASIS_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "BTCBASIS_S3_FORCE_PATH_STYLE")

	// ── Rates ──
	setStr(&cfg.Rates.Provider, "BTCBASIS_RATES_PROVIDER")
	setStr(&cfg.Rates.Currency, "BTCBASIS_RATES_CURRENCY")
	setStr(&cfg.Rates.LiveURL, "BTCBASIS_RATES_LIVE_URL")
	setStr(&cfg.Rates.LiveAPIKey, "BTCBASIS_RATES_LIVE_API_KEY")
	setStr(&cfg.Rates.HistoricalURL, "BTCBASIS_RATES_HISTORICAL_URL")
	setDuration(&cfg.Rates.MinCallInterval, "BTCBASIS_RATES_MIN_CALL_INTERVAL")
	setDuration(&cfg.Rates.RequestTimeout, "BTCBASIS_RATES_REQUEST_TIMEOUT")
	setBool(&cfg.Rates.DistributedGate, "BTCBASIS_RATES_DISTRIBUTED_GATE")

	// ── Engine ──
	setInt(&cfg.Engine.CommitRetries, "BTCBASIS_ENGINE_COMMIT_RETRIES")
	setDuration(&cfg.Engine.LockTTL, "BTCBASIS_ENGINE_LOCK_TTL")
	setBool(&cfg.Engine.DistributedLock, "BTCBASIS_ENGINE_DISTRIBUTED_LOCK")

	// ── Export ──
	setStr(&cfg.Export.Prefix, "BTCBASIS_EXPORT_PREFIX")

	// ── Server ──
	setInt(&cfg.Server.Port, "BTCBASIS_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "BTCBASIS_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "BTCBASIS_SERVER_API_KEY")
	setFloat(&cfg.Server.RequestsPerSecond, "BTCBASIS_SERVER_REQUESTS_PER_SECOND")
	setInt(&cfg.Server.Burst, "BTCBASIS_SERVER_BURST")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "BTCBASIS_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "BTCBASIS_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "BTCBASIS_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "BTCBASIS_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Store, "BTCBASIS_STORE")
	setStr(&cfg.LogLevel, "BTCBASIS_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
