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
// built-in defaults, applies OPINED_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known OPINED_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Engine ──
	setFloat64(&cfg.Engine.Alpha, "OPINED_ENGINE_ALPHA")
	setInt64(&cfg.Engine.FeeRateBps, "OPINED_ENGINE_FEE_RATE_BPS")
	setInt64(&cfg.Engine.MinLiquidity, "OPINED_ENGINE_MIN_LIQUIDITY")
	setInt64(&cfg.Engine.MaxLiquidity, "OPINED_ENGINE_MAX_LIQUIDITY")

	// ── Database ──
	setStr(&cfg.Database.DSN, "OPINED_DATABASE_DSN")
	setStr(&cfg.Database.DSN, "OPINED_DATABASE_URL") // compatibility alias
	setStr(&cfg.Database.Host, "OPINED_DATABASE_HOST")
	setInt(&cfg.Database.Port, "OPINED_DATABASE_PORT")
	setStr(&cfg.Database.Database, "OPINED_DATABASE_NAME")
	setStr(&cfg.Database.User, "OPINED_DATABASE_USER")
	setStr(&cfg.Database.Password, "OPINED_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "OPINED_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "OPINED_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "OPINED_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "OPINED_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "OPINED_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "OPINED_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "OPINED_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "OPINED_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "OPINED_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "OPINED_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.PriceTTL, "OPINED_REDIS_PRICE_TTL")
	setInt64(&cfg.Redis.StreamMaxLen, "OPINED_REDIS_STREAM_MAX_LEN")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "OPINED_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "OPINED_S3_REGION")
	setStr(&cfg.S3.Bucket, "OPINED_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "OPINED_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "OPINED_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "OPINED_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "OPINED_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "OPINED_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "OPINED_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.RetentionDays, "OPINED_ARCHIVE_RETENTION_DAYS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "OPINED_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "OPINED_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "OPINED_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.AdminAPIKey, "OPINED_SERVER_ADMIN_API_KEY")
	setInt(&cfg.Server.RateLimitPerMinute, "OPINED_SERVER_RATE_LIMIT_PER_MINUTE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "OPINED_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "OPINED_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "OPINED_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "OPINED_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "OPINED_MODE")
	setStr(&cfg.LogLevel, "OPINED_LOG_LEVEL")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
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
