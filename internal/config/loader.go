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
// built-in defaults, applies MPX_* environment variable overrides, and
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

// applyEnvOverrides reads well-known MPX_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "MPX_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "MPX_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "MPX_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "MPX_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "MPX_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "MPX_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "MPX_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "MPX_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "MPX_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "MPX_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "MPX_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "MPX_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "MPX_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "MPX_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "MPX_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "MPX_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "MPX_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "MPX_S3_REGION")
	setStr(&cfg.S3.Bucket, "MPX_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "MPX_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "MPX_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "MPX_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "MPX_S3_FORCE_PATH_STYLE")

	// ── Ingest ──
	setStr(&cfg.Ingest.Source, "MPX_INGEST_SOURCE")
	setStr(&cfg.Ingest.GammaURL, "MPX_INGEST_GAMMA_URL")
	setDuration(&cfg.Ingest.Interval, "MPX_INGEST_INTERVAL")
	setInt(&cfg.Ingest.Parallelism, "MPX_INGEST_PARALLELISM")
	setInt(&cfg.Ingest.BootstrapLimit, "MPX_INGEST_BOOTSTRAP_LIMIT")

	// ── Engine ──
	setDuration(&cfg.Engine.Interval, "MPX_ENGINE_INTERVAL")
	setInt(&cfg.Engine.MarketLimit, "MPX_ENGINE_MARKET_LIMIT")
	setDuration(&cfg.Engine.RecentWindow, "MPX_ENGINE_RECENT_WINDOW")
	setInt(&cfg.Engine.RecentLimit, "MPX_ENGINE_RECENT_LIMIT")
	setInt(&cfg.Engine.BreakerFailures, "MPX_ENGINE_BREAKER_FAILURES")
	setDuration(&cfg.Engine.BreakerCooldown, "MPX_ENGINE_BREAKER_COOLDOWN")

	// ── ML ──
	setBool(&cfg.ML.Enabled, "MPX_ML_ENABLED")
	setStr(&cfg.ML.Endpoint, "MPX_ML_ENDPOINT")
	setFloat64(&cfg.ML.ConfidenceThreshold, "MPX_ML_CONFIDENCE_THRESHOLD")
	setDuration(&cfg.ML.InferenceInterval, "MPX_ML_INFERENCE_INTERVAL")
	setFloat64(&cfg.ML.FusionConfWeight, "MPX_ML_FUSION_CONFIDENCE_WEIGHT")
	setFloat64(&cfg.ML.FusionRuleBonus, "MPX_ML_FUSION_RULE_BONUS")

	// ── Exec ──
	setStr(&cfg.Exec.Mode, "MPX_EXEC_MODE")
	setFloat64(&cfg.Exec.MaxNotionalPerOrder, "MPX_EXEC_MAX_NOTIONAL_PER_ORDER")
	setInt(&cfg.Exec.MaxConcurrentOrders, "MPX_EXEC_MAX_CONCURRENT_ORDERS")
	setFloat64(&cfg.Exec.MaxDailyNotional, "MPX_EXEC_MAX_DAILY_NOTIONAL")
	setInt(&cfg.Exec.SlippageBps, "MPX_EXEC_SLIPPAGE_BPS")
	setInt(&cfg.Exec.IntentTTLSecs, "MPX_EXEC_INTENT_TTL_SECS")

	// ── Rules ──
	setStr(&cfg.Rules.Dir, "MPX_RULES_DIR")
	setInt(&cfg.Rules.PayloadMaxBytes, "MPX_RULES_PAYLOAD_MAX_BYTES")

	// ── Synonym ──
	setStr(&cfg.Synonym.Path, "MPX_SYNONYM_PATH")
	setFloat64(&cfg.Synonym.EmbeddingThreshold, "MPX_SYNONYM_EMBEDDING_THRESHOLD")
	setInt(&cfg.Synonym.MinCommunitySize, "MPX_SYNONYM_MIN_COMMUNITY_SIZE")

	// ── Feed ──
	setBool(&cfg.Feed.BinanceEnabled, "MPX_FEED_BINANCE_ENABLED")
	setStr(&cfg.Feed.BinanceWSURL, "MPX_FEED_BINANCE_WS_URL")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "MPX_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "MPX_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "MPX_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.BatchSize, "MPX_ARCHIVE_BATCH_SIZE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "MPX_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "MPX_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "MPX_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.AdminToken, "MPX_ADMIN_API_TOKEN")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "MPX_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "MPX_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "MPX_NOTIFY_DISCORD_WEBHOOK_URL")
	setStr(&cfg.Notify.DashboardURL, "MPX_NOTIFY_DASHBOARD_URL")

	// ── Top-level ──
	setStr(&cfg.Mode, "MPX_MODE")
	setStr(&cfg.LogLevel, "MPX_LOG_LEVEL")
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
