// Package config defines the top-level configuration for MarketPulse-X
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by MPX_* environment variables.
type Config struct {
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Ingest   IngestConfig   `toml:"ingest"`
	Engine   EngineConfig   `toml:"engine"`
	ML       MLConfig       `toml:"ml"`
	Exec     ExecConfig     `toml:"exec"`
	Rules    RulesConfig    `toml:"rules"`
	Synonym  SynonymConfig  `toml:"synonym"`
	Feed     FeedConfig     `toml:"feed"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
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

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the archiver.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// IngestConfig holds tick ingestion parameters.
type IngestConfig struct {
	// Source selects the market data source: "mock" or "real".
	Source         string   `toml:"source"`
	GammaURL       string   `toml:"gamma_url"`
	Interval       duration `toml:"interval"`
	Parallelism    int      `toml:"parallelism"`
	BootstrapLimit int      `toml:"bootstrap_limit"`
}

// EngineConfig holds rules engine parameters.
type EngineConfig struct {
	Interval        duration `toml:"interval"`
	MarketLimit     int      `toml:"market_limit"`
	RecentWindow    duration `toml:"recent_window"`
	RecentLimit     int      `toml:"recent_limit"`
	BreakerFailures int      `toml:"breaker_failures"`
	BreakerCooldown duration `toml:"breaker_cooldown"`
}

// MLConfig holds ML inference and fusion parameters.
type MLConfig struct {
	Enabled              bool     `toml:"enabled"`
	Endpoint             string   `toml:"endpoint"`
	ConfidenceThreshold  float64  `toml:"confidence_threshold"`
	InferenceInterval    duration `toml:"inference_interval"`
	FusionConfWeight     float64  `toml:"fusion_confidence_weight"`
	FusionRuleBonus      float64  `toml:"fusion_rule_bonus"`
	RequestTimeout       duration `toml:"request_timeout"`
}

// ExecConfig holds order-intent execution limits.
type ExecConfig struct {
	Mode                string  `toml:"mode"`
	MaxNotionalPerOrder float64 `toml:"max_notional_per_order"`
	MaxConcurrentOrders int     `toml:"max_concurrent_orders"`
	MaxDailyNotional    float64 `toml:"max_daily_notional"`
	SlippageBps         int     `toml:"slippage_bps"`
	IntentTTLSecs       int     `toml:"intent_ttl_secs"`
	// MaxSignalAge bounds how old a signal may be when an intent is
	// created from it.
	MaxSignalAge duration `toml:"max_signal_age"`
}

// RulesConfig holds rule definition loading parameters.
type RulesConfig struct {
	Dir             string `toml:"dir"`
	PayloadMaxBytes int    `toml:"payload_max_bytes"`
}

// SynonymConfig holds synonym group matching parameters.
type SynonymConfig struct {
	Path               string  `toml:"path"`
	EmbeddingThreshold float64 `toml:"embedding_threshold"`
	MinCommunitySize   int     `toml:"min_community_size"`
}

// FeedConfig holds fast external price feed parameters.
type FeedConfig struct {
	BinanceEnabled bool   `toml:"binance_enabled"`
	BinanceWSURL   string `toml:"binance_ws_url"`
}

// ArchiveConfig holds cold storage archival parameters.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
	BatchSize     int      `toml:"batch_size"`
}

// ServerConfig holds HTTP API server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	AdminToken  string   `toml:"admin_token"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string `toml:"telegram_token"`
	TelegramChatID    string `toml:"telegram_chat_id"`
	DiscordWebhookURL string `toml:"discord_webhook_url"`
	// DashboardURL is linked from alert messages.
	DashboardURL string `toml:"dashboard_url"`
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

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "marketpulse",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "marketpulse-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Ingest: IngestConfig{
			Source:         "mock",
			GammaURL:       "https://gamma-api.polymarket.com",
			Interval:       duration{time.Second},
			Parallelism:    3,
			BootstrapLimit: 200,
		},
		Engine: EngineConfig{
			Interval:        duration{2 * time.Second},
			MarketLimit:     100,
			RecentWindow:    duration{5 * time.Minute},
			RecentLimit:     250,
			BreakerFailures: 3,
			BreakerCooldown: duration{5 * time.Minute},
		},
		ML: MLConfig{
			Enabled:             false,
			Endpoint:            "http://localhost:8501/predict",
			ConfidenceThreshold: 0.7,
			InferenceInterval:   duration{5 * time.Second},
			FusionConfWeight:    1.0,
			FusionRuleBonus:     20.0,
			RequestTimeout:      duration{3 * time.Second},
		},
		Exec: ExecConfig{
			Mode:                "semi_auto",
			MaxNotionalPerOrder: 200.0,
			MaxConcurrentOrders: 2,
			MaxDailyNotional:    1000.0,
			SlippageBps:         80,
			IntentTTLSecs:       60,
			MaxSignalAge:        duration{60 * time.Second},
		},
		Rules: RulesConfig{
			Dir:             "configs/rules",
			PayloadMaxBytes: 16000,
		},
		Synonym: SynonymConfig{
			Path:               "configs/synonyms.yml",
			EmbeddingThreshold: 0.75,
			MinCommunitySize:   2,
		},
		Feed: FeedConfig{
			BinanceEnabled: true,
			BinanceWSURL:   "wss://stream.binance.us:9443/ws",
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
			Interval:      duration{24 * time.Hour},
			BatchSize:     5000,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Notify:   NotifyConfig{DashboardURL: "http://localhost:3000"},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"full":   true,
	"worker": true,
	"ingest": true,
	"api":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validExecModes enumerates the accepted values for Exec.Mode.
var validExecModes = map[string]bool{
	"manual":    true,
	"semi_auto": true,
	"auto":      true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: full, worker, ingest, api)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 only matters when archival is on.
	if c.Archive.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archive is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
	}

	// Ingest
	if c.Ingest.Source != "mock" && c.Ingest.Source != "real" {
		errs = append(errs, fmt.Sprintf("ingest: unknown source %q (valid: mock, real)", c.Ingest.Source))
	}
	if c.Ingest.Parallelism < 1 {
		errs = append(errs, "ingest: parallelism must be >= 1")
	}
	if c.Ingest.Interval.Duration <= 0 {
		errs = append(errs, "ingest: interval must be positive")
	}

	// Engine
	if c.Engine.Interval.Duration <= 0 {
		errs = append(errs, "engine: interval must be positive")
	}
	if c.Engine.MarketLimit < 1 {
		errs = append(errs, "engine: market_limit must be >= 1")
	}
	if c.Engine.BreakerFailures < 1 {
		errs = append(errs, "engine: breaker_failures must be >= 1")
	}

	// ML
	if c.ML.Enabled {
		if c.ML.Endpoint == "" {
			errs = append(errs, "ml: endpoint must not be empty when enabled")
		}
		if c.ML.ConfidenceThreshold < 0 || c.ML.ConfidenceThreshold > 1 {
			errs = append(errs, fmt.Sprintf("ml: confidence_threshold must be in [0,1], got %g", c.ML.ConfidenceThreshold))
		}
	}

	// Exec
	if !validExecModes[c.Exec.Mode] {
		errs = append(errs, fmt.Sprintf("exec: unknown mode %q (valid: manual, semi_auto, auto)", c.Exec.Mode))
	}
	if c.Exec.MaxNotionalPerOrder <= 0 {
		errs = append(errs, "exec: max_notional_per_order must be > 0")
	}
	if c.Exec.MaxConcurrentOrders < 1 {
		errs = append(errs, "exec: max_concurrent_orders must be >= 1")
	}
	if c.Exec.MaxDailyNotional <= 0 {
		errs = append(errs, "exec: max_daily_notional must be > 0")
	}
	if c.Exec.SlippageBps < 0 {
		errs = append(errs, "exec: slippage_bps must be >= 0")
	}

	// Rules
	if c.Rules.PayloadMaxBytes < 1 {
		errs = append(errs, "rules: payload_max_bytes must be >= 1")
	}

	// Server: the admin token guards intent creation, so a server without
	// one is a misconfiguration rather than an open deployment.
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if len(c.Server.AdminToken) < 12 {
			errs = append(errs, "server: admin_token must be at least 12 characters")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
