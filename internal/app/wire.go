package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/jiliangzhu/MarketPulse-X/internal/blob/s3"
	"github.com/jiliangzhu/MarketPulse-X/internal/cache/redis"
	"github.com/jiliangzhu/MarketPulse-X/internal/config"
	"github.com/jiliangzhu/MarketPulse-X/internal/domain"
	"github.com/jiliangzhu/MarketPulse-X/internal/metrics"
	"github.com/jiliangzhu/MarketPulse-X/internal/notify"
	"github.com/jiliangzhu/MarketPulse-X/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores
	MarketStore domain.MarketStore
	TickStore   domain.TickStore
	RuleStore   domain.RuleStore
	SignalStore domain.SignalStore
	GroupStore  domain.GroupStore
	KPIStore    domain.KPIStore
	IntentStore domain.IntentStore
	PolicyStore domain.PolicyStore
	AuditStore  domain.AuditStore

	// Caches
	TickCache   domain.TickCache
	DedupeCache domain.DedupeCache
	LockManager domain.LockManager

	// Blob storage, nil unless archival is enabled.
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader

	// Notifications
	Dispatcher *notify.Dispatcher

	// Metrics registry shared by every subsystem.
	Metrics *metrics.Metrics

	// Health probes by dependency name.
	HealthChecks map[string]func(ctx context.Context) error
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Metrics:      metrics.New(),
		HealthChecks: make(map[string]func(ctx context.Context) error),
	}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.MarketStore = postgres.NewMarketStore(pool)
	deps.TickStore = postgres.NewTickStore(pool)
	deps.RuleStore = postgres.NewRuleStore(pool)
	deps.SignalStore = postgres.NewSignalStore(pool)
	deps.GroupStore = postgres.NewGroupStore(pool)
	deps.KPIStore = postgres.NewKPIStore(pool)
	deps.IntentStore = postgres.NewIntentStore(pool)
	deps.PolicyStore = postgres.NewPolicyStore(pool)
	deps.AuditStore = postgres.NewAuditStore(pool)
	deps.HealthChecks["postgres"] = pool.Ping

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.TickCache = redis.NewTickCache(redisClient)
	deps.DedupeCache = redis.NewDedupeCache(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.HealthChecks["redis"] = redisClient.Ping

	// --- S3 blob storage (only when archival is on) ---
	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Dispatcher = notify.NewDispatcher(senders, deps.DedupeCache, logger)

	return deps, cleanup, nil
}
