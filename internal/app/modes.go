package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	s3blob "github.com/jiliangzhu/MarketPulse-X/internal/blob/s3"
	"github.com/jiliangzhu/MarketPulse-X/internal/exec"
	"github.com/jiliangzhu/MarketPulse-X/internal/feed"
	"github.com/jiliangzhu/MarketPulse-X/internal/ingest"
	"github.com/jiliangzhu/MarketPulse-X/internal/ml"
	"github.com/jiliangzhu/MarketPulse-X/internal/pipeline"
	"github.com/jiliangzhu/MarketPulse-X/internal/risk"
	"github.com/jiliangzhu/MarketPulse-X/internal/rules"
	"github.com/jiliangzhu/MarketPulse-X/internal/server"
	"github.com/jiliangzhu/MarketPulse-X/internal/server/handler"
	"github.com/jiliangzhu/MarketPulse-X/internal/synonym"
)

// cryptoStreams are the Binance streams the lead-lag detector reads.
var cryptoStreams = []string{"btcusdt", "ethusdt", "solusdt"}

// IngestMode runs the tick ingestion loop against the configured source.
func (a *App) IngestMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting ingest mode")

	g, ctx := errgroup.WithContext(ctx)
	if err := a.startIngest(ctx, g, deps); err != nil {
		return err
	}
	return g.Wait()
}

// WorkerMode runs the rules engine, the crypto feed, and the retention job.
func (a *App) WorkerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting worker mode")

	g, ctx := errgroup.WithContext(ctx)
	if err := a.startWorker(ctx, g, deps); err != nil {
		return err
	}
	return g.Wait()
}

// APIMode runs only the HTTP server.
func (a *App) APIMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting api mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startServer(ctx, g, deps)
	return g.Wait()
}

// FullMode runs ingestion, the worker, and the HTTP server in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	if err := a.startIngest(ctx, g, deps); err != nil {
		return err
	}
	if err := a.startWorker(ctx, g, deps); err != nil {
		return err
	}
	if a.cfg.Server.Enabled {
		a.startServer(ctx, g, deps)
	}
	return g.Wait()
}

// newTickSource builds the configured market data source.
func (a *App) newTickSource() (ingest.TickSource, error) {
	switch a.cfg.Ingest.Source {
	case "mock":
		return ingest.NewMockSource(time.Now().UnixNano()), nil
	case "real":
		return ingest.NewPolymarketSource(a.cfg.Ingest.GammaURL, a.cfg.Ingest.BootstrapLimit), nil
	default:
		return nil, fmt.Errorf("app: unknown ingest source %q", a.cfg.Ingest.Source)
	}
}

// startIngest bootstraps the source and adds the polling loop to the group.
func (a *App) startIngest(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	source, err := a.newTickSource()
	if err != nil {
		return err
	}

	processor := ingest.NewProcessor(ingest.ProcessorConfig{
		Interval:    a.cfg.Ingest.Interval.Duration,
		Parallelism: a.cfg.Ingest.Parallelism,
	}, source, deps.MarketStore, deps.TickStore, deps.TickCache, deps.Metrics, a.logger)

	if err := processor.Initialize(ctx); err != nil {
		return fmt.Errorf("app: initialize ingest: %w", err)
	}

	g.Go(func() error {
		return processor.Run(ctx)
	})
	return nil
}

// startWorker loads rule definitions, builds the engine with its
// collaborators, and adds the evaluation and retention loops to the group.
func (a *App) startWorker(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	// Rule definitions from disk. A load failure is not fatal: the store
	// may already hold rules from a previous run or an API upload.
	loader := rules.NewLoader(a.cfg.Rules.Dir, a.cfg.Rules.PayloadMaxBytes, deps.RuleStore, deps.AuditStore, a.logger)
	if _, err := loader.LoadDir(ctx); err != nil {
		a.logger.WarnContext(ctx, "rule load failed, continuing with stored rules",
			slog.String("dir", a.cfg.Rules.Dir),
			slog.String("error", err.Error()),
		)
	}

	// Synonym groups.
	synCfg, err := synonym.LoadConfig(a.cfg.Synonym.Path)
	if err != nil {
		return fmt.Errorf("app: load synonym config: %w", err)
	}
	matcher := synonym.NewMatcher(synCfg, a.cfg.Synonym.EmbeddingThreshold, a.cfg.Synonym.MinCommunitySize, a.logger)

	// Crypto feed for the lead-lag detector.
	var cryptoFeed rules.CryptoFeed
	if a.cfg.Feed.BinanceEnabled {
		bf := feed.NewBinanceFeed(a.cfg.Feed.BinanceWSURL, cryptoStreams, a.logger)
		cryptoFeed = bf
		g.Go(func() error {
			return bf.Run(ctx)
		})
	}

	// Model scoring.
	var predictor rules.Predictor
	if a.cfg.ML.Enabled {
		predictor = ml.NewPredictor(a.cfg.ML.Endpoint, a.cfg.ML.RequestTimeout.Duration, a.logger)
	}

	breaker := rules.NewBreaker(a.cfg.Engine.BreakerFailures, a.cfg.Engine.BreakerCooldown.Duration)

	engine := rules.NewEngine(rules.EngineConfig{
		Interval:     a.cfg.Engine.Interval.Duration,
		MarketLimit:  a.cfg.Engine.MarketLimit,
		RecentWindow: a.cfg.Engine.RecentWindow.Duration,
		RecentLimit:  a.cfg.Engine.RecentLimit,
		MLThreshold:  a.cfg.ML.ConfidenceThreshold,
		MLInterval:   a.cfg.ML.InferenceInterval.Duration,
		ConfWeight:   a.cfg.ML.FusionConfWeight,
		RuleBonus:    a.cfg.ML.FusionRuleBonus,
		MockSource:   a.cfg.Ingest.Source == "mock",
		DashboardURL: a.cfg.Notify.DashboardURL,
	}, rules.EngineDeps{
		Markets:    deps.MarketStore,
		Ticks:      deps.TickStore,
		Rules:      deps.RuleStore,
		Signals:    deps.SignalStore,
		Groups:     deps.GroupStore,
		KPIs:       deps.KPIStore,
		Audit:      deps.AuditStore,
		Matcher:    matcher,
		Feed:       cryptoFeed,
		Predictor:  predictor,
		Dispatcher: deps.Dispatcher,
		Breaker:    breaker,
		Metrics:    deps.Metrics,
		Logger:     a.logger,
	})
	g.Go(func() error {
		return engine.Run(ctx)
	})

	// Cold storage retention.
	if a.cfg.Archive.Enabled && deps.BlobWriter != nil {
		archiver := s3blob.NewArchiver(deps.BlobWriter, deps.TickStore, deps.SignalStore, deps.AuditStore, a.cfg.Archive.BatchSize)
		retention := pipeline.NewRetention(archiver, deps.TickStore, deps.SignalStore, deps.LockManager,
			a.cfg.Archive.RetentionDays, a.cfg.Archive.Interval.Duration, a.logger)
		g.Go(func() error {
			return retention.Run(ctx)
		})
	}

	return nil
}

// startServer registers all HTTP handlers and adds the listen and shutdown
// goroutines to the group.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	oems := exec.NewOEMS(exec.Config{
		Mode:                a.cfg.Exec.Mode,
		MaxNotionalPerOrder: a.cfg.Exec.MaxNotionalPerOrder,
		MaxConcurrentOrders: a.cfg.Exec.MaxConcurrentOrders,
		MaxDailyNotional:    a.cfg.Exec.MaxDailyNotional,
		SlippageBps:         a.cfg.Exec.SlippageBps,
		TTLSecs:             a.cfg.Exec.IntentTTLSecs,
		MaxSignalAge:        a.cfg.Exec.MaxSignalAge.Duration,
	}, deps.SignalStore, deps.TickStore, deps.IntentStore, deps.PolicyStore, deps.AuditStore, deps.Metrics, a.logger)

	limits := risk.NewLimitChecker(deps.IntentStore, a.logger)
	guardrail := risk.NewGuardrail(deps.TickStore)
	// Anything short of auto mode simulates the fill.
	mockFill := a.cfg.Exec.Mode != "auto"
	executor := exec.NewExecutor(mockFill, deps.IntentStore, limits, guardrail, oems.ActivePolicy, deps.AuditStore, deps.Metrics, a.logger)

	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(deps.HealthChecks, a.logger),
		Markets: handler.NewMarketHandler(deps.MarketStore, deps.TickStore, a.logger),
		Signals: handler.NewSignalHandler(deps.SignalStore, a.logger),
		Rules:   handler.NewRuleHandler(deps.RuleStore, deps.AuditStore, a.cfg.Rules.PayloadMaxBytes, a.logger),
		Intents: handler.NewIntentHandler(oems, executor, deps.IntentStore, a.logger),
		KPIs:    handler.NewKPIHandler(deps.KPIStore, a.logger),
		Audit:   handler.NewAuditHandler(deps.AuditStore, a.logger),
		Metrics: deps.Metrics.Handler(),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		AdminToken:  a.cfg.Server.AdminToken,
	}, handlers, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
