package ingest

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jiliangzhu/MarketPulse-X/internal/domain"
	"github.com/jiliangzhu/MarketPulse-X/internal/metrics"
)

const (
	// priceEpsilon is the minimum price move that counts as a new tick.
	priceEpsilon = 1e-4

	// maxBackoff caps the error backoff between poll cycles.
	maxBackoff = 30 * time.Second
)

// ProcessorConfig holds the poll cadence and fan-out width.
type ProcessorConfig struct {
	Interval    time.Duration
	Parallelism int
}

// Processor polls a TickSource on an interval and persists price-changed
// ticks. Unchanged prices are dropped against the last cached price so quiet
// markets do not flood the tick table.
type Processor struct {
	cfg     ProcessorConfig
	source  TickSource
	markets domain.MarketStore
	ticks   domain.TickStore
	cache   domain.TickCache
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewProcessor creates a Processor for the given source and stores.
func NewProcessor(cfg ProcessorConfig, source TickSource, markets domain.MarketStore, ticks domain.TickStore, cache domain.TickCache, m *metrics.Metrics, logger *slog.Logger) *Processor {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 4
	}
	return &Processor{
		cfg:     cfg,
		source:  source,
		markets: markets,
		ticks:   ticks,
		cache:   cache,
		metrics: m,
		logger:  logger.With(slog.String("component", "ingest"), slog.String("source", source.Name())),
	}
}

// Initialize upserts the source's markets and options so the engine can see
// them before the first tick arrives.
func (p *Processor) Initialize(ctx context.Context) error {
	markets, err := p.source.ListMarkets(ctx)
	if err != nil {
		return err
	}
	for _, m := range markets {
		if err := p.markets.Upsert(ctx, m); err != nil {
			return err
		}
		opts, err := p.source.ListOptions(ctx, m.ID)
		if err != nil {
			return err
		}
		if err := p.markets.UpsertOptions(ctx, opts); err != nil {
			return err
		}
	}
	p.logger.Info("source initialized", slog.Int("markets", len(markets)))
	return nil
}

// Run polls until ctx is cancelled. Poll errors back off exponentially and
// the backoff resets after the next clean cycle.
func (p *Processor) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		start := time.Now()
		if err := p.pollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.Error("poll cycle failed", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = time.Second
		p.metrics.IngestLatencyMS.WithLabelValues(p.source.Name()).
			Observe(float64(time.Since(start).Milliseconds()))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.cfg.Interval):
		}
	}
}

func (p *Processor) pollOnce(ctx context.Context) error {
	markets, err := p.source.ListMarkets(ctx)
	if err != nil {
		return err
	}

	var (
		mu     sync.Mutex
		polled []domain.Tick
	)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.cfg.Parallelism; i++ {
		chunk := markets[i*len(markets)/p.cfg.Parallelism : (i+1)*len(markets)/p.cfg.Parallelism]
		if len(chunk) == 0 {
			continue
		}
		g.Go(func() error {
			for _, m := range chunk {
				ticks, err := p.source.PollTicks(gctx, m.ID)
				if err != nil {
					return err
				}
				mu.Lock()
				polled = append(polled, ticks...)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if len(polled) == 0 {
		return nil
	}

	changed, err := p.filterChanged(ctx, polled)
	if err != nil {
		return err
	}
	if len(changed) == 0 {
		return nil
	}

	if err := p.ticks.InsertBatch(ctx, changed); err != nil {
		return err
	}
	var newest time.Time
	for _, t := range changed {
		if err := p.cache.SetPrice(ctx, t.OptionID, t.Price, t.TS); err != nil {
			p.logger.Warn("tick cache update failed", slog.String("error", err.Error()))
			break
		}
		if t.TS.After(newest) {
			newest = t.TS
		}
	}
	p.metrics.IngestLastTickTS.WithLabelValues(p.source.Name()).Set(float64(newest.Unix()))
	return nil
}

// filterChanged drops ticks whose price matches the cached last price within
// priceEpsilon. A cache miss always passes.
func (p *Processor) filterChanged(ctx context.Context, ticks []domain.Tick) ([]domain.Tick, error) {
	ids := make([]string, 0, len(ticks))
	for _, t := range ticks {
		ids = append(ids, t.OptionID)
	}
	cached, err := p.cache.GetPrices(ctx, ids)
	if err != nil {
		p.logger.Warn("tick cache read failed, keeping all ticks", slog.String("error", err.Error()))
		return ticks, nil
	}

	changed := ticks[:0]
	for _, t := range ticks {
		if last, ok := cached[t.OptionID]; ok && math.Abs(last-t.Price) <= priceEpsilon {
			continue
		}
		changed = append(changed, t)
	}
	return changed, nil
}
