package rules

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jiliangzhu/MarketPulse-X/internal/domain"
	"github.com/jiliangzhu/MarketPulse-X/internal/metrics"
	"github.com/jiliangzhu/MarketPulse-X/internal/notify"
	"github.com/jiliangzhu/MarketPulse-X/internal/synonym"
)

// Predictor scores feature rows into outcome probabilities.
type Predictor interface {
	PredictBatch(ctx context.Context, rows []map[string]float64) ([]float64, error)
}

// EngineConfig holds the evaluation cadence and fusion parameters.
type EngineConfig struct {
	Interval     time.Duration
	MarketLimit  int
	RecentWindow time.Duration
	RecentLimit  int

	MLThreshold float64
	MLInterval  time.Duration
	ConfWeight  float64
	RuleBonus   float64

	// Platform gates which markets are evaluated. MockSource evaluates
	// everything regardless of platform.
	Platform   string
	MockSource bool

	DashboardURL string
}

// Engine runs the detection cycle: snapshot markets, evaluate rules, fuse
// with model candidates, and emit the surviving signals.
type Engine struct {
	cfg EngineConfig

	markets domain.MarketStore
	ticks   domain.TickStore
	rules   domain.RuleStore
	signals domain.SignalStore
	groups  domain.GroupStore
	kpis    domain.KPIStore
	audit   domain.AuditStore

	matcher    *synonym.Matcher
	feed       CryptoFeed
	predictor  Predictor
	dispatcher *notify.Dispatcher
	breaker    *Breaker
	metrics    *metrics.Metrics
	logger     *slog.Logger

	// Emission cooldowns per (rule, market), kept in memory; the notify
	// dedupe cache is the cross-process guard.
	cooldowns map[string]time.Time
	lastML    time.Time
	lastProbs map[string]float64
}

// EngineDeps bundles the engine's collaborators.
type EngineDeps struct {
	Markets domain.MarketStore
	Ticks   domain.TickStore
	Rules   domain.RuleStore
	Signals domain.SignalStore
	Groups  domain.GroupStore
	KPIs    domain.KPIStore
	Audit   domain.AuditStore

	Matcher    *synonym.Matcher
	Feed       CryptoFeed
	Predictor  Predictor
	Dispatcher *notify.Dispatcher
	Breaker    *Breaker
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// NewEngine creates an Engine.
func NewEngine(cfg EngineConfig, deps EngineDeps) *Engine {
	if cfg.MarketLimit <= 0 {
		cfg.MarketLimit = 100
	}
	if cfg.Platform == "" {
		cfg.Platform = "polymarket"
	}
	return &Engine{
		cfg:        cfg,
		markets:    deps.Markets,
		ticks:      deps.Ticks,
		rules:      deps.Rules,
		signals:    deps.Signals,
		groups:     deps.Groups,
		kpis:       deps.KPIs,
		audit:      deps.Audit,
		matcher:    deps.Matcher,
		feed:       deps.Feed,
		predictor:  deps.Predictor,
		dispatcher: deps.Dispatcher,
		breaker:    deps.Breaker,
		metrics:    deps.Metrics,
		logger:     deps.Logger.With(slog.String("component", "rules_engine")),
		cooldowns:  make(map[string]time.Time),
		lastProbs:  make(map[string]float64),
	}
}

// Run evaluates on the configured interval until ctx is cancelled. A failed
// cycle is logged, never fatal.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			start := time.Now()
			if err := e.Cycle(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				e.logger.Error("cycle failed", slog.String("error", err.Error()))
			}
			e.metrics.RuleEvalMS.Observe(float64(time.Since(start).Milliseconds()))
		}
	}
}

// Cycle runs one full evaluation pass.
func (e *Engine) Cycle(ctx context.Context) error {
	now := time.Now().UTC()

	ruleDefs, err := e.rules.List(ctx)
	if err != nil {
		return fmt.Errorf("rules: load rules: %w", err)
	}
	var active []domain.Rule
	for _, r := range ruleDefs {
		if r.Enabled {
			active = append(active, r)
		}
	}
	if len(active) == 0 {
		return nil
	}

	markets, err := e.markets.List(ctx, domain.MarketStatusActive, domain.ListOpts{Limit: e.cfg.MarketLimit})
	if err != nil {
		return fmt.Errorf("rules: list markets: %w", err)
	}

	snapshots := make(map[string]*MarketSnapshot, len(markets))
	for _, market := range markets {
		if !e.marketEnabled(market) {
			continue
		}
		snap, err := e.snapshot(ctx, market)
		if err != nil {
			e.logger.Warn("snapshot failed",
				slog.String("market_id", market.ID), slog.String("error", err.Error()))
			continue
		}
		snapshots[market.ID] = snap
	}
	if len(snapshots) == 0 {
		return nil
	}

	embeddings := make(map[string][]float64)
	for _, market := range markets {
		if len(market.Embedding) > 0 {
			embeddings[market.ID] = market.Embedding
		}
	}
	groups := e.matcher.BuildGroups(markets, embeddings)
	if err := e.groups.Sync(ctx, groups); err != nil {
		e.logger.Warn("group sync failed", slog.String("error", err.Error()))
	}
	e.fillPeers(snapshots, groups)

	candidates := e.runInference(ctx, snapshots, now)

	featureRows := make(map[string]map[string]float64, len(snapshots))
	for id, snap := range snapshots {
		featureRows[id] = BuildFeatures(snap, now)
	}

	var hits []*Hit
	for _, snap := range snapshots {
		for _, rule := range active {
			if rule.Type == domain.RuleCrossMarketMisprice || !rule.InScope(snap.Market) {
				continue
			}
			ectx := EvalContext{
				Now:      now,
				Feed:     e.feed,
				Features: featureRows[snap.Market.ID],
			}
			if prob, ok := e.lastProbs[snap.Market.ID]; ok {
				p := prob
				ectx.MLProb = &p
			}
			hit, err := Evaluate(rule, snap, ectx)
			if err != nil {
				e.logger.Warn("rule evaluation failed",
					slog.String("rule", rule.Name), slog.String("error", err.Error()))
				continue
			}
			if hit != nil {
				hits = append(hits, hit)
			}
		}
	}

	for _, rule := range active {
		if rule.Type != domain.RuleCrossMarketMisprice {
			continue
		}
		for _, group := range groups {
			members := make([]*MarketSnapshot, 0, len(group.Members))
			for _, id := range group.Members {
				if snap, ok := snapshots[id]; ok && rule.InScope(snap.Market) {
					members = append(members, snap)
				}
			}
			if hit := EvaluateCrossMarket(rule, members, now); hit != nil {
				hits = append(hits, hit)
			}
		}
	}

	fused := Fuse(hits, candidates, e.cfg.ConfWeight, e.cfg.RuleBonus)
	for _, sig := range fused {
		e.emit(ctx, sig, snapshots[sig.MarketID])
	}
	return nil
}

// marketEnabled gates evaluation: the mock source evaluates everything, real
// ingestion only the configured platform.
func (e *Engine) marketEnabled(market domain.Market) bool {
	if e.cfg.MockSource {
		return true
	}
	return market.Platform == e.cfg.Platform
}

func (e *Engine) snapshot(ctx context.Context, market domain.Market) (*MarketSnapshot, error) {
	latest, err := e.ticks.Latest(ctx, market.ID)
	if err != nil {
		return nil, err
	}
	recent, err := e.ticks.Recent(ctx, market.ID, e.cfg.RecentWindow, e.cfg.RecentLimit)
	if err != nil {
		return nil, err
	}
	options, err := e.markets.ListOptions(ctx, market.ID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]domain.Option, len(options))
	for _, opt := range options {
		byID[opt.ID] = opt
	}
	return &MarketSnapshot{
		Market:  market,
		Latest:  latest,
		Recent:  recent,
		Options: byID,
	}, nil
}

// fillPeers wires each snapshot's synonym peers from the freshly built
// groups, pricing peers off their own snapshots.
func (e *Engine) fillPeers(snapshots map[string]*MarketSnapshot, groups []domain.SynonymGroup) {
	for _, group := range groups {
		for _, id := range group.Members {
			snap, ok := snapshots[id]
			if !ok {
				continue
			}
			for _, peerID := range group.Members {
				if peerID == id {
					continue
				}
				snap.SynonymIDs = append(snap.SynonymIDs, peerID)
				peerSnap, ok := snapshots[peerID]
				if !ok {
					continue
				}
				snap.Peers = append(snap.Peers, PeerQuote{
					MarketID: peerID,
					Title:    peerSnap.Market.Title,
					EndsAt:   peerSnap.Market.EndsAt,
					Price:    peerSnap.primaryPrice(),
				})
			}
		}
	}
}

// runInference refreshes model probabilities when the inference interval has
// elapsed and returns this cycle's ML candidates.
func (e *Engine) runInference(ctx context.Context, snapshots map[string]*MarketSnapshot, now time.Time) []MLCandidate {
	if e.predictor == nil || now.Sub(e.lastML) < e.cfg.MLInterval {
		return nil
	}
	e.lastML = now

	var (
		ids  []string
		rows []map[string]float64
	)
	for id, snap := range snapshots {
		row := BuildFeatures(snap, now)
		if row == nil {
			continue
		}
		ids = append(ids, id)
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil
	}

	start := time.Now()
	probs, err := e.predictor.PredictBatch(ctx, rows)
	e.metrics.MLInferenceMS.Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		e.logger.Warn("inference failed", slog.String("error", err.Error()))
		return nil
	}

	e.lastProbs = make(map[string]float64, len(ids))
	var candidates []MLCandidate
	for i, id := range ids {
		e.lastProbs[id] = probs[i]
		if probs[i] < e.cfg.MLThreshold {
			continue
		}
		candidates = append(candidates, MLCandidate{
			MarketID:   id,
			Confidence: probs[i],
			Features:   rows[i],
			Reason:     fmt.Sprintf("ML confidence %.0f%%", probs[i]*100),
		})
	}
	return candidates
}

// emit pushes one fused signal through breaker, cooldown, notification,
// persistence, KPI, and audit. Each stage is best effort.
func (e *Engine) emit(ctx context.Context, sig FusedSignal, snap *MarketSnapshot) {
	ruleName := sig.Source
	ruleType := "ML"
	var ruleID int64 = -1
	cooldown := domain.DefaultCooldown
	if sig.Rule != nil {
		ruleName = sig.Rule.Name
		ruleType = string(sig.Rule.Type)
		ruleID = sig.Rule.ID
		cooldown = sig.Rule.Cooldown()
	}

	if e.breaker.IsOpen(ruleName, sig.MarketID) {
		e.logger.Debug("breaker open, dropping signal",
			slog.String("rule", ruleName), slog.String("market_id", sig.MarketID))
		return
	}

	cdKey := fmt.Sprintf("%d|%s", ruleID, sig.MarketID)
	now := time.Now()
	if last, ok := e.cooldowns[cdKey]; ok && now.Sub(last) < cooldown {
		return
	}
	e.cooldowns[cdKey] = now

	marketTitle := sig.MarketID
	if snap != nil {
		marketTitle = snap.Market.Title
	}
	payload := sig.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	payload["market_title"] = marketTitle
	payload["edge_score"] = sig.EdgeScore
	if sig.Rule != nil {
		payload["rule_name"] = sig.Rule.Name
		payload["rule_id"] = sig.Rule.ID
		payload["rule_type"] = string(sig.Rule.Type)
	} else {
		payload["source"] = "ML"
	}

	title := ruleName
	message := e.buildMessage(sig, marketTitle)

	dedupeKey := fmt.Sprintf("%d:%s", ruleID, sig.MarketID)
	if sig.Rule == nil {
		dedupeKey = "ml:" + sig.MarketID
	}
	status := e.dispatcher.Dispatch(ctx, dedupeKey, cooldown, title, message)
	transport := e.dispatcher.Transport(status)
	payload["transport"] = transport
	switch status {
	case notify.StatusSent:
		e.breaker.Reset(ruleName, sig.MarketID)
	default:
		if status == notify.StatusError {
			e.metrics.NotifyFailuresTotal.Inc()
		}
		e.breaker.RecordFailure(ruleName, sig.MarketID)
	}

	var rulePtr *int64
	if sig.Rule != nil {
		id := sig.Rule.ID
		rulePtr = &id
	}
	stored := domain.Signal{
		MarketID:   sig.MarketID,
		OptionID:   sig.OptionID,
		RuleID:     rulePtr,
		Level:      sig.Level,
		Score:      sig.Score,
		EdgeScore:  sig.EdgeScore,
		Source:     sig.Source,
		Confidence: sig.Confidence,
		MLFeatures: sig.MLFeatures,
		Reason:     sig.Reason,
		Payload:    payload,
	}
	if stored.Score == 0 {
		stored.Score = stored.EdgeScore
	}
	if _, err := e.signals.Insert(ctx, stored); err != nil {
		e.logger.Error("signal insert failed",
			slog.String("market_id", sig.MarketID), slog.String("error", err.Error()))
	}

	var gap, edgeBps *float64
	if v, ok := payload["gap"].(float64); ok {
		gap = &v
	}
	if v, ok := payload["estimated_edge_bps"].(float64); ok {
		edgeBps = &v
	}
	if err := e.kpis.Record(ctx, ruleType, sig.Level, gap, edgeBps); err != nil {
		e.logger.Warn("kpi record failed", slog.String("error", err.Error()))
	}
	if err := e.audit.Log(ctx, "rules_engine", "signal_emitted", sig.MarketID, map[string]any{
		"rule":      ruleName,
		"market_id": sig.MarketID,
	}); err != nil {
		e.logger.Warn("audit log failed", slog.String("error", err.Error()))
	}
	e.metrics.SignalsTotal.WithLabelValues(ruleType, sig.Source).Inc()

	e.logger.Info("signal emitted",
		slog.String("rule", ruleName),
		slog.String("market_id", sig.MarketID),
		slog.String("level", sig.Level),
		slog.Float64("score", stored.Score),
		slog.String("status", status))
}

// buildMessage renders the outbound alert: headline plus trade, plan, and
// book lines when the payload carries them.
func (e *Engine) buildMessage(sig FusedSignal, marketTitle string) string {
	ruleName := "ML"
	if sig.Rule != nil {
		ruleName = sig.Rule.Name
	}
	msg := formatAlert(ruleName, marketTitle, sig.Message, e.cfg.DashboardURL, sig.MarketID)

	var extra []string
	if plan, ok := planFromPayload(sig.Payload); ok {
		var legs []string
		for i, leg := range plan.Legs {
			if i == 3 {
				break
			}
			legs = append(legs, fmt.Sprintf("%s %s:%.3f",
				strings.ToUpper(string(leg.Side)), leg.Label, leg.LimitPrice))
		}
		if len(legs) > 0 {
			extra = append(extra, fmt.Sprintf("Trade %s: %s", plan.Action, strings.Join(legs, " | ")))
		}
		if plan.Rationale != "" {
			extra = append(extra, "Plan: "+plan.Rationale)
		}
	}
	if book, ok := bookFromPayload(sig.Payload); ok {
		var rows []string
		for i, entry := range book {
			if i == 3 {
				break
			}
			rows = append(rows, fmt.Sprintf("%s:%.2f", entry.Label, entry.Price))
		}
		if len(rows) > 0 {
			extra = append(extra, "Book: "+strings.Join(rows, ", "))
		}
	}
	if len(extra) > 0 {
		msg += "\n" + strings.Join(extra, "\n")
	}
	return msg
}

func bookFromPayload(payload map[string]any) ([]domain.BookEntry, bool) {
	raw, ok := payload["book_snapshot"]
	if !ok {
		return nil, false
	}
	switch v := raw.(type) {
	case []domain.BookEntry:
		return v, true
	case []any:
		var out []domain.BookEntry
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			entry := domain.BookEntry{}
			if s, ok := m["option_id"].(string); ok {
				entry.OptionID = s
			}
			if s, ok := m["label"].(string); ok {
				entry.Label = s
			}
			if f, ok := m["price"].(float64); ok {
				entry.Price = f
			}
			out = append(out, entry)
		}
		return out, len(out) > 0
	}
	return nil, false
}
