package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketStore persists market and option metadata.
type MarketStore interface {
	Upsert(ctx context.Context, market Market) error
	UpsertOptions(ctx context.Context, options []Option) error
	GetByID(ctx context.Context, id string) (Market, error)
	List(ctx context.Context, status MarketStatus, opts ListOpts) ([]Market, error)
	ListOptions(ctx context.Context, marketID string) ([]Option, error)
	// SynonymPeers returns the other members of every synonym group the
	// market belongs to.
	SynonymPeers(ctx context.Context, marketID string) ([]string, error)
}

// TickStore persists the append-only tick stream.
type TickStore interface {
	// InsertBatch is idempotent on (ts, market_id, option_id).
	InsertBatch(ctx context.Context, ticks []Tick) error
	// Latest returns the newest tick per option for a market.
	Latest(ctx context.Context, marketID string) (map[string]Tick, error)
	// Recent returns ticks within the window, newest first, capped at limit.
	Recent(ctx context.Context, marketID string, window time.Duration, limit int) ([]Tick, error)
	LastTS(ctx context.Context) (time.Time, error)
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]Tick, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RuleStore persists versioned rule definitions.
type RuleStore interface {
	// Upsert inserts or updates by name, bumping the version on update,
	// and returns the rule id.
	Upsert(ctx context.Context, cfg RuleConfig, rawYAML string) (int64, error)
	List(ctx context.Context) ([]Rule, error)
}

// SignalFilter narrows signal listings.
type SignalFilter struct {
	Level  string
	Since  *time.Time
	Limit  int
	Offset int
}

// SignalStore persists emitted signals.
type SignalStore interface {
	Insert(ctx context.Context, sig Signal) (int64, error)
	GetByID(ctx context.Context, id int64) (Signal, error)
	List(ctx context.Context, filter SignalFilter) ([]Signal, error)
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]Signal, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// GroupStore persists synonym groups.
type GroupStore interface {
	// Sync upserts each group by title and replaces its member set.
	Sync(ctx context.Context, groups []SynonymGroup) error
	List(ctx context.Context) ([]SynonymGroup, error)
}

// KPIStore accumulates per-day, per-rule-type signal counters.
type KPIStore interface {
	Record(ctx context.Context, ruleType, level string, gap, estEdgeBps *float64) error
	ListSince(ctx context.Context, since time.Time) ([]RuleKPI, error)
}

// RuleKPI is one accumulated (day, rule_type) row.
type RuleKPI struct {
	Day        time.Time
	RuleType   string
	Signals    int
	P1Signals  int
	AvgGap     *float64
	EstEdgeBps *float64
}

// IntentStore persists order intents and the counters the risk limits read.
type IntentStore interface {
	Create(ctx context.Context, intent OrderIntent) (OrderIntent, error)
	UpdateStatus(ctx context.Context, id int64, status IntentStatus, detail map[string]any) error
	GetByID(ctx context.Context, id int64) (OrderIntent, error)
	List(ctx context.Context, status IntentStatus, limit int) ([]OrderIntent, error)
	// OpenCount counts intents in suggested/confirmed/sent.
	OpenCount(ctx context.Context) (int, error)
	// DailyNotional sums qty*limit_price over sent/filled intents created
	// on the given day.
	DailyNotional(ctx context.Context, day time.Time) (float64, error)
	// WithAdvisoryLock runs fn inside a transaction holding the advisory
	// lock, serializing concurrent limit checks.
	WithAdvisoryLock(ctx context.Context, key int64, fn func(ctx context.Context) error) error
}

// PolicyStore persists execution policies.
type PolicyStore interface {
	GetEnabled(ctx context.Context) (ExecPolicy, error)
	Upsert(ctx context.Context, policy ExecPolicy) (int64, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Actor     string
	Action    string
	TargetID  string
	Meta      map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, actor, action, targetID string, meta map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
