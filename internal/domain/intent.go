package domain

import "time"

// IntentStatus is the lifecycle state of an order intent. Transitions only
// move forward: suggested -> confirmed -> sent -> filled, or -> rejected.
type IntentStatus string

const (
	IntentSuggested IntentStatus = "suggested"
	IntentConfirmed IntentStatus = "confirmed"
	IntentSent      IntentStatus = "sent"
	IntentFilled    IntentStatus = "filled"
	IntentRejected  IntentStatus = "rejected"
	IntentExpired   IntentStatus = "expired"
)

// OrderIntent is a risk-checked trade suggestion derived from a signal.
// Nothing in this system places real orders; intents are the terminal output.
type OrderIntent struct {
	ID         int64
	SignalID   *int64
	MarketID   string
	OptionID   string
	Side       Side
	Qty        float64
	LimitPrice float64
	TTLSecs    int
	Status     IntentStatus
	PolicyID   *int64
	Detail     map[string]any
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Notional returns qty * limit price.
func (i OrderIntent) Notional() float64 {
	return i.Qty * i.LimitPrice
}

// ExecPolicy caps intent creation. A single enabled row is bootstrapped from
// config on startup.
type ExecPolicy struct {
	ID                  int64
	Name                string
	Mode                string
	MaxNotionalPerOrder float64
	MaxConcurrentOrders int
	MaxDailyNotional    float64
	SlippageBps         int
	Enabled             bool
	UpdatedAt           time.Time
}
