package rules

import (
	"sync"
	"time"
)

// Breaker trips a (rule, market) pair after repeated delivery failures and
// holds it open for a cooldown. Failure counts reset once the cooldown has
// elapsed since the last recorded failure.
type Breaker struct {
	threshold int
	cooldown  time.Duration

	mu       sync.Mutex
	failures map[breakerKey]breakerState
	now      func() time.Time
}

type breakerKey struct {
	rule   string
	market string
}

type breakerState struct {
	count  int
	lastAt time.Time
}

// NewBreaker creates a Breaker that opens after threshold failures within
// cooldown of each other.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	return &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		failures:  make(map[breakerKey]breakerState),
		now:       time.Now,
	}
}

// RecordFailure counts one failure and reports whether the breaker is now
// open. A failure landing after the cooldown window starts a fresh count.
func (b *Breaker) RecordFailure(rule, market string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := breakerKey{rule: rule, market: market}
	now := b.now()
	state := b.failures[key]
	if !state.lastAt.IsZero() && now.Sub(state.lastAt) > b.cooldown {
		state.count = 0
	}
	state.count++
	state.lastAt = now
	b.failures[key] = state
	return state.count >= b.threshold
}

// IsOpen reports whether the pair is tripped. Entries whose cooldown has
// elapsed are purged on read.
func (b *Breaker) IsOpen(rule, market string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := breakerKey{rule: rule, market: market}
	state, ok := b.failures[key]
	if !ok {
		return false
	}
	if b.now().Sub(state.lastAt) >= b.cooldown {
		delete(b.failures, key)
		return false
	}
	return state.count >= b.threshold
}

// Reset clears the pair after a successful delivery.
func (b *Breaker) Reset(rule, market string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.failures, breakerKey{rule: rule, market: market})
}
