// Package ingest polls market data sources and persists ticks.
package ingest

import (
	"context"

	"github.com/jiliangzhu/MarketPulse-X/internal/domain"
)

// TickSource is a pollable market data source.
type TickSource interface {
	// Name identifies the source in logs and metrics.
	Name() string

	// ListMarkets returns the markets this source currently tracks.
	ListMarkets(ctx context.Context) ([]domain.Market, error)

	// ListOptions returns the outcome options for a market.
	ListOptions(ctx context.Context, marketID string) ([]domain.Option, error)

	// PollTicks returns the current tick per option of a market.
	PollTicks(ctx context.Context, marketID string) ([]domain.Tick, error)
}
