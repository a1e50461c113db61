// Package pipeline runs the background retention job that moves aged rows
// from the hot store into object storage.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jiliangzhu/MarketPulse-X/internal/domain"
)

// ColdArchiver exports aged rows to cold storage.
type ColdArchiver interface {
	ArchiveTicks(ctx context.Context, before time.Time) (int64, error)
	ArchiveSignals(ctx context.Context, before time.Time) (int64, error)
}

// Retention archives ticks and signals past the retention window and prunes
// them from the database once the archive upload succeeded.
type Retention struct {
	archiver      ColdArchiver
	ticks         domain.TickStore
	signals       domain.SignalStore
	locks         domain.LockManager
	retentionDays int
	interval      time.Duration
	logger        *slog.Logger
}

// NewRetention creates a Retention job. locks may be nil; when set, a
// distributed lock keeps concurrent workers from archiving the same rows.
func NewRetention(archiver ColdArchiver, ticks domain.TickStore, signals domain.SignalStore, locks domain.LockManager, retentionDays int, interval time.Duration, logger *slog.Logger) *Retention {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Retention{
		archiver:      archiver,
		ticks:         ticks,
		signals:       signals,
		locks:         locks,
		retentionDays: retentionDays,
		interval:      interval,
		logger:        logger.With(slog.String("component", "retention")),
	}
}

// RunOnce executes a single archive-then-prune pass.
func (r *Retention) RunOnce(ctx context.Context) error {
	if r.locks != nil {
		unlock, err := r.locks.Acquire(ctx, "retention", 30*time.Minute)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				r.logger.Info("retention run skipped, lock held elsewhere")
				return nil
			}
			return fmt.Errorf("pipeline: acquire retention lock: %w", err)
		}
		defer unlock()
	}

	cutoff := time.Now().UTC().Add(-time.Duration(r.retentionDays) * 24 * time.Hour)
	r.logger.Info("starting retention run",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", r.retentionDays))

	ticksArchived, err := r.archiver.ArchiveTicks(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("pipeline: archive ticks before %v: %w", cutoff, err)
	}
	if ticksArchived > 0 {
		pruned, err := r.ticks.DeleteBefore(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("pipeline: prune ticks before %v: %w", cutoff, err)
		}
		r.logger.Info("ticks archived and pruned",
			slog.Int64("archived", ticksArchived), slog.Int64("pruned", pruned))
	}

	signalsArchived, err := r.archiver.ArchiveSignals(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("pipeline: archive signals before %v: %w", cutoff, err)
	}
	if signalsArchived > 0 {
		pruned, err := r.signals.DeleteBefore(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("pipeline: prune signals before %v: %w", cutoff, err)
		}
		r.logger.Info("signals archived and pruned",
			slog.Int64("archived", signalsArchived), slog.Int64("pruned", pruned))
	}

	return nil
}

// Run executes retention passes on the configured interval until ctx is
// cancelled. A failed pass is logged and retried on the next tick.
func (r *Retention) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.RunOnce(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				r.logger.Error("retention run failed", slog.String("error", err.Error()))
			}
		}
	}
}
