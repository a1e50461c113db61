// Package notify delivers alert messages to chat channels with per-alert
// cooldown deduplication. With no channels configured the dispatcher runs in
// dry-run mode and alerts are logged instead of sent.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jiliangzhu/MarketPulse-X/internal/domain"
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Delivery statuses returned by Dispatch.
const (
	StatusSent     = "sent"
	StatusCooldown = "cooldown"
	StatusDryRun   = "dry-run"
	StatusError    = "error"
)

// Dispatcher fans an alert out to all senders after claiming its dedupe key.
type Dispatcher struct {
	senders []Sender
	dedupe  domain.DedupeCache
	logger  *slog.Logger
}

// NewDispatcher creates a Dispatcher over the given senders. dedupe may be
// nil, in which case no cooldown suppression happens.
func NewDispatcher(senders []Sender, dedupe domain.DedupeCache, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		senders: senders,
		dedupe:  dedupe,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Transport names the channel a sent alert went through. Dry-run transports
// carry a suffix so downstream records show nothing actually left the box.
func (d *Dispatcher) Transport(status string) string {
	name := "telegram"
	if len(d.senders) > 0 {
		name = d.senders[0].Name()
	}
	if status != StatusSent {
		return name + "-dry-run"
	}
	return name
}

// Dispatch claims key for cooldown and, when the claim wins, delivers the
// alert to every sender. The returned status is one of StatusSent,
// StatusCooldown, StatusDryRun, or StatusError.
func (d *Dispatcher) Dispatch(ctx context.Context, key string, cooldown time.Duration, title, message string) string {
	if d.dedupe != nil {
		ok, err := d.dedupe.Acquire(ctx, key, cooldown)
		if err != nil {
			d.logger.WarnContext(ctx, "dedupe check failed, sending anyway",
				slog.String("key", key), slog.String("error", err.Error()))
		} else if !ok {
			return StatusCooldown
		}
	}

	if len(d.senders) == 0 {
		d.logger.InfoContext(ctx, "dry-run alert",
			slog.String("key", key), slog.String("title", title))
		return StatusDryRun
	}

	var errs []string
	for _, s := range d.senders {
		if err := s.Send(ctx, title, message); err != nil {
			d.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()))
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		d.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()), slog.String("title", title))
	}

	if len(errs) == len(d.senders) {
		d.logger.ErrorContext(ctx, "all senders failed",
			slog.String("detail", strings.Join(errs, "; ")))
		return StatusError
	}
	return StatusSent
}
