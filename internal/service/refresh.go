package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	domainauth "github.com/dealdesk/sessioncore/internal/domain/auth"
	"github.com/dealdesk/sessioncore/internal/observability/statsd"
)

const (
	// DefaultRefreshInterval is how often the scheduler checks the session.
	DefaultRefreshInterval = 5 * time.Minute
	// DefaultRefreshWindow is the time-to-expiry below which a refresh is
	// triggered.
	DefaultRefreshWindow = 10 * time.Minute
)

// RefreshSchedulerOptions groups dependencies for RefreshScheduler.
type RefreshSchedulerOptions struct {
	Manager  *Manager
	Interval time.Duration
	Window   time.Duration
	Logger   *slog.Logger
	Metrics  statsd.Sink

	// Clock overrides the time source for tests.
	Clock func() time.Time
}

// RefreshScheduler renews access tokens before they expire. It ticks on a
// fixed interval and acts only when the session is Authenticated and inside
// the refresh window; every other state makes the tick a no-op, so logout and
// terminal failures disarm it without coordination.
type RefreshScheduler struct {
	manager  *Manager
	interval time.Duration
	window   time.Duration
	logger   *slog.Logger
	metrics  statsd.Sink
	now      func() time.Time
}

// NewRefreshScheduler constructs a scheduler.
func NewRefreshScheduler(opts RefreshSchedulerOptions) (*RefreshScheduler, error) {
	if opts.Manager == nil {
		return nil, errors.New("session manager is required")
	}

	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	window := opts.Window
	if window <= 0 {
		window = DefaultRefreshWindow
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	sink := opts.Metrics
	if sink == nil {
		sink = (*statsd.Client)(nil)
	}

	return &RefreshScheduler{
		manager:  opts.Manager,
		interval: interval,
		window:   window,
		logger:   logger.With("component", "refresh_scheduler"),
		metrics:  sink,
		now:      now,
	}, nil
}

// Run ticks until the context is cancelled. It always returns ctx.Err().
func (r *RefreshScheduler) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "refresh scheduler started",
		"interval", r.interval.String(),
		"window", r.window.String(),
	)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "refresh scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

// tick refreshes the session when it is authenticated and close to expiry.
// It reports whether a refresh was attempted.
func (r *RefreshScheduler) tick(ctx context.Context) bool {
	start := r.now()
	sess := r.manager.CurrentSession()

	if sess.Status != domainauth.StatusAuthenticated {
		r.metrics.Count("refresh_scheduler.tick", 1, map[string]string{"action": "noop"})
		return false
	}
	if sess.TimeToExpiry(start) > r.window {
		r.metrics.Count("refresh_scheduler.tick", 1, map[string]string{"action": "noop"})
		return false
	}

	err := r.manager.Refresh(ctx)
	r.metrics.Count("refresh_scheduler.tick", 1, map[string]string{"action": "refresh"})
	r.metrics.Timing("refresh_scheduler.refresh_duration", r.now().Sub(start), nil)
	if err != nil {
		r.logger.WarnContext(ctx, "scheduled refresh failed", "error", err)
		return true
	}

	r.logger.InfoContext(ctx, "access token refreshed",
		"expires_at", r.manager.CurrentSession().ExpiresAt.Format(time.RFC3339),
	)
	return true
}
