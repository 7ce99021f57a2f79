package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	domainauth "github.com/dealdesk/sessioncore/internal/domain/auth"
	autherrors "github.com/dealdesk/sessioncore/internal/errors"
	"github.com/dealdesk/sessioncore/internal/observability/metrics"
	"github.com/dealdesk/sessioncore/internal/observability/statsd"
	"github.com/dealdesk/sessioncore/internal/ports"
)

// DefaultHydrationTimeout bounds how long startup may block on the store.
const DefaultHydrationTimeout = 700 * time.Millisecond

// HydratorOptions groups dependencies for Hydrator.
type HydratorOptions struct {
	Manager *Manager
	Timeout time.Duration
	Logger  *slog.Logger
	Metrics statsd.Sink

	// Clock overrides the time source for tests.
	Clock func() time.Time
}

// Hydrator restores a persisted session at startup. The restore is
// optimistic: credentials found in the store produce an Authenticated session
// immediately, and a background probe against the backend repairs or discards
// it afterwards. Any failure lands on Unauthenticated with a cleared store,
// never in a stuck state.
type Hydrator struct {
	manager *Manager
	timeout time.Duration
	logger  *slog.Logger
	metrics statsd.Sink
	now     func() time.Time

	validated chan struct{}
}

// NewHydrator constructs a hydrator.
func NewHydrator(opts HydratorOptions) (*Hydrator, error) {
	if opts.Manager == nil {
		return nil, errors.New("session manager is required")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultHydrationTimeout
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	return &Hydrator{
		manager:   opts.Manager,
		timeout:   timeout,
		logger:    logger.With("component", "hydrator"),
		metrics:   opts.Metrics,
		now:       now,
		validated: make(chan struct{}),
	}, nil
}

// Validated is closed once background validation of a restored session has
// resolved. It is also closed when there was nothing to validate.
func (h *Hydrator) Validated() <-chan struct{} {
	return h.validated
}

// Run performs the startup restore. The store read is bounded by the
// hydration timeout; validation of a restored session continues in the
// background after Run returns.
func (h *Hydrator) Run(ctx context.Context) error {
	start := h.now()

	loadCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	rec, err := h.manager.store.Load(loadCtx)
	if err != nil {
		close(h.validated)
		if errors.Is(err, ports.ErrNoRecord) {
			h.manager.markUnauthenticated(nil)
			h.emit(start, metrics.ResultNoop, nil)
			return nil
		}

		// A corrupt store must not wedge startup: discard it and begin
		// logged out. A merely slow or unreachable store keeps its record;
		// the credentials may be perfectly valid.
		h.logger.WarnContext(ctx, "credential restore failed", "error", err)
		if autherrors.IsStoreCorrupt(err) {
			if clearErr := h.manager.store.Clear(context.WithoutCancel(ctx)); clearErr != nil {
				h.logger.WarnContext(ctx, "clear credential store failed", "error", clearErr)
			}
		}
		h.manager.markUnauthenticated(err)
		h.emit(start, metrics.ResultError, err)
		return err
	}

	snap := h.manager.adoptRestored(rec)
	epoch := h.manager.currentEpoch()
	h.logger.InfoContext(ctx, "session restored",
		"expires_at", snap.ExpiresAt.Format(time.RFC3339),
	)
	h.emit(start, metrics.ResultSuccess, nil)

	go h.validate(context.WithoutCancel(ctx), epoch)
	return nil
}

// validate probes the backend with the restored access token and repairs the
// session. A restored token the backend rejects gets one refresh attempt; a
// rejected refresh tears the session down.
func (h *Hydrator) validate(ctx context.Context, epoch uint64) {
	defer close(h.validated)
	start := h.now()

	sess := h.manager.CurrentSession()
	if sess.Status != domainauth.StatusAuthenticated {
		return
	}

	// An already-expired record skips the probe and goes straight to refresh.
	if !sess.ExpiresAt.After(h.now()) {
		h.refreshOrTeardown(ctx, epoch)
		return
	}

	status, err := h.manager.bridge.TwoFactorStatus(ctx, sess.AccessToken)
	switch {
	case err == nil:
		h.manager.setTwoFactorStatus(status)
		h.logger.InfoContext(ctx, "restored session validated")
	case autherrors.IsUnauthorized(err):
		h.logger.InfoContext(ctx, "restored token rejected, attempting refresh")
		h.refreshOrTeardown(ctx, epoch)
	case autherrors.IsNetworkTimeout(err):
		// Offline start: keep the optimistic session and let the refresh
		// scheduler sort it out once connectivity returns.
		h.logger.WarnContext(ctx, "session validation unreachable", "error", err)
	default:
		h.logger.WarnContext(ctx, "session validation failed", "error", err)
	}

	h.emitValidation(start, err)
}

func (h *Hydrator) refreshOrTeardown(ctx context.Context, epoch uint64) {
	err := h.manager.Refresh(ctx)
	if err == nil {
		h.logger.InfoContext(ctx, "restored session refreshed")
		return
	}
	if autherrors.IsNetworkTimeout(err) {
		h.logger.WarnContext(ctx, "restored session refresh unreachable", "error", err)
		return
	}

	h.logger.InfoContext(ctx, "restored session invalid, discarding", "error", err)
	h.manager.teardownRestored(ctx, epoch, err)
}

func (h *Hydrator) emit(start time.Time, result string, err error) {
	metrics.EmitAuthEvent(h.metrics, metrics.AuthEvent{
		Operation: "hydrate",
		Result:    result,
		Duration:  h.now().Sub(start),
		Err:       err,
	})
}

func (h *Hydrator) emitValidation(start time.Time, err error) {
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.EmitAuthEvent(h.metrics, metrics.AuthEvent{
		Operation: "hydrate_validate",
		Result:    result,
		Duration:  h.now().Sub(start),
		Err:       err,
	})
}
