package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	domainauth "github.com/dealdesk/sessioncore/internal/domain/auth"
	autherrors "github.com/dealdesk/sessioncore/internal/errors"
	"github.com/dealdesk/sessioncore/internal/observability/metrics"
	"github.com/dealdesk/sessioncore/internal/observability/statsd"
	"github.com/dealdesk/sessioncore/internal/ports"
	"golang.org/x/sync/singleflight"
)

const remoteLogoutTimeout = 5 * time.Second

// ManagerOptions groups dependencies for Manager.
type ManagerOptions struct {
	Bridge  ports.IdentityBridge
	Store   ports.CredentialStore
	Logger  *slog.Logger
	Metrics statsd.Sink

	// Retry bounds the re-attempts for transient network timeouts.
	Retry RetryPolicy

	// TwoFactor configures the local second-factor attempt limiter.
	TwoFactor TwoFactorPolicy

	// Clock overrides the time source for tests.
	Clock func() time.Time
}

// Manager is the single owner of session state. All mutation goes through its
// operations; reads are served from an in-memory snapshot and never block on
// the network.
type Manager struct {
	bridge  ports.IdentityBridge
	store   ports.CredentialStore
	logger  *slog.Logger
	metrics statsd.Sink
	retry   RetryPolicy
	now     func() time.Time

	mu        sync.Mutex
	session   domainauth.Session
	twoFactor domainauth.TwoFactorState
	hydrated  bool
	// epoch increments on logout and on each adopted login; an in-flight
	// refresh or login whose epoch is stale is discarded instead of
	// repopulating state the user has torn down.
	epoch uint64

	listeners    map[int]ports.SessionListener
	nextListener int

	refreshGroup singleflight.Group
	attempts     *attemptWindow
}

// NewManager constructs a session manager.
func NewManager(opts ManagerOptions) (*Manager, error) {
	if opts.Bridge == nil {
		return nil, errors.New("identity bridge is required")
	}
	if opts.Store == nil {
		return nil, errors.New("credential store is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	return &Manager{
		bridge:    opts.Bridge,
		store:     opts.Store,
		logger:    logger.With("component", "session_manager"),
		metrics:   opts.Metrics,
		retry:     opts.Retry.sanitized(),
		now:       now,
		session:   domainauth.Session{Status: domainauth.StatusUnauthenticated},
		listeners: make(map[int]ports.SessionListener),
		attempts:  newAttemptWindow(opts.TwoFactor),
	}, nil
}

// CurrentSession returns a snapshot of the in-memory session state.
func (m *Manager) CurrentSession() domainauth.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// TwoFactorState returns a snapshot of the second-factor state.
func (m *Manager) TwoFactorState() domainauth.TwoFactorState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.twoFactor
}

// IsHydrated reports whether startup restoration has completed. Callers must
// not treat StatusUnauthenticated as "logged out" while this is false.
func (m *Manager) IsHydrated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hydrated
}

// Subscribe registers a listener invoked with a session snapshot after each
// state transition. The returned function unsubscribes.
func (m *Manager) Subscribe(listener ports.SessionListener) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextListener
	m.nextListener++
	m.listeners[id] = listener

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

// Login authenticates with email and password. On success the session is
// Authenticated and persisted; when the backend demands a second factor the
// session is AwaitingSecondFactor and the caller must supply a code via
// VerifySecondFactor.
func (m *Manager) Login(ctx context.Context, email, password string) (domainauth.Session, error) {
	start := m.now()
	epoch := m.beginAuthenticating()

	result, err := retryNetwork(ctx, m.retry, func() (ports.LoginResult, error) {
		return m.bridge.Login(ctx, email, password)
	})
	return m.completeLogin(ctx, epoch, "login", start, result, err)
}

// LoginWithFederatedProvider exchanges a federated identity token for a
// session through the primary backend.
func (m *Manager) LoginWithFederatedProvider(ctx context.Context, identityToken string) (domainauth.Session, error) {
	start := m.now()
	epoch := m.beginAuthenticating()

	result, err := retryNetwork(ctx, m.retry, func() (ports.LoginResult, error) {
		return m.bridge.LoginFederated(ctx, identityToken)
	})
	return m.completeLogin(ctx, epoch, "login_federated", start, result, err)
}

// Register creates an account; success promotes the session exactly like a
// login.
func (m *Manager) Register(ctx context.Context, in ports.RegisterInput) (domainauth.Session, error) {
	start := m.now()
	epoch := m.beginAuthenticating()

	result, err := retryNetwork(ctx, m.retry, func() (ports.LoginResult, error) {
		return m.bridge.Register(ctx, in)
	})
	return m.completeLogin(ctx, epoch, "register", start, result, err)
}

// VerifySecondFactor completes a pending login challenge. Three consecutive
// rejected codes within the enforcement window block further attempts with a
// RateLimited error regardless of code correctness.
func (m *Manager) VerifySecondFactor(ctx context.Context, code string) (domainauth.Session, error) {
	start := m.now()

	m.mu.Lock()
	if m.session.Status != domainauth.StatusAwaitingSecondFactor || m.twoFactor.PendingUserID == "" {
		snap := m.snapshotLocked()
		m.mu.Unlock()
		return snap, autherrors.Internal("no pending second-factor challenge")
	}
	epoch := m.epoch
	userID := m.twoFactor.PendingUserID
	m.mu.Unlock()

	if err := m.attempts.check(userID, m.now()); err != nil {
		m.emit("verify_second_factor", start, err)
		m.mu.Lock()
		m.session.LastError = err
		snap := m.snapshotLocked()
		m.mu.Unlock()
		m.notify(snap)
		return snap, err
	}

	result, err := retryNetwork(ctx, m.retry, func() (ports.LoginResult, error) {
		return m.bridge.VerifySecondFactor(ctx, userID, code)
	})
	if err != nil {
		if autherrors.IsInvalidCode(err) {
			m.attempts.recordFailure(userID, m.now())
		}
		m.emit("verify_second_factor", start, err)
		m.mu.Lock()
		if m.epoch == epoch {
			// The challenge stays pending; the caller may try another code.
			m.session.LastError = err
		}
		snap := m.snapshotLocked()
		m.mu.Unlock()
		m.notify(snap)
		return snap, err
	}

	if result.TwoFactorRequired || result.AccessToken == "" {
		// A verification response must carry credentials; anything else
		// would install an authenticated session with no tokens.
		err := autherrors.Internal("verification response missing credentials")
		m.emit("verify_second_factor", start, err)
		m.mu.Lock()
		if m.epoch == epoch {
			m.session.LastError = err
		}
		snap := m.snapshotLocked()
		m.mu.Unlock()
		m.notify(snap)
		return snap, err
	}

	m.attempts.reset(userID)
	snap, err := m.adoptLogin(ctx, epoch, result)
	if err == nil {
		m.mu.Lock()
		m.twoFactor.Enabled = true
		m.twoFactor.LastUsedAt = m.now()
		m.mu.Unlock()
	}
	m.emit("verify_second_factor", start, err)
	return snap, err
}

// Logout tears the session down locally and clears persisted credentials.
// The remote call is best-effort; Logout never fails locally and is
// idempotent.
func (m *Manager) Logout(ctx context.Context) error {
	start := m.now()

	m.mu.Lock()
	accessToken := m.session.AccessToken
	m.epoch++
	m.session = domainauth.Session{Status: domainauth.StatusLoggedOut}
	m.twoFactor.PendingUserID = ""
	loggedOut := m.snapshotLocked()

	if err := m.store.Clear(ctx); err != nil {
		m.logger.WarnContext(ctx, "clear credential store failed", "error", err)
	}

	m.session.Status = domainauth.StatusUnauthenticated
	final := m.snapshotLocked()
	m.mu.Unlock()

	m.notify(loggedOut)
	m.notify(final)

	if accessToken != "" {
		logoutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), remoteLogoutTimeout)
		defer cancel()
		if err := m.bridge.Logout(logoutCtx, accessToken); err != nil {
			m.logger.WarnContext(ctx, "remote logout failed", "error", err)
		}
	}

	m.emit("logout", start, nil)
	return nil
}

// ResetPassword requests a password reset email. The response is uniform
// whether or not the account exists.
func (m *Manager) ResetPassword(ctx context.Context, email string) error {
	_, err := retryNetwork(ctx, m.retry, func() (struct{}, error) {
		return struct{}{}, m.bridge.RequestPasswordReset(ctx, email)
	})
	return err
}

// Refresh exchanges the refresh token for a fresh access token. Concurrent
// callers (timer tick vs. an on-demand call) collapse into one in-flight
// request and share its outcome.
func (m *Manager) Refresh(ctx context.Context) error {
	_, err, _ := m.refreshGroup.Do("refresh", func() (any, error) {
		return nil, m.doRefresh(ctx)
	})
	return err
}

func (m *Manager) doRefresh(ctx context.Context) error {
	start := m.now()

	m.mu.Lock()
	if !m.session.IsAuthenticated() || m.session.RefreshToken == "" {
		m.mu.Unlock()
		return autherrors.RefreshInvalid("no refreshable session")
	}
	epoch := m.epoch
	refreshToken := m.session.RefreshToken
	m.session.Status = domainauth.StatusRefreshing
	snap := m.snapshotLocked()
	m.mu.Unlock()
	m.notify(snap)

	result, err := retryNetwork(ctx, m.retry, func() (ports.RefreshResult, error) {
		return m.bridge.Refresh(ctx, refreshToken)
	})

	m.mu.Lock()
	if m.epoch != epoch {
		// Logged out while the refresh was in flight; the result must not
		// repopulate the store or the session, and the caller must not be
		// told the refresh took effect.
		m.mu.Unlock()
		if err == nil {
			err = autherrors.Internal("refresh superseded by logout")
		}
		m.emit("refresh", start, err)
		return err
	}

	if err != nil {
		if autherrors.IsNetworkTimeout(err) {
			// Transient: the access token may still be valid. Keep the
			// session and let the next tick try again.
			m.session.Status = domainauth.StatusAuthenticated
			m.session.LastError = err
		} else {
			// A rejected refresh token cannot recover; retrying is pointless.
			m.session = domainauth.Session{Status: domainauth.StatusExpired, LastError: err}
			if clearErr := m.store.Clear(ctx); clearErr != nil {
				m.logger.WarnContext(ctx, "clear credential store failed", "error", clearErr)
			}
		}
		snap = m.snapshotLocked()
		m.mu.Unlock()
		m.notify(snap)
		m.emit("refresh", start, err)
		return err
	}

	m.session.AccessToken = result.AccessToken
	m.session.ExpiresAt = m.now().Add(time.Duration(result.ExpiresIn) * time.Second)
	if result.RefreshToken != "" {
		// The backend rotated the refresh token; the new one is authoritative.
		m.session.RefreshToken = result.RefreshToken
	}
	m.session.Status = domainauth.StatusAuthenticated
	m.session.LastError = nil

	rec := domainauth.RecordFromSession(m.session)
	if saveErr := m.store.Save(ctx, rec); saveErr != nil {
		m.logger.WarnContext(ctx, "persist refreshed credentials failed", "error", saveErr)
	}

	snap = m.snapshotLocked()
	m.mu.Unlock()
	m.notify(snap)
	m.emit("refresh", start, nil)
	return nil
}

// beginAuthenticating moves the session into Authenticating and returns the
// epoch the subsequent completion must match.
func (m *Manager) beginAuthenticating() uint64 {
	m.mu.Lock()
	epoch := m.epoch
	m.session = domainauth.Session{Status: domainauth.StatusAuthenticating}
	m.twoFactor.PendingUserID = ""
	snap := m.snapshotLocked()
	m.mu.Unlock()
	m.notify(snap)
	return epoch
}

func (m *Manager) completeLogin(
	ctx context.Context,
	epoch uint64,
	op string,
	start time.Time,
	result ports.LoginResult,
	err error,
) (domainauth.Session, error) {
	if err != nil {
		m.mu.Lock()
		if m.epoch == epoch {
			m.session = domainauth.Session{Status: domainauth.StatusUnauthenticated, LastError: err}
		}
		snap := m.snapshotLocked()
		m.mu.Unlock()
		m.notify(snap)
		m.emit(op, start, err)
		return snap, err
	}

	if result.TwoFactorRequired {
		m.mu.Lock()
		if m.epoch == epoch {
			m.session = domainauth.Session{Status: domainauth.StatusAwaitingSecondFactor}
			m.twoFactor.PendingUserID = result.PendingUserID
		}
		snap := m.snapshotLocked()
		m.mu.Unlock()
		m.notify(snap)
		m.emit(op, start, nil)
		return snap, nil
	}

	if result.AccessToken == "" || result.User.ID == "" {
		err := autherrors.Internal("login response missing credentials")
		m.mu.Lock()
		if m.epoch == epoch {
			m.session = domainauth.Session{Status: domainauth.StatusUnauthenticated, LastError: err}
		}
		snap := m.snapshotLocked()
		m.mu.Unlock()
		m.notify(snap)
		m.emit(op, start, err)
		return snap, err
	}

	snap, adoptErr := m.adoptLogin(ctx, epoch, result)
	m.emit(op, start, adoptErr)
	return snap, adoptErr
}

// adoptLogin installs a successful login result, persists the credential
// record, and advances the epoch so stale in-flight work cannot clobber it.
func (m *Manager) adoptLogin(ctx context.Context, epoch uint64, result ports.LoginResult) (domainauth.Session, error) {
	m.mu.Lock()
	if m.epoch != epoch {
		snap := m.snapshotLocked()
		m.mu.Unlock()
		return snap, autherrors.Internal("login superseded by logout")
	}

	user := result.User
	m.epoch++
	m.session = domainauth.Session{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		ExpiresAt:    m.now().Add(time.Duration(result.ExpiresIn) * time.Second),
		User:         &user,
		Status:       domainauth.StatusAuthenticated,
	}
	m.twoFactor.PendingUserID = ""
	m.hydrated = true

	rec := domainauth.RecordFromSession(m.session)
	if saveErr := m.store.Save(ctx, rec); saveErr != nil {
		// The in-memory session is still usable; persistence will be retried
		// on the next refresh.
		m.logger.WarnContext(ctx, "persist credentials failed", "error", saveErr)
	}

	snap := m.snapshotLocked()
	m.mu.Unlock()
	m.notify(snap)
	return snap, nil
}

// adoptRestored installs a persisted record as an optimistic authenticated
// session during hydration.
func (m *Manager) adoptRestored(rec domainauth.CredentialRecord) domainauth.Session {
	m.mu.Lock()
	m.session = domainauth.SessionFromRecord(rec)
	m.hydrated = true
	snap := m.snapshotLocked()
	m.mu.Unlock()
	m.notify(snap)
	return snap
}

// markUnauthenticated finishes hydration with no session.
func (m *Manager) markUnauthenticated(lastErr error) {
	m.mu.Lock()
	m.session = domainauth.Session{Status: domainauth.StatusUnauthenticated, LastError: lastErr}
	m.hydrated = true
	snap := m.snapshotLocked()
	m.mu.Unlock()
	m.notify(snap)
}

// teardownRestored discards a restored session that failed validation,
// clearing the store. Hydration failures land on Unauthenticated, never on
// Expired, so the UI offers a plain login.
func (m *Manager) teardownRestored(ctx context.Context, epoch uint64, cause error) {
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return
	}
	m.session = domainauth.Session{Status: domainauth.StatusUnauthenticated, LastError: cause}
	if err := m.store.Clear(ctx); err != nil {
		m.logger.WarnContext(ctx, "clear credential store failed", "error", err)
	}
	snap := m.snapshotLocked()
	m.mu.Unlock()
	m.notify(snap)
}

func (m *Manager) currentEpoch() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch
}

func (m *Manager) setTwoFactorStatus(status ports.TwoFactorStatusResult) {
	m.mu.Lock()
	m.twoFactor.Enabled = status.Enabled
	if !status.LastUsedAt.IsZero() {
		m.twoFactor.LastUsedAt = status.LastUsedAt
	}
	m.mu.Unlock()
}

// snapshotLocked returns a defensive copy of the session. Callers must hold mu.
func (m *Manager) snapshotLocked() domainauth.Session {
	snap := m.session
	if m.session.User != nil {
		user := *m.session.User
		snap.User = &user
	}
	return snap
}

func (m *Manager) notify(snap domainauth.Session) {
	m.mu.Lock()
	listeners := make([]ports.SessionListener, 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.mu.Unlock()

	for _, l := range listeners {
		l(snap)
	}
}

func (m *Manager) emit(op string, start time.Time, err error) {
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.EmitAuthEvent(m.metrics, metrics.AuthEvent{
		Operation: op,
		Result:    result,
		Duration:  m.now().Sub(start),
		Err:       err,
	})
}
