package service

import (
	"context"
	"sync"
	"time"

	domainauth "github.com/dealdesk/sessioncore/internal/domain/auth"
	autherrors "github.com/dealdesk/sessioncore/internal/errors"
	"github.com/dealdesk/sessioncore/internal/ports"
)

const (
	defaultTwoFactorMaxFailures = 3
	defaultTwoFactorWindow      = 5 * time.Minute
)

// TwoFactorPolicy configures the local sliding-window limiter for rejected
// second-factor codes.
type TwoFactorPolicy struct {
	MaxFailures int
	Window      time.Duration
}

func (p TwoFactorPolicy) sanitized() TwoFactorPolicy {
	if p.MaxFailures <= 0 {
		p.MaxFailures = defaultTwoFactorMaxFailures
	}
	if p.Window <= 0 {
		p.Window = defaultTwoFactorWindow
	}
	return p
}

// attemptWindow tracks rejected verification codes per user. Once the failure
// budget inside the window is spent, every further attempt is rejected with
// RateLimited until old failures age out.
type attemptWindow struct {
	mu       sync.Mutex
	failures map[string][]time.Time
	policy   TwoFactorPolicy
}

func newAttemptWindow(policy TwoFactorPolicy) *attemptWindow {
	return &attemptWindow{
		failures: make(map[string][]time.Time),
		policy:   policy.sanitized(),
	}
}

// check rejects the attempt when the user has exhausted the failure budget.
// It must be called before the code is sent to the backend so a correct code
// cannot bypass the block.
func (w *attemptWindow) check(userID string, now time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	recent := w.pruneLocked(userID, now)
	if len(recent) >= w.policy.MaxFailures {
		return autherrors.RateLimited("too many rejected verification codes")
	}
	return nil
}

func (w *attemptWindow) recordFailure(userID string, now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	recent := w.pruneLocked(userID, now)
	w.failures[userID] = append(recent, now)
}

func (w *attemptWindow) reset(userID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.failures, userID)
}

func (w *attemptWindow) pruneLocked(userID string, now time.Time) []time.Time {
	cutoff := now.Add(-w.policy.Window)
	recent := w.failures[userID][:0]
	for _, t := range w.failures[userID] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	w.failures[userID] = recent
	return recent
}

// BeginTwoFactorSetup starts second-factor enrolment for the authenticated
// user. The backend delivers the provisioning secret out of band.
func (m *Manager) BeginTwoFactorSetup(ctx context.Context) error {
	start := m.now()

	token, err := m.accessToken()
	if err != nil {
		return err
	}

	_, err = retryNetwork(ctx, m.retry, func() (struct{}, error) {
		return struct{}{}, m.bridge.BeginTwoFactorSetup(ctx, token)
	})
	m.emit("twofactor_setup", start, err)
	return err
}

// ConfirmTwoFactorSetup proves possession of the enrolled secret with a first
// code. It reports whether enforcement is now on.
func (m *Manager) ConfirmTwoFactorSetup(ctx context.Context, code string) (bool, error) {
	start := m.now()

	token, err := m.accessToken()
	if err != nil {
		return false, err
	}

	enabled, err := retryNetwork(ctx, m.retry, func() (bool, error) {
		return m.bridge.ConfirmTwoFactorSetup(ctx, token, code)
	})
	m.emit("twofactor_confirm", start, err)
	if err != nil {
		return false, err
	}

	if enabled {
		m.mu.Lock()
		m.twoFactor.Enabled = true
		m.mu.Unlock()
	}
	return enabled, nil
}

// SyncTwoFactorStatus fetches enrolment status from the backend and folds it
// into local state.
func (m *Manager) SyncTwoFactorStatus(ctx context.Context) (ports.TwoFactorStatusResult, error) {
	token, err := m.accessToken()
	if err != nil {
		return ports.TwoFactorStatusResult{}, err
	}

	status, err := retryNetwork(ctx, m.retry, func() (ports.TwoFactorStatusResult, error) {
		return m.bridge.TwoFactorStatus(ctx, token)
	})
	if err != nil {
		return ports.TwoFactorStatusResult{}, err
	}

	m.setTwoFactorStatus(status)
	return status, nil
}

func (m *Manager) accessToken() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session.Status != domainauth.StatusAuthenticated || m.session.AccessToken == "" {
		return "", autherrors.Unauthorized("not authenticated")
	}
	return m.session.AccessToken, nil
}
