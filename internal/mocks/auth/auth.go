// Package auth contains simple hand-written test doubles for session ports.
// These are lightweight and suitable for unit tests without codegen.
package auth

import (
	"context"
	"sync"
	"sync/atomic"

	domainauth "github.com/dealdesk/sessioncore/internal/domain/auth"
	autherrors "github.com/dealdesk/sessioncore/internal/errors"
	"github.com/dealdesk/sessioncore/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.IdentityBridge  = (*MockIdentityBridge)(nil)
	_ ports.CredentialStore = (*MemoryCredentialStore)(nil)
)

// MockIdentityBridge simulates the identity backend with overridable behavior
// per operation and counters for asserting call volume.
type MockIdentityBridge struct {
	LoginFunc              func(ctx context.Context, email, password string) (ports.LoginResult, error)
	LoginFederatedFunc     func(ctx context.Context, identityToken string) (ports.LoginResult, error)
	RegisterFunc           func(ctx context.Context, in ports.RegisterInput) (ports.LoginResult, error)
	RefreshFunc            func(ctx context.Context, refreshToken string) (ports.RefreshResult, error)
	ResetFunc              func(ctx context.Context, email string) error
	LogoutFunc             func(ctx context.Context, accessToken string) error
	VerifySecondFactorFunc func(ctx context.Context, userID, code string) (ports.LoginResult, error)
	BeginSetupFunc         func(ctx context.Context, accessToken string) error
	ConfirmSetupFunc       func(ctx context.Context, accessToken, code string) (bool, error)
	StatusFunc             func(ctx context.Context, accessToken string) (ports.TwoFactorStatusResult, error)

	LoginCalls   atomic.Int64
	RefreshCalls atomic.Int64
	LogoutCalls  atomic.Int64
	VerifyCalls  atomic.Int64
	StatusCalls  atomic.Int64
}

// DefaultLoginResult is the success shape returned when no override is set.
func DefaultLoginResult() ports.LoginResult {
	return ports.LoginResult{
		AccessToken:  "mock-access",
		RefreshToken: "mock-refresh",
		ExpiresIn:    3600,
		User: domainauth.User{
			ID:        "mock-user-1",
			FirstName: "Mock",
			LastName:  "User",
			Email:     "mock.user@example.com",
			Role:      domainauth.RoleMember,
		},
	}
}

func (m *MockIdentityBridge) Login(ctx context.Context, email, password string) (ports.LoginResult, error) {
	m.LoginCalls.Add(1)
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, email, password)
	}
	return DefaultLoginResult(), nil
}

func (m *MockIdentityBridge) LoginFederated(ctx context.Context, identityToken string) (ports.LoginResult, error) {
	if m.LoginFederatedFunc != nil {
		return m.LoginFederatedFunc(ctx, identityToken)
	}
	return DefaultLoginResult(), nil
}

func (m *MockIdentityBridge) Register(ctx context.Context, in ports.RegisterInput) (ports.LoginResult, error) {
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, in)
	}
	result := DefaultLoginResult()
	result.User.Email = in.Email
	result.User.FirstName = in.FirstName
	result.User.LastName = in.LastName
	return result, nil
}

func (m *MockIdentityBridge) Refresh(ctx context.Context, refreshToken string) (ports.RefreshResult, error) {
	m.RefreshCalls.Add(1)
	if m.RefreshFunc != nil {
		return m.RefreshFunc(ctx, refreshToken)
	}
	return ports.RefreshResult{AccessToken: "mock-access-2", ExpiresIn: 3600}, nil
}

func (m *MockIdentityBridge) RequestPasswordReset(ctx context.Context, email string) error {
	if m.ResetFunc != nil {
		return m.ResetFunc(ctx, email)
	}
	return nil
}

func (m *MockIdentityBridge) Logout(ctx context.Context, accessToken string) error {
	m.LogoutCalls.Add(1)
	if m.LogoutFunc != nil {
		return m.LogoutFunc(ctx, accessToken)
	}
	return nil
}

func (m *MockIdentityBridge) VerifySecondFactor(ctx context.Context, userID, code string) (ports.LoginResult, error) {
	m.VerifyCalls.Add(1)
	if m.VerifySecondFactorFunc != nil {
		return m.VerifySecondFactorFunc(ctx, userID, code)
	}
	return DefaultLoginResult(), nil
}

func (m *MockIdentityBridge) BeginTwoFactorSetup(ctx context.Context, accessToken string) error {
	if m.BeginSetupFunc != nil {
		return m.BeginSetupFunc(ctx, accessToken)
	}
	return nil
}

func (m *MockIdentityBridge) ConfirmTwoFactorSetup(ctx context.Context, accessToken, code string) (bool, error) {
	if m.ConfirmSetupFunc != nil {
		return m.ConfirmSetupFunc(ctx, accessToken, code)
	}
	return true, nil
}

func (m *MockIdentityBridge) TwoFactorStatus(ctx context.Context, accessToken string) (ports.TwoFactorStatusResult, error) {
	m.StatusCalls.Add(1)
	if m.StatusFunc != nil {
		return m.StatusFunc(ctx, accessToken)
	}
	return ports.TwoFactorStatusResult{}, nil
}

// MemoryCredentialStore is an in-memory credential store for tests.
type MemoryCredentialStore struct {
	mu      sync.Mutex
	rec     domainauth.CredentialRecord
	present bool

	// Corrupt makes Load fail with a StoreCorrupt error.
	Corrupt bool
	// LoadErr/SaveErr/ClearErr force failures when set.
	LoadErr  error
	SaveErr  error
	ClearErr error

	SaveCalls  atomic.Int64
	ClearCalls atomic.Int64
}

func (s *MemoryCredentialStore) Load(_ context.Context) (domainauth.CredentialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.LoadErr != nil {
		return domainauth.CredentialRecord{}, s.LoadErr
	}
	if s.Corrupt {
		return domainauth.CredentialRecord{}, autherrors.StoreCorrupt(errNotParseable)
	}
	if !s.present {
		return domainauth.CredentialRecord{}, ports.ErrNoRecord
	}
	return s.rec, nil
}

func (s *MemoryCredentialStore) Save(_ context.Context, rec domainauth.CredentialRecord) error {
	s.SaveCalls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.rec = rec
	s.present = true
	return nil
}

func (s *MemoryCredentialStore) Clear(_ context.Context) error {
	s.ClearCalls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ClearErr != nil {
		return s.ClearErr
	}
	s.rec = domainauth.CredentialRecord{}
	s.present = false
	return nil
}

// Seed pre-populates the store, bypassing Save counters.
func (s *MemoryCredentialStore) Seed(rec domainauth.CredentialRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = rec
	s.present = true
}

// Current returns the stored record and whether one is present.
func (s *MemoryCredentialStore) Current() (domainauth.CredentialRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec, s.present
}

type parseError struct{}

func (parseError) Error() string { return "not parseable" }

var errNotParseable = parseError{}
