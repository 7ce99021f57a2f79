package ports

// Package ports defines interfaces (hexagonal ports) for session lifecycle
// behavior. Implementations live in internal/adapters; orchestration in
// internal/service.

import (
	"context"
	"errors"
	"time"

	domainauth "github.com/dealdesk/sessioncore/internal/domain/auth"
)

// ErrNoRecord is returned by CredentialStore.Load when no record is persisted.
// Callers treat it as "no session", never as a failure.
var ErrNoRecord = errors.New("no credential record")

// LoginResult is the success shape shared by login, federated login,
// registration, and second-factor verification. When the backend demands a
// second factor, TwoFactorRequired is set, PendingUserID identifies the
// challenge, and the token fields are empty.
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int // access token lifetime in seconds
	User         domainauth.User

	TwoFactorRequired bool
	PendingUserID     string
}

// RefreshResult carries a refreshed access token. RefreshToken is set only
// when the backend rotated it; an empty value means the previous refresh
// token remains valid.
type RefreshResult struct {
	AccessToken  string
	ExpiresIn    int
	RefreshToken string
}

// CardDetails carries optional billing information for registration.
type CardDetails struct {
	HolderName string
	Number     string
	ExpMonth   int
	ExpYear    int
	CVC        string
}

// RegisterInput groups parameters for account registration.
type RegisterInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
	Card      *CardDetails
}

// TwoFactorStatusResult reports the backend's view of second-factor enrollment.
type TwoFactorStatusResult struct {
	Enabled    bool
	LastUsedAt time.Time
}

// IdentityBridge is the protocol client for the primary identity backend.
// Every operation is a single request/response pair: no retries at this
// layer, and a per-request timeout surfaces as a NetworkTimeout error.
type IdentityBridge interface {
	Login(ctx context.Context, email, password string) (LoginResult, error)
	LoginFederated(ctx context.Context, identityToken string) (LoginResult, error)
	Register(ctx context.Context, in RegisterInput) (LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (RefreshResult, error)
	RequestPasswordReset(ctx context.Context, email string) error

	// Logout is best-effort; a failure must not block local teardown.
	Logout(ctx context.Context, accessToken string) error

	VerifySecondFactor(ctx context.Context, userID, code string) (LoginResult, error)
	BeginTwoFactorSetup(ctx context.Context, accessToken string) error
	ConfirmTwoFactorSetup(ctx context.Context, accessToken, code string) (bool, error)

	// TwoFactorStatus doubles as the lightweight authenticated probe used to
	// validate a restored access token during hydration.
	TwoFactorStatus(ctx context.Context, accessToken string) (TwoFactorStatusResult, error)
}

// CredentialStore persists the credential projection of a session across
// process restarts. Writes are atomic from the reader's perspective: a reader
// never observes a half-written record.
type CredentialStore interface {
	// Load returns the persisted record, ErrNoRecord when absent, or a
	// StoreCorrupt error when the data cannot be parsed.
	Load(ctx context.Context) (domainauth.CredentialRecord, error)
	Save(ctx context.Context, rec domainauth.CredentialRecord) error
	Clear(ctx context.Context) error
}

// SessionListener receives session snapshots after each state transition.
// Listeners are invoked outside the manager's lock and must not block.
type SessionListener func(domainauth.Session)
