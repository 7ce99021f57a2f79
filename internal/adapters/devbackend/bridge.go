package devbackend

// Package devbackend provides a config-driven, in-memory identity backend
// for local development. It honors the full bridge contract, including real
// TOTP verification, so session flows can be exercised without a network.

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	domainauth "github.com/dealdesk/sessioncore/internal/domain/auth"
	autherrors "github.com/dealdesk/sessioncore/internal/errors"
	"github.com/dealdesk/sessioncore/internal/ports"
	"github.com/pquerna/otp/totp"
)

var _ ports.IdentityBridge = (*Bridge)(nil)

// Config controls the dev backend. Email and Password gate login; everything
// else has workable defaults.
type Config struct {
	Email    string
	Password string
	UserID   string
	Role     domainauth.Role

	// TOTPSecret, when set, demands a second factor on every login. Codes
	// are verified against it with standard 30-second TOTP.
	TOTPSecret string

	TokenLifetime time.Duration // default 8h
}

type issuedToken struct {
	refreshToken string
	expiresAt    time.Time
}

// Bridge is an in-process stand-in for the identity backend.
type Bridge struct {
	cfg  Config
	user domainauth.User

	mu      sync.Mutex
	issued  map[string]issuedToken // access token -> issue record
	refresh map[string]string      // refresh token -> user ID
	enabled bool
	lastOTP time.Time
}

// NewBridge constructs a dev backend from Config.
func NewBridge(cfg Config) (*Bridge, error) {
	if cfg.Email == "" {
		return nil, errors.New("dev backend: Email is required")
	}
	if cfg.Password == "" {
		return nil, errors.New("dev backend: Password is required")
	}
	if cfg.UserID == "" {
		cfg.UserID = "dev-user-1"
	}
	if cfg.Role == "" {
		cfg.Role = domainauth.RoleMember
	}
	if cfg.TokenLifetime <= 0 {
		cfg.TokenLifetime = 8 * time.Hour
	}

	return &Bridge{
		cfg: cfg,
		user: domainauth.User{
			ID:        cfg.UserID,
			FirstName: "Dev",
			LastName:  "User",
			Email:     cfg.Email,
			Role:      cfg.Role,
		},
		issued:  make(map[string]issuedToken),
		refresh: make(map[string]string),
		enabled: cfg.TOTPSecret != "",
	}, nil
}

func (b *Bridge) Login(_ context.Context, email, password string) (ports.LoginResult, error) {
	if email != b.cfg.Email || password != b.cfg.Password {
		return ports.LoginResult{}, autherrors.InvalidCredentials("invalid email or password")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.enabled {
		return ports.LoginResult{TwoFactorRequired: true, PendingUserID: b.user.ID}, nil
	}
	return b.issueLocked()
}

func (b *Bridge) LoginFederated(_ context.Context, identityToken string) (ports.LoginResult, error) {
	if identityToken == "" {
		return ports.LoginResult{}, autherrors.FederatedExchange("empty identity token", nil)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.issueLocked()
}

func (b *Bridge) Register(_ context.Context, in ports.RegisterInput) (ports.LoginResult, error) {
	if in.Email == "" || in.Password == "" {
		return ports.LoginResult{}, autherrors.Registration("email and password are required")
	}
	if in.Email == b.cfg.Email {
		return ports.LoginResult{}, autherrors.Registration("email already registered")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	result, err := b.issueLocked()
	if err != nil {
		return ports.LoginResult{}, err
	}
	result.User = domainauth.User{
		ID:        "dev-user-" + result.AccessToken[:8],
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     in.Email,
		Role:      domainauth.RoleMember,
	}
	return result, nil
}

func (b *Bridge) Refresh(_ context.Context, refreshToken string) (ports.RefreshResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.refresh[refreshToken]; !ok {
		return ports.RefreshResult{}, autherrors.RefreshInvalid("unknown refresh token")
	}

	// Rotate on every refresh to exercise the client's rotation handling.
	delete(b.refresh, refreshToken)
	result, err := b.issueLocked()
	if err != nil {
		return ports.RefreshResult{}, err
	}
	return ports.RefreshResult{
		AccessToken:  result.AccessToken,
		ExpiresIn:    result.ExpiresIn,
		RefreshToken: result.RefreshToken,
	}, nil
}

// RequestPasswordReset always succeeds; account existence is never revealed.
func (b *Bridge) RequestPasswordReset(context.Context, string) error {
	return nil
}

func (b *Bridge) Logout(_ context.Context, accessToken string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if rec, ok := b.issued[accessToken]; ok {
		delete(b.refresh, rec.refreshToken)
		delete(b.issued, accessToken)
	}
	return nil
}

func (b *Bridge) VerifySecondFactor(_ context.Context, userID, code string) (ports.LoginResult, error) {
	if userID != b.user.ID {
		return ports.LoginResult{}, autherrors.InvalidCode("unknown challenge")
	}
	if !totp.Validate(code, b.cfg.TOTPSecret) {
		return ports.LoginResult{}, autherrors.InvalidCode("verification code rejected")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastOTP = time.Now()
	return b.issueLocked()
}

// BeginTwoFactorSetup generates a fresh TOTP secret for the account.
func (b *Bridge) BeginTwoFactorSetup(_ context.Context, accessToken string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.authorizeLocked(accessToken); err != nil {
		return err
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "sessioncore-dev",
		AccountName: b.cfg.Email,
	})
	if err != nil {
		return fmt.Errorf("generate totp secret: %w", err)
	}
	b.cfg.TOTPSecret = key.Secret()
	return nil
}

func (b *Bridge) ConfirmTwoFactorSetup(_ context.Context, accessToken, code string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.authorizeLocked(accessToken); err != nil {
		return false, err
	}
	if b.cfg.TOTPSecret == "" {
		return false, autherrors.InvalidCode("no enrolment in progress")
	}
	if !totp.Validate(code, b.cfg.TOTPSecret) {
		return false, autherrors.InvalidCode("verification code rejected")
	}

	b.enabled = true
	b.lastOTP = time.Now()
	return true, nil
}

func (b *Bridge) TwoFactorStatus(_ context.Context, accessToken string) (ports.TwoFactorStatusResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.authorizeLocked(accessToken); err != nil {
		return ports.TwoFactorStatusResult{}, err
	}
	return ports.TwoFactorStatusResult{Enabled: b.enabled, LastUsedAt: b.lastOTP}, nil
}

// TOTPSecret exposes the current secret so dev tooling can print codes.
func (b *Bridge) TOTPSecret() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cfg.TOTPSecret
}

func (b *Bridge) authorizeLocked(accessToken string) error {
	rec, ok := b.issued[accessToken]
	if !ok || time.Now().After(rec.expiresAt) {
		return autherrors.Unauthorized("access token rejected")
	}
	return nil
}

func (b *Bridge) issueLocked() (ports.LoginResult, error) {
	access, err := randomToken(32)
	if err != nil {
		return ports.LoginResult{}, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := randomToken(32)
	if err != nil {
		return ports.LoginResult{}, fmt.Errorf("issue refresh token: %w", err)
	}

	expiresAt := time.Now().Add(b.cfg.TokenLifetime)
	b.issued[access] = issuedToken{refreshToken: refresh, expiresAt: expiresAt}
	b.refresh[refresh] = b.user.ID

	return ports.LoginResult{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int(b.cfg.TokenLifetime / time.Second),
		User:         b.user,
	}, nil
}

func randomToken(n int) (string, error) {
	if n <= 0 {
		return "", nil
	}
	b := make([]byte, (n*3+3)/4+1)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b)[:n], nil
}
