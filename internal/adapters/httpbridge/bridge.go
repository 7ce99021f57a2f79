package httpbridge

// Package httpbridge implements the identity backend protocol client over
// HTTP/JSON. Every operation is single-shot; retry policy belongs to callers.

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	domainauth "github.com/dealdesk/sessioncore/internal/domain/auth"
	autherrors "github.com/dealdesk/sessioncore/internal/errors"
	"github.com/dealdesk/sessioncore/internal/ports"
	"github.com/google/uuid"
)

const (
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 1 << 20
)

// Config captures runtime configuration for the identity bridge.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	Client    *http.Client
	Logger    *slog.Logger
}

// Bridge talks to the primary identity backend. It is safe for concurrent use.
type Bridge struct {
	baseURL   string
	userAgent string
	client    *http.Client
	logger    *slog.Logger
}

var _ ports.IdentityBridge = (*Bridge)(nil)

// NewBridge constructs an identity bridge from config. BaseURL is required.
func NewBridge(cfg Config) (*Bridge, error) {
	base := strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("identity backend base URL is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ua := strings.TrimSpace(cfg.UserAgent)
	if ua == "" {
		ua = "sessioncore"
	}

	return &Bridge{
		baseURL:   base,
		userAgent: ua,
		client:    hc,
		logger:    logger.With("component", "identity_bridge"),
	}, nil
}

// envelope is the backend's uniform response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// loginData is the success payload shared by login-shaped endpoints.
type loginData struct {
	AccessToken       string          `json:"accessToken"`
	RefreshToken      string          `json:"refreshToken"`
	ExpiresIn         int             `json:"expiresIn"`
	User              domainauth.User `json:"user"`
	TwoFactorRequired bool            `json:"twoFactorRequired"`
	UserID            string          `json:"userId"`
}

func (b *Bridge) Login(ctx context.Context, email, password string) (ports.LoginResult, error) {
	if email == "" || password == "" {
		return ports.LoginResult{}, autherrors.InvalidCredentials("email and password are required")
	}

	body := map[string]string{"email": email, "password": password}
	env, status, err := b.post(ctx, "/auth/login", body, "")
	if err != nil {
		return ports.LoginResult{}, err
	}
	if !env.Success {
		return ports.LoginResult{}, loginFailure(status, env.Message)
	}
	return decodeLoginResult(env.Data)
}

func (b *Bridge) LoginFederated(ctx context.Context, identityToken string) (ports.LoginResult, error) {
	if identityToken == "" {
		return ports.LoginResult{}, autherrors.FederatedExchange("identity token is required", nil)
	}

	body := map[string]string{"idToken": identityToken}
	env, _, err := b.post(ctx, "/v1/auth/login/firebase", body, "")
	if err != nil {
		return ports.LoginResult{}, err
	}
	if !env.Success {
		return ports.LoginResult{}, autherrors.FederatedExchange(messageOr(env.Message, "identity token rejected"), nil)
	}
	return decodeLoginResult(env.Data)
}

func (b *Bridge) Register(ctx context.Context, in ports.RegisterInput) (ports.LoginResult, error) {
	if in.Email == "" || in.Password == "" {
		return ports.LoginResult{}, autherrors.Registration("email and password are required")
	}

	body := map[string]any{
		"firstName": in.FirstName,
		"lastName":  in.LastName,
		"email":     in.Email,
		"password":  in.Password,
	}
	if in.Card != nil {
		body["cardDetails"] = map[string]any{
			"holderName": in.Card.HolderName,
			"number":     in.Card.Number,
			"expMonth":   in.Card.ExpMonth,
			"expYear":    in.Card.ExpYear,
			"cvc":        in.Card.CVC,
		}
	}

	env, _, err := b.post(ctx, "/auth/register", body, "")
	if err != nil {
		return ports.LoginResult{}, err
	}
	if !env.Success {
		return ports.LoginResult{}, autherrors.Registration(messageOr(env.Message, "registration rejected"))
	}
	return decodeLoginResult(env.Data)
}

func (b *Bridge) Refresh(ctx context.Context, refreshToken string) (ports.RefreshResult, error) {
	if refreshToken == "" {
		return ports.RefreshResult{}, autherrors.RefreshInvalid("refresh token is empty")
	}

	body := map[string]string{"refreshToken": refreshToken}
	env, status, err := b.post(ctx, "/auth/refresh", body, "")
	if err != nil {
		return ports.RefreshResult{}, err
	}
	if !env.Success {
		if status == http.StatusTooManyRequests {
			return ports.RefreshResult{}, autherrors.RateLimited(messageOr(env.Message, "too many refresh attempts"))
		}
		return ports.RefreshResult{}, autherrors.RefreshInvalid(messageOr(env.Message, "refresh token rejected"))
	}

	var data struct {
		AccessToken  string `json:"accessToken"`
		ExpiresIn    int    `json:"expiresIn"`
		RefreshToken string `json:"refreshToken"`
	}
	if decodeErr := json.Unmarshal(env.Data, &data); decodeErr != nil {
		return ports.RefreshResult{}, autherrors.Wrap(decodeErr, autherrors.ErrCodeInternal, "decode refresh response")
	}
	if data.AccessToken == "" || data.ExpiresIn <= 0 {
		return ports.RefreshResult{}, autherrors.Internal("refresh response missing token or expiry")
	}

	return ports.RefreshResult{
		AccessToken:  data.AccessToken,
		ExpiresIn:    data.ExpiresIn,
		RefreshToken: data.RefreshToken,
	}, nil
}

// RequestPasswordReset reports success whether or not the email exists; the
// backend keeps the response uniform to prevent account enumeration.
func (b *Bridge) RequestPasswordReset(ctx context.Context, email string) error {
	if email == "" {
		return autherrors.ResetRequest(errors.New("email is required"))
	}

	env, _, err := b.post(ctx, "/auth/forgot-password", map[string]string{"email": email}, "")
	if err != nil {
		return err
	}
	if !env.Success {
		return autherrors.ResetRequest(errors.New(messageOr(env.Message, "reset request rejected")))
	}
	return nil
}

func (b *Bridge) Logout(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return nil
	}

	env, _, err := b.post(ctx, "/auth/logout", struct{}{}, accessToken)
	if err != nil {
		return err
	}
	if !env.Success {
		return autherrors.Internalf("remote logout rejected: %s", env.Message)
	}
	return nil
}

func (b *Bridge) VerifySecondFactor(ctx context.Context, userID, code string) (ports.LoginResult, error) {
	if userID == "" {
		return ports.LoginResult{}, autherrors.InvalidCode("missing challenge user id")
	}

	body := map[string]string{"userId": userID, "otpCode": code}
	env, status, err := b.post(ctx, "/auth/2fa/verify-login", body, "")
	if err != nil {
		return ports.LoginResult{}, err
	}
	if !env.Success {
		if status == http.StatusTooManyRequests {
			return ports.LoginResult{}, autherrors.RateLimited(messageOr(env.Message, "too many code attempts"))
		}
		return ports.LoginResult{}, autherrors.InvalidCode(messageOr(env.Message, "one-time code rejected"))
	}
	return decodeLoginResult(env.Data)
}

func (b *Bridge) BeginTwoFactorSetup(ctx context.Context, accessToken string) error {
	env, status, err := b.post(ctx, "/auth/2fa/setup", struct{}{}, accessToken)
	if err != nil {
		return err
	}
	if !env.Success {
		if status == http.StatusUnauthorized {
			return autherrors.Unauthorized(env.Message)
		}
		return autherrors.Internalf("begin 2fa setup rejected: %s", env.Message)
	}
	return nil
}

func (b *Bridge) ConfirmTwoFactorSetup(ctx context.Context, accessToken, code string) (bool, error) {
	body := map[string]string{"otpCode": code}
	env, status, err := b.post(ctx, "/auth/2fa/verify-setup", body, accessToken)
	if err != nil {
		return false, err
	}
	if !env.Success {
		if status == http.StatusUnauthorized {
			return false, autherrors.Unauthorized(env.Message)
		}
		return false, autherrors.InvalidCode(messageOr(env.Message, "setup code rejected"))
	}

	var data struct {
		Enabled bool `json:"enabled"`
	}
	if decodeErr := json.Unmarshal(env.Data, &data); decodeErr != nil {
		return false, autherrors.Wrap(decodeErr, autherrors.ErrCodeInternal, "decode 2fa setup response")
	}
	return data.Enabled, nil
}

func (b *Bridge) TwoFactorStatus(ctx context.Context, accessToken string) (ports.TwoFactorStatusResult, error) {
	env, status, err := b.post(ctx, "/auth/2fa/status", struct{}{}, accessToken)
	if err != nil {
		return ports.TwoFactorStatusResult{}, err
	}
	if !env.Success {
		if status == http.StatusUnauthorized {
			return ports.TwoFactorStatusResult{}, autherrors.Unauthorized(env.Message)
		}
		return ports.TwoFactorStatusResult{}, autherrors.Internalf("2fa status rejected: %s", env.Message)
	}

	var data struct {
		Enabled    bool  `json:"enabled"`
		LastUsedAt int64 `json:"lastUsedAt"`
	}
	if decodeErr := json.Unmarshal(env.Data, &data); decodeErr != nil {
		return ports.TwoFactorStatusResult{}, autherrors.Wrap(decodeErr, autherrors.ErrCodeInternal, "decode 2fa status response")
	}

	result := ports.TwoFactorStatusResult{Enabled: data.Enabled}
	if data.LastUsedAt > 0 {
		result.LastUsedAt = time.UnixMilli(data.LastUsedAt)
	}
	return result, nil
}

// post sends one JSON request and decodes the response envelope. Transport
// timeouts come back as NetworkTimeout; HTTP-level failures are returned to
// the caller for per-endpoint mapping via the envelope and status code.
func (b *Bridge) post(ctx context.Context, path string, body any, bearer string) (envelope, int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return envelope{}, 0, autherrors.Wrap(err, autherrors.ErrCodeInternal, "encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return envelope{}, 0, autherrors.Wrap(err, autherrors.ErrCodeInternal, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", b.userAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return envelope{}, 0, autherrors.NetworkTimeout(err)
		}
		return envelope{}, 0, autherrors.Wrapf(err, autherrors.ErrCodeInternal, "call %s", path)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			b.logger.Warn("close response body failed", "path", path, "error", cerr)
		}
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if isTimeout(err) {
			return envelope{}, resp.StatusCode, autherrors.NetworkTimeout(err)
		}
		return envelope{}, resp.StatusCode, autherrors.Wrapf(err, autherrors.ErrCodeInternal, "read %s response", path)
	}

	var env envelope
	if len(raw) > 0 {
		if decodeErr := json.Unmarshal(raw, &env); decodeErr != nil {
			return envelope{}, resp.StatusCode, autherrors.Wrapf(decodeErr,
				autherrors.ErrCodeInternal, "decode %s response (status %d)", path, resp.StatusCode)
		}
	}

	return env, resp.StatusCode, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func loginFailure(status int, message string) error {
	switch status {
	case http.StatusTooManyRequests:
		return autherrors.RateLimited(messageOr(message, "too many login attempts"))
	default:
		return autherrors.InvalidCredentials(messageOr(message, "invalid credentials"))
	}
}

func decodeLoginResult(data json.RawMessage) (ports.LoginResult, error) {
	var d loginData
	if err := json.Unmarshal(data, &d); err != nil {
		return ports.LoginResult{}, autherrors.Wrap(err, autherrors.ErrCodeInternal, "decode login response")
	}

	if d.TwoFactorRequired {
		if d.UserID == "" {
			return ports.LoginResult{}, autherrors.Internal("second-factor challenge missing user id")
		}
		return ports.LoginResult{TwoFactorRequired: true, PendingUserID: d.UserID}, nil
	}

	if d.AccessToken == "" || d.RefreshToken == "" || d.ExpiresIn <= 0 || d.User.ID == "" {
		return ports.LoginResult{}, autherrors.Internal("login response missing credentials")
	}

	return ports.LoginResult{
		AccessToken:  d.AccessToken,
		RefreshToken: d.RefreshToken,
		ExpiresIn:    d.ExpiresIn,
		User:         d.User,
	}, nil
}

func messageOr(message, fallback string) string {
	if strings.TrimSpace(message) == "" {
		return fallback
	}
	return message
}
