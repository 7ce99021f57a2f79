package federated

// Package federated obtains identity tokens from an external OIDC provider.
// The verified raw ID token is what the session manager forwards to the
// primary backend for exchange; this adapter never mints backend sessions
// itself.

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	autherrors "github.com/dealdesk/sessioncore/internal/errors"
	"golang.org/x/oauth2"
)

// Identity is the profile asserted by the external provider, alongside the
// raw ID token to forward to the backend.
type Identity struct {
	IdentityToken string
	Subject       string
	Email         string
	FirstName     string
	LastName      string
	ExpiresAt     time.Time
}

// Config holds settings for the external OIDC provider.
type Config struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	HTTPClient   *http.Client // optional
}

// Provider drives the authorization-code flow against an external OIDC
// issuer and verifies the resulting ID token.
type Provider struct {
	oauth    *oauth2.Config
	verifier *gooidc.IDTokenVerifier
}

// NewProvider discovers the issuer's endpoints and prepares a verifier.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.IssuerURL == "" {
		return nil, errors.New("issuer URL is required")
	}
	if cfg.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if cfg.RedirectURL == "" {
		return nil, errors.New("redirect URL is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)

	issuer := strings.TrimSuffix(cfg.IssuerURL, "/")
	op, err := gooidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery: %w", err)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{gooidc.ScopeOpenID, "profile", "email"}
	}

	return &Provider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     op.Endpoint(),
		},
		verifier: op.Verifier(&gooidc.Config{ClientID: cfg.ClientID}),
	}, nil
}

// Begin returns the authorization URL plus the state and nonce the caller
// must hold for the callback.
func (p *Provider) Begin(_ context.Context) (authURL, state, nonce string, err error) {
	state, err = randomToken(32)
	if err != nil {
		return "", "", "", fmt.Errorf("generate state: %w", err)
	}
	nonce, err = randomToken(32)
	if err != nil {
		return "", "", "", fmt.Errorf("generate nonce: %w", err)
	}

	authURL = p.oauth.AuthCodeURL(state,
		oauth2.SetAuthURLParam("nonce", nonce),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
	return authURL, state, nonce, nil
}

// Exchange trades the authorization code for tokens and verifies the ID
// token, including the nonce binding.
func (p *Provider) Exchange(ctx context.Context, code, nonce string) (Identity, error) {
	if code == "" {
		return Identity{}, errors.New("authorization code is required")
	}

	token, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return Identity{}, autherrors.FederatedExchange("code exchange failed", err)
	}

	rawID, ok := token.Extra("id_token").(string)
	if !ok || rawID == "" {
		return Identity{}, autherrors.FederatedExchange("token response missing id_token", nil)
	}

	idToken, err := p.verifier.Verify(ctx, rawID)
	if err != nil {
		return Identity{}, autherrors.FederatedExchange("id_token verification failed", err)
	}

	var claims struct {
		Email      string `json:"email"`
		GivenName  string `json:"given_name"`
		FamilyName string `json:"family_name"`
		Nonce      string `json:"nonce"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return Identity{}, autherrors.FederatedExchange("id_token claims unreadable", err)
	}
	if nonce != "" && claims.Nonce != nonce {
		return Identity{}, autherrors.FederatedExchange("nonce mismatch", nil)
	}

	return Identity{
		IdentityToken: rawID,
		Subject:       idToken.Subject,
		Email:         claims.Email,
		FirstName:     claims.GivenName,
		LastName:      claims.FamilyName,
		ExpiresAt:     idToken.Expiry,
	}, nil
}

// randomToken returns a URL-safe random string of exactly n characters.
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
