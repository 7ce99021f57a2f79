package federated

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type discoveryDoc struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	JwksURI               string `json:"jwks_uri"`
}

func newTestIssuer(t *testing.T) *httptest.Server {
	t.Helper()
	var issuer string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(discoveryDoc{
			Issuer:                issuer,
			AuthorizationEndpoint: issuer + "/auth",
			TokenEndpoint:         issuer + "/token",
			JwksURI:               issuer + "/jwks",
		})
	}))
	t.Cleanup(server.Close)
	issuer = server.URL
	return server
}

func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	server := newTestIssuer(t)
	p, err := NewProvider(context.Background(), Config{
		IssuerURL:    server.URL,
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		RedirectURL:  "http://localhost:8080/callback",
	})
	require.NoError(t, err)
	return p
}

func TestNewProviderDiscovery(t *testing.T) {
	server := newTestIssuer(t)

	p, err := NewProvider(context.Background(), Config{
		IssuerURL:    server.URL,
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		RedirectURL:  "http://localhost:8080/callback",
	})
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/auth", p.oauth.Endpoint.AuthURL)
	assert.Equal(t, server.URL+"/token", p.oauth.Endpoint.TokenURL)
	assert.Equal(t, []string{"openid", "profile", "email"}, p.oauth.Scopes)
}

func TestNewProviderValidation(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		errMsg string
	}{
		{
			name:   "missing issuer",
			config: Config{ClientID: "client", RedirectURL: "http://localhost/callback"},
			errMsg: "issuer URL is required",
		},
		{
			name:   "missing client ID",
			config: Config{IssuerURL: "http://example.com", RedirectURL: "http://localhost/callback"},
			errMsg: "client ID is required",
		},
		{
			name:   "missing redirect URL",
			config: Config{IssuerURL: "http://example.com", ClientID: "client"},
			errMsg: "redirect URL is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProvider(context.Background(), tt.config)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestBegin(t *testing.T) {
	p := newTestProvider(t)

	authURL, state, nonce, err := p.Begin(context.Background())
	require.NoError(t, err)

	assert.Len(t, state, 32)
	assert.Len(t, nonce, 32)
	assert.NotEqual(t, state, nonce)
	assert.Contains(t, authURL, "/auth?")
	assert.Contains(t, authURL, "client_id=test-client")
	assert.Contains(t, authURL, "state="+state)
	assert.Contains(t, authURL, "nonce="+nonce)
	assert.Contains(t, authURL, "prompt=select_account")
}

func TestBeginProducesUniqueState(t *testing.T) {
	p := newTestProvider(t)

	_, state1, _, err := p.Begin(context.Background())
	require.NoError(t, err)
	_, state2, _, err := p.Begin(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, state1, state2)
}

func TestExchangeRequiresCode(t *testing.T) {
	p := newTestProvider(t)

	_, err := p.Exchange(context.Background(), "", "nonce")
	require.EqualError(t, err, "authorization code is required")
}

func TestRandomToken(t *testing.T) {
	s, err := randomToken(32)
	require.NoError(t, err)
	assert.Len(t, s, 32)

	empty, err := randomToken(0)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
