package config

import "strings"

// FederatedConfig configures the optional external OIDC provider used for
// federated login. Federated login is available only when IssuerURL is set.
type FederatedConfig struct {
	IssuerURL    string `env:"ISSUER_URL"`
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURL  string `env:"REDIRECT_URL"  envDefault:"http://localhost:8080/auth/callback"`
	Scope        string `env:"SCOPE"         envDefault:"openid profile email"`
}

// Enabled reports whether a federated provider is configured.
func (c FederatedConfig) Enabled() bool {
	return c.IssuerURL != ""
}

// Scopes returns the scope string split into fields.
func (c FederatedConfig) Scopes() []string {
	return strings.Fields(c.Scope)
}
