package config

import (
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - backend.go: Identity backend configuration
//   - session.go: Session lifecycle tuning
//   - store.go: Credential store configuration
//   - federated.go: External OIDC provider configuration
//   - observability.go: Metrics configuration
type AppConfig struct {
	// IsDev controls development mode behavior (dev backend, verbose logs).
	// Set DEV=true for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// Backend selects and configures the identity backend.
	Backend BackendConfig

	// Session tunes refresh scheduling, hydration, and retry behavior.
	Session SessionConfig

	// Store selects and configures credential persistence.
	Store StoreConfig

	// Federated configures the optional external OIDC provider.
	Federated FederatedConfig `envPrefix:"FEDERATED_"`

	// Observability configuration.
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.Backend.Sanitize()
	c.Session.Sanitize()
	c.Store.Sanitize()
	c.Observability.Sanitize()
	c.detectDevMode()
}

// detectDevMode honours APP_ENV=development as a fallback for DEV=true.
func (c *AppConfig) detectDevMode() {
	if c.IsDev {
		return
	}
	if strings.EqualFold(os.Getenv("APP_ENV"), "development") {
		c.IsDev = true
	}
}
