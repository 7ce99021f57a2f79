package config

import (
	"fmt"
	"strings"
	"time"
)

// BackendMode represents the identity backend implementation to use.
type BackendMode string

const (
	// BackendModeHTTP talks to the real identity backend over HTTP.
	BackendModeHTTP BackendMode = "http"
	// BackendModeDev uses the in-process dev backend (for development only).
	BackendModeDev BackendMode = "dev"
)

// UnmarshalText implements encoding.TextUnmarshaler for BackendMode.
func (m *BackendMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(string(text))
	switch v {
	case "http", "dev":
		*m = BackendMode(v)
		return nil
	default:
		return fmt.Errorf("invalid BackendMode: %q (valid options: http, dev)", v)
	}
}

// HTTPBackendConfig configures the HTTP identity backend client.
type HTTPBackendConfig struct {
	BaseURL   string        `env:"BASE_URL"   envDefault:"http://localhost:9000"`
	Timeout   time.Duration `env:"TIMEOUT"    envDefault:"10s"`
	UserAgent string        `env:"USER_AGENT" envDefault:"sessioncore/1.0"`
}

// Sanitize normalises the backend client settings.
func (c *HTTPBackendConfig) Sanitize() {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
}

// DevBackendConfig controls the in-process dev backend identity.
// Used when BACKEND_MODE=dev for development and testing.
type DevBackendConfig struct {
	Email    string `env:"EMAIL"    envDefault:"dev@example.com"`
	Password string `env:"PASSWORD" envDefault:"devpass"`
	UserID   string `env:"USER_ID"  envDefault:"dev-user"`

	// TOTPSecret, when set, enforces a second factor on login.
	TOTPSecret string `env:"TOTP_SECRET"`
}

// BackendConfig groups identity backend configuration.
type BackendConfig struct {
	// Mode determines which backend implementation to use.
	Mode BackendMode `env:"BACKEND_MODE" envDefault:"http"`

	// HTTP configuration (used when Mode=http).
	HTTP HTTPBackendConfig `envPrefix:"BACKEND_"`

	// Dev configuration (used when Mode=dev).
	Dev DevBackendConfig `envPrefix:"DEV_BACKEND_"`
}

// Sanitize applies guardrails to backend configuration.
func (c *BackendConfig) Sanitize() {
	c.HTTP.Sanitize()
}
