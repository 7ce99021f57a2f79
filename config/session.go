package config

import "time"

// SessionConfig tunes the session lifecycle: refresh scheduling, startup
// hydration, transient-failure retries, and the second-factor limiter.
type SessionConfig struct {
	// RefreshInterval is how often the scheduler inspects the session.
	RefreshInterval time.Duration `env:"SESSION_REFRESH_INTERVAL" envDefault:"5m"`

	// RefreshWindow is the time-to-expiry below which a refresh is triggered.
	RefreshWindow time.Duration `env:"SESSION_REFRESH_WINDOW" envDefault:"10m"`

	// HydrationTimeout bounds how long startup may block on the store.
	HydrationTimeout time.Duration `env:"SESSION_HYDRATION_TIMEOUT" envDefault:"700ms"`

	// RetryAttempts bounds re-attempts for transient network timeouts.
	RetryAttempts int `env:"SESSION_RETRY_ATTEMPTS" envDefault:"3"`

	// RetryBaseDelay is the initial backoff between retry attempts.
	RetryBaseDelay time.Duration `env:"SESSION_RETRY_BASE_DELAY" envDefault:"200ms"`

	// TwoFactorMaxFailures is the rejected-code budget inside the window.
	TwoFactorMaxFailures int `env:"SESSION_2FA_MAX_FAILURES" envDefault:"3"`

	// TwoFactorWindow is the sliding window for the rejected-code budget.
	TwoFactorWindow time.Duration `env:"SESSION_2FA_WINDOW" envDefault:"5m"`
}

// Sanitize enforces safe lower bounds; the refresh window must exceed the
// check interval or expiry can slip between ticks.
func (c *SessionConfig) Sanitize() {
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = 5 * time.Minute
	}
	if c.RefreshWindow <= 0 {
		c.RefreshWindow = 10 * time.Minute
	}
	if c.RefreshWindow <= c.RefreshInterval {
		c.RefreshWindow = 2 * c.RefreshInterval
	}
	if c.HydrationTimeout <= 0 {
		c.HydrationTimeout = 700 * time.Millisecond
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 3
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 200 * time.Millisecond
	}
	if c.TwoFactorMaxFailures <= 0 {
		c.TwoFactorMaxFailures = 3
	}
	if c.TwoFactorWindow <= 0 {
		c.TwoFactorWindow = 5 * time.Minute
	}
}
