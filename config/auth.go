package config

import "time"

// AuthConfig groups session cookie configuration.
type AuthConfig struct {
	// SessionCookieName is the gateway's own session id cookie.
	SessionCookieName string `env:"SESSION_COOKIE_NAME" envDefault:"portal_session"`

	// RefreshCookieName is the upstream's HttpOnly refresh cookie, forwarded
	// verbatim during session rehydration.
	RefreshCookieName string `env:"REFRESH_COOKIE_NAME" envDefault:"refresh_token"`

	// RememberTTL bounds how long a remembered session's tokens survive in
	// the durable store, and sets the session cookie's max age.
	RememberTTL time.Duration `env:"REMEMBER_TTL" envDefault:"720h"`
}

// Sanitize applies guardrails to auth configuration values.
func (a *AuthConfig) Sanitize() {
	if a.SessionCookieName == "" {
		a.SessionCookieName = "portal_session"
	}
	if a.RefreshCookieName == "" {
		a.RefreshCookieName = "refresh_token"
	}
	if a.RememberTTL <= 0 {
		a.RememberTTL = 720 * time.Hour
	}
}
