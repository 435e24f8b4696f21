// Package ports defines interfaces (hexagonal ports) for session and token
// behavior. Implementations live in internal/adapters and internal/upstream;
// orchestration in internal/service.
package ports

import (
	"context"
	"net/http"
	"time"

	domainauth "github.com/propaddadjs/portal-gateway/internal/domain/auth"
)

// TokenBackend is one persistence backing for token material. The gateway
// layers two of these (durable and session-scoped) behind tokens.Vault.
type TokenBackend interface {
	// Get returns the stored value for key, or "" when absent.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key. A zero ttl means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Del removes the given keys; missing keys are not an error.
	Del(ctx context.Context, keys ...string) error
}

// TokenPair is the access/refresh token pair owned by the token vault.
type TokenPair struct {
	Access  string
	Refresh string
}

// Credentials carries a login request.
type Credentials struct {
	Email    string
	Password string
}

// Registration carries the profile fields posted to the register endpoint.
type Registration struct {
	FirstName   string
	LastName    string
	Email       string
	PhoneNumber string
	State       string
	City        string
	Password    string
}

// AuthEnvelope is the normalized shape of an upstream auth response.
// Responses vary in which fields they carry; parsing is explicit and every
// absent field is represented by its zero value.
type AuthEnvelope struct {
	// Tokens holds whichever of access/refresh the response carried,
	// normalized across the accessToken/token key spellings.
	Tokens TokenPair

	// User is the embedded identity payload when the response carried a
	// usable one, nil otherwise.
	User *domainauth.Identity

	// Identity fields present directly on the response body, outside any
	// embedded user object. Role is "" when the body carried none.
	UserID int64
	Email  string
	Role   domainauth.Role
	Kyc    domainauth.KycStatus
}

// AuthAPI is the upstream marketplace authentication surface consumed by the
// session service. All failures are one opaque class from the caller's point
// of view; callers choose between fallback and propagation, never retry.
type AuthAPI interface {
	// Me fetches the current identity using the session's bearer token.
	Me(ctx context.Context, sid string) (*AuthEnvelope, error)

	// RefreshSession exchanges the forwarded httpOnly refresh cookie for a
	// new token pair. It must not depend on the bearer interceptor.
	// refreshCookie may be nil when the browser sent none.
	RefreshSession(ctx context.Context, refreshCookie *http.Cookie) (*AuthEnvelope, error)

	// Login posts credentials to the login endpoint.
	Login(ctx context.Context, creds Credentials) (*AuthEnvelope, error)

	// Register posts the registration payload.
	Register(ctx context.Context, reg Registration) (*AuthEnvelope, error)

	// Logout posts to the logout endpoint with the given token set as an
	// explicit bearer header, independent of the interceptor.
	Logout(ctx context.Context, accessToken string) error

	// KycStatus fetches the current verification status for the session.
	KycStatus(ctx context.Context, sid string) (domainauth.KycStatus, error)
}
