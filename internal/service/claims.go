package service

import (
	"strconv"

	"github.com/golang-jwt/jwt/v5"

	domainauth "github.com/propaddadjs/portal-gateway/internal/domain/auth"
)

// tokenClaims is the subset of access-token claims the fallback identity is
// built from.
type tokenClaims struct {
	Role  string `json:"role"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// identityFromToken reconstructs a minimal identity from the access token's
// claims. The gateway does not hold the upstream's signing key, so the parse
// is unverified; the token was already accepted by the upstream or it would
// not be held. An opaque or malformed token degrades to a zero-id BUYER with
// unknown KYC rather than failing the rehydration outright.
func identityFromToken(token string) domainauth.Identity {
	degraded := domainauth.Identity{Role: domainauth.RoleBuyer}
	if token == "" {
		return degraded
	}

	var claims tokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return degraded
	}

	id := domainauth.Identity{
		Role:  domainauth.ParseRole(claims.Role),
		Email: claims.Email,
	}
	if uid, err := strconv.ParseInt(claims.Subject, 10, 64); err == nil {
		id.UserID = uid
	}
	return id
}
