package tokens

// Package tokens provides the Vault, the single read/write/clear point for a
// browser session's access/refresh token pair. The Vault layers two
// interchangeable backings: a durable one (survives gateway restarts, the
// analog of a browser's localStorage) and a session-scoped one (in-process
// only, the analog of sessionStorage).

import (
	"context"
	"errors"
	"time"

	"github.com/propaddadjs/portal-gateway/internal/ports"
)

// Backing selects which persistence backing a write targets.
type Backing int

const (
	// BackingDurable is the restart-surviving backing, chosen when the user
	// asked to be remembered.
	BackingDurable Backing = iota
	// BackingSession is the in-process backing, lost on gateway restart.
	BackingSession
)

// Other returns the opposite backing, used when migrating a pair.
func (b Backing) Other() Backing {
	if b == BackingDurable {
		return BackingSession
	}
	return BackingDurable
}

const (
	accessSuffix  = ":access"
	refreshSuffix = ":refresh"
)

// Vault owns the token pair for every browser session. Reads prefer the
// durable backing and fall back to the session-scoped one; the read path
// tolerates a key present in either or both.
type Vault struct {
	durable    ports.TokenBackend
	session    ports.TokenBackend
	durableTTL time.Duration
}

// NewVault creates a Vault over the two backings. durableTTL bounds how long
// a remembered pair may outlive its last write; the session backing stores
// without expiry and is bounded by process lifetime instead.
func NewVault(durable, session ports.TokenBackend, durableTTL time.Duration) *Vault {
	return &Vault{
		durable:    durable,
		session:    session,
		durableTTL: durableTTL,
	}
}

func accessKey(sid string) string  { return "tokens:" + sid + accessSuffix }
func refreshKey(sid string) string { return "tokens:" + sid + refreshSuffix }

// Access returns the session's access token, or "" when absent.
func (v *Vault) Access(ctx context.Context, sid string) (string, error) {
	return v.read(ctx, accessKey(sid))
}

// Refresh returns the session's refresh token, or "" when absent.
func (v *Vault) Refresh(ctx context.Context, sid string) (string, error) {
	return v.read(ctx, refreshKey(sid))
}

func (v *Vault) read(ctx context.Context, key string) (string, error) {
	val, err := v.durable.Get(ctx, key)
	if err == nil && val != "" {
		return val, nil
	}
	sval, serr := v.session.Get(ctx, key)
	if sval != "" {
		return sval, nil
	}
	// Nothing found; surface whichever backing failed, if any.
	if err != nil {
		return "", err
	}
	return "", serr
}

// Save writes whichever of the pair's values are non-empty into the chosen
// backing. It never touches the other backing; callers migrate explicitly
// (see Drop) when the remember-me decision moves a pair between backings.
func (v *Vault) Save(ctx context.Context, sid string, pair ports.TokenPair, b Backing) error {
	backend, ttl := v.backend(b)
	var errs []error
	if pair.Access != "" {
		if err := backend.Set(ctx, accessKey(sid), pair.Access, ttl); err != nil {
			errs = append(errs, err)
		}
	}
	if pair.Refresh != "" {
		if err := backend.Set(ctx, refreshKey(sid), pair.Refresh, ttl); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Drop removes both keys from a single backing. Paired with Save it performs
// the migration between backings on a remember-me change.
func (v *Vault) Drop(ctx context.Context, sid string, b Backing) error {
	backend, _ := v.backend(b)
	return backend.Del(ctx, accessKey(sid), refreshKey(sid))
}

// Clear removes both keys from both backings unconditionally. Callers treat
// teardown as done regardless of the returned error.
func (v *Vault) Clear(ctx context.Context, sid string) error {
	return errors.Join(
		v.durable.Del(ctx, accessKey(sid), refreshKey(sid)),
		v.session.Del(ctx, accessKey(sid), refreshKey(sid)),
	)
}

func (v *Vault) backend(b Backing) (ports.TokenBackend, time.Duration) {
	if b == BackingDurable {
		return v.durable, v.durableTTL
	}
	return v.session, 0
}
