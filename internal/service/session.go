package service

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/sync/singleflight"

	domainauth "github.com/propaddadjs/portal-gateway/internal/domain/auth"
	"github.com/propaddadjs/portal-gateway/internal/ports"
	"github.com/propaddadjs/portal-gateway/internal/tokens"
)

// SessionServiceOptions groups dependencies for SessionService.
type SessionServiceOptions struct {
	API    ports.AuthAPI
	Vault  *tokens.Vault
	Logger *slog.Logger
}

// SessionService is the sole mutator of per-browser-session state. All
// mutations for one session are serialized under that session's lock, so
// overlapping operations (a logout racing a rehydration, say) are ordered
// rather than last-write-wins. Rehydration additionally runs at most once per
// session; concurrent requests share the in-flight attempt.
//
// Session records live only while a session is authenticated: logout and a
// rehydration that settles anonymous both drop the record, so the map is
// bounded by the number of live sessions.
type SessionService struct {
	api    ports.AuthAPI
	vault  *tokens.Vault
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*sessionState
	flight   singleflight.Group
}

// sessionState is the gateway-side session record for one browser.
type sessionState struct {
	mu         sync.Mutex
	user       *domainauth.Identity
	rehydrated bool
	// backing records where this session's tokens live, per the last
	// remember-me decision. Rehydrated sessions default to durable.
	backing tokens.Backing
}

// Snapshot is an immutable view of one session, consumed by route guards.
// Guards must not make redirect decisions until Rehydrated is true.
type Snapshot struct {
	User       *domainauth.Identity
	Rehydrated bool
}

// NewSessionService constructs a new SessionService.
func NewSessionService(opts SessionServiceOptions) *SessionService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionService{
		api:      opts.API,
		vault:    opts.Vault,
		logger:   logger,
		sessions: make(map[string]*sessionState),
	}
}

func (s *SessionService) state(sid string) *sessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[sid]
	if !ok {
		st = &sessionState{backing: tokens.BackingDurable}
		s.sessions[sid] = st
	}
	return st
}

// peek returns the session's state without creating a record for unknown ids.
func (s *SessionService) peek(sid string) *sessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[sid]
}

// evict drops a session's record. Clearing the vault is the caller's job.
func (s *SessionService) evict(sid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sid)
}

// Snapshot returns the current view of a session without triggering any I/O.
func (s *SessionService) Snapshot(sid string) Snapshot {
	st := s.peek(sid)
	if st == nil {
		return Snapshot{}
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.snapshot()
}

// snapshot copies the state under st.mu.
func (st *sessionState) snapshot() Snapshot {
	snap := Snapshot{Rehydrated: st.rehydrated}
	if st.user != nil {
		u := *st.user
		snap.User = &u
	}
	return snap
}

// EnsureRehydrated runs the rehydration state machine for the session if it
// has not run yet and returns the resulting snapshot. refreshCookie is the
// browser's httpOnly refresh cookie, forwarded for the fallback refresh call;
// nil when the browser sent none.
func (s *SessionService) EnsureRehydrated(
	ctx context.Context,
	sid string,
	refreshCookie *http.Cookie,
) (Snapshot, error) {
	st := s.state(sid)

	st.mu.Lock()
	if st.rehydrated {
		snap := st.snapshot()
		st.mu.Unlock()
		return snap, nil
	}
	st.mu.Unlock()

	res, err, _ := s.flight.Do(sid, func() (any, error) {
		return s.rehydrate(ctx, sid, st, refreshCookie), nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	snap, ok := res.(Snapshot)
	if !ok {
		return Snapshot{}, nil
	}
	return snap, nil
}

// rehydrate reconstructs the session from persisted tokens and cookies.
// Every branch terminates with rehydrated set; the session ends either with
// an adopted identity or logged out with tokens cleared.
func (s *SessionService) rehydrate(
	ctx context.Context,
	sid string,
	st *sessionState,
	refreshCookie *http.Cookie,
) Snapshot {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.rehydrated {
		return st.snapshot()
	}
	st.rehydrated = true

	// Step 2: ask the identity endpoint who the held token belongs to.
	if env, err := s.api.Me(ctx, sid); err == nil && env.User != nil {
		s.persistPair(ctx, sid, st, env.Tokens)
		st.user = env.User
		return st.snapshot()
	}

	// Step 3: fall back to the cookie-authenticated refresh.
	env, err := s.api.RefreshSession(ctx, refreshCookie)
	if err != nil || env.Tokens.Access == "" {
		s.teardown(ctx, sid, st)
		// Settled anonymous: drop the record so the map only ever holds
		// live sessions. An arbitrary cookie value must not pin memory.
		s.evict(sid)
		return st.snapshot()
	}
	s.persistPair(ctx, sid, st, env.Tokens)

	switch {
	case env.User != nil:
		st.user = env.User
	default:
		// Refresh succeeded without an embedded identity: retry the
		// identity endpoint once, then settle for the token's claims.
		if menv, merr := s.api.Me(ctx, sid); merr == nil && menv.User != nil {
			st.user = menv.User
		} else {
			id := identityFromToken(env.Tokens.Access)
			st.user = &id
		}
	}
	return st.snapshot()
}

// Login authenticates the session against the upstream login endpoint.
// Rejections propagate to the caller unhandled; the caller renders them.
// rememberMe picks the durable backing; the pair is migrated out of the
// other backing so exactly one backing holds it afterward.
func (s *SessionService) Login(
	ctx context.Context,
	sid string,
	creds ports.Credentials,
	rememberMe bool,
) (*domainauth.Identity, error) {
	env, err := s.api.Login(ctx, creds)
	if err != nil {
		return nil, err
	}
	return s.adopt(ctx, sid, env, rememberMe), nil
}

// Register creates an account and starts a session; structurally identical
// to Login.
func (s *SessionService) Register(
	ctx context.Context,
	sid string,
	reg ports.Registration,
	rememberMe bool,
) (*domainauth.Identity, error) {
	env, err := s.api.Register(ctx, reg)
	if err != nil {
		return nil, err
	}
	return s.adopt(ctx, sid, env, rememberMe), nil
}

// adopt installs a successful auth envelope as the session's identity.
func (s *SessionService) adopt(
	ctx context.Context,
	sid string,
	env *ports.AuthEnvelope,
	rememberMe bool,
) *domainauth.Identity {
	st := s.state(sid)
	st.mu.Lock()
	defer st.mu.Unlock()

	backing := tokens.BackingSession
	if rememberMe {
		backing = tokens.BackingDurable
	}
	st.backing = backing
	if err := s.vault.Save(ctx, sid, env.Tokens, backing); err != nil {
		s.logger.WarnContext(ctx, "persist token pair", "error", err)
	}
	// Migrate: the remember-me decision moves the pair, never duplicates it.
	if err := s.vault.Drop(ctx, sid, backing.Other()); err != nil {
		s.logger.WarnContext(ctx, "drop stale token pair", "error", err)
	}

	user := env.User
	if user == nil {
		// No embedded identity: decode the token's claims and merge the
		// loose fields present on the response body. The decoded role only
		// applies when the response did not specify one.
		id := identityFromToken(env.Tokens.Access)
		if env.Role != "" {
			id.Role = env.Role
		}
		if env.Email != "" {
			id.Email = env.Email
		}
		if env.UserID > 0 {
			id.UserID = env.UserID
		}
		if env.Kyc != domainauth.KycUnknown {
			id.Kyc = env.Kyc
		}
		user = &id
	}

	st.user = user
	st.rehydrated = true

	u := *user
	return &u
}

// Logout tears the session down. The upstream call is best-effort: an
// unreachable or rejecting server must never leave the browser stuck logged
// in, so local teardown always runs.
func (s *SessionService) Logout(ctx context.Context, sid string) {
	st := s.state(sid)
	st.mu.Lock()

	// Read the token before clearing anything so it can be sent explicitly.
	token, err := s.vault.Access(ctx, sid)
	if err != nil {
		s.logger.WarnContext(ctx, "read access token for logout", "error", err)
	}

	if err := s.api.Logout(ctx, token); err != nil {
		s.logger.WarnContext(ctx, "upstream logout failed", "error", err)
	}

	s.teardown(ctx, sid, st)
	st.rehydrated = true
	st.mu.Unlock()

	// The handler clears the session cookie; this id never comes back, so
	// the record goes with it.
	s.evict(sid)
}

// teardown clears tokens and identity; callers hold st.mu.
func (s *SessionService) teardown(ctx context.Context, sid string, st *sessionState) {
	if err := s.vault.Clear(ctx, sid); err != nil {
		s.logger.WarnContext(ctx, "clear token vault", "error", err)
	}
	st.user = nil
}

// RefreshKyc re-reads the verification status and merges it into the current
// identity, preserving every other field. It is a soft refresh: failures
// return KycUnknown and leave the session untouched.
func (s *SessionService) RefreshKyc(ctx context.Context, sid string) domainauth.KycStatus {
	st := s.peek(sid)
	if st == nil {
		return domainauth.KycUnknown
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.user == nil {
		return domainauth.KycUnknown
	}

	status, err := s.api.KycStatus(ctx, sid)
	if err != nil {
		s.logger.DebugContext(ctx, "kyc refresh failed", "error", err)
		return domainauth.KycUnknown
	}
	if status == domainauth.KycUnknown {
		// A success carrying an unrecognized status must not clobber a
		// known one.
		return st.user.Kyc
	}

	st.user.Kyc = status
	return status
}

// HasRole reports whether the session has a user whose role is among roles.
func (s *SessionService) HasRole(sid string, roles ...domainauth.Role) bool {
	snap := s.Snapshot(sid)
	return snap.User != nil && snap.User.HasRole(roles...)
}

// CanEnterAgentPanel reports whether the session may perform agent-only
// actions: an AGENT user with APPROVED KYC.
func (s *SessionService) CanEnterAgentPanel(sid string) bool {
	snap := s.Snapshot(sid)
	return snap.User != nil && snap.User.AgentPanelEligible()
}

// persistPair stores a freshly issued pair, if any, into the session's
// current backing. Callers hold st.mu.
func (s *SessionService) persistPair(
	ctx context.Context,
	sid string,
	st *sessionState,
	pair ports.TokenPair,
) {
	if pair.Access == "" && pair.Refresh == "" {
		return
	}
	if err := s.vault.Save(ctx, sid, pair, st.backing); err != nil {
		s.logger.WarnContext(ctx, "persist token pair", "error", err)
	}
}
