package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"
	"time"

	domainauth "github.com/propaddadjs/portal-gateway/internal/domain/auth"
	"github.com/propaddadjs/portal-gateway/internal/service"
	"github.com/propaddadjs/portal-gateway/internal/upstream"
)

// Portal routes the guard redirects to.
const (
	loginRoute     = "/login"
	homeRoute      = "/"
	kycStatusRoute = "/kyc-status"
)

// Logging returns a middleware that logs HTTP requests and responses.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			const defaultHTTPStatus = 200
			ww := &respWriter{ResponseWriter: w, status: defaultHTTPStatus}
			next.ServeHTTP(ww, r)
			logger.Info("http",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

type respWriter struct {
	http.ResponseWriter
	status int
}

func (w *respWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Recover returns a middleware that recovers from panics and logs them.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic",
						slog.Any("error", err),
						slog.String("path", r.URL.Path),
						slog.String("method", r.Method),
						slog.String("stack", string(debug.Stack())))
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// SessionAuthority is the slice of the session service the guard consumes.
type SessionAuthority interface {
	EnsureRehydrated(ctx context.Context, sid string, refreshCookie *http.Cookie) (service.Snapshot, error)
	RefreshKyc(ctx context.Context, sid string) domainauth.KycStatus
}

// GuardConfig declares what a guarded subtree requires.
type GuardConfig struct {
	// Allow is the set of roles admitted to the subtree.
	Allow []domainauth.Role
	// RequireApprovedKyc additionally requires APPROVED KYC for AGENT users.
	// Viewing-only agent areas leave this unset; posting/editing sets it.
	RequireApprovedKyc bool
}

// GuardOptions groups the guard middleware's dependencies.
type GuardOptions struct {
	Sessions SessionAuthority
	// SessionCookie is the gateway session cookie name.
	SessionCookie string
	// RefreshCookie is the upstream refresh cookie name forwarded during
	// rehydration.
	RefreshCookie string
	Logger        *slog.Logger
}

// guardDecision is the outcome of the pure guard decision function.
type guardDecision int

const (
	// decisionPending: rehydration has not settled; no redirect decision may
	// be made yet.
	decisionPending guardDecision = iota
	decisionAllow
	decisionLogin
	decisionHome
	decisionKyc
)

// decide is the guard's decision procedure, evaluated in fixed order over an
// already-loaded snapshot. It is a pure function: the one side effect the
// guard performs (the best-effort KYC refresh) lives in the middleware.
func decide(snap service.Snapshot, cfg GuardConfig) guardDecision {
	if !snap.Rehydrated {
		return decisionPending
	}
	if snap.User == nil {
		return decisionLogin
	}
	if !snap.User.HasRole(cfg.Allow...) {
		return decisionHome
	}
	if cfg.RequireApprovedKyc &&
		snap.User.Role == domainauth.RoleAgent &&
		snap.User.Kyc != domainauth.KycApproved {
		return decisionKyc
	}
	return decisionAllow
}

// RequireRoles returns a middleware gating a route subtree by role and,
// optionally, approved KYC. Unauthenticated requests redirect to the login
// route carrying the attempted location; disallowed roles are silently sent
// home; unapproved agents are sent to the KYC status page.
func RequireRoles(opts GuardOptions, cfg GuardConfig) func(http.Handler) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snap, sid := guardSnapshot(r, opts, logger)

			switch decide(snap, cfg) {
			case decisionPending:
				// Rehydration is settling elsewhere; commit to nothing.
				w.WriteHeader(http.StatusNoContent)

			case decisionLogin:
				redirectToLogin(w, r)

			case decisionHome:
				http.Redirect(w, r, homeRoute, http.StatusSeeOther)

			case decisionKyc:
				if snap.User.Kyc == domainauth.KycUnknown {
					// Best-effort status refresh so the next visit sees the
					// current state; deliberately not awaited.
					go opts.Sessions.RefreshKyc(context.WithoutCancel(r.Context()), sid)
				}
				http.Redirect(w, r, kycStatusRoute, http.StatusSeeOther)

			case decisionAllow:
				ctx := SetIdentityInContext(r.Context(), snap.User)
				ctx = upstream.WithSession(ctx, sid)
				next.ServeHTTP(w, r.WithContext(ctx))
			}
		})
	}
}

// guardSnapshot resolves the request's session snapshot, rehydrating it from
// persisted tokens and the forwarded refresh cookie on first contact.
func guardSnapshot(r *http.Request, opts GuardOptions, logger *slog.Logger) (service.Snapshot, string) {
	cookie, err := r.Cookie(opts.SessionCookie)
	if err != nil {
		// No gateway session at all: settled and anonymous.
		return service.Snapshot{Rehydrated: true}, ""
	}
	sid := cookie.Value

	var refreshCookie *http.Cookie
	if rc, rcErr := r.Cookie(opts.RefreshCookie); rcErr == nil {
		refreshCookie = rc
	}

	snap, err := opts.Sessions.EnsureRehydrated(r.Context(), sid, refreshCookie)
	if err != nil {
		logger.WarnContext(r.Context(), "session rehydration failed", "error", err)
		return service.Snapshot{Rehydrated: true}, sid
	}
	return snap, sid
}

// redirectToLogin redirects to the login page with the attempted location as
// redirect_uri so the login flow can return the user afterward.
func redirectToLogin(w http.ResponseWriter, r *http.Request) {
	redirectPath := safeRedirectPath(r.URL.RequestURI())
	loginURL := loginRoute + "?redirect_uri=" + url.QueryEscape(redirectPath)
	http.Redirect(w, r, loginURL, http.StatusSeeOther)
}

// safeRedirectPath ensures the provided redirect is a same-origin relative
// path starting with "/" and not an absolute URL. Returns "/" when invalid.
func safeRedirectPath(candidate string) string {
	if candidate == "" {
		return homeRoute
	}
	u, err := url.Parse(candidate)
	if err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/") {
		return homeRoute
	}
	return candidate
}
