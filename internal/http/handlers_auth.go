package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	domainauth "github.com/propaddadjs/portal-gateway/internal/domain/auth"
	apperrors "github.com/propaddadjs/portal-gateway/internal/errors"
	"github.com/propaddadjs/portal-gateway/internal/ports"
	"github.com/propaddadjs/portal-gateway/internal/service"
)

// SessionControl is the slice of the session service the auth handlers use.
type SessionControl interface {
	Login(ctx context.Context, sid string, creds ports.Credentials, rememberMe bool) (*domainauth.Identity, error)
	Register(ctx context.Context, sid string, reg ports.Registration, rememberMe bool) (*domainauth.Identity, error)
	Logout(ctx context.Context, sid string)
	RefreshKyc(ctx context.Context, sid string) domainauth.KycStatus
	EnsureRehydrated(ctx context.Context, sid string, refreshCookie *http.Cookie) (service.Snapshot, error)
}

// AuthHandlers provides HTTP handlers for portal session operations.
type AuthHandlers struct {
	Svc           SessionControl
	CookieDomain  string
	SessionCookie string
	RefreshCookie string
	RememberTTL   time.Duration
	Logger        *slog.Logger
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

// Login handles the credential login endpoint.
// POST /portal/login?redirect_uri=<optional_redirect>.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "missing_credentials",
			Err:     apperrors.Validation("email and password are required"),
		})
		return
	}

	// Issue a fresh session id on every login; never reuse a pre-login id.
	sid := uuid.NewString()
	user, err := h.Svc.Login(r.Context(), sid, ports.Credentials{
		Email:    req.Email,
		Password: req.Password,
	}, req.RememberMe)
	if err != nil {
		h.writeAuthFailure(w, err)
		return
	}

	h.setSessionCookie(w, r, sid, req.RememberMe)
	WriteJSON(w, http.StatusOK, authResponse(user, r))
}

type registerRequest struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber"`
	State       string `json:"state"`
	City        string `json:"city"`
	Password    string `json:"password"`
	RememberMe  bool   `json:"rememberMe"`
}

// Register handles account creation.
// POST /portal/register?redirect_uri=<optional_redirect>.
func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "missing_credentials",
			Err:     apperrors.Validation("email and password are required"),
		})
		return
	}

	sid := uuid.NewString()
	user, err := h.Svc.Register(r.Context(), sid, ports.Registration{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		State:       req.State,
		City:        req.City,
		Password:    req.Password,
	}, req.RememberMe)
	if err != nil {
		h.writeAuthFailure(w, err)
		return
	}

	h.setSessionCookie(w, r, sid, req.RememberMe)
	WriteJSON(w, http.StatusOK, authResponse(user, r))
}

// Logout handles the logout endpoint. Teardown always succeeds locally even
// when the upstream rejects the call.
// POST /portal/logout.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(h.SessionCookie); err == nil {
		h.Svc.Logout(r.Context(), cookie.Value)
	}
	h.clearSessionCookie(w, r)

	WriteJSON(w, http.StatusOK, map[string]string{
		"status":      "success",
		"redirect_to": loginRoute,
	})
}

// Session returns the current authentication status, rehydrating the session
// if this is the first contact after a gateway restart or browser reopen.
// GET /portal/session.
func (h *AuthHandlers) Session(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.rehydratedSnapshot(w, r)
	if !ok {
		return
	}
	if snap.User == nil {
		WriteJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"user":          snap.User,
	})
}

// KycStatus reports the session's verification state. The route is public:
// agents blocked by the KYC gate land here to see why.
// GET /portal/kyc-status.
func (h *AuthHandlers) KycStatus(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.rehydratedSnapshot(w, r)
	if !ok {
		return
	}
	if snap.User == nil {
		WriteJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}

	status := snap.User.Kyc
	if status == domainauth.KycUnknown {
		if cookie, err := r.Cookie(h.SessionCookie); err == nil {
			status = h.Svc.RefreshKyc(r.Context(), cookie.Value)
		}
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"role":          snap.User.Role,
		"kycVerified":   status,
	})
}

// rehydratedSnapshot resolves the request's settled session snapshot. The
// second return is false when a response has already been written.
func (h *AuthHandlers) rehydratedSnapshot(w http.ResponseWriter, r *http.Request) (service.Snapshot, bool) {
	cookie, err := r.Cookie(h.SessionCookie)
	if err != nil {
		return service.Snapshot{Rehydrated: true}, true
	}

	var refreshCookie *http.Cookie
	if rc, rcErr := r.Cookie(h.RefreshCookie); rcErr == nil {
		refreshCookie = rc
	}

	snap, err := h.Svc.EnsureRehydrated(r.Context(), cookie.Value, refreshCookie)
	if err != nil {
		h.logger().WarnContext(r.Context(), "session rehydration failed", "error", err)
		WriteError(w, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: "session_unavailable",
			Err:     err,
		})
		return service.Snapshot{}, false
	}
	return snap, true
}

// writeAuthFailure maps a login/register rejection onto a response. The
// session service does not retry or log these; the caller tells the user.
func (h *AuthHandlers) writeAuthFailure(w http.ResponseWriter, err error) {
	if apperrors.IsUnauthorized(err) {
		WriteError(w, ErrorParams{
			Code:    http.StatusUnauthorized,
			ErrCode: "invalid_credentials",
			Err:     err,
		})
		return
	}
	WriteError(w, ErrorParams{
		Code:    http.StatusBadGateway,
		ErrCode: "upstream_unavailable",
		Err:     err,
	})
}

// authResponse is the success body for login/register, carrying the adopted
// identity and the validated post-login destination.
func authResponse(user *domainauth.Identity, r *http.Request) map[string]any {
	return map[string]any{
		"authenticated": true,
		"user":          user,
		"redirect_to":   safeRedirectPath(r.URL.Query().Get("redirect_uri")),
	}
}

// setSessionCookie writes the gateway session cookie. A remembered session
// gets a persistent cookie spanning the durable token TTL; otherwise the
// cookie lives only for the browser session, matching the session-scoped
// token backing.
func (h *AuthHandlers) setSessionCookie(w http.ResponseWriter, r *http.Request, sid string, remember bool) {
	cookie := &http.Cookie{
		Name:     h.SessionCookie,
		Value:    sid,
		Path:     "/",
		Domain:   h.CookieDomain,
		HttpOnly: true,
		Secure:   isSecureRequest(r),
		SameSite: http.SameSiteLaxMode,
	}
	if remember && h.RememberTTL > 0 {
		cookie.MaxAge = int(h.RememberTTL.Seconds())
	}
	http.SetCookie(w, cookie)
}

// clearSessionCookie clears the session cookie by setting it to expire
// immediately, mirroring the attributes used when setting it.
func (h *AuthHandlers) clearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.SessionCookie,
		Value:    "",
		Path:     "/",
		Domain:   h.CookieDomain,
		HttpOnly: true,
		Secure:   isSecureRequest(r),
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
		SameSite: http.SameSiteLaxMode,
	})
}

func isSecureRequest(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
