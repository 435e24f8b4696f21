package httpx

import (
	"log/slog"
	"net/http"
	"time"

	domainauth "github.com/propaddadjs/portal-gateway/internal/domain/auth"
	"github.com/propaddadjs/portal-gateway/internal/service"
	"github.com/propaddadjs/portal-gateway/internal/upstream"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Sessions *service.SessionService
	Upstream *upstream.Client

	CookieDomain  string
	SessionCookie string
	RefreshCookie string
	RememberTTL   time.Duration

	Logger *slog.Logger
}

// NewRouter creates and configures the portal gateway router: the portal
// session endpoints, the health check, and the guarded proxy subtrees in
// front of the marketplace API.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()

	authHandlers := &AuthHandlers{
		Svc:           services.Sessions,
		CookieDomain:  services.CookieDomain,
		SessionCookie: services.SessionCookie,
		RefreshCookie: services.RefreshCookie,
		RememberTTL:   services.RememberTTL,
		Logger:        logger,
	}
	registerPortalRoutes(mux, authHandlers)

	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))

	guardOpts := GuardOptions{
		Sessions:      services.Sessions,
		SessionCookie: services.SessionCookie,
		RefreshCookie: services.RefreshCookie,
		Logger:        logger,
	}
	proxy := NewUpstreamProxy(services.Upstream, logger)
	registerGuardedRoutes(mux, guardOpts, proxy)

	return Recover(logger)(Logging(logger)(mux))
}

func registerPortalRoutes(mux *http.ServeMux, h *AuthHandlers) {
	mux.HandleFunc("POST /portal/login", h.Login)
	mux.HandleFunc("POST /portal/register", h.Register)
	mux.HandleFunc("POST /portal/logout", h.Logout)
	mux.HandleFunc("GET /portal/session", h.Session)
	mux.HandleFunc("GET /portal/kyc-status", h.KycStatus)
}

// registerGuardedRoutes wires the proxied marketplace subtrees behind role
// guards. The agent subtree additionally requires approved KYC; the account
// subtree is open to every authenticated role.
func registerGuardedRoutes(mux *http.ServeMux, opts GuardOptions, proxy http.Handler) {
	adminOnly := RequireRoles(opts, GuardConfig{
		Allow: []domainauth.Role{domainauth.RoleAdmin},
	})
	agentVerified := RequireRoles(opts, GuardConfig{
		Allow:              []domainauth.Role{domainauth.RoleAgent},
		RequireApprovedKyc: true,
	})
	anyAuthenticated := RequireRoles(opts, GuardConfig{
		Allow: []domainauth.Role{
			domainauth.RoleBuyer,
			domainauth.RoleAgent,
			domainauth.RoleAdmin,
		},
	})

	mux.Handle("/api/admin/", adminOnly(proxy))
	mux.Handle("/api/agent/", agentVerified(proxy))
	mux.Handle("/api/account/", anyAuthenticated(proxy))
}
