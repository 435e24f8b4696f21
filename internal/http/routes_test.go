package httpx

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/propaddadjs/portal-gateway/internal/adapters/memory"
	domainauth "github.com/propaddadjs/portal-gateway/internal/domain/auth"
	"github.com/propaddadjs/portal-gateway/internal/mocks"
	"github.com/propaddadjs/portal-gateway/internal/ports"
	"github.com/propaddadjs/portal-gateway/internal/service"
	"github.com/propaddadjs/portal-gateway/internal/tokens"
	"github.com/propaddadjs/portal-gateway/internal/upstream"
)

// routerFixture wires a full router over a stubbed marketplace API server, so
// tests cover the real login -> cookie -> guard -> proxy path.
type routerFixture struct {
	router   http.Handler
	api      *mocks.MockAuthAPI
	upstream *httptest.Server
}

func newRouterFixture(t *testing.T, upstreamHandler http.HandlerFunc) routerFixture {
	t.Helper()

	srv := httptest.NewServer(upstreamHandler)
	t.Cleanup(srv.Close)

	vault := tokens.NewVault(memory.NewTokenBackend(), memory.NewTokenBackend(), time.Hour)
	client, err := upstream.NewClient(upstream.Config{BaseURL: srv.URL}, vault, nil)
	require.NoError(t, err)

	ctrl := gomock.NewController(t)
	api := mocks.NewMockAuthAPI(ctrl)

	sessions := service.NewSessionService(service.SessionServiceOptions{API: api, Vault: vault})

	router := NewRouter(RouterServices{
		Sessions:      sessions,
		Upstream:      client,
		SessionCookie: "portal_session",
		RefreshCookie: "refresh_token",
		RememberTTL:   720 * time.Hour,
	})
	return routerFixture{router: router, api: api, upstream: srv}
}

func TestRouter_Healthz(t *testing.T) {
	f := newRouterFixture(t, func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRouter_GuardedSubtreeRedirectsAnonymous(t *testing.T) {
	f := newRouterFixture(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("anonymous request must never reach the upstream")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/login", loc.Path)
	assert.Equal(t, "/api/admin/users", loc.Query().Get("redirect_uri"))
}

func TestRouter_LoginThenProxiedRequestCarriesBearer(t *testing.T) {
	var gotPath, gotAuth string
	f := newRouterFixture(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[]}`))
	})

	f.api.EXPECT().Login(gomock.Any(), gomock.Any()).
		Return(&ports.AuthEnvelope{
			Tokens: ports.TokenPair{Access: "tok-1", Refresh: "ref-1"},
			User: &domainauth.Identity{
				UserID: 1,
				Email:  "buyer@example.com",
				Role:   domainauth.RoleBuyer,
			},
		}, nil)

	// Log in to obtain the session cookie.
	loginReq := httptest.NewRequest(http.MethodPost, "/portal/login",
		strings.NewReader(`{"email":"buyer@example.com","password":"pw","rememberMe":true}`))
	loginRec := httptest.NewRecorder()
	f.router.ServeHTTP(loginRec, loginReq)
	require.Equal(t, http.StatusOK, loginRec.Code)

	res := loginRec.Result()
	defer func() { _ = res.Body.Close() }()
	cookies := res.Cookies()
	require.NotEmpty(t, cookies)

	// Hit a guarded subtree with the cookie; the proxy must strip the /api
	// prefix and attach the vault's bearer token.
	apiReq := httptest.NewRequest(http.MethodGet, "/api/account/profile", nil)
	for _, c := range cookies {
		apiReq.AddCookie(c)
	}
	apiRec := httptest.NewRecorder()
	f.router.ServeHTTP(apiRec, apiReq)

	require.Equal(t, http.StatusOK, apiRec.Code)
	assert.Equal(t, "/account/profile", gotPath)
	assert.Equal(t, "Bearer tok-1", gotAuth)
}

func TestRouter_AgentSubtreeBlocksBuyer(t *testing.T) {
	f := newRouterFixture(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("denied request must never reach the upstream")
	})

	f.api.EXPECT().Login(gomock.Any(), gomock.Any()).
		Return(&ports.AuthEnvelope{
			Tokens: ports.TokenPair{Access: "tok-1"},
			User:   &domainauth.Identity{UserID: 2, Email: "b@example.com", Role: domainauth.RoleBuyer},
		}, nil)

	loginReq := httptest.NewRequest(http.MethodPost, "/portal/login",
		strings.NewReader(`{"email":"b@example.com","password":"pw"}`))
	loginRec := httptest.NewRecorder()
	f.router.ServeHTTP(loginRec, loginReq)
	require.Equal(t, http.StatusOK, loginRec.Code)

	res := loginRec.Result()
	defer func() { _ = res.Body.Close() }()

	apiReq := httptest.NewRequest(http.MethodGet, "/api/agent/listings", nil)
	for _, c := range res.Cookies() {
		apiReq.AddCookie(c)
	}
	apiRec := httptest.NewRecorder()
	f.router.ServeHTTP(apiRec, apiReq)

	assert.Equal(t, http.StatusSeeOther, apiRec.Code)
	assert.Equal(t, "/", apiRec.Header().Get("Location"))
}

func TestRouter_PortalSessionEndpoint(t *testing.T) {
	f := newRouterFixture(t, func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest(http.MethodGet, "/portal/session", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"authenticated":false`)
}
