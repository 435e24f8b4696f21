package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/propaddadjs/portal-gateway/internal/domain/auth"
	apperrors "github.com/propaddadjs/portal-gateway/internal/errors"
	"github.com/propaddadjs/portal-gateway/internal/ports"
	"github.com/propaddadjs/portal-gateway/internal/service"
)

// fakeSessionControl is a test double for the auth handlers' service slice.
type fakeSessionControl struct {
	loginFunc    func(ctx context.Context, sid string, creds ports.Credentials, remember bool) (*domainauth.Identity, error)
	registerFunc func(ctx context.Context, sid string, reg ports.Registration, remember bool) (*domainauth.Identity, error)
	snapFunc     func(ctx context.Context, sid string, rc *http.Cookie) (service.Snapshot, error)
	kycFunc      func(ctx context.Context, sid string) domainauth.KycStatus

	loggedOut []string
}

var _ SessionControl = (*fakeSessionControl)(nil)

func (f *fakeSessionControl) Login(ctx context.Context, sid string, creds ports.Credentials, remember bool) (*domainauth.Identity, error) {
	return f.loginFunc(ctx, sid, creds, remember)
}

func (f *fakeSessionControl) Register(ctx context.Context, sid string, reg ports.Registration, remember bool) (*domainauth.Identity, error) {
	return f.registerFunc(ctx, sid, reg, remember)
}

func (f *fakeSessionControl) Logout(_ context.Context, sid string) {
	f.loggedOut = append(f.loggedOut, sid)
}

func (f *fakeSessionControl) RefreshKyc(ctx context.Context, sid string) domainauth.KycStatus {
	if f.kycFunc == nil {
		return domainauth.KycUnknown
	}
	return f.kycFunc(ctx, sid)
}

func (f *fakeSessionControl) EnsureRehydrated(ctx context.Context, sid string, rc *http.Cookie) (service.Snapshot, error) {
	if f.snapFunc == nil {
		return service.Snapshot{Rehydrated: true}, nil
	}
	return f.snapFunc(ctx, sid, rc)
}

func newAuthHandlers(svc *fakeSessionControl) *AuthHandlers {
	return &AuthHandlers{
		Svc:           svc,
		SessionCookie: "portal_session",
		RefreshCookie: "refresh_token",
		RememberTTL:   720 * time.Hour,
	}
}

func findCookie(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	res := rec.Result()
	defer func() { _ = res.Body.Close() }()
	for _, c := range res.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestLoginHandler_Success(t *testing.T) {
	var gotRemember bool
	var gotSid string
	svc := &fakeSessionControl{
		loginFunc: func(_ context.Context, sid string, creds ports.Credentials, remember bool) (*domainauth.Identity, error) {
			gotRemember = remember
			gotSid = sid
			assert.Equal(t, "buyer@example.com", creds.Email)
			return &domainauth.Identity{UserID: 5, Email: creds.Email, Role: domainauth.RoleBuyer}, nil
		},
	}
	h := newAuthHandlers(svc)

	body := `{"email":"buyer@example.com","password":"pw","rememberMe":true}`
	req := httptest.NewRequest(http.MethodPost, "/portal/login?redirect_uri=/account", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, gotRemember)
	require.NotEmpty(t, gotSid)

	cookie := findCookie(t, rec, "portal_session")
	require.NotNil(t, cookie)
	assert.Equal(t, gotSid, cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Equal(t, int((720 * time.Hour).Seconds()), cookie.MaxAge, "remembered login gets a persistent cookie")

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["authenticated"])
	assert.Equal(t, "/account", resp["redirect_to"])
}

func TestLoginHandler_NoRememberGetsSessionCookie(t *testing.T) {
	svc := &fakeSessionControl{
		loginFunc: func(_ context.Context, _ string, creds ports.Credentials, _ bool) (*domainauth.Identity, error) {
			return &domainauth.Identity{UserID: 5, Email: creds.Email, Role: domainauth.RoleBuyer}, nil
		},
	}
	h := newAuthHandlers(svc)

	body := `{"email":"buyer@example.com","password":"pw"}`
	req := httptest.NewRequest(http.MethodPost, "/portal/login", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	cookie := findCookie(t, rec, "portal_session")
	require.NotNil(t, cookie)
	assert.Zero(t, cookie.MaxAge, "non-remembered login gets a browser-session cookie")
}

func TestLoginHandler_InvalidCredentials(t *testing.T) {
	svc := &fakeSessionControl{
		loginFunc: func(context.Context, string, ports.Credentials, bool) (*domainauth.Identity, error) {
			return nil, apperrors.Unauthorizedf("bad credentials")
		},
	}
	h := newAuthHandlers(svc)

	body := `{"email":"x@example.com","password":"wrong"}`
	req := httptest.NewRequest(http.MethodPost, "/portal/login", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, findCookie(t, rec, "portal_session"), "no session cookie on rejection")
	assert.Contains(t, rec.Body.String(), "invalid_credentials")
}

func TestLoginHandler_MissingFields(t *testing.T) {
	h := newAuthHandlers(&fakeSessionControl{})

	req := httptest.NewRequest(http.MethodPost, "/portal/login", strings.NewReader(`{"email":"x@example.com"}`))
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing_credentials")
}

func TestLoginHandler_UpstreamFailure(t *testing.T) {
	svc := &fakeSessionControl{
		loginFunc: func(context.Context, string, ports.Credentials, bool) (*domainauth.Identity, error) {
			return nil, apperrors.Upstreamf("connect refused")
		},
	}
	h := newAuthHandlers(svc)

	req := httptest.NewRequest(http.MethodPost, "/portal/login",
		strings.NewReader(`{"email":"x@example.com","password":"pw"}`))
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestLoginHandler_ExternalRedirectSanitized(t *testing.T) {
	svc := &fakeSessionControl{
		loginFunc: func(context.Context, string, ports.Credentials, bool) (*domainauth.Identity, error) {
			return &domainauth.Identity{UserID: 1, Role: domainauth.RoleBuyer}, nil
		},
	}
	h := newAuthHandlers(svc)

	req := httptest.NewRequest(http.MethodPost,
		"/portal/login?redirect_uri=https://evil.example.com/phish",
		strings.NewReader(`{"email":"x@example.com","password":"pw"}`))
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "/", resp["redirect_to"])
}

func TestRegisterHandler_Success(t *testing.T) {
	svc := &fakeSessionControl{
		registerFunc: func(_ context.Context, _ string, reg ports.Registration, remember bool) (*domainauth.Identity, error) {
			assert.Equal(t, "Asha", reg.FirstName)
			assert.Equal(t, "Karnataka", reg.State)
			assert.False(t, remember)
			return &domainauth.Identity{UserID: 9, Email: reg.Email, Role: domainauth.RoleBuyer}, nil
		},
	}
	h := newAuthHandlers(svc)

	body := `{"firstName":"Asha","lastName":"Rao","email":"asha@example.com",` +
		`"phoneNumber":"9999999999","state":"Karnataka","city":"Bengaluru","password":"pw"}`
	req := httptest.NewRequest(http.MethodPost, "/portal/register", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Register(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, findCookie(t, rec, "portal_session"))
}

func TestLogoutHandler_ClearsCookieAndTearsDown(t *testing.T) {
	svc := &fakeSessionControl{}
	h := newAuthHandlers(svc)

	req := httptest.NewRequest(http.MethodPost, "/portal/logout", nil)
	req.AddCookie(&http.Cookie{Name: "portal_session", Value: "sid-9"})
	rec := httptest.NewRecorder()
	h.Logout(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"sid-9"}, svc.loggedOut)

	cookie := findCookie(t, rec, "portal_session")
	require.NotNil(t, cookie)
	assert.Empty(t, cookie.Value)
	assert.Equal(t, -1, cookie.MaxAge)
}

func TestLogoutHandler_WithoutSessionStillSucceeds(t *testing.T) {
	svc := &fakeSessionControl{}
	h := newAuthHandlers(svc)

	req := httptest.NewRequest(http.MethodPost, "/portal/logout", nil)
	rec := httptest.NewRecorder()
	h.Logout(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, svc.loggedOut)
}

func TestSessionHandler_Authenticated(t *testing.T) {
	svc := &fakeSessionControl{
		snapFunc: func(_ context.Context, sid string, rc *http.Cookie) (service.Snapshot, error) {
			assert.Equal(t, "sid-1", sid)
			require.NotNil(t, rc, "refresh cookie is forwarded for rehydration")
			assert.Equal(t, "rt-1", rc.Value)
			return service.Snapshot{
				User:       &domainauth.Identity{UserID: 2, Role: domainauth.RoleAgent, Kyc: domainauth.KycApproved},
				Rehydrated: true,
			}, nil
		},
	}
	h := newAuthHandlers(svc)

	req := httptest.NewRequest(http.MethodGet, "/portal/session", nil)
	req.AddCookie(&http.Cookie{Name: "portal_session", Value: "sid-1"})
	req.AddCookie(&http.Cookie{Name: "refresh_token", Value: "rt-1"})
	rec := httptest.NewRecorder()
	h.Session(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Authenticated bool                 `json:"authenticated"`
		User          *domainauth.Identity `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Authenticated)
	require.NotNil(t, resp.User)
	assert.Equal(t, domainauth.RoleAgent, resp.User.Role)
}

func TestSessionHandler_NoCookieIsAnonymous(t *testing.T) {
	h := newAuthHandlers(&fakeSessionControl{})

	req := httptest.NewRequest(http.MethodGet, "/portal/session", nil)
	rec := httptest.NewRecorder()
	h.Session(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"authenticated":false`)
}

func TestKycStatusHandler_RefreshesUnknownStatus(t *testing.T) {
	svc := &fakeSessionControl{
		snapFunc: func(context.Context, string, *http.Cookie) (service.Snapshot, error) {
			return service.Snapshot{
				User:       &domainauth.Identity{Role: domainauth.RoleAgent, Kyc: domainauth.KycUnknown},
				Rehydrated: true,
			}, nil
		},
		kycFunc: func(_ context.Context, sid string) domainauth.KycStatus {
			assert.Equal(t, "sid-1", sid)
			return domainauth.KycPending
		},
	}
	h := newAuthHandlers(svc)

	req := httptest.NewRequest(http.MethodGet, "/portal/kyc-status", nil)
	req.AddCookie(&http.Cookie{Name: "portal_session", Value: "sid-1"})
	rec := httptest.NewRecorder()
	h.KycStatus(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "PENDING", resp["kycVerified"])
	assert.Equal(t, "AGENT", resp["role"])
}

func TestKycStatusHandler_KnownStatusSkipsRefresh(t *testing.T) {
	svc := &fakeSessionControl{
		snapFunc: func(context.Context, string, *http.Cookie) (service.Snapshot, error) {
			return service.Snapshot{
				User:       &domainauth.Identity{Role: domainauth.RoleAgent, Kyc: domainauth.KycApproved},
				Rehydrated: true,
			}, nil
		},
		kycFunc: func(context.Context, string) domainauth.KycStatus {
			panic("refresh must not run for a known status")
		},
	}
	h := newAuthHandlers(svc)

	req := httptest.NewRequest(http.MethodGet, "/portal/kyc-status", nil)
	req.AddCookie(&http.Cookie{Name: "portal_session", Value: "sid-1"})
	rec := httptest.NewRecorder()
	h.KycStatus(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "APPROVED")
}

func TestIsSecureRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.False(t, isSecureRequest(req))

	req.Header.Set("X-Forwarded-Proto", "https")
	assert.True(t, isSecureRequest(req))
}
