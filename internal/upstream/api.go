package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	domainauth "github.com/propaddadjs/portal-gateway/internal/domain/auth"
	apperrors "github.com/propaddadjs/portal-gateway/internal/errors"
	"github.com/propaddadjs/portal-gateway/internal/ports"
)

// maxResponseBody bounds how much of an upstream body is read.
const maxResponseBody = 1 << 20

// Me fetches the current identity using the session's bearer token.
func (c *Client) Me(ctx context.Context, sid string) (*ports.AuthEnvelope, error) {
	ctx = WithSession(ctx, sid)
	data, err := c.do(ctx, c.authed, http.MethodGet, "/auth/me", nil, nil)
	if err != nil {
		return nil, err
	}
	return parseEnvelope(data)
}

// RefreshSession exchanges the forwarded httpOnly refresh cookie for a new
// token pair. The call goes through the raw client so it can succeed without
// any bearer token held.
func (c *Client) RefreshSession(ctx context.Context, refreshCookie *http.Cookie) (*ports.AuthEnvelope, error) {
	var mutate func(*http.Request)
	if refreshCookie != nil {
		mutate = func(req *http.Request) { req.AddCookie(refreshCookie) }
	}
	data, err := c.do(ctx, c.raw, http.MethodPost, "/auth/refresh", struct{}{}, mutate)
	if err != nil {
		return nil, err
	}
	return parseEnvelope(data)
}

// Login posts credentials to the login endpoint. Rejections propagate to the
// caller unhandled; there is no retry.
func (c *Client) Login(ctx context.Context, creds ports.Credentials) (*ports.AuthEnvelope, error) {
	body := struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}{creds.Email, creds.Password}

	data, err := c.do(ctx, c.raw, http.MethodPost, "/auth/login", body, nil)
	if err != nil {
		return nil, err
	}
	return parseEnvelope(data)
}

// Register posts the registration payload. Response handling is structurally
// identical to Login.
func (c *Client) Register(ctx context.Context, reg ports.Registration) (*ports.AuthEnvelope, error) {
	body := struct {
		FirstName   string `json:"firstName"`
		LastName    string `json:"lastName"`
		Email       string `json:"email"`
		PhoneNumber string `json:"phoneNumber"`
		State       string `json:"state"`
		City        string `json:"city"`
		Password    string `json:"password"`
	}{reg.FirstName, reg.LastName, reg.Email, reg.PhoneNumber, reg.State, reg.City, reg.Password}

	data, err := c.do(ctx, c.raw, http.MethodPost, "/auth/register", body, nil)
	if err != nil {
		return nil, err
	}
	return parseEnvelope(data)
}

// Logout posts to the logout endpoint with the token set as an explicit
// bearer header, independent of the interceptor. The caller reads the token
// before clearing the vault, so the interceptor cannot be relied on here.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	mutate := func(req *http.Request) {
		if accessToken != "" {
			req.Header.Set("Authorization", "Bearer "+accessToken)
		}
	}
	_, err := c.do(ctx, c.raw, http.MethodPost, "/auth/logout", struct{}{}, mutate)
	return err
}

// KycStatus fetches the current verification status for the session.
func (c *Client) KycStatus(ctx context.Context, sid string) (domainauth.KycStatus, error) {
	ctx = WithSession(ctx, sid)
	data, err := c.do(ctx, c.authed, http.MethodGet, "/user/kycStatus", nil, nil)
	if err != nil {
		return domainauth.KycUnknown, err
	}
	return parseKycResponse(data)
}

// apiErrorDTO is the upstream's error body shape; both fields are optional.
type apiErrorDTO struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// do executes one upstream round-trip and returns the response body.
// 401/403 map to unauthorized errors, any other non-2xx to upstream errors;
// callers do not distinguish failures beyond that.
func (c *Client) do(
	ctx context.Context,
	client *http.Client,
	method, path string,
	body any,
	mutate func(*http.Request),
) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	u := c.base.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if mutate != nil {
		mutate(req)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrCodeUpstream, "%s %s", method, path)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.WarnContext(ctx, "close upstream response body", "error", cerr)
		}
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrCodeUpstream, "read %s %s response", method, path)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return data, nil
	}

	msg := upstreamMessage(data)
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, apperrors.Unauthorizedf("%s %s: %s", method, path, msg)
	}
	return nil, apperrors.Upstreamf("%s %s: status %d: %s", method, path, resp.StatusCode, msg)
}

func upstreamMessage(data []byte) string {
	var dto apiErrorDTO
	if err := json.Unmarshal(data, &dto); err == nil {
		if dto.Message != "" {
			return dto.Message
		}
		if dto.Error != "" {
			return dto.Error
		}
	}
	return "request rejected"
}
