package httpx

import (
	"log/slog"
	"net/http"
	"net/http/httputil"
	"strings"

	"github.com/propaddadjs/portal-gateway/internal/upstream"
)

// apiPrefix is stripped from guarded proxy paths before forwarding upstream:
// the portal exposes /api/agent/listings, the upstream serves /agent/listings.
const apiPrefix = "/api"

// NewUpstreamProxy builds the reverse proxy that forwards guarded portal
// requests to the marketplace API. The proxy rides the upstream client's
// authenticated transport, so every forwarded request carries the session's
// bearer token without handlers touching the token store.
func NewUpstreamProxy(client *upstream.Client, logger *slog.Logger) http.Handler {
	target := client.BaseURL()

	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.Out.URL.Path = strings.TrimPrefix(pr.In.URL.Path, apiPrefix)
			if pr.Out.URL.Path == "" {
				pr.Out.URL.Path = "/"
			}
			pr.Out.Host = target.Host
			pr.SetXForwarded()
		},
		Transport: client.AuthedTransport(),
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.ErrorContext(r.Context(), "upstream proxy failure",
				slog.String("path", r.URL.Path),
				slog.Any("error", err))
			WriteError(w, ErrorParams{
				Code:    http.StatusBadGateway,
				ErrCode: "upstream_unavailable",
				Err:     err,
			})
		},
	}

	return proxy
}
