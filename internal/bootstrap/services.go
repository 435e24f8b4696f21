package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/propaddadjs/portal-gateway/config"
	memoryadapter "github.com/propaddadjs/portal-gateway/internal/adapters/memory"
	redisadapter "github.com/propaddadjs/portal-gateway/internal/adapters/redis"
	"github.com/propaddadjs/portal-gateway/internal/service"
	"github.com/propaddadjs/portal-gateway/internal/tokens"
	"github.com/propaddadjs/portal-gateway/internal/upstream"
)

// ServiceContainer holds the wired services handed to the HTTP layer.
type ServiceContainer struct {
	Sessions *service.SessionService
	Upstream *upstream.Client
	Vault    *tokens.Vault
}

// ServiceDeps groups the external dependencies needed to build services.
type ServiceDeps struct {
	Config *config.AppConfig
	Redis  redis.UniversalClient
	Logger *slog.Logger
}

// BuildServices wires the token vault, the upstream client, and the session
// service. The durable token backing lives in Redis so remembered sessions
// survive gateway restarts; the session-scoped backing is in-process and
// vanishes with it.
func BuildServices(deps ServiceDeps) (ServiceContainer, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config
	if cfg == nil {
		cfg = &config.AppConfig{}
	}

	durable := redisadapter.NewTokenBackend(deps.Redis)
	sessionScoped := memoryadapter.NewTokenBackend()
	vault := tokens.NewVault(durable, sessionScoped, cfg.Auth.RememberTTL)

	client, err := upstream.NewClient(upstream.Config{
		BaseURL: cfg.Upstream.BaseURL,
		Timeout: cfg.Upstream.Timeout,
	}, vault, logger)
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build upstream client: %w", err)
	}

	sessions := service.NewSessionService(service.SessionServiceOptions{
		API:    client,
		Vault:  vault,
		Logger: logger,
	})

	return ServiceContainer{
		Sessions: sessions,
		Upstream: client,
		Vault:    vault,
	}, nil
}
