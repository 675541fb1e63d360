package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hakim-ai/identity-gateway/config"
	"github.com/hakim-ai/identity-gateway/internal/adapters/devauth"
	"github.com/hakim-ai/identity-gateway/internal/adapters/oidc"
	"github.com/hakim-ai/identity-gateway/internal/adapters/roles"
	"github.com/hakim-ai/identity-gateway/internal/ports"
)

// AuthConfig contains configuration for the identity provider adapter.
type AuthConfig struct {
	Auth   config.AuthConfig
	Logger *slog.Logger
}

// BuildAuthProvider creates the provider adapter for the configured auth mode.
// OAuth mode performs discovery when an issuer is configured, so ctx bounds that request.
//
//nolint:ireturn // the concrete provider depends on the configured mode.
func BuildAuthProvider(ctx context.Context, cfg AuthConfig) (ports.AuthProvider, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Auth.Mode {
	case config.AuthModeMock:
		return buildDevAuthProvider(cfg.Auth.DevAuth, logger)
	case config.AuthModeOAuth:
		return buildOAuthProvider(ctx, cfg.Auth.Provider, logger)
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.Auth.Mode)
	}
}

func buildDevAuthProvider(cfg config.DevAuthConfig, logger *slog.Logger) (*devauth.Provider, error) {
	prov, err := devauth.NewProvider(devauth.Config{
		Subject: cfg.Subject,
		Email:   cfg.Email,
		Name:    cfg.Name,
	})
	if err != nil {
		return nil, fmt.Errorf("create dev auth provider: %w", err)
	}
	logger.Warn("dev auth provider enabled, every login resolves to a fixed identity",
		"subject", cfg.Subject,
	)
	return prov, nil
}

func buildOAuthProvider(ctx context.Context, cfg config.ProviderConfig, logger *slog.Logger) (*oidc.Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	oidcCfg := cfg.ToOIDC()
	oidcCfg.HTTPClient = &http.Client{Timeout: cfg.HTTPTimeout}
	oidcCfg.Logger = logger.With("component", "oidc")

	if cfg.SkipUserInfoVerify {
		logger.Warn("userinfo signature verification disabled")
	}

	prov, err := oidc.NewProvider(ctx, oidcCfg)
	if err != nil {
		return nil, fmt.Errorf("create OIDC provider: %w", err)
	}
	return prov, nil
}

// BuildRoleDeriver creates the allow-list role deriver from the configured subject lists.
func BuildRoleDeriver(cfg config.AuthConfig, logger *slog.Logger) *roles.AllowList {
	doctors, admins, err := cfg.RoleLists()
	if errors.Is(err, config.ErrNoSubjects) && logger != nil {
		logger.Warn("no doctor or admin subjects configured, every new account is a patient")
	}
	return roles.NewAllowList(doctors, admins)
}
