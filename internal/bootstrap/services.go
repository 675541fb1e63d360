package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/hakim-ai/identity-gateway/config"
	redisadapter "github.com/hakim-ai/identity-gateway/internal/adapters/redis"
	"github.com/hakim-ai/identity-gateway/internal/core"
	"github.com/hakim-ai/identity-gateway/internal/data"
	"github.com/hakim-ai/identity-gateway/internal/data/cryptoutil"
	"github.com/hakim-ai/identity-gateway/internal/observability/notify/slack"
	"github.com/hakim-ai/identity-gateway/internal/observability/statsd"
	"github.com/hakim-ai/identity-gateway/internal/ports"
	"github.com/hakim-ai/identity-gateway/internal/service"
	"github.com/hakim-ai/identity-gateway/internal/service/approvalnotifier"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Auth          *service.AuthService
	Identity      *service.IdentityService
	Sessions      *service.SessionManager
	Observability ObservabilityContainer
}

// Close releases resources held by the container.
func (c ServiceContainer) Close() error {
	return c.Observability.MetricsSink.Close()
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink    *statsd.Client
	MetricsConfig  config.ObservabilityMetricsConfig
	Notifier       *approvalnotifier.Service
	NotifierConfig config.ObservabilityNotificationsConfig
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Encryptor   cryptoutil.Encryptor
	Logger      *slog.Logger

	// Accounts overrides the Postgres account repository. Optional.
	Accounts core.AccountRepository
	// Provider overrides the provider built from Config.Auth. Optional.
	Provider ports.AuthProvider
}

// serviceRepositories groups data adapters backing service ports.
type serviceRepositories struct {
	Accounts core.AccountRepository
	Sessions *redisadapter.SessionStore
	Attempts *redisadapter.LoginAttemptStore
}

// buildObservability configures metrics and notification adapters.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig, mode config.AuthMode) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	var metricsSink *statsd.Client
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  cfg.Metrics.Prefix,
			GlobalTags: map[string]string{
				"service":   "hakim-identity",
				"auth_mode": string(mode),
			},
			Logger: obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsSink = client
		}
	}

	return ObservabilityContainer{
		MetricsSink:    metricsSink,
		MetricsConfig:  cfg.Metrics,
		Notifier:       buildApprovalNotifier(obsLogger, cfg.Notifications),
		NotifierConfig: cfg.Notifications,
	}
}

func buildApprovalNotifier(logger *slog.Logger, cfg config.ObservabilityNotificationsConfig) *approvalnotifier.Service {
	if !cfg.Enabled {
		return approvalnotifier.NewService(approvalnotifier.Options{Logger: logger})
	}

	sinks := make([]approvalnotifier.SinkRegistration, 0, 1)
	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL:      cfg.Slack.WebhookURL,
			Channel:         cfg.Slack.Channel,
			Username:        cfg.Slack.Username,
			Timeout:         cfg.Timeout,
			RetryLimit:      cfg.RetryLimit,
			ReviewURLPrefix: cfg.Slack.ReviewURLPrefix,
		})
		if err != nil {
			logger.Error("failed to initialise slack notifier", "error", err)
		} else {
			sinks = append(sinks, approvalnotifier.SinkRegistration{Name: "slack", Sink: client})
		}
	}

	return approvalnotifier.NewService(approvalnotifier.Options{
		Logger: logger,
		Sinks:  sinks,
	})
}

// buildRepositories builds the adapters backing service ports; no business rules here.
func buildRepositories(deps *ServiceDeps) (*serviceRepositories, error) {
	if deps.RedisClient == nil {
		return nil, errors.New("redis client is required for sessions and login attempts")
	}

	accounts := deps.Accounts
	if accounts == nil {
		if deps.DB == nil {
			return nil, errors.New("database is required when no account repository is supplied")
		}
		enc := deps.Encryptor
		if enc == nil {
			return nil, errors.New("encryptor is required for the account repository")
		}
		accounts = data.NewAccountRepo(deps.DB, enc)
	}

	return &serviceRepositories{
		Accounts: accounts,
		Sessions: redisadapter.NewSessionStore(deps.RedisClient),
		Attempts: redisadapter.NewLoginAttemptStore(deps.RedisClient),
	}, nil
}

// NewServices wires the login flow: provider, role derivation, account and session
// management. The provider is built from config unless deps supplies one.
func NewServices(ctx context.Context, deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service deps with config are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	repos, err := buildRepositories(deps)
	if err != nil {
		return ServiceContainer{}, err
	}

	provider := deps.Provider
	if provider == nil {
		provider, err = BuildAuthProvider(ctx, AuthConfig{Auth: cfg.Auth, Logger: logger})
		if err != nil {
			return ServiceContainer{}, fmt.Errorf("build auth provider: %w", err)
		}
	}

	observability := buildObservability(logger, cfg.Observability, cfg.Auth.Mode)

	sessions := service.NewSessionManager(service.SessionManagerOptions{
		Store:    repos.Sessions,
		Accounts: repos.Accounts,
		TTL:      cfg.Auth.SessionTTL,
		Metrics:  observability.MetricsSink,
		Logger:   logger,
	})
	identities := service.NewIdentityService(service.IdentityServiceOptions{
		Accounts: repos.Accounts,
		Roles:    BuildRoleDeriver(cfg.Auth, logger),
		Sessions: sessions,
		Notifier: observability.Notifier,
		Logger:   logger,
	})
	auth := service.NewAuthService(service.AuthServiceOptions{
		Provider:   provider,
		Attempts:   repos.Attempts,
		Identities: identities,
		Sessions:   sessions,
		AttemptTTL: cfg.Auth.PKCETTL,
		Metrics:    observability.MetricsSink,
		Logger:     logger,
	})

	logger.Info("services initialised",
		"auth_mode", cfg.Auth.Mode,
		"metrics", observability.MetricsSink.Enabled(),
		"approval_notifications", observability.Notifier.Enabled(),
	)

	return ServiceContainer{
		Auth:          auth,
		Identity:      identities,
		Sessions:      sessions,
		Observability: observability,
	}, nil
}
