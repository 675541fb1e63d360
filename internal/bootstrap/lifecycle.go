package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hakim-ai/identity-gateway/config"
)

// RunConfig contains configuration for running the gateway.
type RunConfig struct {
	Config *config.AppConfig
	Logger *slog.Logger
}

// Run connects backing stores, wires services and serves HTTP until ctx is cancelled.
func Run(ctx context.Context, cfg RunConfig) (err error) {
	if cfg.Config == nil {
		return errors.New("run config missing AppConfig")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCfg := cfg.Config

	encryptor, err := CreateEncryptor(appCfg.Auth.PayloadEncryptionKey, appCfg.IsDev, logger)
	if err != nil {
		return err
	}

	db, err := ConnectDB(ctx, appCfg.Postgres, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close database: %w", closeErr))
		}
	}()

	if appCfg.Postgres.RunMigrationsOnStart {
		if migErr := RunMigrations(ctx, db, logger); migErr != nil {
			return migErr
		}
	}

	rdb, err := ConnectRedis(ctx, appCfg.Redis, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rdb.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close redis: %w", closeErr))
		}
	}()

	services, err := NewServices(ctx, &ServiceDeps{
		Config:      appCfg,
		DB:          db,
		RedisClient: rdb,
		Encryptor:   encryptor,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := services.Close(); closeErr != nil {
			logger.Warn("close services", "error", closeErr)
		}
	}()

	server := NewHTTPServer(&HTTPServerConfig{
		Config:   appCfg,
		Services: services,
		Ready:    ReadinessChecks(db, rdb),
		Logger:   logger,
	})
	return ServeHTTP(ctx, ServeConfig{
		Server:          server,
		ShutdownTimeout: appCfg.HTTP.ShutdownTimeout,
		Logger:          logger,
	})
}
