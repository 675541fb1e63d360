package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/hakim-ai/identity-gateway/config"
	httpx "github.com/hakim-ai/identity-gateway/internal/http"
)

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	// Ready lists the dependencies reported by /readyz.
	Ready  map[string]httpx.Pinger
	Logger *slog.Logger
}

// BuildHTTPHandler builds the router with its middleware chain.
func BuildHTTPHandler(cfg *HTTPServerConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	authLimit := httpx.RateLimitConfig{
		Requests:   appCfg.HTTP.AuthRateLimit,
		Window:     appCfg.HTTP.AuthRateWindow,
		TrustProxy: appCfg.HTTP.TrustProxy,
	}
	return httpx.NewRouter(httpx.RouterServices{
		Auth:          cfg.Services.Auth,
		Sessions:      cfg.Services.Sessions,
		Accounts:      cfg.Services.Identity,
		Ready:         cfg.Ready,
		CookieDomain:  appCfg.HTTP.CookieDomain,
		FrontendURL:   appCfg.HTTP.FrontendURL,
		AuthRateLimit: authLimit,
		Logger:        logger,
	})
}

// NewHTTPServer creates the server without starting it.
func NewHTTPServer(cfg *HTTPServerConfig) *http.Server {
	var httpCfg config.HTTPConfig
	if cfg.Config != nil {
		httpCfg = cfg.Config.HTTP
	}
	httpCfg.Sanitize()

	return &http.Server{
		Addr:              httpCfg.Addr,
		Handler:           BuildHTTPHandler(cfg),
		ReadTimeout:       httpCfg.ReadTimeout,
		ReadHeaderTimeout: httpCfg.ReadTimeout,
		WriteTimeout:      httpCfg.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}
}

// ReadinessChecks reports Postgres and Redis reachability. Nil dependencies are skipped.
func ReadinessChecks(db *sql.DB, rdb redis.UniversalClient) map[string]httpx.Pinger {
	checks := make(map[string]httpx.Pinger, 2)
	if db != nil {
		checks["postgres"] = httpx.PingFunc(db.PingContext)
	}
	if rdb != nil {
		checks["redis"] = httpx.PingFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	}
	return checks
}

// ServeConfig contains dependencies for running the HTTP server.
type ServeConfig struct {
	Server *http.Server
	// Listener is optional; the server listens on Server.Addr when nil.
	Listener        net.Listener
	ShutdownTimeout time.Duration
	Logger          *slog.Logger
}

// ServeHTTP runs the server until ctx is cancelled, then shuts it down gracefully.
// It returns the first serve or shutdown error.
func ServeHTTP(ctx context.Context, cfg ServeConfig) error {
	if cfg.Server == nil {
		return errors.New("http server is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if cfg.Listener != nil {
			logger.Info("starting HTTP server", "addr", cfg.Listener.Addr().String())
			err = cfg.Server.Serve(cfg.Listener)
		} else {
			logger.Info("starting HTTP server", "addr", cfg.Server.Addr)
			err = cfg.Server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		if err := cfg.Server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		logger.Info("HTTP server stopped")
		return nil
	})
	return g.Wait()
}
