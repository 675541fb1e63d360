package config

import (
	"strings"
	"time"
)

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// CookieDomain is the domain for session and CSRF cookies.
	// Leave empty to use the request domain.
	CookieDomain string `env:"APP_COOKIE_DOMAIN" envDefault:""`

	// FrontendURL is where GET /auth/callback sends the browser after a login.
	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:3000/"`

	// AuthRateLimit requests per AuthRateWindow are allowed from one client IP on /api/auth/.
	AuthRateLimit  int           `env:"HTTP_AUTH_RATE_LIMIT"  envDefault:"50"`
	AuthRateWindow time.Duration `env:"HTTP_AUTH_RATE_WINDOW" envDefault:"15m"`

	// TrustProxy keys the limiter on X-Forwarded-For instead of the socket address.
	TrustProxy bool `env:"HTTP_TRUST_PROXY" envDefault:"false"`

	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT"     envDefault:"15s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT"    envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	h.Addr = strings.TrimSpace(h.Addr)
	if h.Addr == "" {
		h.Addr = ":8080"
	}
	h.CookieDomain = strings.TrimSpace(h.CookieDomain)
	if h.ReadTimeout <= 0 {
		h.ReadTimeout = 15 * time.Second
	}
	// The callback waits on token exchange and userinfo retries.
	if h.WriteTimeout < 5*time.Second {
		h.WriteTimeout = 30 * time.Second
	}
	if h.AuthRateLimit <= 0 {
		h.AuthRateLimit = 50
	}
	if h.AuthRateWindow <= 0 {
		h.AuthRateWindow = 15 * time.Minute
	}
	if h.ShutdownTimeout <= 0 {
		h.ShutdownTimeout = 10 * time.Second
	}
}
