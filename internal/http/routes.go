package httpx

import (
	"log/slog"
	"net/http"

	domainauth "github.com/hakim-ai/identity-gateway/internal/domain/auth"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Auth     AuthFlow
	Sessions SessionValidator
	Accounts AccountAdmin
	// Ready lists dependencies checked by /readyz.
	Ready        map[string]Pinger
	CookieDomain string
	FrontendURL  string
	// AuthRateLimit throttles /api/auth/ per client IP; zero fields take the defaults.
	AuthRateLimit RateLimitConfig
	Logger        *slog.Logger
}

// NewRouter creates and configures the HTTP router.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	guard := Guard{Sessions: services.Sessions, Logger: logger, CookieDomain: services.CookieDomain}
	authHandlers := &AuthHandlers{
		Flow:         services.Auth,
		CookieDomain: services.CookieDomain,
		FrontendURL:  services.FrontendURL,
		Logger:       logger,
	}
	accountHandlers := &AccountHandlers{Accounts: services.Accounts, Logger: logger}

	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("GET /readyz", readyHandler(services.Ready))

	registerAuthRoutes(mux, authHandlers, guard)
	registerAccountRoutes(mux, accountHandlers, guard)

	csrf := CSRFProtection(CSRFConfig{
		CookieDomain: services.CookieDomain,
		Exempt:       csrfExempt,
	})
	limit := NewRateLimiter(services.AuthRateLimit, logger).Middleware("/api/auth/")
	cors := CORS(services.FrontendURL)
	return Recover(logger)(Logging(logger)(cors(SecurityHeaders()(limit(csrf(mux))))))
}

// csrfExempt lists state-changing routes that carry their own anti-forgery check:
// the callback is bound to the login attempt by the state parameter.
func csrfExempt(r *http.Request) bool {
	return r.Method == http.MethodPost && r.URL.Path == "/api/auth/callback"
}

func registerAuthRoutes(mux *http.ServeMux, h *AuthHandlers, guard Guard) {
	mux.HandleFunc("GET /api/auth/login", h.Login)
	mux.HandleFunc("POST /api/auth/register", h.Register)
	mux.HandleFunc("POST /api/auth/callback", h.Callback)
	mux.HandleFunc("GET /auth/callback", h.BrowserCallback)
	mux.Handle("GET /api/auth/session", guard.OptionalAuth()(http.HandlerFunc(h.Session)))
	mux.HandleFunc("POST /api/auth/logout", h.Logout)
}

func registerAccountRoutes(mux *http.ServeMux, h *AccountHandlers, guard Guard) {
	mux.Handle("GET /api/me", guard.RequireAuth()(http.HandlerFunc(h.Me)))

	admin := guard.RequireRole(domainauth.AdminRoles()...)
	mux.Handle("GET /api/admin/accounts/pending", admin(http.HandlerFunc(h.ListPending)))
	mux.Handle("POST /api/admin/accounts/{id}/approve", admin(http.HandlerFunc(h.Approve)))
	mux.Handle("POST /api/admin/accounts/{id}/reject", admin(http.HandlerFunc(h.Reject)))
}
