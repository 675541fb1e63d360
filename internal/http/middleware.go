package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	domainauth "github.com/hakim-ai/identity-gateway/internal/domain/auth"
	"github.com/hakim-ai/identity-gateway/internal/service"
)

// SessionValidator resolves session handles to principals and applies the role predicate.
type SessionValidator interface {
	Validate(ctx context.Context, handle string) (*service.Principal, error)
	Authorize(p *service.Principal, required ...domainauth.Role) error
}

// Logging returns a middleware that logs HTTP requests and responses.
// Query strings are never logged since callbacks carry authorization codes.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			const defaultHTTPStatus = 200
			ww := &respWriter{ResponseWriter: w, status: defaultHTTPStatus}
			next.ServeHTTP(ww, r)
			logger.InfoContext(r.Context(), "http",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

type respWriter struct {
	http.ResponseWriter
	status int
}

func (w *respWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Recover returns a middleware that recovers from panics and logs them.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.ErrorContext(r.Context(), "panic",
						slog.Any("error", err),
						slog.String("path", r.URL.Path),
						slog.String("method", r.Method),
						slog.String("stack", string(debug.Stack())))
					WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "internal"})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// Guard authenticates requests against the session manager.
// The handle is read from an Authorization bearer header or the session cookie.
type Guard struct {
	Sessions     SessionValidator
	Logger       *slog.Logger
	CookieDomain string
}

// RequireAuth returns a middleware that requires a valid session.
func (g Guard) RequireAuth() func(http.Handler) http.Handler {
	return g.RequireRole()
}

// RequireRole returns a middleware that requires a valid session whose account holds one of
// roles. With no roles any authenticated account passes.
func (g Guard) RequireRole(roles ...domainauth.Role) func(http.Handler) http.Handler {
	cookies := cookieWriter{Domain: g.CookieDomain}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handle, bearer := sessionHandle(r)
			p, err := g.Sessions.Validate(r.Context(), handle)
			if err != nil {
				if !bearer && handle != "" {
					cookies.clear(w, r, SessionCookieName)
				}
				WriteAppError(w, r, g.Logger, err)
				return
			}
			if err := g.Sessions.Authorize(p, roles...); err != nil {
				WriteAppError(w, r, g.Logger, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(SetPrincipalInContext(r.Context(), p)))
		})
	}
}

// OptionalAuth returns a middleware that optionally adds authentication information.
// If the session is valid the principal is added to the request context; otherwise the
// request continues anonymously.
func (g Guard) OptionalAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if handle, _ := sessionHandle(r); handle != "" {
				if p, err := g.Sessions.Validate(r.Context(), handle); err == nil {
					r = r.WithContext(SetPrincipalInContext(r.Context(), p))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeaders sets conservative response headers for a JSON API.
func SecurityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "no-referrer")
			next.ServeHTTP(w, r)
		})
	}
}
