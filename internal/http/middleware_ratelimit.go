package httpx

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultAuthRateLimit  = 50
	defaultAuthRateWindow = 15 * time.Minute
)

// RateLimitConfig bounds how many requests one client IP may send per window.
type RateLimitConfig struct {
	// Requests is both the bucket size and the number of tokens refilled per Window.
	Requests int
	Window   time.Duration
	// TrustProxy keys clients on the first X-Forwarded-For entry. Only enable behind a proxy
	// that overwrites the header.
	TrustProxy bool
	// IdleTimeout drops the bucket of a client not seen for this long (default: 2 windows).
	IdleTimeout time.Duration
}

func (c *RateLimitConfig) sanitize() {
	if c.Requests <= 0 {
		c.Requests = defaultAuthRateLimit
	}
	if c.Window <= 0 {
		c.Window = defaultAuthRateWindow
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 2 * c.Window
	}
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps a token bucket per client IP. Idle buckets are swept on access, so it
// needs no background goroutine or shutdown hook.
type RateLimiter struct {
	cfg    RateLimitConfig
	limit  rate.Limit
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	clients   map[string]*clientBucket
	lastSweep time.Time
}

// NewRateLimiter creates a limiter; zero config fields take the auth defaults (50 per 15 minutes).
func NewRateLimiter(cfg RateLimitConfig, logger *slog.Logger) *RateLimiter {
	cfg.sanitize()
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{
		cfg:     cfg,
		limit:   rate.Every(cfg.Window / time.Duration(cfg.Requests)),
		logger:  logger.With("component", "rate_limiter"),
		now:     time.Now,
		clients: make(map[string]*clientBucket),
	}
}

func (rl *RateLimiter) bucket(ip string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) >= rl.cfg.IdleTimeout {
		for key, b := range rl.clients {
			if now.Sub(b.lastSeen) >= rl.cfg.IdleTimeout {
				delete(rl.clients, key)
			}
		}
		rl.lastSweep = now
	}

	b, ok := rl.clients[ip]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(rl.limit, rl.cfg.Requests)}
		rl.clients[ip] = b
	}
	b.lastSeen = now
	return b.limiter
}

// Len reports how many clients currently hold a bucket.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// Middleware limits requests whose path starts with prefix; other paths pass through.
// Rejected requests get 429 with Retry-After.
func (rl *RateLimiter) Middleware(prefix string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
			ip := clientIP(r, rl.cfg.TrustProxy)
			if ip == "" {
				rl.logger.WarnContext(r.Context(), "client ip unknown, not rate limited",
					"remote_addr", r.RemoteAddr, "path", r.URL.Path)
				next.ServeHTTP(w, r)
				return
			}

			now := rl.now()
			res := rl.bucket(ip, now).ReserveN(now, 1)
			if delay := res.DelayFrom(now); delay > 0 {
				res.CancelAt(now)
				rl.logger.WarnContext(r.Context(), "rate limit exceeded",
					"client_ip", ip,
					"method", r.Method,
					"path", r.URL.Path,
					"retry_after", delay)
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.cfg.Requests))
				w.Header().Set("X-RateLimit-Remaining", "0")
				WriteError(w, ErrorParams{
					Code:    http.StatusTooManyRequests,
					ErrCode: "rate_limited",
					Details: "Too many requests. Please try again later.",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP returns the socket peer, or the first forwarded hop when the proxy is trusted.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
				return ip.String()
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.String()
	}
	return ""
}
