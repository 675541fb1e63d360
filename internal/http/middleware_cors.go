package httpx

import (
	"net/http"
	"net/url"

	"github.com/rs/cors"
)

// CORS lets the frontend origin call the API with cookies. Any other origin gets no
// Access-Control headers. A frontendURL without scheme and host disables the middleware.
func CORS(frontendURL string) func(http.Handler) http.Handler {
	origin := originOf(frontendURL)
	if origin == "" {
		return func(next http.Handler) http.Handler { return next }
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{origin},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", DefaultCSRFHeaderName},
		AllowCredentials: true,
		MaxAge:           600,
	})
	return c.Handler
}

func originOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
