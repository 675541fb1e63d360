package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func findCookie(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestCSRFProtection_GetIssuesToken(t *testing.T) {
	handler := CSRFProtection(CSRFConfig{})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	resp := w.Result()
	defer resp.Body.Close()

	c := findCookie(resp.Cookies(), DefaultCSRFCookieName)
	if c == nil {
		t.Fatal("CSRF cookie not set")
	}
	if c.Value == "" {
		t.Error("CSRF token is empty")
	}
	if c.HttpOnly {
		t.Error("CSRF cookie must be readable by the frontend")
	}
	if c.SameSite != http.SameSiteStrictMode {
		t.Errorf("expected SameSite=Strict, got %v", c.SameSite)
	}
}

func TestCSRFProtection_ReusesExistingToken(t *testing.T) {
	var seen string
	handler := CSRFProtection(CSRFConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetCSRFToken(r)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: DefaultCSRFCookieName, Value: "existing"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if seen != "existing" {
		t.Errorf("expected token from cookie, got %q", seen)
	}
	resp := w.Result()
	defer resp.Body.Close()
	if findCookie(resp.Cookies(), DefaultCSRFCookieName) != nil {
		t.Error("existing token should not be reissued")
	}
}

func TestCSRFProtection_PostValidation(t *testing.T) {
	tests := []struct {
		name   string
		cookie string
		header string
		auth   string
		want   int
	}{
		{name: "missing token", want: http.StatusForbidden},
		{name: "cookie without header", cookie: "tok", want: http.StatusForbidden},
		{name: "mismatched header", cookie: "tok", header: "other", want: http.StatusForbidden},
		{name: "matching header", cookie: "tok", header: "tok", want: http.StatusOK},
		{name: "bearer request", auth: "Bearer handle", want: http.StatusOK},
		{name: "basic auth is not exempt", auth: "Basic abc", want: http.StatusForbidden},
	}

	handler := CSRFProtection(CSRFConfig{})(okHandler())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: DefaultCSRFCookieName, Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set(DefaultCSRFHeaderName, tt.header)
			}
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("expected status %d, got %d", tt.want, w.Code)
			}
		})
	}
}

func TestCSRFProtection_ExemptRoute(t *testing.T) {
	handler := CSRFProtection(CSRFConfig{Exempt: csrfExempt})(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/auth/callback", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("callback: expected status 200, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/auth/register", nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("register: expected status 403, got %d", w.Code)
	}
}

func TestCSRFProtection_SecureBehindProxy(t *testing.T) {
	handler := CSRFProtection(CSRFConfig{CookieDomain: "portal.example.com"})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-Proto", "http, https")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	resp := w.Result()
	defer resp.Body.Close()
	c := findCookie(resp.Cookies(), DefaultCSRFCookieName)
	if c == nil {
		t.Fatal("CSRF cookie not set")
	}
	if !c.Secure {
		t.Error("expected Secure cookie for forwarded https")
	}
	if c.Domain != "portal.example.com" {
		t.Errorf("expected cookie domain, got %q", c.Domain)
	}
}
