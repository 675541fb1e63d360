package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/publicsuffix"

	domainauth "github.com/hakim-ai/identity-gateway/internal/domain/auth"
	mockauth "github.com/hakim-ai/identity-gateway/internal/mocks/auth"
	"github.com/hakim-ai/identity-gateway/internal/ports"
	"github.com/hakim-ai/identity-gateway/internal/service"
)

type portal struct {
	t        *testing.T
	srv      *httptest.Server
	base     *url.URL
	client   *http.Client
	provider *mockauth.MockAuthProvider
	accounts *mockauth.MemoryAccountRepository
	sessions *mockauth.MemorySessionStore
	manager  *service.SessionManager
}

func newPortal(t *testing.T, ready map[string]Pinger) *portal {
	t.Helper()
	p := &portal{
		t:        t,
		provider: mockauth.NewMockAuthProvider(),
		accounts: mockauth.NewMemoryAccountRepository(),
		sessions: mockauth.NewMemorySessionStore(),
	}
	logger := discardLogger()
	p.manager = service.NewSessionManager(service.SessionManagerOptions{
		Store:    p.sessions,
		Accounts: p.accounts,
		Logger:   logger,
	})
	identities := service.NewIdentityService(service.IdentityServiceOptions{
		Accounts: p.accounts,
		Roles:    &mockauth.StaticRoleDeriver{},
		Sessions: p.manager,
		Logger:   logger,
	})
	auth := service.NewAuthService(service.AuthServiceOptions{
		Provider:   p.provider,
		Attempts:   mockauth.NewMemoryLoginAttemptStore(),
		Identities: identities,
		Sessions:   p.manager,
		Logger:     logger,
	})

	p.srv = httptest.NewServer(NewRouter(RouterServices{
		Auth:        auth,
		Sessions:    p.manager,
		Accounts:    identities,
		Ready:       ready,
		FrontendURL: "https://portal.example.com/login/done",
		Logger:      logger,
	}))
	t.Cleanup(p.srv.Close)

	var err error
	p.base, err = url.Parse(p.srv.URL)
	require.NoError(t, err)
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	require.NoError(t, err)
	p.client = &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return p
}

func (p *portal) cookie(name string) string {
	for _, c := range p.client.Jar.Cookies(p.base) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

// do sends a request echoing the CSRF cookie, as the frontend does.
func (p *portal) do(method, path string, body any, hdr map[string]string) (*http.Response, map[string]any) {
	p.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(p.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequestWithContext(context.Background(), method, p.srv.URL+path, &buf)
	require.NoError(p.t, err)
	req.Header.Set("Content-Type", "application/json")
	if tok := p.cookie(DefaultCSRFCookieName); tok != "" {
		req.Header.Set(DefaultCSRFHeaderName, tok)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	resp, err := p.client.Do(req)
	require.NoError(p.t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	if resp.Header.Get("Content-Type") == "application/json" {
		require.NoError(p.t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func (p *portal) bootstrapCSRF() {
	p.t.Helper()
	resp, body := p.do(http.MethodGet, "/api/auth/session", nil, nil)
	require.Equal(p.t, http.StatusOK, resp.StatusCode)
	assert.Equal(p.t, false, body["authenticated"])
	require.NotEmpty(p.t, p.cookie(DefaultCSRFCookieName))
	assert.Equal(p.t, p.cookie(DefaultCSRFCookieName), body["csrfToken"])
}

// begin starts a login or registration and returns the state the provider would echo back.
func (p *portal) begin(method, path string, body any) string {
	p.t.Helper()
	resp, out := p.do(method, path, body, nil)
	require.Equal(p.t, http.StatusOK, resp.StatusCode, out)
	require.NotEmpty(p.t, p.cookie(LoginCookieName))

	authURL, err := url.Parse(out["authorizationUrl"].(string))
	require.NoError(p.t, err)
	assert.Equal(p.t, "S256", authURL.Query().Get("code_challenge_method"))
	return authURL.Query().Get("state")
}

func (p *portal) callback(code, state string) (*http.Response, map[string]any) {
	p.t.Helper()
	return p.do(http.MethodPost, "/api/auth/callback", map[string]string{
		"authorization_code": code,
		"state":              state,
	}, nil)
}

func (p *portal) seedAdmin(id string, role domainauth.Role) string {
	p.t.Helper()
	acc := &domainauth.Account{
		ID:              id,
		ExternalSubject: "sub-" + id,
		Role:            role,
		Status:          domainauth.StatusActive,
		IsActive:        true,
		RoleLocked:      true,
	}
	p.accounts.Put(acc)
	sess, err := p.manager.Issue(context.Background(), acc)
	require.NoError(p.t, err)
	return sess.ID
}

func TestRouter_LoginLifecycle(t *testing.T) {
	p := newPortal(t, nil)
	p.bootstrapCSRF()

	state := p.begin(http.MethodGet, "/api/auth/login", nil)

	resp, body := p.callback("code-1", state)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, body["token"])
	user := body["user"].(map[string]any)
	assert.Equal(t, "patient", user["role"])
	assert.NotEmpty(t, p.cookie(SessionCookieName))
	assert.Empty(t, p.cookie(LoginCookieName), "login attempt cookie is cleared")

	resp, body = p.do(http.MethodGet, "/api/me", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "patient", body["role"])
	assert.Equal(t, "mock.user@example.com", body["email"])

	resp, body = p.do(http.MethodGet, "/api/auth/session", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["authenticated"])

	resp, body = p.do(http.MethodPost, "/api/auth/logout", nil, map[string]string{DefaultCSRFHeaderName: "forged"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "csrf_violation", body["error"])
	assert.Equal(t, 1, p.sessions.Len())

	resp, _ = p.do(http.MethodPost, "/api/auth/logout", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0, p.sessions.Len())
	assert.Empty(t, p.cookie(SessionCookieName))

	resp, body = p.do(http.MethodGet, "/api/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "unauthenticated", body["error"])
}

func TestRouter_CallbackRejectsForgedState(t *testing.T) {
	p := newPortal(t, nil)
	p.bootstrapCSRF()
	p.begin(http.MethodGet, "/api/auth/login", nil)

	resp, body := p.callback("code-1", "forged-state")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "csrf_violation", body["error"])
	assert.Equal(t, 0, p.provider.ExchangeCalls())
	assert.Empty(t, p.cookie(SessionCookieName))
}

func TestRouter_CallbackWithoutAttempt(t *testing.T) {
	p := newPortal(t, nil)

	resp, body := p.callback("code-1", "state")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "session_expired", body["error"])
}

func TestRouter_CallbackHidesProviderDetails(t *testing.T) {
	p := newPortal(t, nil)
	p.bootstrapCSRF()
	state := p.begin(http.MethodGet, "/api/auth/login", nil)

	p.provider.IdentityFunc = func(context.Context, ports.Tokens) (domainauth.Identity, error) {
		return domainauth.Identity{}, domainauth.NewFlowError(domainauth.ErrUserInfoFetchFailed,
			"userinfo returned 503", errors.New("upstream body: secret-diagnostic"))
	}

	resp, body := p.callback("code-1", state)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "userinfo_fetch_failed", body["error"])
	assert.NotContains(t, body["details"], "secret-diagnostic")
}

func TestRouter_RegistrationApproval(t *testing.T) {
	p := newPortal(t, nil)
	p.provider.DefaultUser = domainauth.Identity{Subject: "doctor-sub", Name: "Dr. Sara", Email: "sara@example.com"}
	p.bootstrapCSRF()

	resp, body := p.do(http.MethodPost, "/api/auth/register", map[string]string{"role": "doctor"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_registration", body["error"])

	state := p.begin(http.MethodPost, "/api/auth/register", map[string]string{
		"role":           "doctor",
		"license_number": "LIC-77",
	})
	resp, body = p.callback("code-1", state)
	require.Equal(t, http.StatusAccepted, resp.StatusCode, body)
	assert.Equal(t, true, body["pending"])
	assert.Nil(t, body["token"])
	assert.Empty(t, p.cookie(SessionCookieName))
	doctorID := body["user"].(map[string]any)["id"].(string)

	patient := p.seedAdmin("pat-1", domainauth.RolePatient)
	resp, _ = p.do(http.MethodGet, "/api/admin/accounts/pending", nil, map[string]string{"Authorization": "Bearer " + patient})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	admin := p.seedAdmin("adm-1", domainauth.RoleHospitalAdmin)
	bearer := map[string]string{"Authorization": "Bearer " + admin}
	resp, body = p.do(http.MethodGet, "/api/admin/accounts/pending", nil, bearer)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	pending := body["accounts"].([]any)
	require.Len(t, pending, 1)
	assert.Equal(t, doctorID, pending[0].(map[string]any)["id"])
	assert.Equal(t, "LIC-77", pending[0].(map[string]any)["license_number"])

	resp, body = p.do(http.MethodPost, "/api/admin/accounts/"+doctorID+"/approve",
		map[string]string{"reason": "license verified"}, bearer)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "approved", body["status"])
	assert.Equal(t, true, body["role_locked"])

	resp, body = p.do(http.MethodPost, "/api/admin/accounts/"+doctorID+"/approve", nil, bearer)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, body)

	state = p.begin(http.MethodGet, "/api/auth/login", nil)
	resp, body = p.callback("code-2", state)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "doctor", body["user"].(map[string]any)["role"])
	assert.NotEmpty(t, p.cookie(SessionCookieName))
}

func TestRouter_RegisterRequiresCSRF(t *testing.T) {
	p := newPortal(t, nil)

	resp, body := p.do(http.MethodPost, "/api/auth/register", map[string]string{"role": "patient"}, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "csrf_violation", body["error"])
}

func TestRouter_BrowserCallbackRedirects(t *testing.T) {
	p := newPortal(t, nil)
	p.bootstrapCSRF()
	state := p.begin(http.MethodGet, "/api/auth/login", nil)

	resp, _ := p.do(http.MethodGet, "/auth/callback?code=abc&state="+url.QueryEscape(state), nil, nil)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "portal.example.com", loc.Host)
	assert.Empty(t, loc.Query().Get("error"))
	assert.NotEmpty(t, p.cookie(SessionCookieName))

	resp, _ = p.do(http.MethodGet, "/auth/callback?error=access_denied&state=x", nil, nil)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	loc, err = url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "session_expired", loc.Query().Get("error"))
	assert.Equal(t, "login", loc.Query().Get("retry"))
}

func TestRouter_Health(t *testing.T) {
	down := false
	p := newPortal(t, map[string]Pinger{
		"redis": PingFunc(func(context.Context) error {
			if down {
				return errors.New("connection refused")
			}
			return nil
		}),
	})

	resp, body := p.do(http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	resp, _ = p.do(http.MethodGet, "/readyz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	down = true
	resp, body = p.do(http.MethodGet, "/readyz", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "redis", body["details"])
}

func TestRouter_CORSPreflight(t *testing.T) {
	p := newPortal(t, nil)

	preflight := func(origin string) *http.Response {
		req, err := http.NewRequestWithContext(context.Background(), http.MethodOptions, p.srv.URL+"/api/auth/register", nil)
		require.NoError(t, err)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		req.Header.Set("Access-Control-Request-Headers", "content-type,x-csrf-token")
		resp, err := p.client.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp
	}

	resp := preflight("https://portal.example.com")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://portal.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), http.MethodPost)

	resp = preflight("https://evil.example.net")
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Credentials"))

	resp, body := p.do(http.MethodGet, "/api/auth/session", nil, map[string]string{"Origin": "https://portal.example.com"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "https://portal.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, p.cookie(DefaultCSRFCookieName), body["csrfToken"])
}

func TestRouter_AuthRateLimit(t *testing.T) {
	h := NewRouter(RouterServices{
		FrontendURL:   "https://portal.example.com/",
		AuthRateLimit: RateLimitConfig{Requests: 2, Window: time.Hour},
		Logger:        discardLogger(),
	})

	hit := func(path, remote string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, path, nil)
		r.RemoteAddr = remote
		r.Header.Set("Origin", "https://portal.example.com")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w
	}

	for range 2 {
		require.Equal(t, http.StatusOK, hit("/api/auth/session", "198.51.100.20:40000").Code)
	}
	w := hit("/api/auth/session", "198.51.100.20:40001")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "rate_limited", decodeError(t, w).Error)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	// The frontend must be able to read the rejection.
	assert.Equal(t, "https://portal.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	assert.Equal(t, http.StatusOK, hit("/healthz", "198.51.100.20:40002").Code)
	assert.Equal(t, http.StatusOK, hit("/api/auth/session", "198.51.100.21:40000").Code)
}

func TestRouter_RegisterRejectsUnknownRole(t *testing.T) {
	p := newPortal(t, nil)
	p.bootstrapCSRF()

	resp, body := p.do(http.MethodPost, "/api/auth/register", map[string]string{"role": "surgeon"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_role", body["error"])
	assert.Equal(t, "role", body["field"])
	assert.Equal(t, "Unknown role.", body["details"])
	assert.Empty(t, p.cookie(LoginCookieName))
}

func TestRouter_BrowserCallbackRetryHint(t *testing.T) {
	p := newPortal(t, nil)
	p.bootstrapCSRF()

	redirect := func(query string) url.Values {
		resp, _ := p.do(http.MethodGet, "/auth/callback?"+query, nil, nil)
		require.Equal(t, http.StatusFound, resp.StatusCode)
		loc, err := url.Parse(resp.Header.Get("Location"))
		require.NoError(t, err)
		return loc.Query()
	}

	p.begin(http.MethodGet, "/api/auth/login", nil)
	q := redirect("code=abc&state=forged")
	assert.Equal(t, "csrf_violation", q.Get("error"))
	assert.Equal(t, "login", q.Get("retry"))

	state := p.begin(http.MethodGet, "/api/auth/login", nil)
	q = redirect("error=access_denied&state=" + url.QueryEscape(state))
	assert.Equal(t, "token_exchange_failed", q.Get("error"))
	assert.Empty(t, q.Get("retry"))
}
