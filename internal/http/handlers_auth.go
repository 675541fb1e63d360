package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	domainauth "github.com/hakim-ai/identity-gateway/internal/domain/auth"
	apperrors "github.com/hakim-ai/identity-gateway/internal/errors"
	obserrors "github.com/hakim-ai/identity-gateway/internal/observability/errors"
	"github.com/hakim-ai/identity-gateway/internal/service"
)

// AuthFlow defines the login flow operations used by the handlers.
type AuthFlow interface {
	BeginLogin(ctx context.Context, reg *domainauth.Registration) (*service.BeginLoginResult, error)
	HandleCallback(ctx context.Context, in service.CallbackInput) (*service.CallbackResult, error)
	CompleteLogin(ctx context.Context, cb *service.CallbackResult) (*service.LoginResult, error)
	Logout(ctx context.Context, handle string) error
	AttemptTTL() time.Duration
}

// AuthHandlers provides HTTP handlers for authentication operations.
type AuthHandlers struct {
	Flow         AuthFlow
	CookieDomain string
	// FrontendURL is where the browser callback lands after login.
	FrontendURL string
	Logger      *slog.Logger
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *AuthHandlers) cookies() cookieWriter { return cookieWriter{Domain: h.CookieDomain} }

// UserView is the public summary of an account.
type UserView struct {
	ID     string                   `json:"id"`
	Role   domainauth.Role          `json:"role"`
	Name   string                   `json:"name"`
	Email  string                   `json:"email"`
	Status domainauth.AccountStatus `json:"status"`
}

func userView(acc *domainauth.Account) UserView {
	return UserView{
		ID:     acc.ID,
		Role:   acc.Role,
		Name:   acc.Profile.Name,
		Email:  acc.Profile.Email,
		Status: acc.Status,
	}
}

type beginResponse struct {
	AuthorizationURL string `json:"authorizationUrl"`
}

// Login starts a login and returns the provider URL.
// GET /api/auth/login.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	h.begin(w, r, nil)
}

type registerRequest struct {
	Role          string `json:"role"`
	LicenseNumber string `json:"license_number"`
	HospitalID    string `json:"hospital_id"`
}

// Register starts a login that creates an account with the requested role.
// POST /api/auth/register.
func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !DecodeJSON(w, r, h.logger(), &req) {
		return
	}
	role, err := domainauth.ParseRole(req.Role)
	if err != nil {
		appErr := apperrors.ValidationField("role", "Unknown role.")
		appErr.Cause = err
		WriteAppError(w, r, h.logger(), appErr)
		return
	}
	h.begin(w, r, &domainauth.Registration{
		Role:          role,
		LicenseNumber: req.LicenseNumber,
		HospitalID:    req.HospitalID,
	})
}

func (h *AuthHandlers) begin(w http.ResponseWriter, r *http.Request, reg *domainauth.Registration) {
	res, err := h.Flow.BeginLogin(r.Context(), reg)
	if err != nil {
		WriteAppError(w, r, h.logger(), err)
		return
	}
	h.cookies().set(w, r, LoginCookieName, res.LoginID, h.Flow.AttemptTTL())
	WriteJSON(w, http.StatusOK, beginResponse{AuthorizationURL: res.AuthorizationURL})
}

type callbackRequest struct {
	AuthorizationCode string `json:"authorization_code"`
	State             string `json:"state"`
	Error             string `json:"error,omitempty"`
}

type callbackResponse struct {
	Success   bool       `json:"success"`
	Pending   bool       `json:"pending,omitempty"`
	User      UserView   `json:"user"`
	Token     string     `json:"token,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Callback completes a login from the values the frontend received on its redirect URI.
// POST /api/auth/callback.
func (h *AuthHandlers) Callback(w http.ResponseWriter, r *http.Request) {
	var req callbackRequest
	if !DecodeJSON(w, r, h.logger(), &req) {
		return
	}

	res, err := h.complete(w, r, service.CallbackInput{
		Code:          req.AuthorizationCode,
		State:         req.State,
		ProviderError: req.Error,
	})
	if err != nil {
		WriteAppError(w, r, h.logger(), err)
		return
	}

	if res.Pending {
		WriteJSON(w, http.StatusAccepted, callbackResponse{Success: true, Pending: true, User: userView(res.Account)})
		return
	}
	WriteJSON(w, http.StatusOK, callbackResponse{
		Success:   true,
		User:      userView(res.Account),
		Token:     res.Session.ID,
		ExpiresAt: &res.Session.ExpiresAt,
	})
}

// BrowserCallback completes a login when the provider redirects to the backend, then sends the
// browser to the frontend.
// GET /auth/callback?code=<code>&state=<state>.
func (h *AuthHandlers) BrowserCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := h.complete(w, r, service.CallbackInput{
		Code:          q.Get("code"),
		State:         q.Get("state"),
		ProviderError: q.Get("error"),
	})

	target := h.frontendURL()
	values := target.Query()
	switch {
	case err != nil:
		h.logger().InfoContext(r.Context(), "browser callback failed", "kind", obserrors.Classify(err), "error", err)
		values.Set("error", loginErrorParam(err))
		if domainauth.Recoverable(err) {
			values.Set("retry", "login")
		}
	case res.Pending:
		values.Set("status", "pending")
	}
	target.RawQuery = values.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}

func (h *AuthHandlers) frontendURL() *url.URL {
	u, err := url.Parse(h.FrontendURL)
	if err != nil || h.FrontendURL == "" {
		return &url.URL{Path: "/"}
	}
	return u
}

// loginErrorParam exposes only the taxonomy kind to the frontend.
func loginErrorParam(err error) string {
	if kind, ok := obserrors.Kind(err); ok {
		return kind
	}
	return "internal"
}

// complete runs the callback and completion steps shared by both callback variants. The login
// cookie is cleared whatever the outcome since the attempt is consumed.
func (h *AuthHandlers) complete(w http.ResponseWriter, r *http.Request, in service.CallbackInput) (*service.LoginResult, error) {
	in.LoginID = cookieValue(r, LoginCookieName)
	h.cookies().clear(w, r, LoginCookieName)

	cb, err := h.Flow.HandleCallback(r.Context(), in)
	if err != nil {
		return nil, err
	}
	res, err := h.Flow.CompleteLogin(r.Context(), cb)
	if err != nil {
		return nil, err
	}
	if res.Session != nil {
		h.cookies().set(w, r, SessionCookieName, res.Session.ID, time.Until(res.Session.ExpiresAt))
	}
	return res, nil
}

// sessionResponse carries the CSRF token too: a frontend on another origin cannot read the cookie.
type sessionResponse struct {
	Authenticated bool       `json:"authenticated"`
	User          *UserView  `json:"user,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	CSRFToken     string     `json:"csrfToken,omitempty"`
}

// Session reports whether the caller holds a valid session. It never fails with 401.
// GET /api/auth/session.
func (h *AuthHandlers) Session(w http.ResponseWriter, r *http.Request) {
	p, ok := GetPrincipalFromContext(r.Context())
	if !ok {
		if handle, bearer := sessionHandle(r); handle != "" && !bearer {
			h.cookies().clear(w, r, SessionCookieName)
		}
		WriteJSON(w, http.StatusOK, sessionResponse{Authenticated: false, CSRFToken: GetCSRFToken(r)})
		return
	}
	u := userView(p.Account)
	WriteJSON(w, http.StatusOK, sessionResponse{
		Authenticated: true,
		User:          &u,
		ExpiresAt:     &p.Session.ExpiresAt,
		CSRFToken:     GetCSRFToken(r),
	})
}

// Logout destroys the caller's session. Logging out without a session succeeds.
// POST /api/auth/logout.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	handle, _ := sessionHandle(r)
	if err := h.Flow.Logout(r.Context(), handle); err != nil {
		// The cookie is cleared regardless; a stale server-side entry expires on its own.
		h.logger().WarnContext(r.Context(), "logout failed", "error", err)
	}
	h.cookies().clear(w, r, SessionCookieName)
	WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

var errNoPrincipal = errors.New("no principal in request context")

func principalOrError(r *http.Request) (*service.Principal, error) {
	p, ok := GetPrincipalFromContext(r.Context())
	if !ok {
		return nil, domainauth.NewFlowError(domainauth.ErrUnauthenticated, "", errNoPrincipal)
	}
	return p, nil
}
