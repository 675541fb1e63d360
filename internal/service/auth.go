package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hakim-ai/identity-gateway/internal/data/cryptoutil"
	domainauth "github.com/hakim-ai/identity-gateway/internal/domain/auth"
	"github.com/hakim-ai/identity-gateway/internal/observability/metrics"
	"github.com/hakim-ai/identity-gateway/internal/observability/statsd"
	"github.com/hakim-ai/identity-gateway/internal/pkce"
	"github.com/hakim-ai/identity-gateway/internal/ports"
)

const (
	// DefaultLoginAttemptTTL bounds how long a user may spend at the provider.
	DefaultLoginAttemptTTL = 10 * time.Minute
	loginIDBytes           = 32
)

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	Provider   ports.AuthProvider
	Attempts   ports.LoginAttemptStore
	Identities *IdentityService
	Sessions   *SessionManager
	AttemptTTL time.Duration
	Metrics    statsd.Sink
	Logger     *slog.Logger
	Now        func() time.Time
}

// AuthService orchestrates the authorization code flow: it prepares PKCE attempts, validates
// callbacks, exchanges codes and hands the resolved identity to account and session management.
type AuthService struct {
	provider   ports.AuthProvider
	attempts   ports.LoginAttemptStore
	identities *IdentityService
	sessions   *SessionManager
	attemptTTL time.Duration
	metrics    statsd.Sink
	logger     *slog.Logger
	now        func() time.Time
}

// NewAuthService constructs a new AuthService.
func NewAuthService(opts AuthServiceOptions) *AuthService {
	ttl := opts.AttemptTTL
	if ttl <= 0 {
		ttl = DefaultLoginAttemptTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &AuthService{
		provider:   opts.Provider,
		attempts:   opts.Attempts,
		identities: opts.Identities,
		sessions:   opts.Sessions,
		attemptTTL: ttl,
		metrics:    opts.Metrics,
		logger:     logger.With("component", "auth_service"),
		now:        now,
	}
}

// AttemptTTL returns how long a login attempt stays redeemable.
func (s *AuthService) AttemptTTL() time.Duration { return s.attemptTTL }

// BeginLoginResult contains the result of beginning a login flow.
type BeginLoginResult struct {
	// LoginID identifies the stored attempt. It is handed to the user agent in a cookie.
	LoginID          string
	AuthorizationURL string
}

// BeginLogin prepares a PKCE attempt, stores it server-side and returns the provider URL.
// A non-nil reg turns the attempt into a self-registration.
func (s *AuthService) BeginLogin(ctx context.Context, reg *domainauth.Registration) (*BeginLoginResult, error) {
	start := s.now()
	res, err := s.beginLogin(ctx, reg)
	s.emit(metrics.StageBegin, start, err)
	return res, err
}

func (s *AuthService) beginLogin(ctx context.Context, reg *domainauth.Registration) (*BeginLoginResult, error) {
	if reg != nil {
		if err := reg.Validate(); err != nil {
			return nil, err
		}
	}

	pc, err := pkce.NewContext()
	if err != nil {
		return nil, fmt.Errorf("prepare pkce: %w", err)
	}
	id, err := cryptoutil.RandomToken(loginIDBytes)
	if err != nil {
		return nil, fmt.Errorf("generate login id: %w", err)
	}

	authURL, err := s.provider.AuthorizationURL(pc)
	if err != nil {
		return nil, fmt.Errorf("build authorization url: %w", err)
	}

	attempt := domainauth.LoginAttempt{
		ID:           id,
		PKCE:         pc,
		State:        domainauth.FlowStart,
		CreatedAt:    s.now(),
		Registration: reg,
	}
	if err := attempt.Transition(domainauth.FlowAwaitingCallback); err != nil {
		return nil, err
	}
	if err := s.attempts.Save(ctx, attempt, s.attemptTTL); err != nil {
		return nil, fmt.Errorf("save login attempt: %w", err)
	}

	return &BeginLoginResult{LoginID: id, AuthorizationURL: authURL}, nil
}

// CallbackInput groups the values returned by the provider redirect.
type CallbackInput struct {
	LoginID string
	Code    string
	State   string
	// ProviderError is the error parameter of a failed redirect, if any.
	ProviderError string
}

// CallbackResult is a verified identity together with the attempt it completed.
type CallbackResult struct {
	Identity     domainauth.Identity
	Registration *domainauth.Registration
}

// HandleCallback consumes the stored attempt, checks state, exchanges the code with the stored
// verifier and fetches the identity. Each attempt is redeemable once: a replayed callback
// finds nothing and fails with ErrSessionExpired.
func (s *AuthService) HandleCallback(ctx context.Context, in CallbackInput) (*CallbackResult, error) {
	start := s.now()
	res, err := s.handleCallback(ctx, in)
	s.emit(metrics.StageCallback, start, err)
	if err != nil {
		attrs := []any{"error", err}
		var failed *domainauth.AttemptError
		if errors.As(err, &failed) {
			attrs = append(attrs, "flow_state", failed.State, "failed_from", failed.From)
		}
		s.logger.WarnContext(ctx, "login callback failed", attrs...)
	}
	return res, err
}

func (s *AuthService) handleCallback(ctx context.Context, in CallbackInput) (*CallbackResult, error) {
	if in.LoginID == "" {
		return nil, domainauth.NewFlowError(domainauth.ErrSessionExpired, "no login attempt in progress", nil)
	}
	attempt, err := s.attempts.Consume(ctx, in.LoginID)
	if errors.Is(err, ports.ErrNotFound) {
		return nil, domainauth.NewFlowError(domainauth.ErrSessionExpired, "login attempt missing or expired", nil)
	}
	if err != nil {
		return nil, fmt.Errorf("consume login attempt: %w", err)
	}

	// From here on the attempt is gone from the store; every failure ends it in FlowFailed.
	if attempt.State != domainauth.FlowAwaitingCallback {
		return nil, attempt.Fail(domainauth.NewFlowError(domainauth.ErrSessionExpired,
			fmt.Sprintf("login attempt in state %s", attempt.State), nil))
	}
	if !pkce.StateMatches(attempt.PKCE.State, in.State) {
		return nil, attempt.Fail(domainauth.NewFlowError(domainauth.ErrCsrfViolation, "state parameter mismatch", nil))
	}
	if in.ProviderError != "" {
		return nil, attempt.Fail(domainauth.NewFlowError(domainauth.ErrTokenExchangeFailed,
			"provider returned "+in.ProviderError, nil))
	}
	if in.Code == "" {
		return nil, attempt.Fail(domainauth.NewFlowError(domainauth.ErrTokenExchangeFailed, "authorization code missing", nil))
	}

	if err := attempt.Transition(domainauth.FlowExchanging); err != nil {
		return nil, attempt.Fail(err)
	}
	tokens, err := s.provider.ExchangeCode(ctx, in.Code, attempt.PKCE.Verifier)
	if err != nil {
		return nil, attempt.Fail(err)
	}
	identity, err := s.provider.FetchIdentity(ctx, tokens)
	if err != nil {
		return nil, attempt.Fail(err)
	}
	if err := identity.Validate(); err != nil {
		return nil, attempt.Fail(err)
	}
	if err := attempt.Transition(domainauth.FlowResolved); err != nil {
		return nil, attempt.Fail(err)
	}

	return &CallbackResult{Identity: identity, Registration: attempt.Registration}, nil
}

// LoginResult is the outcome of a completed flow. Session is nil when the account is pending.
type LoginResult struct {
	Account *domainauth.Account
	Session *domainauth.Session
	Pending bool
}

// CompleteLogin resolves or registers the account for a verified callback and issues a session.
// Pending registrations complete without a session.
func (s *AuthService) CompleteLogin(ctx context.Context, cb *CallbackResult) (*LoginResult, error) {
	start := s.now()
	acc, err := s.resolveAccount(ctx, cb)
	if err != nil {
		s.emit(metrics.StageResolve, start, err)
		return nil, err
	}

	if acc.Status == domainauth.StatusPending {
		metrics.EmitLogin(s.metrics, metrics.LoginMetric{
			Stage:    metrics.StageResolve,
			Result:   metrics.ResultPending,
			Duration: s.now().Sub(start),
		})
		return &LoginResult{Account: acc, Pending: true}, nil
	}
	s.emit(metrics.StageResolve, start, nil)

	start = s.now()
	sess, err := s.sessions.Issue(ctx, acc)
	s.emit(metrics.StageSession, start, err)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "login completed", "account_id", acc.ID, "role", acc.Role)
	return &LoginResult{Account: acc, Session: &sess}, nil
}

func (s *AuthService) resolveAccount(ctx context.Context, cb *CallbackResult) (*domainauth.Account, error) {
	if cb == nil {
		return nil, domainauth.NewFlowError(domainauth.ErrInvalidIdentityClaims, "no verified identity", nil)
	}
	if cb.Registration != nil {
		return s.identities.Register(ctx, cb.Identity, *cb.Registration)
	}
	return s.identities.Resolve(ctx, cb.Identity)
}

// Logout destroys the session behind handle. Unknown handles succeed.
func (s *AuthService) Logout(ctx context.Context, handle string) error {
	return s.sessions.Destroy(ctx, handle)
}

func (s *AuthService) emit(stage string, start time.Time, err error) {
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.EmitLogin(s.metrics, metrics.LoginMetric{
		Stage:    stage,
		Result:   result,
		Duration: s.now().Sub(start),
		Err:      err,
	})
}
