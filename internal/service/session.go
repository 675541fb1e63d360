package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hakim-ai/identity-gateway/internal/core"
	"github.com/hakim-ai/identity-gateway/internal/data"
	"github.com/hakim-ai/identity-gateway/internal/data/cryptoutil"
	domainauth "github.com/hakim-ai/identity-gateway/internal/domain/auth"
	"github.com/hakim-ai/identity-gateway/internal/observability/metrics"
	"github.com/hakim-ai/identity-gateway/internal/observability/statsd"
	"github.com/hakim-ai/identity-gateway/internal/ports"
)

const (
	// DefaultSessionTTL applies when no TTL is configured.
	DefaultSessionTTL = 8 * time.Hour
	// sessionHandleBytes is the entropy of an opaque session handle.
	sessionHandleBytes = 32
)

// SessionManagerOptions groups dependencies for SessionManager.
type SessionManagerOptions struct {
	Store    ports.SessionStore
	Accounts core.AccountRepository
	TTL      time.Duration
	Metrics  statsd.Sink
	Logger   *slog.Logger
	Now      func() time.Time
}

// SessionManager issues and validates the opaque handles used by authenticated requests.
type SessionManager struct {
	store    ports.SessionStore
	accounts core.AccountRepository
	ttl      time.Duration
	metrics  statsd.Sink
	logger   *slog.Logger
	now      func() time.Time
}

// Principal is a validated session together with the current state of its account.
type Principal struct {
	Session domainauth.Session
	Account *domainauth.Account
}

// Role returns the account's current role.
func (p *Principal) Role() domainauth.Role {
	if p == nil || p.Account == nil {
		return ""
	}
	return p.Account.Role
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(opts SessionManagerOptions) *SessionManager {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &SessionManager{
		store:    opts.Store,
		accounts: opts.Accounts,
		ttl:      ttl,
		metrics:  opts.Metrics,
		logger:   logger.With("component", "session_manager"),
		now:      now,
	}
}

// TTL returns the lifetime of newly issued sessions.
func (m *SessionManager) TTL() time.Duration { return m.ttl }

// Issue binds acc to a new opaque handle and stamps the account's last authentication.
// Accounts that cannot log in never receive a handle.
func (m *SessionManager) Issue(ctx context.Context, acc *domainauth.Account) (domainauth.Session, error) {
	if acc == nil {
		return domainauth.Session{}, errors.New("account is required")
	}
	if err := acc.CheckUsable(); err != nil {
		return domainauth.Session{}, err
	}

	handle, err := cryptoutil.RandomToken(sessionHandleBytes)
	if err != nil {
		return domainauth.Session{}, fmt.Errorf("generate session handle: %w", err)
	}
	now := m.now()
	if err := m.accounts.TouchLastAuthenticated(ctx, acc.ID, now); err != nil {
		return domainauth.Session{}, fmt.Errorf("touch last authenticated: %w", err)
	}

	sess := domainauth.Session{
		ID:        handle,
		AccountID: acc.ID,
		Subject:   acc.ExternalSubject,
		Role:      acc.Role,
		Name:      acc.Profile.Name,
		Email:     acc.Profile.Email,
		IssuedAt:  now,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.store.Save(ctx, sess); err != nil {
		return domainauth.Session{}, fmt.Errorf("save session: %w", err)
	}
	return sess, nil
}

// Validate resolves a handle to its principal. Missing, expired and revoked handles, and
// handles whose account can no longer log in, fail with ErrUnauthenticated.
func (m *SessionManager) Validate(ctx context.Context, handle string) (*Principal, error) {
	p, err := m.validate(ctx, handle)
	metrics.EmitSessionValidation(m.metrics, err)
	return p, err
}

func (m *SessionManager) validate(ctx context.Context, handle string) (*Principal, error) {
	if handle == "" {
		return nil, domainauth.ErrUnauthenticated
	}

	sess, err := m.store.Get(ctx, handle)
	if errors.Is(err, ports.ErrNotFound) {
		return nil, domainauth.ErrUnauthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	if sess.Expired(m.now()) {
		m.discard(ctx, handle)
		return nil, domainauth.NewFlowError(domainauth.ErrUnauthenticated, "session expired", nil)
	}

	acc, err := m.accounts.GetByID(ctx, sess.AccountID)
	if errors.Is(err, data.ErrAccountNotFound) {
		m.discard(ctx, handle)
		return nil, domainauth.NewFlowError(domainauth.ErrUnauthenticated, "account no longer exists", nil)
	}
	if err != nil {
		return nil, fmt.Errorf("load session account: %w", err)
	}
	if usableErr := acc.CheckUsable(); usableErr != nil {
		m.discard(ctx, handle)
		return nil, domainauth.NewFlowError(domainauth.ErrUnauthenticated, "account cannot log in", usableErr)
	}

	// The account row is canonical; a role changed by an approver applies immediately.
	sess.Role = acc.Role
	return &Principal{Session: sess, Account: acc}, nil
}

func (m *SessionManager) discard(ctx context.Context, handle string) {
	if err := m.store.Delete(ctx, handle); err != nil {
		m.logger.WarnContext(ctx, "failed to delete invalid session", "error", err)
	}
}

// Authorize applies the role predicate to a validated principal.
func (m *SessionManager) Authorize(p *Principal, required ...domainauth.Role) error {
	if p == nil || p.Account == nil {
		return domainauth.ErrUnauthenticated
	}
	return domainauth.Authorize(p.Account.Role, required...)
}

// Destroy removes a session. Destroying an unknown or already destroyed handle succeeds.
func (m *SessionManager) Destroy(ctx context.Context, handle string) error {
	if handle == "" {
		return nil
	}
	if err := m.store.Delete(ctx, handle); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// RevokeAll destroys every session of an account and reports how many were removed.
func (m *SessionManager) RevokeAll(ctx context.Context, accountID string) (int, error) {
	n, err := m.store.DeleteByAccount(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("revoke sessions: %w", err)
	}
	if n > 0 {
		m.logger.InfoContext(ctx, "revoked sessions", "account_id", accountID, "count", n)
	}
	return n, nil
}
