package ports

// Package ports defines interfaces (hexagonal ports) for identity and session behavior.
// Implementations live in internal/adapters; orchestration in internal/service.

import (
	"context"
	"errors"
	"time"

	domainauth "github.com/hakim-ai/identity-gateway/internal/domain/auth"
)

// ErrNotFound is returned by stores when a session or login attempt is absent or expired.
var ErrNotFound = errors.New("not found")

// Tokens is the subset of a token endpoint response the flow needs.
type Tokens struct {
	AccessToken string
	IDToken     string
	Expiry      time.Time
}

// AuthProvider talks to the external identity provider.
type AuthProvider interface {
	// AuthorizationURL builds the provider URL for a prepared PKCE context. It does not redirect.
	AuthorizationURL(pkce domainauth.PKCEContext) (string, error)

	// ExchangeCode trades the authorization code and verifier for tokens, authenticating with a
	// freshly minted client assertion.
	ExchangeCode(ctx context.Context, code, verifier string) (Tokens, error)

	// FetchIdentity loads and decodes the identity claims for an access token.
	FetchIdentity(ctx context.Context, tokens Tokens) (domainauth.Identity, error)
}

// LoginAttemptStore holds in-flight login attempts. Consume is atomic: of two concurrent
// calls for the same id at most one returns the attempt.
type LoginAttemptStore interface {
	Save(ctx context.Context, attempt domainauth.LoginAttempt, ttl time.Duration) error
	Consume(ctx context.Context, id string) (domainauth.LoginAttempt, error)
}

// SessionStore persists and retrieves sessions keyed by their opaque handle.
type SessionStore interface {
	Save(ctx context.Context, sess domainauth.Session) error
	Get(ctx context.Context, id string) (domainauth.Session, error)
	Delete(ctx context.Context, id string) error
	// DeleteByAccount removes every session of an account and returns how many were removed.
	DeleteByAccount(ctx context.Context, accountID string) (int, error)
}

// RoleDeriver maps an external subject to a role deterministically.
type RoleDeriver interface {
	Derive(subject string) domainauth.Role
}
