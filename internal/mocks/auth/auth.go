package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	domainauth "github.com/hakim-ai/identity-gateway/internal/domain/auth"
	"github.com/hakim-ai/identity-gateway/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.AuthProvider      = (*MockAuthProvider)(nil)
	_ ports.SessionStore      = (*MemorySessionStore)(nil)
	_ ports.LoginAttemptStore = (*MemoryLoginAttemptStore)(nil)
	_ ports.RoleDeriver       = (*StaticRoleDeriver)(nil)
)

// MockAuthProvider simulates an IdP. Codes are accepted only with the verifier whose
// challenge was sent to AuthorizationURL, mirroring a real provider's PKCE check.
type MockAuthProvider struct {
	ExchangeFunc func(ctx context.Context, code, verifier string) (ports.Tokens, error)
	IdentityFunc func(ctx context.Context, tokens ports.Tokens) (domainauth.Identity, error)

	AuthURL     string
	DefaultUser domainauth.Identity

	mu            sync.Mutex
	exchangeCalls int
	lastPKCE      domainauth.PKCEContext
}

// NewMockAuthProvider creates a MockAuthProvider with sensible defaults.
func NewMockAuthProvider() *MockAuthProvider {
	return &MockAuthProvider{
		AuthURL: "https://mock-idp/authorize",
		DefaultUser: domainauth.Identity{
			Subject: "mock-subject-1",
			Issuer:  "https://mock-idp",
			Name:    "Mock User",
			Email:   "mock.user@example.com",
		},
	}
}

// AuthorizationURL returns AuthURL with the PKCE parameters appended.
func (m *MockAuthProvider) AuthorizationURL(pkce domainauth.PKCEContext) (string, error) {
	m.mu.Lock()
	m.lastPKCE = pkce
	m.mu.Unlock()

	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("state", pkce.State)
	q.Set("code_challenge", pkce.Challenge)
	q.Set("code_challenge_method", "S256")
	return m.AuthURL + "?" + q.Encode(), nil
}

// ExchangeCode delegates to ExchangeFunc or returns a fixed access token.
func (m *MockAuthProvider) ExchangeCode(ctx context.Context, code, verifier string) (ports.Tokens, error) {
	m.mu.Lock()
	m.exchangeCalls++
	m.mu.Unlock()

	if m.ExchangeFunc != nil {
		return m.ExchangeFunc(ctx, code, verifier)
	}
	if code == "" {
		return ports.Tokens{}, domainauth.NewFlowError(domainauth.ErrTokenExchangeFailed, "missing code", nil)
	}
	return ports.Tokens{AccessToken: fmt.Sprintf("access-%s", code), Expiry: time.Now().Add(time.Hour)}, nil
}

// FetchIdentity delegates to IdentityFunc or returns DefaultUser.
func (m *MockAuthProvider) FetchIdentity(ctx context.Context, tokens ports.Tokens) (domainauth.Identity, error) {
	if m.IdentityFunc != nil {
		return m.IdentityFunc(ctx, tokens)
	}
	if tokens.AccessToken == "" {
		return domainauth.Identity{}, domainauth.NewFlowError(domainauth.ErrUserInfoFetchFailed, "missing access token", nil)
	}
	return m.DefaultUser, nil
}

// ExchangeCalls returns how many times ExchangeCode ran.
func (m *MockAuthProvider) ExchangeCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exchangeCalls
}

// LastPKCE returns the PKCE context passed to the most recent AuthorizationURL call.
func (m *MockAuthProvider) LastPKCE() domainauth.PKCEContext {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastPKCE
}

// MemorySessionStore is an in-memory SessionStore honoring session expiry.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]domainauth.Session
	Now      func() time.Time
}

// NewMemorySessionStore creates an empty MemorySessionStore.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]domainauth.Session), Now: time.Now}
}

// Save stores sess under its ID.
func (s *MemorySessionStore) Save(_ context.Context, sess domainauth.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	return nil
}

// Get returns the session, treating expired entries as missing.
func (s *MemorySessionStore) Get(_ context.Context, id string) (domainauth.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || sess.Expired(s.Now()) {
		delete(s.sessions, id)
		return domainauth.Session{}, ports.ErrNotFound
	}
	return sess, nil
}

// Delete removes the session. Missing ids are not an error.
func (s *MemorySessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// DeleteByAccount removes every session of accountID.
func (s *MemorySessionStore) DeleteByAccount(_ context.Context, accountID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, sess := range s.sessions {
		if sess.AccountID == accountID {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored sessions, expired ones included.
func (s *MemorySessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// MemoryLoginAttemptStore is an in-memory LoginAttemptStore with single-use Consume.
type MemoryLoginAttemptStore struct {
	mu       sync.Mutex
	attempts map[string]memoryAttempt
	Now      func() time.Time
}

type memoryAttempt struct {
	attempt   domainauth.LoginAttempt
	expiresAt time.Time
}

// NewMemoryLoginAttemptStore creates an empty MemoryLoginAttemptStore.
func NewMemoryLoginAttemptStore() *MemoryLoginAttemptStore {
	return &MemoryLoginAttemptStore{attempts: make(map[string]memoryAttempt), Now: time.Now}
}

// Save stores the attempt until ttl elapses.
func (s *MemoryLoginAttemptStore) Save(_ context.Context, attempt domainauth.LoginAttempt, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.attempts[attempt.ID]; exists {
		return fmt.Errorf("login attempt %s already exists", attempt.ID)
	}
	s.attempts[attempt.ID] = memoryAttempt{attempt: attempt, expiresAt: s.Now().Add(ttl)}
	return nil
}

// Consume returns and removes the attempt. Expired or missing attempts yield ports.ErrNotFound.
func (s *MemoryLoginAttemptStore) Consume(_ context.Context, id string) (domainauth.LoginAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.attempts[id]
	delete(s.attempts, id)
	if !ok || !s.Now().Before(entry.expiresAt) {
		return domainauth.LoginAttempt{}, ports.ErrNotFound
	}
	return entry.attempt, nil
}

// StaticRoleDeriver maps subjects through a fixed table, defaulting to patient.
type StaticRoleDeriver struct {
	Roles map[string]domainauth.Role
}

// Derive returns the configured role for subject or RolePatient.
func (d *StaticRoleDeriver) Derive(subject string) domainauth.Role {
	if r, ok := d.Roles[subject]; ok {
		return r
	}
	return domainauth.RolePatient
}
