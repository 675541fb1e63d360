package devauth

// Package devauth provides a simple, config-driven AuthProvider for local development.

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/hakim-ai/identity-gateway/internal/data/cryptoutil"
	domainauth "github.com/hakim-ai/identity-gateway/internal/domain/auth"
	"github.com/hakim-ai/identity-gateway/internal/pkce"
	"github.com/hakim-ai/identity-gateway/internal/ports"
)

// Config controls the dev auth provider behavior.
// Subject and Email are required.
type Config struct {
	Subject string
	Email   string
	Name    string
	// CallbackPath is where the browser is sent instead of a real provider. Default /auth/callback.
	CallbackPath string
	// CodeTTL bounds how long an issued code can be exchanged. Default 5m.
	CodeTTL time.Duration
}

// Provider implements ports.AuthProvider for local development.
// It short-circuits the OAuth flow by redirecting back to our own callback with a locally
// issued code. Codes are single use and bound to the PKCE challenge like a real provider's.
type Provider struct {
	identity     domainauth.Identity
	callbackPath string
	codeTTL      time.Duration

	mu    sync.Mutex
	codes map[string]issuedCode
	now   func() time.Time
}

type issuedCode struct {
	challenge string
	expiresAt time.Time
}

var _ ports.AuthProvider = (*Provider)(nil)

// NewProvider constructs a dev auth provider from Config.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.Subject == "" {
		return nil, errors.New("dev auth: Subject is required")
	}
	if cfg.Email == "" {
		return nil, errors.New("dev auth: Email is required")
	}
	path := cfg.CallbackPath
	if path == "" {
		path = "/auth/callback"
	}
	ttl := cfg.CodeTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	name := cfg.Name
	if name == "" {
		name = "Dev User"
	}
	return &Provider{
		identity: domainauth.Identity{
			Subject: cfg.Subject,
			Issuer:  "devauth",
			Name:    name,
			Email:   cfg.Email,
		},
		callbackPath: path,
		codeTTL:      ttl,
		codes:        make(map[string]issuedCode),
		now:          time.Now,
	}, nil
}

// AuthorizationURL issues a code bound to the challenge and returns the local callback URL.
func (p *Provider) AuthorizationURL(pc domainauth.PKCEContext) (string, error) {
	code, err := cryptoutil.RandomToken(24)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}

	p.mu.Lock()
	now := p.now()
	for c, ic := range p.codes {
		if !now.Before(ic.expiresAt) {
			delete(p.codes, c)
		}
	}
	p.codes[code] = issuedCode{challenge: pc.Challenge, expiresAt: now.Add(p.codeTTL)}
	p.mu.Unlock()

	q := url.Values{}
	q.Set("code", code)
	q.Set("state", pc.State)
	return p.callbackPath + "?" + q.Encode(), nil
}

// ExchangeCode redeems a code issued by AuthorizationURL once, checking the verifier.
func (p *Provider) ExchangeCode(_ context.Context, code, verifier string) (ports.Tokens, error) {
	p.mu.Lock()
	ic, ok := p.codes[code]
	delete(p.codes, code)
	now := p.now()
	p.mu.Unlock()

	if !ok || !now.Before(ic.expiresAt) {
		return ports.Tokens{}, domainauth.NewFlowError(domainauth.ErrTokenExchangeFailed, "invalid_grant: unknown or expired code", nil)
	}
	if !pkce.VerifyChallenge(verifier, ic.challenge) {
		return ports.Tokens{}, domainauth.NewFlowError(domainauth.ErrTokenExchangeFailed, "invalid_grant: code_verifier mismatch", nil)
	}
	return ports.Tokens{AccessToken: "dev-" + code, Expiry: now.Add(time.Hour)}, nil
}

// FetchIdentity returns the configured identity for any token this provider issued.
func (p *Provider) FetchIdentity(_ context.Context, tokens ports.Tokens) (domainauth.Identity, error) {
	if tokens.AccessToken == "" {
		return domainauth.Identity{}, domainauth.NewFlowError(domainauth.ErrUserInfoFetchFailed, "missing access token", nil)
	}
	return p.identity, nil
}
