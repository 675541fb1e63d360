package oidc

// Package oidc provides the relying-party side of the OAuth2/OIDC authorization code flow:
// authorization URL construction, private-key JWT token exchange and userinfo decoding.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	domainauth "github.com/hakim-ai/identity-gateway/internal/domain/auth"
	"github.com/hakim-ai/identity-gateway/internal/pkce"
	"github.com/hakim-ai/identity-gateway/internal/ports"
)

const (
	defaultScope      = "openid profile email"
	defaultACRValues  = "mosip:idp:acr:generated-code"
	defaultMaxRetries = 3
	defaultRetryDelay = 250 * time.Millisecond
)

// DefaultEssentialClaims are the userinfo attributes requested as essential.
var DefaultEssentialClaims = []string{
	"name", "phone_number", "email", "picture", "gender", "birthdate", "address",
}

// Provider implements ports.AuthProvider against an OIDC provider that authenticates
// clients with private_key_jwt.
type Provider struct {
	config        *oauth2.Config
	signer        *AssertionSigner
	assertionType string
	acrValues     string
	claimsParam   string
	userInfoURL   string
	issuer        string
	keySet        gooidc.KeySet
	skipVerify    bool
	claims        *ClaimMapper
	httpClient    *http.Client
	maxRetries    uint
	retryDelay    time.Duration
	logger        *slog.Logger
	now           func() time.Time
}

// ProviderConfig holds configuration for the OIDC provider.
type ProviderConfig struct {
	ClientID    string
	RedirectURL string

	// Endpoints. When Issuer is set, discovery fills the ones left empty.
	Issuer                string
	AuthorizationEndpoint string
	TokenEndpoint         string
	UserInfoEndpoint      string
	JWKSURL               string

	// PrivateKey is a JWK (raw or base64) or PEM private key. Algorithm overrides the JWK's alg.
	PrivateKey          string
	Algorithm           string
	ClientAssertionType string

	Scope           string
	ACRValues       string
	EssentialClaims []string
	ClaimPaths      ClaimPaths

	// SkipUserInfoVerify decodes signed userinfo responses without checking the signature.
	SkipUserInfoVerify bool

	MaxRetries int
	RetryDelay time.Duration
	HTTPClient *http.Client // Optional, defaults to a client with a 30s timeout
	Logger     *slog.Logger
}

// DiscoveryDocument represents the subset of the OIDC discovery document used here.
type DiscoveryDocument struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint"`
	JwksURI               string `json:"jwks_uri"`
}

func (c *ProviderConfig) validate() error {
	if c.ClientID == "" {
		return errors.New("client ID is required")
	}
	if c.RedirectURL == "" {
		return errors.New("redirect URL is required")
	}
	if c.Issuer == "" {
		switch {
		case c.AuthorizationEndpoint == "":
			return errors.New("authorization endpoint is required")
		case c.TokenEndpoint == "":
			return errors.New("token endpoint is required")
		case c.UserInfoEndpoint == "":
			return errors.New("userinfo endpoint is required")
		}
	}
	return nil
}

// NewProvider creates a new OIDC provider. Discovery runs once here when an issuer is configured.
func NewProvider(ctx context.Context, cfg ProviderConfig) (*Provider, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	key, err := ParseSigningKey(cfg.PrivateKey, cfg.Algorithm)
	if err != nil {
		return nil, err
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Issuer != "" {
		if discErr := discover(gooidc.ClientContext(ctx, httpClient), &cfg); discErr != nil {
			return nil, discErr
		}
	}

	signer, err := NewAssertionSigner(AssertionSignerOptions{
		ClientID:      cfg.ClientID,
		TokenEndpoint: cfg.TokenEndpoint,
		Key:           key,
	})
	if err != nil {
		return nil, err
	}

	mapper, err := NewClaimMapper(cfg.ClaimPaths)
	if err != nil {
		return nil, fmt.Errorf("claim paths: %w", err)
	}

	claimsParam, err := buildClaimsParam(cfg.EssentialClaims)
	if err != nil {
		return nil, err
	}

	p := &Provider{
		config: &oauth2.Config{
			ClientID:    cfg.ClientID,
			RedirectURL: cfg.RedirectURL,
			Scopes:      strings.Fields(firstNonEmpty(cfg.Scope, defaultScope)),
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthorizationEndpoint,
				TokenURL:  cfg.TokenEndpoint,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		signer:        signer,
		assertionType: firstNonEmpty(cfg.ClientAssertionType, ClientAssertionTypeJWTBearer),
		acrValues:     firstNonEmpty(cfg.ACRValues, defaultACRValues),
		claimsParam:   claimsParam,
		userInfoURL:   cfg.UserInfoEndpoint,
		issuer:        cfg.Issuer,
		skipVerify:    cfg.SkipUserInfoVerify,
		claims:        mapper,
		httpClient:    httpClient,
		maxRetries:    uint(defaultMaxRetries),
		retryDelay:    defaultRetryDelay,
		logger:        logger.With("component", "oidc_provider"),
		now:           time.Now,
	}
	if cfg.MaxRetries > 0 {
		p.maxRetries = uint(cfg.MaxRetries) // #nosec G115 -- checked positive
	}
	if cfg.RetryDelay > 0 {
		p.retryDelay = cfg.RetryDelay
	}
	if cfg.JWKSURL != "" {
		// The key set outlives any request, so it must not capture a request context.
		p.keySet = gooidc.NewRemoteKeySet(gooidc.ClientContext(context.Background(), httpClient), cfg.JWKSURL)
	}
	if p.skipVerify {
		p.logger.Warn("userinfo signature verification disabled")
	} else if p.keySet == nil {
		p.logger.Warn("no JWKS configured; signed userinfo responses will be rejected")
	}
	return p, nil
}

func discover(ctx context.Context, cfg *ProviderConfig) error {
	issuer := strings.TrimSuffix(cfg.Issuer, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")
	op, err := gooidc.NewProvider(ctx, issuer)
	if err != nil {
		return fmt.Errorf("oidc new provider: %w", err)
	}
	var doc DiscoveryDocument
	if claimsErr := op.Claims(&doc); claimsErr != nil {
		return fmt.Errorf("decode discovery document: %w", claimsErr)
	}
	cfg.Issuer = issuer
	endpoint := op.Endpoint()
	cfg.AuthorizationEndpoint = firstNonEmpty(cfg.AuthorizationEndpoint, endpoint.AuthURL)
	cfg.TokenEndpoint = firstNonEmpty(cfg.TokenEndpoint, endpoint.TokenURL)
	cfg.UserInfoEndpoint = firstNonEmpty(cfg.UserInfoEndpoint, op.UserInfoEndpoint())
	cfg.JWKSURL = firstNonEmpty(cfg.JWKSURL, doc.JwksURI)
	if cfg.UserInfoEndpoint == "" {
		return errors.New("provider does not advertise a userinfo endpoint")
	}
	return nil
}

// buildClaimsParam renders the OIDC claims request marking each attribute as essential.
func buildClaimsParam(names []string) (string, error) {
	if len(names) == 0 {
		names = DefaultEssentialClaims
	}
	userinfo := make(map[string]map[string]bool, len(names))
	for _, n := range names {
		userinfo[n] = map[string]bool{"essential": true}
	}
	b, err := json.Marshal(map[string]any{
		"userinfo": userinfo,
		"id_token": map[string]any{},
	})
	if err != nil {
		return "", fmt.Errorf("encode claims parameter: %w", err)
	}
	return string(b), nil
}

// AuthorizationURL builds the URL to redirect the user to the provider.
func (p *Provider) AuthorizationURL(c domainauth.PKCEContext) (string, error) {
	if c.State == "" {
		return "", errors.New("state parameter is required")
	}
	if c.Challenge == "" {
		return "", errors.New("code challenge is required")
	}
	return p.config.AuthCodeURL(c.State,
		oauth2.SetAuthURLParam("code_challenge", c.Challenge),
		oauth2.SetAuthURLParam("code_challenge_method", pkce.MethodS256),
		oauth2.SetAuthURLParam("acr_values", p.acrValues),
		oauth2.SetAuthURLParam("claims", p.claimsParam),
	), nil
}

// ExchangeCode exchanges an authorization code for tokens. A new client assertion is minted for
// every attempt. 4xx responses are terminal; network errors and 5xx are retried with backoff.
func (p *Provider) ExchangeCode(ctx context.Context, code, verifier string) (ports.Tokens, error) {
	if code == "" {
		return ports.Tokens{}, domainauth.NewFlowError(domainauth.ErrTokenExchangeFailed, "authorization code is required", nil)
	}
	if verifier == "" {
		return ports.Tokens{}, domainauth.NewFlowError(domainauth.ErrTokenExchangeFailed, "code verifier is required", nil)
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	tok, err := backoff.Retry(ctx, func() (*oauth2.Token, error) {
		assertion, signErr := p.signer.Sign()
		if signErr != nil {
			return nil, backoff.Permanent(signErr)
		}
		t, exErr := p.config.Exchange(ctx, code,
			oauth2.VerifierOption(verifier),
			oauth2.SetAuthURLParam("client_assertion", assertion),
			oauth2.SetAuthURLParam("client_assertion_type", p.assertionType),
		)
		if exErr != nil && !retryableExchangeError(exErr) {
			return nil, backoff.Permanent(exErr)
		}
		return t, exErr
	}, p.retryOptions(ctx, "token exchange")...)
	if err != nil {
		if errors.Is(err, domainauth.ErrSigningError) {
			return ports.Tokens{}, err
		}
		return ports.Tokens{}, tokenExchangeError(err)
	}

	idToken, _ := tok.Extra("id_token").(string)
	return ports.Tokens{AccessToken: tok.AccessToken, IDToken: idToken, Expiry: tok.Expiry}, nil
}

func (p *Provider) retryOptions(ctx context.Context, op string) []backoff.RetryOption {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.retryDelay
	return []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxTries(p.maxRetries),
		backoff.WithNotify(func(err error, next time.Duration) {
			p.logger.WarnContext(ctx, "retrying provider call", "op", op, "error", err, "next", next)
		}),
	}
}

func retryableExchangeError(err error) bool {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		return re.Response != nil && re.Response.StatusCode >= http.StatusInternalServerError
	}
	return isTransportError(err)
}

func tokenExchangeError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		detail := re.ErrorCode
		if re.ErrorDescription != "" {
			detail = firstNonEmpty(detail, "error") + ": " + re.ErrorDescription
		}
		if detail == "" && re.Response != nil {
			detail = fmt.Sprintf("token endpoint returned status %d", re.Response.StatusCode)
		}
		return domainauth.NewFlowError(domainauth.ErrTokenExchangeFailed, detail, nil)
	}
	return domainauth.NewFlowError(domainauth.ErrTokenExchangeFailed, "token request failed", err)
}

// firstNonEmpty returns the first non-empty string from vals, or empty string if none.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
