package oidc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"

	"github.com/cenkalti/backoff/v5"
	jose "github.com/go-jose/go-jose/v4"
	josejwt "github.com/go-jose/go-jose/v4/jwt"

	domainauth "github.com/hakim-ai/identity-gateway/internal/domain/auth"
	"github.com/hakim-ai/identity-gateway/internal/ports"
)

const maxUserInfoSize = 1 << 20

var userInfoAlgorithms = []jose.SignatureAlgorithm{
	jose.RS256, jose.RS384, jose.RS512,
	jose.PS256, jose.PS384, jose.PS512,
	jose.ES256, jose.ES384, jose.ES512,
	jose.EdDSA,
}

// statusError is a non-2xx userinfo response.
type statusError struct {
	code int
}

func (e *statusError) Error() string { return fmt.Sprintf("userinfo endpoint returned status %d", e.code) }

// FetchIdentity calls the userinfo endpoint with the access token and decodes the claims.
func (p *Provider) FetchIdentity(ctx context.Context, tokens ports.Tokens) (domainauth.Identity, error) {
	if tokens.AccessToken == "" {
		return domainauth.Identity{}, domainauth.NewFlowError(domainauth.ErrUserInfoFetchFailed, "access token is missing", nil)
	}

	body, err := backoff.Retry(ctx, func() (userInfoResponse, error) {
		resp, fetchErr := p.fetchUserInfo(ctx, tokens.AccessToken)
		if fetchErr != nil && !retryableFetchError(fetchErr) {
			return resp, backoff.Permanent(fetchErr)
		}
		return resp, fetchErr
	}, p.retryOptions(ctx, "userinfo")...)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) {
			return domainauth.Identity{}, domainauth.NewFlowError(domainauth.ErrUserInfoFetchFailed, se.Error(), nil)
		}
		return domainauth.Identity{}, domainauth.NewFlowError(domainauth.ErrUserInfoFetchFailed, "userinfo request failed", err)
	}

	claims, err := p.decodeUserInfo(ctx, body)
	if err != nil {
		return domainauth.Identity{}, err
	}
	id, err := p.claims.Map(claims)
	if err != nil {
		return domainauth.Identity{}, domainauth.NewFlowError(domainauth.ErrInvalidIdentityClaims, "map claims", err)
	}
	id.Issuer = firstNonEmpty(stringClaim(claims, "iss"), p.issuer)
	if err := id.Validate(); err != nil {
		return domainauth.Identity{}, err
	}
	return id, nil
}

type userInfoResponse struct {
	contentType string
	body        []byte
}

func (p *Provider) fetchUserInfo(ctx context.Context, accessToken string) (userInfoResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return userInfoResponse{}, fmt.Errorf("create userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/jwt, application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return userInfoResponse{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxUserInfoSize))
		return userInfoResponse{}, &statusError{code: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUserInfoSize))
	if err != nil {
		return userInfoResponse{}, fmt.Errorf("read userinfo response: %w", err)
	}
	return userInfoResponse{contentType: resp.Header.Get("Content-Type"), body: body}, nil
}

func retryableFetchError(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= http.StatusInternalServerError
	}
	return isTransportError(err)
}

func isTransportError(err error) bool {
	var ue *url.Error
	return errors.As(err, &ue)
}

// decodeUserInfo returns the claim set from a JSON or signed JWT userinfo response.
func (p *Provider) decodeUserInfo(ctx context.Context, resp userInfoResponse) (map[string]any, error) {
	body := bytes.TrimSpace(resp.body)
	mediaType, _, _ := mime.ParseMediaType(resp.contentType)
	isJWT := mediaType == "application/jwt" || (len(body) > 0 && body[0] != '{' && bytes.Count(body, []byte(".")) == 2)

	payload := body
	if isJWT {
		var err error
		payload, err = p.jwtPayload(ctx, string(body))
		if err != nil {
			return nil, err
		}
	}

	var claims map[string]any
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, domainauth.NewFlowError(domainauth.ErrInvalidIdentityClaims, "userinfo payload is not a JSON object", err)
	}
	if isJWT {
		if err := p.validateUserInfoClaims(payload); err != nil {
			return nil, err
		}
	}
	return claims, nil
}

// validateUserInfoClaims checks the registered claims of a signed userinfo response: it must be
// addressed to this client, unexpired and, when the issuer is known, issued by it.
func (p *Provider) validateUserInfoClaims(payload []byte) error {
	var registered josejwt.Claims
	if err := json.Unmarshal(payload, &registered); err != nil {
		return domainauth.NewFlowError(domainauth.ErrInvalidIdentityClaims, "userinfo registered claims", err)
	}
	expected := josejwt.Expected{
		Issuer:      p.issuer,
		AnyAudience: josejwt.Audience{p.config.ClientID},
		Time:        p.now(),
	}
	if err := registered.ValidateWithLeeway(expected, josejwt.DefaultLeeway); err != nil {
		return domainauth.NewFlowError(domainauth.ErrInvalidIdentityClaims, "userinfo token rejected", err)
	}
	return nil
}

func (p *Provider) jwtPayload(ctx context.Context, raw string) ([]byte, error) {
	if !p.skipVerify {
		if p.keySet == nil {
			return nil, domainauth.NewFlowError(domainauth.ErrInvalidIdentityClaims, "signed userinfo received but no JWKS is configured", nil)
		}
		payload, err := p.keySet.VerifySignature(ctx, raw)
		if err != nil {
			return nil, domainauth.NewFlowError(domainauth.ErrInvalidIdentityClaims, "userinfo signature", err)
		}
		return payload, nil
	}

	tok, err := josejwt.ParseSigned(raw, userInfoAlgorithms)
	if err != nil {
		return nil, domainauth.NewFlowError(domainauth.ErrInvalidIdentityClaims, "malformed userinfo token", err)
	}
	var claims map[string]any
	if err := tok.UnsafeClaimsWithoutVerification(&claims); err != nil {
		return nil, domainauth.NewFlowError(domainauth.ErrInvalidIdentityClaims, "decode userinfo token", err)
	}
	return json.Marshal(claims)
}

func stringClaim(claims map[string]any, name string) string {
	s, _ := claims[name].(string)
	return s
}
