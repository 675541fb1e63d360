// Package pkce generates the per-attempt secrets of the authorization code flow (RFC 7636).
package pkce

import (
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/hakim-ai/identity-gateway/internal/data/cryptoutil"
	domainauth "github.com/hakim-ai/identity-gateway/internal/domain/auth"
)

const (
	// MethodS256 is the only challenge method this client sends.
	MethodS256 = "S256"

	// verifierBytes yields a 43 character verifier, the RFC 7636 minimum.
	verifierBytes = 32
	stateBytes    = 16
)

// NewContext returns a fresh verifier/challenge pair and an independent anti-CSRF state.
func NewContext() (domainauth.PKCEContext, error) {
	verifier, err := cryptoutil.RandomToken(verifierBytes)
	if err != nil {
		return domainauth.PKCEContext{}, fmt.Errorf("generate verifier: %w", err)
	}
	raw, err := cryptoutil.SecureRandom(stateBytes)
	if err != nil {
		return domainauth.PKCEContext{}, fmt.Errorf("generate state: %w", err)
	}
	return domainauth.PKCEContext{
		Verifier:  verifier,
		Challenge: Challenge(verifier),
		State:     base64.RawURLEncoding.EncodeToString(raw),
	}, nil
}

// Challenge derives the S256 code challenge: BASE64URL(SHA256(verifier)).
func Challenge(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}

// VerifyChallenge reports whether challenge was derived from verifier.
func VerifyChallenge(verifier, challenge string) bool {
	return subtle.ConstantTimeCompare([]byte(Challenge(verifier)), []byte(challenge)) == 1
}

// StateMatches compares a returned state against the stored one byte for byte in constant time.
// An empty stored state never matches.
func StateMatches(stored, returned string) bool {
	if stored == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(returned)) == 1
}
