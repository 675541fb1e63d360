package pkce

import (
	"crypto/sha256"
	"encoding/base64"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var verifierAlphabet = regexp.MustCompile(`^[A-Za-z0-9\-._~]{43,128}$`)

func TestNewContext_ChallengeIsDigestOfVerifier(t *testing.T) {
	const n = 10000
	verifiers := make(map[string]struct{}, n)
	challenges := make(map[string]struct{}, n)
	states := make(map[string]struct{}, n)

	for range n {
		c, err := NewContext()
		require.NoError(t, err)

		sum := sha256.Sum256([]byte(c.Verifier))
		require.Equal(t, base64.RawURLEncoding.EncodeToString(sum[:]), c.Challenge)
		require.Regexp(t, verifierAlphabet, c.Verifier)
		require.NotEqual(t, c.Verifier, c.State)

		verifiers[c.Verifier] = struct{}{}
		challenges[c.Challenge] = struct{}{}
		states[c.State] = struct{}{}
	}

	assert.Len(t, verifiers, n)
	assert.Len(t, challenges, n)
	assert.Len(t, states, n)
}

func TestVerifyChallenge(t *testing.T) {
	c, err := NewContext()
	require.NoError(t, err)

	assert.True(t, VerifyChallenge(c.Verifier, c.Challenge))
	assert.False(t, VerifyChallenge(c.Verifier+"x", c.Challenge))
	// RFC 7636 appendix B vector
	assert.True(t, VerifyChallenge(
		"dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk",
		"E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"))
}

func TestStateMatches(t *testing.T) {
	assert.True(t, StateMatches("abc", "abc"))
	assert.False(t, StateMatches("abc", "abd"))
	assert.False(t, StateMatches("abc", "ab"))
	assert.False(t, StateMatches("", ""))
}
