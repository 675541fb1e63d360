package oidc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/hakim-ai/identity-gateway/internal/domain/auth"
)

func TestNewClaimMapper_CompilesOnce(t *testing.T) {
	m, err := NewClaimMapper(ClaimPaths{Subject: "profile.patient_id", Address: "profile.addr"})
	require.NoError(t, err)
	require.Len(t, m.compiled, len(identityTargets(&domainauth.Identity{})))
	for _, c := range m.compiled {
		assert.NotNil(t, c.path, "expression %q", c.expr)
	}
	assert.Equal(t, "profile.patient_id", m.compiled[0].expr)
	assert.Equal(t, "email", m.compiled[2].expr)

	_, err = NewClaimMapper(ClaimPaths{Email: "emails[?"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "emails[?")
}

func TestClaimMapper_Map(t *testing.T) {
	m, err := NewClaimMapper(ClaimPaths{Subject: "profile.patient_id", PhoneNumber: "phones[0]"})
	require.NoError(t, err)

	claims := map[string]any{
		"profile": map[string]any{"patient_id": "PAT-9"},
		"name":    "  Juma Hassan ",
		"email":   "juma@example.com",
		"phones":  []any{"+255700000009", "+255700000010"},
		"address": map[string]any{"street_address": "12 Uhuru St", "locality": "Dar es Salaam", "country": "TZ"},
	}

	// Repeated evaluation reuses the compiled expressions.
	for range 2 {
		id, err := m.Map(claims)
		require.NoError(t, err)
		assert.Equal(t, domainauth.Identity{
			Subject:     "PAT-9",
			Name:        "Juma Hassan",
			Email:       "juma@example.com",
			PhoneNumber: "+255700000009",
			Address:     "12 Uhuru St, Dar es Salaam, TZ",
		}, id)
	}

	id, err := m.Map(map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, domainauth.Identity{}, id)
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "42", stringify(float64(42)))
	assert.Equal(t, "true", stringify(true))
	assert.Equal(t, "Nairobi, KE", stringify(map[string]any{"formatted": "Nairobi, KE", "country": "XX"}))
	assert.Equal(t, `["a"]`, stringify([]any{"a"}))
	assert.Empty(t, stringify(nil))
}
