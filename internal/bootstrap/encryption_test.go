package bootstrap

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hakim-ai/identity-gateway/internal/data/cryptoutil"
)

func TestCreateEncryptor(t *testing.T) {
	t.Run("empty key outside dev", func(t *testing.T) {
		_, err := CreateEncryptor("", false, discardLogger())
		require.Error(t, err)
	})

	t.Run("empty key in dev", func(t *testing.T) {
		enc, err := CreateEncryptor("", true, discardLogger())
		require.NoError(t, err)
		assert.IsType(t, cryptoutil.NoopEncryptor{}, enc)
	})

	for name, key := range map[string]string{
		"hex key":    strings.Repeat("ab", 32),
		"passphrase": "correct horse battery staple",
	} {
		t.Run(name, func(t *testing.T) {
			enc, err := CreateEncryptor(key, false, discardLogger())
			require.NoError(t, err)

			sealed, err := enc.Encrypt([]byte("+966 555 0100"))
			require.NoError(t, err)
			assert.Len(t, strings.Split(sealed, ":"), 3)

			plain, err := enc.Decrypt(sealed)
			require.NoError(t, err)
			assert.Equal(t, "+966 555 0100", string(plain))
		})
	}
}
