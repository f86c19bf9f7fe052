package auth

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHasherAlgorithms(t *testing.T) {
	for _, alg := range []string{"", "sha-256", "SHA3-256", "BLAKE2B-256"} {
		t.Run(alg, func(t *testing.T) {
			h, err := NewPasswordHasher(alg)
			require.NoError(t, err)

			salt, err := h.GenerateSalt()
			require.NoError(t, err)

			hash := h.Encode("secret1", salt)
			assert.Equal(t, hash, h.Encode("secret1", salt), "encode must be deterministic")
			assert.True(t, h.Matches("secret1", salt, hash))
			assert.False(t, h.Matches("secret2", salt, hash))
			assert.NotContains(t, hash, "secret1")
		})
	}
}

func TestPasswordHasherUnknownAlgorithm(t *testing.T) {
	_, err := NewPasswordHasher("MD4")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFatal))
}

func TestGenerateSaltDistinct(t *testing.T) {
	h, err := NewPasswordHasher(DefaultHashAlgorithm)
	require.NoError(t, err)

	a, err := h.GenerateSalt()
	require.NoError(t, err)
	b, err := h.GenerateSalt()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Len(t, a, 24) // base64 of 16 bytes
}

func TestEncodeDependsOnSalt(t *testing.T) {
	h, err := NewPasswordHasher(DefaultHashAlgorithm)
	require.NoError(t, err)
	assert.NotEqual(t, h.Encode("secret1", "c2FsdEE="), h.Encode("secret1", "c2FsdEI="))
}
