package azuread

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPKCEVerifierLength(t *testing.T) {
	verifier, err := newPKCEVerifier()
	require.NoError(t, err)
	assert.NotEmpty(t, verifier)
	// 96 random bytes in unpadded base64 are 128 characters.
	assert.Len(t, verifier, 128)

	other, err := newPKCEVerifier()
	require.NoError(t, err)
	assert.NotEqual(t, verifier, other)
}

func TestCodeChallengeS256Deterministic(t *testing.T) {
	a := codeChallengeS256("fixed-verifier")
	b := codeChallengeS256("fixed-verifier")
	assert.Equal(t, a, b)

	c := codeChallengeS256("other-verifier")
	assert.NotEqual(t, a, c)
}

func TestRandomHexUnique(t *testing.T) {
	a, err := randomHex(16)
	require.NoError(t, err)
	b, err := randomHex(16)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
