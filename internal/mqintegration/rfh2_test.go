package mqintegration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapUnwrapRFH2RoundTrip(t *testing.T) {
	payload := []byte("hello rfh2")

	wrapped := wrapRFH2(payload)
	assert.Greater(t, len(wrapped), len(payload))
	assert.Equal(t, "RFH ", string(wrapped[:4]))

	unwrapped, err := unwrapRFH2(wrapped)
	require.NoError(t, err)
	assert.Equal(t, payload, unwrapped)
}

func TestUnwrapRFH2RejectsNonRFH2(t *testing.T) {
	_, err := unwrapRFH2([]byte("not an rfh2 message"))
	require.Error(t, err)
}

func TestPadTo4(t *testing.T) {
	padded := padTo4("<mcd></mcd>")
	assert.Equal(t, 0, len(padded)%4)
	assert.Equal(t, "<mcd></mcd> ", padded)
	assert.Equal(t, "abcd", padTo4("abcd"))
}
