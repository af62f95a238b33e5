package mqintegration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTohexFromhexRoundTrip(t *testing.T) {
	id := []byte{0xDE, 0xAD, 0xBE, 0xEF}

	encoded := tohex(id)
	assert.Equal(t, "deadbeef", encoded)

	decoded, err := fromhex(encoded)
	require.NoError(t, err)
	assert.Equal(t, id, decoded)
}
