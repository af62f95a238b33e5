package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeBytesPayloadUTF8(t *testing.T) {
	out, err := EncodeBytesPayload([]byte("hello é"))
	require.NoError(t, err)
	assert.Equal(t, "hello é", out)
}

func TestEncodeBytesPayloadLatin1Fallback(t *testing.T) {
	// 0xe9 alone is invalid UTF-8 but a defined Latin-1 code point (é).
	raw := []byte{'h', 'i', 0xe9}
	out, err := EncodeBytesPayload(raw)
	require.NoError(t, err)
	assert.Equal(t, "hié", out)
}

func TestMarshalTrimsTrailingNewline(t *testing.T) {
	out, err := Marshal(map[string]string{"a": "b"})
	require.NoError(t, err)
	assert.Equal(t, `{"a":"b"}`, string(out))
}
