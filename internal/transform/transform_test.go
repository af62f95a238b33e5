package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseContentType(t *testing.T) {
	assert.Equal(t, JSON, ParseContentType("json"))
	assert.Equal(t, XML, ParseContentType("XML"))
	assert.Equal(t, PLAIN, ParseContentType("plain"))
	assert.Equal(t, Undefined, ParseContentType("yaml"))
}

func TestRegistryRejectsUndefined(t *testing.T) {
	r := NewRegistry()
	err := r.Register(Undefined, &PlainTransformer{})
	require.Error(t, err)
}

func TestDefaultRegistryHasAllThree(t *testing.T) {
	r := NewDefaultRegistry()
	for _, ct := range []ContentType{JSON, XML, PLAIN} {
		_, ok := r.Get(ct)
		assert.True(t, ok, "expected transformer for %s", ct)
	}
}
