package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlainTransformerWholeMatch(t *testing.T) {
	tr := &PlainTransformer{}
	value, _ := tr.Transform([]byte("hello world"))

	selector, err := tr.Compile("^hello")
	require.NoError(t, err)

	matches, err := selector.Select(value)
	require.NoError(t, err)
	assert.Equal(t, []string{"hello"}, matches)
}

func TestPlainTransformerCaptureGroup(t *testing.T) {
	tr := &PlainTransformer{}
	value, _ := tr.Transform([]byte("order-42"))

	selector, err := tr.Compile(`^order-(\d+)$`)
	require.NoError(t, err)

	matches, err := selector.Select(value)
	require.NoError(t, err)
	assert.Equal(t, []string{"42"}, matches)
}

func TestPlainTransformerRejectsMultipleGroups(t *testing.T) {
	tr := &PlainTransformer{}
	_, err := tr.Compile(`^(a)(b)$`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zero or one match group")
}

func TestPlainTransformerNoMatch(t *testing.T) {
	tr := &PlainTransformer{}
	value, _ := tr.Transform([]byte("nope"))

	selector, err := tr.Compile("^yes$")
	require.NoError(t, err)

	matches, err := selector.Select(value)
	require.NoError(t, err)
	assert.Empty(t, matches)
}
