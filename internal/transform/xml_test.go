package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestXMLTransformerTextMatch(t *testing.T) {
	tr := &XMLTransformer{}
	doc, err := tr.Transform([]byte(`<order><name>beta</name></order>`))
	require.NoError(t, err)

	selector, err := tr.Compile("//name/text()")
	require.NoError(t, err)

	matches, err := selector.Select(doc)
	require.NoError(t, err)
	assert.Equal(t, []string{"beta"}, matches)
}

func TestXMLTransformerAttributeMatch(t *testing.T) {
	tr := &XMLTransformer{}
	doc, err := tr.Transform([]byte(`<order id="13"/>`))
	require.NoError(t, err)

	selector, err := tr.Compile("//order/@id")
	require.NoError(t, err)

	matches, err := selector.Select(doc)
	require.NoError(t, err)
	assert.Equal(t, []string{"13"}, matches)
}

func TestXMLTransformerInvalidBody(t *testing.T) {
	tr := &XMLTransformer{}
	_, err := tr.Transform([]byte("<unterminated"))
	require.Error(t, err)
}
