package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONTransformerOuterEquality(t *testing.T) {
	tr := &JSONTransformer{}
	value, err := tr.Transform([]byte(`{"name":"beta"}`))
	require.NoError(t, err)

	selector, err := tr.Compile("$..name=='beta'")
	require.NoError(t, err)

	matches, err := selector.Select(value)
	require.NoError(t, err)
	assert.Equal(t, []string{"beta"}, matches)
}

func TestJSONTransformerOuterEqualityNoMatch(t *testing.T) {
	tr := &JSONTransformer{}
	value, err := tr.Transform([]byte(`{"name":"alpha"}`))
	require.NoError(t, err)

	selector, err := tr.Compile("$..name=='beta'")
	require.NoError(t, err)

	matches, err := selector.Select(value)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestJSONTransformerPredicateForm(t *testing.T) {
	tr := &JSONTransformer{}
	value, err := tr.Transform([]byte(`{"document":{"name":"test","id":13}}`))
	require.NoError(t, err)

	selector, err := tr.Compile(`$.` + "`this`" + `[?(@.name="test")]`)
	require.NoError(t, err)

	matches, err := selector.Select(value)
	require.NoError(t, err)
	assert.Equal(t, []string{"test"}, matches)
}

func TestJSONTransformerRangeOperator(t *testing.T) {
	tr := &JSONTransformer{}
	value, err := tr.Transform([]byte(`{"id":13}`))
	require.NoError(t, err)

	selector, err := tr.Compile("$..id>=10")
	require.NoError(t, err)

	matches, err := selector.Select(value)
	require.NoError(t, err)
	assert.Equal(t, []string{"13"}, matches)
}

func TestJSONTransformerSetMembership(t *testing.T) {
	tr := &JSONTransformer{}
	value, err := tr.Transform([]byte(`{"name":"mallory"}`))
	require.NoError(t, err)

	selector, err := tr.Compile("$..name|=['bob','alice','mallory']")
	require.NoError(t, err)

	matches, err := selector.Select(value)
	require.NoError(t, err)
	assert.Equal(t, []string{"mallory"}, matches)
}

func TestJSONTransformerInvalidBody(t *testing.T) {
	tr := &JSONTransformer{}
	_, err := tr.Transform([]byte(`not json`))
	require.Error(t, err)
}
