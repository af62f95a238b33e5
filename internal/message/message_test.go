package message

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextAccessors(t *testing.T) {
	ctx := Context{
		"url":          "mq://host",
		"consume":      true,
		"message_wait": float64(5),
	}

	url, ok := ctx.URL()
	require.True(t, ok)
	assert.Equal(t, "mq://host", url)

	assert.True(t, ctx.Bool("consume"))
	assert.False(t, ctx.Bool("verbose"))
	assert.Equal(t, 5, ctx.Int("message_wait", 0))
	assert.Equal(t, 10, ctx.Int("missing", 10))
	assert.Equal(t, "fallback", ctx.StringOr("missing", "fallback"))
}

func TestFailAndSucceed(t *testing.T) {
	req := &Request{RequestID: "r1", Action: "GET"}
	started := time.Now().Add(-5 * time.Millisecond)

	fail := Fail(req, "w1", "boom", started)
	assert.False(t, fail.Success)
	assert.Equal(t, "boom", fail.Message)
	assert.Equal(t, "w1", fail.Worker)
	assert.GreaterOrEqual(t, fail.ResponseTime, int64(0))

	ok := Succeed(req, "w1", started)
	assert.True(t, ok.Success)
	assert.Equal(t, "GET", ok.Action)
}

func TestAbortResponse(t *testing.T) {
	req := &Request{RequestID: "r2", Action: "RECEIVE"}
	resp := AbortResponse(req, "w2")
	assert.False(t, resp.Success)
	assert.Equal(t, "abort", resp.Message)
}
