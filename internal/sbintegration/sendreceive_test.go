package sbintegration

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDrainedErrorIncludesExpressionAndIgnored(t *testing.T) {
	ep := &endpointArgs{queue: "Q", expression: "$.name=='mallory'"}
	err := drainedError(ep, true, 5, 2)
	assert.Contains(t, err.Error(), `"$.name=='mallory'"`)
	assert.Contains(t, err.Error(), "ignored 2")
	assert.Contains(t, err.Error(), "5s")
}

func TestIsLockLost(t *testing.T) {
	assert.True(t, isLockLost(errors.New("MessageLockLostError: the lock supplied is invalid")))
	assert.False(t, isLockLost(errors.New("some other error")))
}

func TestIsTransportError(t *testing.T) {
	assert.True(t, isTransportError(errors.New("Please use ServiceBusClient to create a new instance")))
	assert.True(t, isTransportError(errors.New("amqp link detached")))
	assert.False(t, isTransportError(errors.New("unrelated failure")))
}
