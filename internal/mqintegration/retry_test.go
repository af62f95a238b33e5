package mqintegration

import (
	"errors"
	"testing"
	"time"

	"github.com/ibm-messaging/mq-golang/v5/ibmmq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biometria-se/async-messaged/internal/message"
)

func TestBackoffForIsQuadratic(t *testing.T) {
	assert.Equal(t, 500*time.Millisecond, backoffFor(1))
	assert.Equal(t, 2*time.Second, backoffFor(2))
	assert.Equal(t, 4500*time.Millisecond, backoffFor(3))
}

func TestWithRetrySucceedsWithoutRetrying(t *testing.T) {
	calls := 0
	err := withRetry(func(attempt int) error {
		calls++
		return nil
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	err := withRetry(func(attempt int) error {
		calls++
		return errors.New("boom")
	}, nil)
	require.Error(t, err)
	assert.Equal(t, maxRetryAttempts, calls)
	assert.Contains(t, err.Error(), "failed after 5 retries")
}

func TestWithRetryStopsOnFatalClassification(t *testing.T) {
	calls := 0
	sentinelFatal := errors.New("fatal")
	err := withRetry(func(attempt int) error {
		calls++
		return errors.New("boom")
	}, func(err error) error {
		return sentinelFatal
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, sentinelFatal, err)
}

// TestClassifyGetOverflowReportsBoundaryB1Message covers §8 boundary B1:
// an explicit max_message_size smaller than the message on the queue
// must fail with the exact "does not fit" wording the reference uses.
func TestClassifyGetOverflowReportsBoundaryB1Message(t *testing.T) {
	i := &Integration{}
	err := &ibmmq.MQReturn{MQCC: ibmmq.MQCC_FAILED, MQRC: ibmmq.MQRC_TRUNCATED_MSG_FAILED}

	classified := i.classifyGet(err, 1024, 4096, false)

	require.Error(t, classified)
	assert.ErrorIs(t, classified, message.ErrFatalBroker)
	assert.Contains(t, classified.Error(), "message with size 4096 bytes does not fit in message buffer of 1024 bytes")
}

// TestClassifyGetEmptyQueueReportsBoundaryB2TimeoutMessage covers §8
// boundary B2: a plain GET (no expression) on an empty queue must fail
// with a message containing "timeout".
func TestClassifyGetEmptyQueueReportsBoundaryB2TimeoutMessage(t *testing.T) {
	i := &Integration{}
	err := &ibmmq.MQReturn{MQCC: ibmmq.MQCC_FAILED, MQRC: ibmmq.MQRC_NO_MSG_AVAILABLE}

	classified := i.classifyGet(err, 0, 0, false)

	require.Error(t, classified)
	assert.ErrorIs(t, classified, message.ErrFatalBroker)
	assert.Contains(t, classified.Error(), "timeout")
}

// TestClassifyGetNoMessageWhileRefetchingIsTransient covers the
// content-selector re-fetch-by-id race, which must retry rather than
// fail outright.
func TestClassifyGetNoMessageWhileRefetchingIsTransient(t *testing.T) {
	i := &Integration{}
	err := &ibmmq.MQReturn{MQCC: ibmmq.MQCC_FAILED, MQRC: ibmmq.MQRC_NO_MSG_AVAILABLE}

	classified := i.classifyGet(err, 0, 0, true)

	require.Error(t, classified)
	assert.ErrorIs(t, classified, message.ErrTransientBroker)
}
